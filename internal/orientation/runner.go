package orientation

import (
	"context"
	"fmt"
	"time"

	"basegraph.app/t24spec/internal/worker"
)

const (
	pass1WorkerName = "orientation-north-arrow-and-entry"
	pass2WorkerName = "orientation-elevation-and-wall-edge"
)

// RunPass invokes the named orientation pass worker and parses its result.
func RunPass(ctx context.Context, invoker worker.Invoker, passWorkerName, prompt string, timeout time.Duration) (PassResult, error) {
	response, err := invoker.Invoke(ctx, passWorkerName, prompt, timeout)
	if err != nil {
		return PassResult{}, fmt.Errorf("invoking %s: %w", passWorkerName, err)
	}

	result, err := worker.ParseStructured[PassResult](response)
	if err != nil {
		return PassResult{}, fmt.Errorf("parsing %s response: %w", passWorkerName, err)
	}

	return result, nil
}

// Pass1Prompt and Pass2Prompt build the respective worker prompts, each
// referencing the page set a site plan / elevation drawing would be found
// in; the engine supplies the page image paths.
func Pass1Prompt(pageImagePaths []string) string {
	return buildPassPrompt("Estimate the drawn north-arrow angle and the direction the building front faces; compute (front_drawing_angle - north_arrow_angle) mod 360.", pageImagePaths)
}

func Pass2Prompt(pageImagePaths []string) string {
	return buildPassPrompt("Identify the entry elevation, locate the entry wall on the site plan, measure its outward normal; compute the same formula as pass 1.", pageImagePaths)
}

func buildPassPrompt(instruction string, pageImagePaths []string) string {
	prompt := instruction + "\nPage images:\n"
	for _, p := range pageImagePaths {
		prompt += "- " + p + "\n"
	}
	return prompt
}

// WorkerNames returns the two pass worker names in declared canonical order.
func WorkerNames() (string, string) {
	return pass1WorkerName, pass2WorkerName
}
