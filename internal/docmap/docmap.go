// Package docmap classifies every page image of an evaluation case into
// {schedule, compliance, drawing, other} via the discovery worker.
package docmap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/worker"
)

// Cache persists and retrieves a DocumentMap keyed by eval_id.
// Implemented by internal/iterstore.Store, which keeps it on disk, so it
// outlives a single run.
type Cache interface {
	LoadDocumentMap(evalID string) (model.DocumentMap, bool, error)
	SaveDocumentMap(evalID string, doc model.DocumentMap) error
}

const discoveryWorkerName = "document-discovery"

// Builder classifies every page image of an evaluation case exactly once.
type Builder struct {
	invoker worker.Invoker
	cache   Cache
	timeout time.Duration
}

// NewBuilder constructs a Builder.
func NewBuilder(invoker worker.Invoker, cache Cache, timeout time.Duration) *Builder {
	return &Builder{invoker: invoker, cache: cache, timeout: timeout}
}

// BuildMap classifies pageImagePaths into a DocumentMap. It returns the
// cached map for evalID when the Cache holds one; otherwise it invokes the
// discovery worker and saves the validated result to the Cache.
func (b *Builder) BuildMap(ctx context.Context, evalID string, pageImagePaths []string) (model.DocumentMap, error) {
	if cached, ok, err := b.cache.LoadDocumentMap(evalID); err != nil {
		return model.DocumentMap{}, fmt.Errorf("loading cached document map: %w", err)
	} else if ok {
		return cached, nil
	}

	prompt := buildDiscoveryPrompt(pageImagePaths)

	response, err := b.invoker.Invoke(ctx, discoveryWorkerName, prompt, b.timeout)
	if err != nil {
		return model.DocumentMap{}, fmt.Errorf("invoking discovery worker: %w", err)
	}

	doc, err := worker.ParseStructured[model.DocumentMap](response)
	if err != nil {
		return model.DocumentMap{}, fmt.Errorf("parsing document map: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return model.DocumentMap{}, fmt.Errorf("re-marshaling document map: %w", err)
	}
	if err := model.ValidateJSON[model.DocumentMap]("document_map", raw); err != nil {
		return model.DocumentMap{}, fmt.Errorf("document map failed schema validation: %w", err)
	}

	if err := b.cache.SaveDocumentMap(evalID, doc); err != nil {
		return model.DocumentMap{}, fmt.Errorf("caching document map: %w", err)
	}

	return doc, nil
}

func buildDiscoveryPrompt(pageImagePaths []string) string {
	var b strings.Builder
	b.WriteString("Classify each page image into one of: schedule, compliance, drawing, other.\n")
	b.WriteString("Pages:\n")
	for i, p := range pageImagePaths {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	return b.String()
}
