// Package critic invokes the critic worker with a failure analysis and
// validates the resulting proposal against the hard constraints in 4.K
// before it is ever handed to the Proposal Applier.
package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/worker"
)

const workerName = "critic"

var headerVersionPattern = regexp.MustCompile(`(?m)^#\s+[^\n]*v(\d+\.\d+\.\d+)`)

// Decision is the Critic's outcome: either an accepted Proposal, or a
// RejectionReason naming which hard constraint failed. Exactly one is set.
// Rejection is not an error: the caller decides whether to retry or move on.
type Decision struct {
	Proposal        *model.InstructionProposal
	RejectionReason string
}

// Critic runs the critic worker and enforces 4.K's validation rules.
type Critic struct {
	invoker         worker.Invoker
	instructionRoot string
}

// New constructs a Critic whose proposals are validated against
// instructionRoot, the directory tree the Applier is allowed to touch.
func New(invoker worker.Invoker, instructionRoot string) *Critic {
	return &Critic{invoker: invoker, instructionRoot: instructionRoot}
}

// Propose invokes the critic worker with analysis and validates its
// response. A non-nil error means the worker invocation or parsing itself
// failed; a Decision with a RejectionReason means the worker produced a
// proposal that violates a hard constraint.
func (c *Critic) Propose(ctx context.Context, analysis model.FailureAnalysis, timeout time.Duration) (Decision, error) {
	prompt := buildPrompt(analysis)

	response, err := c.invoker.Invoke(ctx, workerName, prompt, timeout)
	if err != nil {
		return Decision{}, fmt.Errorf("invoking critic: %w", err)
	}

	proposal, err := worker.ParseStructured[model.InstructionProposal](response)
	if err != nil {
		return Decision{}, fmt.Errorf("parsing critic proposal: %w", err)
	}

	raw, err := json.Marshal(proposal)
	if err != nil {
		return Decision{}, fmt.Errorf("marshaling critic proposal: %w", err)
	}
	if err := model.ValidateJSON[model.InstructionProposal]("instruction_proposal", raw); err != nil {
		return Decision{RejectionReason: err.Error()}, nil
	}

	if reason := c.validate(proposal); reason != "" {
		return Decision{RejectionReason: reason}, nil
	}

	return Decision{Proposal: &proposal}, nil
}

func (c *Critic) validate(p model.InstructionProposal) string {
	absRoot, err := filepath.Abs(c.instructionRoot)
	if err != nil {
		return fmt.Sprintf("resolving instruction root: %v", err)
	}
	absTarget, err := filepath.Abs(p.TargetFile)
	if err != nil {
		return fmt.Sprintf("resolving target_file: %v", err)
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Sprintf("target_file %q lies outside the instruction root", p.TargetFile)
	}

	currentOnDisk, err := readHeaderVersion(p.TargetFile)
	if err != nil {
		return fmt.Sprintf("reading target_file header: %v", err)
	}
	if currentOnDisk != p.CurrentVersion {
		return fmt.Sprintf("current_version %q does not match on-disk header %q", p.CurrentVersion, currentOnDisk)
	}

	current, err := semver.NewVersion(p.CurrentVersion)
	if err != nil {
		return fmt.Sprintf("current_version %q is not valid semver", p.CurrentVersion)
	}
	proposed, err := semver.NewVersion(p.ProposedVersion)
	if err != nil {
		return fmt.Sprintf("proposed_version %q is not valid semver", p.ProposedVersion)
	}
	if !proposed.GreaterThan(current) {
		return fmt.Sprintf("proposed_version %q is not strictly greater than current_version %q", p.ProposedVersion, p.CurrentVersion)
	}

	bump := bumpKind(current, proposed)
	required := requiredBump(p.ChangeType)
	if bump != required {
		return fmt.Sprintf("change_type %q requires a %s bump, got %s (%s -> %s)", p.ChangeType, required, bump, current, proposed)
	}

	if strings.TrimSpace(p.ProposedChange) == "" {
		return "proposed_change must be non-empty markdown"
	}

	return ""
}

func requiredBump(ct model.ChangeType) string {
	switch ct {
	case model.ChangeAddSection, model.ChangeModifySection:
		return "minor"
	case model.ChangeClarifyRule:
		return "patch"
	default:
		return "unknown"
	}
}

func bumpKind(current, proposed *semver.Version) string {
	switch {
	case proposed.Major() != current.Major():
		if proposed.Major() == current.Major()+1 && proposed.Minor() == 0 && proposed.Patch() == 0 {
			return "major"
		}
	case proposed.Minor() != current.Minor():
		if proposed.Minor() == current.Minor()+1 && proposed.Patch() == 0 {
			return "minor"
		}
	case proposed.Patch() != current.Patch():
		if proposed.Patch() == current.Patch()+1 {
			return "patch"
		}
	}
	return "invalid"
}

func readHeaderVersion(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	match := headerVersionPattern.FindSubmatch(content)
	if match == nil {
		return "", fmt.Errorf("no version header found in %s", path)
	}
	return string(match[1]), nil
}

func buildPrompt(analysis model.FailureAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dominant error type: %s\n", analysis.DominantErrorType)
	fmt.Fprintf(&b, "Dominant domain: %s\n", analysis.DominantDomain)
	fmt.Fprintf(&b, "Aggregate F1: %.4f\n", analysis.AggregateF1)
	fmt.Fprintf(&b, "Evaluations: %s\n", strings.Join(analysis.EvalIDs, ", "))
	b.WriteString("Propose a single instruction-document edit that addresses the dominant failure pattern.\n")
	return b.String()
}
