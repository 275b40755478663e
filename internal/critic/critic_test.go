package critic_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"basegraph.app/t24spec/internal/critic"
	"basegraph.app/t24spec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	response string
	err      error
}

func (f fakeInvoker) Invoke(ctx context.Context, workerName, prompt string, timeout time.Duration) (string, error) {
	return f.response, f.err
}

func writeInstructionFile(t *testing.T, root, name, version string) string {
	t.Helper()
	path := filepath.Join(root, name)
	content := "# Zones extractor instructions v" + version + "\n\nOriginal body.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProposeAcceptsValidMinorBump(t *testing.T) {
	root := t.TempDir()
	target := writeInstructionFile(t, root, "zones.md", "1.0.0")

	response := `{
		"target_file": "` + target + `",
		"current_version": "1.0.0",
		"proposed_version": "1.1.0",
		"change_type": "add_section",
		"failure_pattern": "missing floor area",
		"hypothesis": "workers skip the schedule table",
		"proposed_change": "## Floor area\nAlways read floor area from the room schedule.",
		"expected_impact": "fewer omissions",
		"affected_error_types": ["omission"],
		"affected_domains": ["zones"],
		"estimated_f1_delta": 0.05
	}`

	c := critic.New(fakeInvoker{response: response}, root)
	decision, err := c.Propose(context.Background(), model.FailureAnalysis{DominantDomain: "zones"}, time.Second)

	require.NoError(t, err)
	require.Empty(t, decision.RejectionReason)
	require.NotNil(t, decision.Proposal)
	assert.Equal(t, "1.1.0", decision.Proposal.ProposedVersion)
}

func TestProposeRejectsTargetOutsideInstructionRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := writeInstructionFile(t, outside, "rogue.md", "1.0.0")

	response := `{
		"target_file": "` + target + `",
		"current_version": "1.0.0",
		"proposed_version": "1.1.0",
		"change_type": "add_section",
		"failure_pattern": "p",
		"hypothesis": "h",
		"proposed_change": "## New\nbody",
		"expected_impact": "e",
		"affected_error_types": ["omission"],
		"affected_domains": ["zones"],
		"estimated_f1_delta": 0.01
	}`

	c := critic.New(fakeInvoker{response: response}, root)
	decision, err := c.Propose(context.Background(), model.FailureAnalysis{}, time.Second)

	require.NoError(t, err)
	assert.Nil(t, decision.Proposal)
	assert.Contains(t, decision.RejectionReason, "outside the instruction root")
}

func TestProposeRejectsWrongBumpRule(t *testing.T) {
	root := t.TempDir()
	target := writeInstructionFile(t, root, "zones.md", "1.0.0")

	response := `{
		"target_file": "` + target + `",
		"current_version": "1.0.0",
		"proposed_version": "2.0.0",
		"change_type": "add_section",
		"failure_pattern": "p",
		"hypothesis": "h",
		"proposed_change": "## New\nbody",
		"expected_impact": "e",
		"affected_error_types": ["omission"],
		"affected_domains": ["zones"],
		"estimated_f1_delta": 0.01
	}`

	c := critic.New(fakeInvoker{response: response}, root)
	decision, err := c.Propose(context.Background(), model.FailureAnalysis{}, time.Second)

	require.NoError(t, err)
	assert.Nil(t, decision.Proposal)
	assert.Contains(t, decision.RejectionReason, "requires a minor bump")
}

func TestProposeRejectsVersionMismatch(t *testing.T) {
	root := t.TempDir()
	target := writeInstructionFile(t, root, "zones.md", "1.0.0")

	response := `{
		"target_file": "` + target + `",
		"current_version": "0.9.0",
		"proposed_version": "0.10.0",
		"change_type": "add_section",
		"failure_pattern": "p",
		"hypothesis": "h",
		"proposed_change": "## New\nbody",
		"expected_impact": "e",
		"affected_error_types": ["omission"],
		"affected_domains": ["zones"],
		"estimated_f1_delta": 0.01
	}`

	c := critic.New(fakeInvoker{response: response}, root)
	decision, err := c.Propose(context.Background(), model.FailureAnalysis{}, time.Second)

	require.NoError(t, err)
	assert.Nil(t, decision.Proposal)
	assert.Contains(t, decision.RejectionReason, "does not match")
}

func TestProposeRejectsEmptyChange(t *testing.T) {
	root := t.TempDir()
	target := writeInstructionFile(t, root, "zones.md", "1.0.0")

	response := `{
		"target_file": "` + target + `",
		"current_version": "1.0.0",
		"proposed_version": "1.0.1",
		"change_type": "clarify_rule",
		"failure_pattern": "p",
		"hypothesis": "h",
		"proposed_change": "   ",
		"expected_impact": "e",
		"affected_error_types": ["omission"],
		"affected_domains": ["zones"],
		"estimated_f1_delta": 0.01
	}`

	c := critic.New(fakeInvoker{response: response}, root)
	decision, err := c.Propose(context.Background(), model.FailureAnalysis{}, time.Second)

	require.NoError(t, err)
	assert.Nil(t, decision.Proposal)
	assert.Contains(t, decision.RejectionReason, "non-empty")
}
