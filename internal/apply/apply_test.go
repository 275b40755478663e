package apply_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"basegraph.app/t24spec/internal/apply"
	"basegraph.app/t24spec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestApplyAddSectionBumpsVersionAndAppends(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "project-extractor", "instructions.md")
	writeFile(t, target, "# Project extractor instructions v1.0.0\n\nRead the cover sheet.\n")

	iterDir := filepath.Join(t.TempDir(), "iterations", "iteration-002")
	require.NoError(t, os.MkdirAll(iterDir, 0o755))

	proposal := model.InstructionProposal{
		TargetFile:      target,
		CurrentVersion:  "1.0.0",
		ProposedVersion: "1.1.0",
		ChangeType:      model.ChangeAddSection,
		ProposedChange:  "## Orientation\nAlways check the site plan's north arrow.",
	}

	a := apply.New(root, nil)
	err := a.Apply(context.Background(), proposal, []apply.ActiveEvaluation{
		{EvalID: "eval-1", IterationDir: iterDir},
	}, iterDir, "apply: add orientation section")
	require.NoError(t, err)

	updated, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "v1.1.0")
	assert.Contains(t, string(updated), "Always check the site plan's north arrow.")

	require.FileExists(t, filepath.Join(iterDir, "proposal.json"))
}

func TestApplyModifySectionReplacesHeadingRange(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "zones-extractor", "instructions.md")
	writeFile(t, target, "# Zones extractor instructions v1.0.0\n\n## Floor area\nOld rule.\n\n## Zone naming\nUse schedule names.\n")

	proposal := model.InstructionProposal{
		TargetFile:      target,
		CurrentVersion:  "1.0.0",
		ProposedVersion: "1.1.0",
		ChangeType:      model.ChangeModifySection,
		ProposedChange:  "## Floor area\nNew rule: always read from the room schedule table.",
	}

	a := apply.New(root, nil)
	err := a.Apply(context.Background(), proposal, nil, "", "")
	require.NoError(t, err)

	updated, err := os.ReadFile(target)
	require.NoError(t, err)
	content := string(updated)
	assert.Contains(t, content, "New rule: always read from the room schedule table.")
	assert.NotContains(t, content, "Old rule.")
	assert.Contains(t, content, "## Zone naming")
}

func TestApplyRejectsConcurrentModification(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "instructions.md")
	writeFile(t, target, "# Instructions v2.0.0\n\nbody\n")

	proposal := model.InstructionProposal{
		TargetFile:      target,
		CurrentVersion:  "1.0.0",
		ProposedVersion: "1.1.0",
		ChangeType:      model.ChangeAddSection,
		ProposedChange:  "## New\nbody",
	}

	a := apply.New(root, nil)
	err := a.Apply(context.Background(), proposal, nil, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrently modified")
}

func TestRollbackRestoresSnapshotAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "instructions.md")
	original := "# Instructions v1.0.0\n\noriginal body\n"
	writeFile(t, target, original)

	iterDir := t.TempDir()

	proposal := model.InstructionProposal{
		TargetFile:      target,
		CurrentVersion:  "1.0.0",
		ProposedVersion: "1.1.0",
		ChangeType:      model.ChangeAddSection,
		ProposedChange:  "## New\nregression-causing change",
	}

	a := apply.New(root, nil)
	require.NoError(t, a.Apply(context.Background(), proposal, []apply.ActiveEvaluation{
		{EvalID: "eval-1", IterationDir: iterDir},
	}, iterDir, ""))

	modified, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(modified), "v1.1.0")

	require.NoError(t, a.Rollback(iterDir))
	restored, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, string(restored))

	require.NoError(t, a.Rollback(iterDir))
	restoredAgain, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, string(restoredAgain))
}
