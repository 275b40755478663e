// Package apply implements the Proposal Applier: atomically rewriting an
// instruction document per an approved InstructionProposal, snapshotting
// prior content for rollback, and committing the change to version
// control.
package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"basegraph.app/t24spec/common"
	"basegraph.app/t24spec/internal/model"
	"github.com/google/uuid"
)

var headerVersionPattern = regexp.MustCompile(`(?m)^(#\s+[^\n]*v)(\d+\.\d+\.\d+)`)

// ActiveEvaluation names one evaluation's iteration directory that must
// receive a snapshot of the instruction document before it changes, per
// 4.L step 2.
type ActiveEvaluation struct {
	EvalID       string
	IterationDir string // .../iterations/iteration-NNN
}

// Applier applies approved proposals against instruction documents.
type Applier struct {
	instructionRoot string
	vcs             VCS
}

// New constructs an Applier. vcs may be nil to skip version-control commits
// (e.g. in tests or when the instruction tree isn't a git repository).
func New(instructionRoot string, vcs VCS) *Applier {
	return &Applier{instructionRoot: instructionRoot, vcs: vcs}
}

// snapshotManifest maps a snapshot's encoded filename to the absolute path
// it was copied from, so Rollback can restore it.
type snapshotManifest map[string]string

// Apply implements 4.L's seven-step procedure: snapshotting the current
// content of proposal's target file into every active evaluation's
// iteration directory, writing the new content atomically, recording
// proposal.json in originatingIterationDir, and committing with
// commitMessage (typically embedding before/after metric deltas).
func (a *Applier) Apply(ctx context.Context, proposal model.InstructionProposal, activeEvals []ActiveEvaluation, originatingIterationDir, commitMessage string) error {
	currentContent, err := os.ReadFile(proposal.TargetFile)
	if err != nil {
		return fmt.Errorf("reading target file: %w", err)
	}

	currentVersion, err := parseHeaderVersion(currentContent)
	if err != nil {
		return fmt.Errorf("parsing target file header: %w", err)
	}
	if currentVersion != proposal.CurrentVersion {
		return fmt.Errorf("target file concurrently modified: header now %q, proposal expected %q", currentVersion, proposal.CurrentVersion)
	}

	for _, eval := range activeEvals {
		if err := a.snapshot(proposal.TargetFile, currentVersion, string(currentContent), eval.IterationDir); err != nil {
			return fmt.Errorf("snapshotting for eval %s: %w", eval.EvalID, err)
		}
	}

	newContent, err := computeNewContent(string(currentContent), proposal)
	if err != nil {
		return fmt.Errorf("computing new content: %w", err)
	}
	newContent = rewriteVersionHeader(newContent, proposal.ProposedVersion)

	if err := atomicWrite(proposal.TargetFile, []byte(newContent)); err != nil {
		return fmt.Errorf("writing target file: %w", err)
	}

	if originatingIterationDir != "" {
		if err := writeJSONAtomic(filepath.Join(originatingIterationDir, "proposal.json"), proposal); err != nil {
			return fmt.Errorf("recording proposal: %w", err)
		}
	}

	if a.vcs != nil {
		if err := a.vcs.Commit(ctx, a.instructionRoot, commitMessage, []string{proposal.TargetFile}); err != nil {
			return fmt.Errorf("committing instruction change: %w", err)
		}
	}

	return nil
}

// Rollback restores every file recorded in iterationDir's snapshot
// manifest to its original path and original content. It is idempotent:
// a second call finds no manifest entries still pointing at stale content
// and simply rewrites the same bytes again.
func (a *Applier) Rollback(iterationDir string) error {
	manifestPath := filepath.Join(iterationDir, "snapshots", "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading snapshot manifest: %w", err)
	}

	var manifest snapshotManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("decoding snapshot manifest: %w", err)
	}

	for encoded, originalPath := range manifest {
		content, err := os.ReadFile(filepath.Join(iterationDir, "snapshots", encoded))
		if err != nil {
			return fmt.Errorf("reading snapshot %s: %w", encoded, err)
		}
		if err := atomicWrite(originalPath, content); err != nil {
			return fmt.Errorf("restoring %s: %w", originalPath, err)
		}
	}

	return nil
}

func (a *Applier) snapshot(targetFile, version, content, iterationDir string) error {
	snapshotDir := filepath.Join(iterationDir, "snapshots")
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	rel, err := filepath.Rel(a.instructionRoot, targetFile)
	if err != nil {
		rel = filepath.Base(targetFile)
	}
	encoded := snapshotFilename(rel, version)

	if err := atomicWrite(filepath.Join(snapshotDir, encoded), []byte(content)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	manifestPath := filepath.Join(snapshotDir, "manifest.json")
	manifest := snapshotManifest{}
	if raw, err := os.ReadFile(manifestPath); err == nil {
		_ = json.Unmarshal(raw, &manifest)
	}
	manifest[encoded] = targetFile
	return writeJSONAtomic(manifestPath, manifest)
}

func snapshotFilename(relPath, version string) string {
	slug, err := common.Slugify(relPath, "snapshot")
	if err != nil {
		slug = "snapshot"
	}
	return fmt.Sprintf("%s.v%s.md", slug, version)
}

func parseHeaderVersion(content []byte) (string, error) {
	match := headerVersionPattern.FindSubmatch(content)
	if match == nil {
		return "", fmt.Errorf("no version header found")
	}
	return string(match[2]), nil
}

func rewriteVersionHeader(content, newVersion string) string {
	return headerVersionPattern.ReplaceAllString(content, "${1}"+newVersion)
}

func computeNewContent(current string, proposal model.InstructionProposal) (string, error) {
	switch proposal.ChangeType {
	case model.ChangeAddSection:
		return strings.TrimRight(current, "\n") + "\n\n" + strings.TrimSpace(proposal.ProposedChange) + "\n", nil

	case model.ChangeModifySection, model.ChangeClarifyRule:
		return replaceSection(current, proposal.ProposedChange)

	default:
		return "", fmt.Errorf("unknown change_type %q", proposal.ChangeType)
	}
}

// replaceSection locates the heading that proposedChange's first line
// declares, and replaces from that heading to the next heading of the same
// or higher level with proposedChange, per 4.L step 3.
func replaceSection(current, proposedChange string) (string, error) {
	lines := strings.Split(current, "\n")
	changeLines := strings.Split(strings.TrimRight(proposedChange, "\n"), "\n")
	if len(changeLines) == 0 || !strings.HasPrefix(strings.TrimSpace(changeLines[0]), "##") {
		return "", fmt.Errorf("proposed_change must begin with a matching ## heading")
	}

	heading := strings.TrimSpace(changeLines[0])
	level := headingLevel(heading)

	start := -1
	end := len(lines)
	for i, line := range lines {
		if start == -1 {
			if strings.TrimSpace(line) == heading {
				start = i
			}
			continue
		}
		if headingLevel(strings.TrimSpace(line)) > 0 && headingLevel(strings.TrimSpace(line)) <= level {
			end = i
			break
		}
	}
	if start == -1 {
		return "", fmt.Errorf("heading %q not found in target document", heading)
	}

	var out []string
	out = append(out, lines[:start]...)
	out = append(out, changeLines...)
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n"), nil
}

func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0
	}
	return level
}

func atomicWrite(path string, content []byte) error {
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomicWrite(path, raw)
}
