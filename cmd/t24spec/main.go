// Command t24spec runs the extraction and self-improvement core over a
// directory of evaluation cases: each subdirectory of PAGES_ROOT holding
// page-NNN.png files is one eval_id, matched against a ground-truth file
// of the same name under the iteration store root. CLI argument parsing
// and report rendering are out of this core's scope (spec.md §1); this
// entrypoint wires environment-driven configuration to the Engine the way
// cmd/worker wires the teacher's queue consumer to the brain orchestrator.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"basegraph.app/t24spec/common/logger"
	"basegraph.app/t24spec/common/otel"
	"basegraph.app/t24spec/core/config"
	"basegraph.app/t24spec/internal/apply"
	"basegraph.app/t24spec/internal/critic"
	"basegraph.app/t24spec/internal/engine"
	"basegraph.app/t24spec/internal/iterstore"
	"basegraph.app/t24spec/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logger.Setup(cfg)

	fmt.Println(banner)

	if cfg.OTel.Enabled() {
		telemetry, err := otel.Setup(ctx, cfg.OTel)
		if err != nil {
			slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := telemetry.Shutdown(context.Background()); err != nil {
				slog.ErrorContext(ctx, "telemetry shutdown error", "error", err)
			}
		}()
	}

	if err := checkExternalDependencies(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "missing required dependencies", "error", err)
		os.Exit(1)
	}

	store, err := iterstore.NewStore(cfg.IterationStoreRoot)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open iteration store", "error", err)
		os.Exit(1)
	}

	invoker, err := worker.NewExecInvoker(worker.Config{
		RuntimeCmd: cfg.WorkerRuntime,
		WorkDir:    cfg.InstructionRoot,
	}, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to construct worker invoker", "error", err)
		os.Exit(1)
	}

	criticInst := critic.New(invoker, cfg.InstructionRoot)
	applier := apply.New(cfg.InstructionRoot, apply.NewGitVCS(nil))

	core := engine.New(cfg, invoker, store, criticInst, applier)

	pagesRoot := os.Getenv("PAGES_ROOT")
	if pagesRoot == "" {
		slog.ErrorContext(ctx, "PAGES_ROOT environment variable is required")
		os.Exit(1)
	}

	evalIDs, err := discoverEvalCases(pagesRoot)
	if err != nil {
		slog.ErrorContext(ctx, "failed to discover evaluation cases", "error", err)
		os.Exit(1)
	}
	if len(evalIDs) == 0 {
		slog.WarnContext(ctx, "no evaluation cases found under PAGES_ROOT", "pages_root", pagesRoot)
		return
	}

	slog.InfoContext(ctx, "evaluation batch starting", "eval_count", len(evalIDs))

	iterationDirs := make(map[string]string, len(evalIDs))
	for _, evalID := range evalIDs {
		select {
		case <-ctx.Done():
			slog.WarnContext(ctx, "cancelled before processing all evaluations", "error", ctx.Err())
			return
		default:
		}

		pagePaths, err := pageImagePaths(filepath.Join(pagesRoot, evalID))
		if err != nil {
			slog.ErrorContext(ctx, "failed to list page images", "eval_id", evalID, "error", err)
			continue
		}

		_, iterationDir, err := core.Extract(ctx, evalID, pagePaths)
		if err != nil {
			slog.ErrorContext(ctx, "extraction failed", "eval_id", evalID, "error", err)
			continue
		}

		if _, err := core.Verify(ctx, evalID, iterationDir, iterationNumberOf(iterationDir)); err != nil {
			slog.ErrorContext(ctx, "verification failed", "eval_id", evalID, "error", err)
			continue
		}

		iterationDirs[evalID] = iterationDir
	}

	if os.Getenv("T24SPEC_IMPROVE") != "1" {
		slog.InfoContext(ctx, "evaluation batch completed", "processed", len(iterationDirs))
		return
	}

	runImprovementStep(ctx, core, iterationDirs)
}

// runImprovementStep closes the extract → verify → propose → apply loop's
// analysis half: it aggregates this batch's failures, asks the Critic for
// a proposal, and applies it if accepted. A fresh batch must be re-run by
// the caller afterward; applying a proposal concurrently with extraction
// is never done, per §5's "not concurrent with proposal application".
func runImprovementStep(ctx context.Context, core *engine.Engine, iterationDirs map[string]string) {
	analysis, err := core.Analyse(ctx, iterationDirs)
	if err != nil {
		slog.ErrorContext(ctx, "failure analysis failed", "error", err)
		return
	}

	decision, err := core.Propose(ctx, analysis)
	if err != nil {
		slog.ErrorContext(ctx, "critic invocation failed", "error", err)
		return
	}
	if decision.Proposal == nil {
		slog.InfoContext(ctx, "no proposal applied this round", "reason", decision.RejectionReason)
		return
	}

	activeEvals := make([]apply.ActiveEvaluation, 0, len(iterationDirs))
	var originatingIterationDir string
	for evalID, dir := range iterationDirs {
		activeEvals = append(activeEvals, apply.ActiveEvaluation{EvalID: evalID, IterationDir: dir})
		if originatingIterationDir == "" {
			originatingIterationDir = dir
		}
	}

	commitMessage := fmt.Sprintf(
		"instructions: %s (aggregate F1 %.3f, dominant error %s in %s)",
		decision.Proposal.Hypothesis, analysis.AggregateF1, analysis.DominantErrorType, analysis.DominantDomain,
	)

	if err := core.Apply(ctx, *decision.Proposal, activeEvals, originatingIterationDir, commitMessage); err != nil {
		slog.ErrorContext(ctx, "applying proposal failed", "error", err)
		return
	}

	slog.InfoContext(ctx, "instruction proposal applied",
		"target_file", decision.Proposal.TargetFile,
		"proposed_version", decision.Proposal.ProposedVersion)
}

// discoverEvalCases lists pagesRoot's immediate subdirectories, one per
// evaluation case, in sorted order so batch processing is deterministic.
func discoverEvalCases(pagesRoot string) ([]string, error) {
	entries, err := os.ReadDir(pagesRoot)
	if err != nil {
		return nil, fmt.Errorf("reading pages root: %w", err)
	}

	var evalIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			evalIDs = append(evalIDs, entry.Name())
		}
	}
	sort.Strings(evalIDs)
	return evalIDs, nil
}

// pageImagePaths returns dir's page-NNN.png files in ascending page order.
func pageImagePaths(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, fmt.Errorf("globbing page images: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// iterationNumberOf extracts NNN from a ".../iterations/iteration-NNN"
// path for aggregate-history bookkeeping.
func iterationNumberOf(iterationDir string) int {
	var n int
	fmt.Sscanf(filepath.Base(iterationDir), "iteration-%d", &n)
	return n
}

func checkExternalDependencies(ctx context.Context, cfg config.Config) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "t24spec.deps"})

	deps := []string{"git"}
	if cfg.WorkerRuntime != "" {
		deps = append(deps, cfg.WorkerRuntime)
	}

	for _, name := range deps {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", name, err)
		}
		slog.InfoContext(ctx, "dependency available", "name", name)
	}

	if _, err := os.Stat(cfg.InstructionRoot); err != nil {
		return fmt.Errorf("instruction root %q: %w", cfg.InstructionRoot, err)
	}

	return nil
}

const banner = `
 ████████╗██████╗ ██╗  ██╗███████╗██████╗ ███████╗ ██████╗
 ╚══██╔══╝╚════██╗██║  ██║██╔════╝██╔══██╗██╔════╝██╔════╝
    ██║    █████╔╝███████║███████╗██████╔╝█████╗  ██║
    ██║   ██╔═══╝ ╚════██║╚════██║██╔═══╝ ██╔══╝  ██║
    ██║   ███████╗     ██║███████║██║     ███████╗╚██████╗
    ╚═╝   ╚══════╝     ╚═╝╚══════╝╚═╝     ╚══════╝ ╚═════╝
`
