// Package engine is the single top-level coordinator that strings the
// extraction, verification and self-improvement subsystems together into
// the invocation surface an external caller (the CLI) drives: Extract,
// Verify, Analyse, Propose, Apply, Rollback.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"basegraph.app/t24spec/common/logger"
	"basegraph.app/t24spec/core/config"
	"basegraph.app/t24spec/internal/analyse"
	"basegraph.app/t24spec/internal/apply"
	"basegraph.app/t24spec/internal/critic"
	"basegraph.app/t24spec/internal/docmap"
	"basegraph.app/t24spec/internal/extract"
	"basegraph.app/t24spec/internal/iterstore"
	"basegraph.app/t24spec/internal/merge"
	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/orchestrator"
	"basegraph.app/t24spec/internal/orientation"
	"basegraph.app/t24spec/internal/router"
	"basegraph.app/t24spec/internal/verify"
	"basegraph.app/t24spec/internal/worker"
)

// Error is the severity-tagged error returned at the orchestration
// boundary, mirroring the teacher's EngagementError: a Retryable error is
// transient (worker timeout, schema hiccup) and safe to retry the whole
// operation; a non-retryable error is a configuration or programming fault
// that must escape to the caller unchanged.
type Error struct {
	Err       error
	Retryable bool
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// NewRetryableError wraps err as a transient orchestration failure.
func NewRetryableError(err error) *Error { return &Error{Err: err, Retryable: true} }

// NewFatalError wraps err as a non-retryable orchestration failure.
func NewFatalError(err error) *Error { return &Error{Err: err, Retryable: false} }

// Engine wires every subsystem together under one configuration.
type Engine struct {
	cfg       config.Config
	invoker   worker.Invoker
	docs      *docmap.Builder
	extractor *extract.Extractor
	orch      *orchestrator.Orchestrator
	store     *iterstore.Store
	critic    *critic.Critic
	applier   *apply.Applier
}

// New constructs an Engine. applier may be nil when the caller never
// intends to call Apply/Rollback (e.g. a read-only evaluation run).
func New(cfg config.Config, invoker worker.Invoker, store *iterstore.Store, criticInst *critic.Critic, applier *apply.Applier) *Engine {
	return &Engine{
		cfg:       cfg,
		invoker:   invoker,
		docs:      docmap.NewBuilder(invoker, store, cfg.ExtractorTimeout),
		extractor: extract.NewExtractor(invoker),
		orch:      orchestrator.New(orchestrator.Config{Concurrency: cfg.ConcurrencyCap}),
		store:     store,
		critic:    criticInst,
		applier:   applier,
	}
}

// domainOrder mirrors merge.CanonicalOrder so task names stay deterministic
// across runs even though the orchestrator itself makes no ordering
// guarantee about completion.
var domainOrder = merge.CanonicalOrder

// Extract runs the full parallel extraction + orientation + merge pipeline
// for one evaluation case and persists the result as a new iteration.
func (e *Engine) Extract(ctx context.Context, evalID string, pageImagePaths []string) (model.BuildingSpec, string, error) {
	ctx = withEvalFields(ctx, evalID, "engine.extract")
	sc := logger.StartSpan(ctx, "engine.extract")
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "extraction started", "page_count", len(pageImagePaths))

	doc, err := e.docs.BuildMap(ctx, evalID, pageImagePaths)
	if err != nil {
		wrapped := NewRetryableError(fmt.Errorf("building document map: %w", err))
		sc.RecordError(wrapped)
		return model.BuildingSpec{}, "", wrapped
	}

	tasks, taskKinds := e.buildTasks(doc, pageImagePaths)

	results, err := e.orch.Run(ctx, tasks)
	if err != nil {
		if orchestrator.IsCancellation(err) {
			wrapped := NewFatalError(fmt.Errorf("extraction cancelled: %w", err))
			sc.RecordError(wrapped)
			return model.BuildingSpec{}, "", wrapped
		}
		wrapped := NewRetryableError(fmt.Errorf("running orchestrator: %w", err))
		sc.RecordError(wrapped)
		return model.BuildingSpec{}, "", wrapped
	}

	in := merge.Input{
		Fragments: map[extract.Domain]*extract.Fragment{},
		Statuses:  map[string]model.ExtractionStatus{},
	}

	passResults := map[string]orientation.PassResult{}
	for name, result := range results {
		in.Statuses[name] = result.Status
		switch taskKinds[name] {
		case taskKindDomain:
			if result.Status.State == model.ExtractionSuccess {
				if fragment, ok := result.Output.(extract.Fragment); ok {
					in.Fragments[fragment.Domain] = &fragment
				}
			}
		case taskKindOrientation:
			if result.Status.State == model.ExtractionSuccess {
				if pass, ok := result.Output.(orientation.PassResult); ok {
					passResults[name] = pass
				}
			}
		}
	}

	pass1Name, pass2Name := orientation.WorkerNames()
	pass1, ok1 := passResults[pass1Name]
	pass2, ok2 := passResults[pass2Name]
	if ok1 && ok2 {
		reconciled := orientation.Reconcile(pass1, pass2)
		in.Orientation = &reconciled
	}

	spec := merge.Merge(in)

	iterationDir, iterationNumber, err := e.store.NewIteration(evalID)
	if err != nil {
		wrapped := NewFatalError(fmt.Errorf("creating iteration directory: %w", err))
		sc.RecordError(wrapped)
		return model.BuildingSpec{}, "", wrapped
	}
	if err := e.store.SaveExtracted(iterationDir, spec); err != nil {
		wrapped := NewFatalError(fmt.Errorf("saving extracted spec: %w", err))
		sc.RecordError(wrapped)
		return model.BuildingSpec{}, "", wrapped
	}
	if err := e.store.WriteIterationDocumentMap(iterationDir, doc); err != nil {
		wrapped := NewFatalError(fmt.Errorf("recording document map: %w", err))
		sc.RecordError(wrapped)
		return model.BuildingSpec{}, "", wrapped
	}

	slog.InfoContext(ctx, "extraction completed",
		"iteration", iterationNumber,
		"conflict_count", len(spec.Conflicts))

	return spec, iterationDir, nil
}

type taskKind int

const (
	taskKindDomain taskKind = iota
	taskKindOrientation
)

func (e *Engine) buildTasks(doc model.DocumentMap, pageImagePaths []string) ([]orchestrator.Task, map[string]taskKind) {
	kinds := map[string]taskKind{}
	var tasks []orchestrator.Task

	domainToRouterDomain := map[extract.Domain]router.Domain{
		extract.DomainProject: router.DomainProject,
		extract.DomainZones:   router.DomainZones,
		extract.DomainWindows: router.DomainWindows,
		extract.DomainHVAC:    router.DomainHVAC,
		extract.DomainDHW:     router.DomainDHW,
	}

	for _, domain := range domainOrder {
		domain := domain
		sel := router.Route(doc, domainToRouterDomain[domain])
		timeout := e.cfg.ExtractorTimeout
		if domain == extract.DomainZones || domain == extract.DomainWindows {
			timeout = e.cfg.RichExtractorTimeout
		}

		req := extract.Request{
			Domain:              domain,
			DocumentMap:         doc,
			PageImagePaths:      pagesFor(pageImagePaths, sel.PageNumbers),
			PageNote:            sel.Note,
			InstructionDocument: instructionPath(e.cfg.InstructionRoot, string(domain)+"-extractor"),
			Timeout:             timeout,
		}

		name := string(domain)
		kinds[name] = taskKindDomain
		tasks = append(tasks, orchestrator.Task{
			Name: name,
			Run: func(ctx context.Context) (any, error) {
				return e.extractor.Extract(ctx, req)
			},
		})
	}

	pass1Name, pass2Name := orientation.WorkerNames()
	sel := router.Route(doc, router.DomainProject)
	images := pagesFor(pageImagePaths, sel.PageNumbers)

	kinds[pass1Name] = taskKindOrientation
	tasks = append(tasks, orchestrator.Task{
		Name: pass1Name,
		Run: func(ctx context.Context) (any, error) {
			return orientation.RunPass(ctx, e.invoker, pass1Name, orientation.Pass1Prompt(images), e.cfg.OrientationTimeout)
		},
	})

	kinds[pass2Name] = taskKindOrientation
	tasks = append(tasks, orchestrator.Task{
		Name: pass2Name,
		Run: func(ctx context.Context) (any, error) {
			return orientation.RunPass(ctx, e.invoker, pass2Name, orientation.Pass2Prompt(images), e.cfg.OrientationTimeout)
		},
	})

	return tasks, kinds
}

// pagesFor maps 1-indexed page numbers into the corresponding image paths.
func pagesFor(pageImagePaths []string, pageNumbers []int) []string {
	out := make([]string, 0, len(pageNumbers))
	for _, n := range pageNumbers {
		if n >= 1 && n <= len(pageImagePaths) {
			out = append(out, pageImagePaths[n-1])
		}
	}
	return out
}

func instructionPath(root, name string) string {
	return filepath.Join(root, name, "instructions.md")
}

// Verify compares iterationDir's extracted.json against evalID's ground
// truth and persists the eval_results.json and aggregate.json rows.
func (e *Engine) Verify(ctx context.Context, evalID, iterationDir string, iterationNumber int) (model.EvalResult, error) {
	ctx = withEvalFields(ctx, evalID, "engine.verify")
	sc := logger.StartSpan(ctx, "engine.verify")
	defer sc.End()
	ctx = sc.Context()

	expected, err := e.store.LoadGroundTruth(evalID)
	if err != nil {
		wrapped := NewFatalError(fmt.Errorf("loading ground truth: %w", err))
		sc.RecordError(wrapped)
		return model.EvalResult{}, wrapped
	}

	actual, err := e.store.LoadExtracted(iterationDir)
	if err != nil {
		wrapped := NewFatalError(fmt.Errorf("loading extracted spec: %w", err))
		sc.RecordError(wrapped)
		return model.EvalResult{}, wrapped
	}

	opts := verify.Options{
		AbsoluteTolerance: e.cfg.Verifier.AbsoluteTolerance,
		PercentTolerance:  e.cfg.Verifier.PercentTolerance,
		AngularThreshold:  e.cfg.Verifier.AngleTolerance,
	}.WithDefaults()

	result, err := verify.Verify(expected, actual, opts)
	if err != nil {
		wrapped := NewFatalError(fmt.Errorf("verifying: %w", err))
		sc.RecordError(wrapped)
		return model.EvalResult{}, wrapped
	}

	if err := e.store.SaveEvalResult(iterationDir, result); err != nil {
		wrapped := NewFatalError(fmt.Errorf("saving eval result: %w", err))
		sc.RecordError(wrapped)
		return model.EvalResult{}, wrapped
	}

	if err := e.store.RecordAggregate(evalID, iterationNumber, iterstore.AggregateEntry{
		F1:           result.Metrics.F1,
		Precision:    result.Metrics.Precision,
		Recall:       result.Metrics.Recall,
		ErrorsByType: result.Metrics.ErrorsByType,
	}); err != nil {
		wrapped := NewFatalError(fmt.Errorf("recording aggregate: %w", err))
		sc.RecordError(wrapped)
		return model.EvalResult{}, wrapped
	}

	slog.InfoContext(ctx, "verification completed",
		"f1", result.Metrics.F1,
		"discrepancy_count", len(result.Discrepancies))

	return result, nil
}

// Analyse aggregates failure patterns across a batch of already-verified
// iterations into the sole input the Critic consumes.
func (e *Engine) Analyse(ctx context.Context, iterations map[string]string) (model.FailureAnalysis, error) {
	evaluations := make([]analyse.Evaluation, 0, len(iterations))
	for evalID, iterationDir := range iterations {
		result, err := e.store.LoadEvalResult(iterationDir)
		if err != nil {
			return model.FailureAnalysis{}, NewFatalError(fmt.Errorf("loading eval result for %s: %w", evalID, err))
		}
		evaluations = append(evaluations, analyse.Evaluation{EvalID: evalID, Result: result})
	}

	analysis := analyse.Analyse(evaluations)
	slog.InfoContext(ctx, "failure analysis completed",
		"eval_count", len(evaluations),
		"dominant_error_type", analysis.DominantErrorType,
		"dominant_domain", analysis.DominantDomain)

	return analysis, nil
}

// Propose asks the Critic for an instruction-document edit addressing
// analysis, applying cfg.CriticTimeout.
func (e *Engine) Propose(ctx context.Context, analysis model.FailureAnalysis) (critic.Decision, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "engine.propose"})
	sc := logger.StartSpan(ctx, "engine.propose")
	defer sc.End()
	ctx = sc.Context()

	decision, err := e.critic.Propose(ctx, analysis, e.cfg.CriticTimeout)
	if err != nil {
		wrapped := NewRetryableError(fmt.Errorf("proposing instruction change: %w", err))
		sc.RecordError(wrapped)
		return critic.Decision{}, wrapped
	}
	if decision.Proposal == nil {
		slog.InfoContext(ctx, "critic rejected proposal", "reason", decision.RejectionReason)
	}
	return decision, nil
}

// Apply commits an approved proposal against its target instruction
// document, snapshotting every active evaluation's current content first.
func (e *Engine) Apply(ctx context.Context, proposal model.InstructionProposal, activeEvals []apply.ActiveEvaluation, originatingIterationDir, commitMessage string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "engine.apply"})
	sc := logger.StartSpan(ctx, "engine.apply")
	defer sc.End()
	ctx = sc.Context()

	if err := e.applier.Apply(ctx, proposal, activeEvals, originatingIterationDir, commitMessage); err != nil {
		wrapped := NewFatalError(fmt.Errorf("applying proposal: %w", err))
		sc.RecordError(wrapped)
		return wrapped
	}
	slog.InfoContext(ctx, "instruction proposal applied", "target_file", proposal.TargetFile)
	return nil
}

// Rollback restores the instruction documents an iteration snapshotted
// before its proposal was applied.
func (e *Engine) Rollback(iterationDir string) error {
	if err := e.applier.Rollback(iterationDir); err != nil {
		return NewFatalError(fmt.Errorf("rolling back: %w", err))
	}
	return nil
}

func withEvalFields(ctx context.Context, evalID, component string) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		EvalID:    &evalID,
		Component: component,
	})
}
