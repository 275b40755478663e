// Package orchestrator runs the five domain extractors plus the two
// orientation passes concurrently under a global concurrency cap, with a
// single retry per task and partial-failure tolerance: one task's failure
// never aborts the others.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"basegraph.app/t24spec/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default semaphore capacity bounding concurrent
// child-process invocations.
const DefaultConcurrency = 3

// DefaultRetryPause separates a task's two attempts.
const DefaultRetryPause = 2 * time.Second

// Task is one unit of orchestrated work: a single worker invocation that
// produces an opaque result.
type Task struct {
	Name string
	Run  func(ctx context.Context) (any, error)
}

// Result is one task's terminal outcome: either Output is set (success) or
// Status.State is failed with the error recorded.
type Result struct {
	Output any
	Status model.ExtractionStatus
}

// Config configures an Orchestrator.
type Config struct {
	Concurrency int
	RetryPause  time.Duration
}

// Orchestrator runs tasks under a bounded semaphore with a single-retry
// policy. It holds no mutable state across runs; Run is safe to call
// repeatedly and concurrently with different task sets.
type Orchestrator struct {
	cfg Config
}

// New constructs an Orchestrator, applying defaults for zero-valued fields.
func New(cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = DefaultRetryPause
	}
	return &Orchestrator{cfg: cfg}
}

// Run submits every task under the concurrency cap and waits for all of
// them to complete (success or terminal failure) before returning. A
// caller-cancelled ctx stops all in-flight tasks; Run then returns the
// results gathered so far alongside ctx.Err(). Any single task's failure
// never cancels its siblings.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) (map[string]Result, error) {
	sem := semaphore.NewWeighted(int64(o.cfg.Concurrency))
	results := make(map[string]Result, len(tasks))
	resultCh := make(chan namedResult, len(tasks))

	group, groupCtx := errgroup.WithContext(ctx)

	for _, task := range tasks {
		task := task
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				resultCh <- namedResult{name: task.Name, result: failureResult(err, 0)}
				return nil
			}
			defer sem.Release(1)

			resultCh <- namedResult{name: task.Name, result: o.runWithRetry(groupCtx, task)}
			return nil
		})
	}

	// group.Wait itself never returns a non-nil error: every goroutine
	// above returns nil so that one task's failure never aborts the
	// others. Caller-initiated cancellation is instead detected from ctx
	// directly, so the caller can distinguish it from ordinary
	// partial-failure results and skip persisting the run.
	_ = group.Wait()
	close(resultCh)

	for nr := range resultCh {
		results[nr.name] = nr.result
	}

	if err := ctx.Err(); err != nil {
		return results, err
	}

	return results, nil
}

type namedResult struct {
	name   string
	result Result
}

func (o *Orchestrator) runWithRetry(ctx context.Context, task Task) Result {
	output, err := task.Run(ctx)
	if err == nil {
		return Result{Output: output, Status: model.ExtractionStatus{State: model.ExtractionSuccess}}
	}

	select {
	case <-time.After(o.cfg.RetryPause):
	case <-ctx.Done():
		return failureResult(ctx.Err(), 1)
	}

	output, err = task.Run(ctx)
	if err == nil {
		return Result{Output: output, Status: model.ExtractionStatus{State: model.ExtractionSuccess, RetryCount: 1}}
	}

	return failureResult(err, 1)
}

func failureResult(err error, retryCount int) Result {
	msg := err.Error()
	return Result{Status: model.ExtractionStatus{
		State:      model.ExtractionFailed,
		RetryCount: retryCount,
		Error:      &msg,
	}}
}

// IsCancellation reports whether err is (or wraps) context cancellation,
// distinguishing caller-initiated global cancellation from a task-local
// failure when interpreting Run's returned error.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
