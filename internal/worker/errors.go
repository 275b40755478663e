package worker

import "errors"

// Sentinel errors returned by NewExecInvoker and Invoker.Invoke
// (ErrMalformedResponse by ParseStructured). Callers distinguish them with
// errors.Is; the Parallel Orchestrator retries any failed task exactly once,
// these included, before recording a failed extraction status.
var (
	ErrWorkerNotAvailable = errors.New("worker runtime not available")
	ErrWorkerTimeout      = errors.New("worker invocation timed out")
	ErrWorkerError        = errors.New("worker exited non-zero")
	ErrMalformedResponse  = errors.New("worker response could not be parsed as structured output")
)
