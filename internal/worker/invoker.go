package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"basegraph.app/t24spec/common/logger"
	"go.opentelemetry.io/otel/attribute"
)

// Invoker runs a named worker with a prompt and returns its raw response.
// Workers are opaque external processes with no shared state; all input
// travels through the prompt string, all output through captured stdout.
type Invoker interface {
	Invoke(ctx context.Context, workerName, prompt string, timeout time.Duration) (string, error)
}

// Config configures an ExecInvoker.
type Config struct {
	// RuntimeCmd is the command name or path of the worker runtime.
	RuntimeCmd string
	// WorkDir is passed as the child process's working directory so the
	// worker may read instruction documents it is allowed to access.
	WorkDir string
}

// ExecInvoker spawns the worker runtime as a child process per invocation.
type ExecInvoker struct {
	cfg    Config
	runner CommandRunner
}

// NewExecInvoker constructs an ExecInvoker, failing fast if the worker
// runtime is not on PATH -- a configuration error per the error taxonomy.
func NewExecInvoker(cfg Config, runner CommandRunner) (*ExecInvoker, error) {
	if cfg.RuntimeCmd == "" {
		return nil, fmt.Errorf("%w: no runtime command configured", ErrWorkerNotAvailable)
	}
	if _, err := exec.LookPath(cfg.RuntimeCmd); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWorkerNotAvailable, cfg.RuntimeCmd, err)
	}
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	return &ExecInvoker{cfg: cfg, runner: runner}, nil
}

// Invoke runs the worker runtime with the given worker identifier and
// prompt, enforcing the supplied wall-clock timeout. Each call owns exactly
// one child process; concurrent invocation is the caller's responsibility.
func (e *ExecInvoker) Invoke(ctx context.Context, workerName, prompt string, timeout time.Duration) (string, error) {
	sc := logger.StartSpan(ctx, "worker.invoke")
	defer sc.End()
	sc.Span().SetAttributes(attribute.String("worker_name", workerName))
	ctx = sc.Context()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := e.runner.Run(callCtx, Command{
		Name: e.cfg.RuntimeCmd,
		Args: []string{workerName, prompt},
		Dir:  e.cfg.WorkDir,
	})

	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		timeoutErr := fmt.Errorf("%w: worker %q exceeded %s", ErrWorkerTimeout, workerName, timeout)
		sc.RecordError(timeoutErr)
		return "", timeoutErr
	}

	if err != nil {
		excerpt := out
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		wrapped := fmt.Errorf("%w: worker %q: %v: %s", ErrWorkerError, workerName, err, excerpt)
		sc.RecordError(wrapped)
		return "", wrapped
	}

	return string(out), nil
}
