package apply

import (
	"context"
	"fmt"

	"basegraph.app/t24spec/internal/worker"
)

// VCS commits applied instruction-document edits to version control.
type VCS interface {
	Commit(ctx context.Context, repoDir, message string, paths []string) error
}

// GitVCS commits via the system git binary, reusing the same
// CommandRunner abstraction the worker invoker uses for child processes.
type GitVCS struct {
	runner worker.CommandRunner
}

// NewGitVCS constructs a GitVCS. A nil runner defaults to ExecCommandRunner.
func NewGitVCS(runner worker.CommandRunner) *GitVCS {
	if runner == nil {
		runner = worker.ExecCommandRunner{}
	}
	return &GitVCS{runner: runner}
}

// Commit stages paths and commits them in repoDir with message.
func (g *GitVCS) Commit(ctx context.Context, repoDir, message string, paths []string) error {
	addArgs := append([]string{"add"}, paths...)
	if _, err := g.runner.Run(ctx, worker.Command{Name: "git", Args: addArgs, Dir: repoDir}); err != nil {
		return fmt.Errorf("git add: %w", err)
	}

	commitArgs := []string{"commit", "-m", message}
	if _, err := g.runner.Run(ctx, worker.Command{Name: "git", Args: commitArgs, Dir: repoDir}); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}

	return nil
}
