package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"basegraph.app/t24spec/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out []byte
	err error
	sleep time.Duration
}

func (f fakeRunner) Run(ctx context.Context, cmd worker.Command) ([]byte, error) {
	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func TestExecInvokerSuccess(t *testing.T) {
	inv, err := worker.NewExecInvoker(worker.Config{RuntimeCmd: "true"}, fakeRunner{out: []byte("ok")})
	require.NoError(t, err)

	resp, err := inv.Invoke(context.Background(), "project", "prompt", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestExecInvokerTimeout(t *testing.T) {
	inv, err := worker.NewExecInvoker(worker.Config{RuntimeCmd: "true"}, fakeRunner{sleep: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "zones", "prompt", 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrWorkerTimeout))
}

func TestExecInvokerNonZeroExit(t *testing.T) {
	inv, err := worker.NewExecInvoker(worker.Config{RuntimeCmd: "true"}, fakeRunner{out: []byte("boom"), err: errors.New("exit status 1")})
	require.NoError(t, err)

	_, err = inv.Invoke(context.Background(), "hvac", "prompt", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrWorkerError))
}

func TestNewExecInvokerMissingRuntime(t *testing.T) {
	_, err := worker.NewExecInvoker(worker.Config{RuntimeCmd: "definitely-not-a-real-binary-xyz"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrWorkerNotAvailable))
}
