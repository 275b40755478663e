package orchestrator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRespectsConcurrencyCap(t *testing.T) {
	const concurrencyCap = 2
	o := orchestrator.New(orchestrator.Config{Concurrency: concurrencyCap, RetryPause: time.Millisecond})

	var inFlight int32
	var maxObserved int32

	tasks := make([]orchestrator.Task, 8)
	for i := range tasks {
		tasks[i] = orchestrator.Task{
			Name: taskName(i),
			Run: func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					max := atomic.LoadInt32(&maxObserved)
					if n <= max || atomic.CompareAndSwapInt32(&maxObserved, max, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			},
		}
	}

	results, err := o.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(concurrencyCap))
}

func TestRunRetriesOnceThenSucceeds(t *testing.T) {
	o := orchestrator.New(orchestrator.Config{Concurrency: 1, RetryPause: time.Millisecond})

	var attempts int32
	tasks := []orchestrator.Task{
		{
			Name: "flaky",
			Run: func(ctx context.Context) (any, error) {
				if atomic.AddInt32(&attempts, 1) == 1 {
					return nil, errors.New("transient failure")
				}
				return "ok", nil
			},
		},
	}

	results, err := o.Run(context.Background(), tasks)
	require.NoError(t, err)
	result := results["flaky"]
	assert.Equal(t, model.ExtractionSuccess, result.Status.State)
	assert.Equal(t, 1, result.Status.RetryCount)
	assert.Equal(t, "ok", result.Output)
}

func TestRunPartialFailureDoesNotCancelSiblings(t *testing.T) {
	o := orchestrator.New(orchestrator.Config{Concurrency: 2, RetryPause: time.Millisecond})

	tasks := []orchestrator.Task{
		{
			Name: "always-fails",
			Run: func(ctx context.Context) (any, error) {
				return nil, errors.New("permanent failure")
			},
		},
		{
			Name: "always-succeeds",
			Run: func(ctx context.Context) (any, error) {
				return "fine", nil
			},
		},
	}

	results, err := o.Run(context.Background(), tasks)
	require.NoError(t, err)

	failed := results["always-fails"]
	assert.Equal(t, model.ExtractionFailed, failed.Status.State)
	assert.Equal(t, 1, failed.Status.RetryCount)
	require.NotNil(t, failed.Status.Error)

	succeeded := results["always-succeeds"]
	assert.Equal(t, model.ExtractionSuccess, succeeded.Status.State)
	assert.Equal(t, "fine", succeeded.Output)
}

func TestRunPropagatesCancellation(t *testing.T) {
	o := orchestrator.New(orchestrator.Config{Concurrency: 1, RetryPause: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())

	tasks := []orchestrator.Task{
		{
			Name: "blocks",
			Run: func(taskCtx context.Context) (any, error) {
				cancel()
				<-taskCtx.Done()
				return nil, taskCtx.Err()
			},
		},
	}

	_, err := o.Run(ctx, tasks)
	if err != nil {
		assert.True(t, orchestrator.IsCancellation(err))
	}
}

func taskName(i int) string {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	return names[i]
}
