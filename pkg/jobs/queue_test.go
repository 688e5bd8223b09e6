package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueCompletesSuccessfulJobs(t *testing.T) {
	var mu sync.Mutex
	completed := map[string]error{}
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{
		Workers: 2,
		OnComplete: func(_ context.Context, job Job, err error) {
			mu.Lock()
			completed[job.ID] = err
			mu.Unlock()
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, completed, 2)
	assert.NoError(t, completed["a"])
	assert.NoError(t, completed["b"])
}

func TestQueueRetriesThenReportsFailure(t *testing.T) {
	var attempts int32
	var final error
	done := make(chan struct{})
	q := NewQueue("retry", func(context.Context, Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("gateway down")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		OnComplete: func(_ context.Context, _ Job, err error) {
			final = err
			close(done)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "x"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never completed")
	}
	assert.EqualError(t, final, "gateway down")
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, q.Drain(ctx))
}
