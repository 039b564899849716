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

func TestQueueProcessesJobs(t *testing.T) {
	done := make(chan string, 3)
	q := NewQueue("test", func(_ context.Context, job Job[string]) error {
		done <- job.Payload
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), Job[string]{ID: p, Payload: p}))
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case p := <-done:
			seen[p] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for job")
		}
	}
	assert.Len(t, seen, 3)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	done := make(chan int, 1)
	q := NewQueue("retry", func(_ context.Context, job Job[int]) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("boom")
		}
		done <- job.Attempt
		return nil
	}, QueueConfig{MaxRetries: 5, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job[int]{ID: "1"}))

	select {
	case attempt := <-done:
		assert.Equal(t, 2, attempt)
	case <-time.After(time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q := NewQueue("giveup", func(context.Context, Job[int]) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}, QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Job[int]{ID: "x"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	q.Stop()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job[int]) error { return nil }, QueueConfig{})
	err := q.Enqueue(context.Background(), Job[int]{})
	assert.ErrorIs(t, err, ErrQueueClosed)

	q.Start(context.Background())
	q.Stop()
	err = q.Enqueue(context.Background(), Job[int]{})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	var processed []string
	q := NewQueue("drain", func(_ context.Context, job Job[string]) error {
		if job.Payload == "a" {
			<-gate
		}
		mu.Lock()
		processed = append(processed, job.Payload)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(context.Background())

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), Job[string]{ID: p, Payload: p}))
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	require.Eventually(t, func() bool {
		q.mu.RLock()
		defer q.mu.RUnlock()
		return q.stopped
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job[string]{ID: "late"}), ErrQueueClosed)
	close(gate)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, processed)
}

func TestQueueStopSkipsDrainWhenContextCancelled(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	q := NewQueue("hard", func(context.Context, Job[int]) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(ctx)

	require.NoError(t, q.Enqueue(context.Background(), Job[int]{ID: "1"}))
	require.NoError(t, q.Enqueue(context.Background(), Job[int]{ID: "2"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)

	cancel()
	close(release)
	q.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
