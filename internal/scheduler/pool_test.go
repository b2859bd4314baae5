package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

type memoryRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (m *memoryRecorder) Record(_ context.Context, r Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func (m *memoryRecorder) all() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Result(nil), m.results...)
}

func startPool(t *testing.T, p *Pool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()

	select {
	case r, ok := <-ch:
		require.True(t, ok, "result channel closed without a result")
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	return Result{}
}

func submit(t *testing.T, p *Pool, task string) Result {
	t.Helper()

	ch, err := p.Submit(context.Background(), task, nil)
	require.NoError(t, err)
	return waitResult(t, ch)
}

func TestPool_Succeeded(t *testing.T) {
	rec := &memoryRecorder{}
	p := NewPool(Config{Workers: 2, HardTimeLimit: time.Minute}, rec)

	var seen Job
	p.Register("fetch_news_feed", func(_ context.Context, job Job) (Summary, error) {
		seen = job
		return Summary{Entries: 3, Title: "Turfoo Actualites"}, nil
	})
	startPool(t, p)

	ch, err := p.Submit(context.Background(), "fetch_news_feed", map[string]string{"feed": "news"})
	require.NoError(t, err)
	res := waitResult(t, ch)

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, Summary{Entries: 3, Title: "Turfoo Actualites"}, res.Summary)
	assert.Equal(t, 1, res.Attempts)
	assert.NoError(t, res.Err)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	assert.NotEmpty(t, seen.ID)
	assert.Equal(t, res.JobID, seen.ID)
	assert.Equal(t, 1, seen.Attempt)
	assert.Equal(t, "news", seen.Payload["feed"])
	assert.False(t, seen.Deadline.IsZero())

	_, open := <-ch
	assert.False(t, open)

	recorded := rec.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, StateSucceeded, recorded[0].State)
}

func TestPool_UnknownTask(t *testing.T) {
	p := NewPool(Config{})

	_, err := p.Submit(context.Background(), "fetch_weather_feed", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestPool_FailedIsRecorded(t *testing.T) {
	rec := &memoryRecorder{}
	p := NewPool(Config{}, rec)

	boom := errors.New("malformed feed")
	p.Register("task", func(context.Context, Job) (Summary, error) {
		return Summary{Entries: 1}, boom
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, "malformed feed", res.ErrorText())
	assert.Zero(t, res.Summary)
	require.Len(t, rec.all(), 1)
}

func TestPool_RetriesRetryableErrors(t *testing.T) {
	p := NewPool(Config{Retry: RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}})

	var calls atomic.Int32
	p.Register("task", func(_ context.Context, job Job) (Summary, error) {
		if calls.Add(1) < 3 {
			return Summary{}, errTransient
		}
		return Summary{Entries: job.Attempt}, nil
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, res.Summary.Entries)
}

func TestPool_DoesNotRetryPermanentErrors(t *testing.T) {
	p := NewPool(Config{Retry: RetryPolicy{
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}})

	var calls atomic.Int32
	p.Register("task", func(context.Context, Job) (Summary, error) {
		calls.Add(1)
		return Summary{}, errors.New("feed contains no entries")
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPool_RetriesExhausted(t *testing.T) {
	p := NewPool(Config{Retry: RetryPolicy{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}})

	p.Register("task", func(context.Context, Job) (Summary, error) {
		return Summary{}, fmt.Errorf("fetch: %w", errTransient)
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.Attempts)
	assert.ErrorIs(t, res.Err, errTransient)
}

func TestPool_SoftTimeLimit(t *testing.T) {
	p := NewPool(Config{SoftTimeLimit: 20 * time.Millisecond, HardTimeLimit: 5 * time.Second})

	p.Register("task", func(ctx context.Context, _ Job) (Summary, error) {
		for {
			if err := Checkpoint(ctx); err != nil {
				return Summary{Entries: 2}, err
			}
			time.Sleep(2 * time.Millisecond)
		}
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateTimedOut, res.State)
	assert.ErrorIs(t, res.Err, ErrSoftTimeLimit)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Zero(t, res.Summary)
	assert.Zero(t, p.Retired())
}

func TestPool_SoftTimeLimitIgnoredOnSuccess(t *testing.T) {
	p := NewPool(Config{SoftTimeLimit: 10 * time.Millisecond, HardTimeLimit: 5 * time.Second})

	p.Register("task", func(ctx context.Context, _ Job) (Summary, error) {
		<-SoftDone(ctx)
		return Summary{Entries: 1, Title: "done anyway"}, nil
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, "done anyway", res.Summary.Title)
}

func TestPool_SoftTimeLimitKeepsContextAlive(t *testing.T) {
	p := NewPool(Config{SoftTimeLimit: 10 * time.Millisecond, HardTimeLimit: 5 * time.Second})

	var alive atomic.Bool
	p.Register("task", func(ctx context.Context, _ Job) (Summary, error) {
		<-SoftDone(ctx)
		time.Sleep(20 * time.Millisecond)
		alive.Store(ctx.Err() == nil)
		return Summary{}, Checkpoint(ctx)
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.True(t, alive.Load(), "in-flight work keeps its context until the hard limit")
	assert.Equal(t, StateTimedOut, res.State)
	assert.ErrorIs(t, res.Err, ErrSoftTimeLimit)
}

func TestCheckpoint_OutsidePool(t *testing.T) {
	assert.NoError(t, Checkpoint(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Checkpoint(ctx), context.Canceled)

	select {
	case <-SoftDone(ctx):
	default:
		t.Fatal("SoftDone falls back to ctx.Done")
	}
}

func TestPool_HardTimeLimitReplacesWorker(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	p := NewPool(Config{Workers: 1, SoftTimeLimit: 10 * time.Millisecond, HardTimeLimit: 50 * time.Millisecond})

	p.Register("stuck", func(context.Context, Job) (Summary, error) {
		<-release
		return Summary{Entries: 10}, nil
	})
	p.Register("ok", func(context.Context, Job) (Summary, error) {
		return Summary{Entries: 1}, nil
	})
	startPool(t, p)

	res := submit(t, p, "stuck")

	assert.Equal(t, StateTimedOut, res.State)
	assert.ErrorIs(t, res.Err, ErrHardTimeLimit)
	assert.Zero(t, res.Summary)

	assert.Eventually(t, func() bool { return p.Retired() == 1 }, 2*time.Second, 5*time.Millisecond)

	next := submit(t, p, "ok")
	assert.Equal(t, StateSucceeded, next.State)
}

func TestPool_WorkerTaskCeiling(t *testing.T) {
	p := NewPool(Config{Workers: 1, MaxTasksPerWorker: 2})

	p.Register("task", func(context.Context, Job) (Summary, error) {
		return Summary{Entries: 1}, nil
	})
	startPool(t, p)

	for i := 0; i < 5; i++ {
		res := submit(t, p, "task")
		require.Equal(t, StateSucceeded, res.State)
	}

	assert.Eventually(t, func() bool { return p.Retired() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestPool_Skipped(t *testing.T) {
	p := NewPool(Config{})

	p.Register("task", func(context.Context, Job) (Summary, error) {
		return Summary{}, fmt.Errorf("%w: news feed already in flight", ErrSkipped)
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateSkipped, res.State)
	assert.True(t, res.State.Final())
}

func TestPool_PanicIsFailure(t *testing.T) {
	p := NewPool(Config{})

	p.Register("task", func(context.Context, Job) (Summary, error) {
		panic("nil feed")
	})
	startPool(t, p)

	res := submit(t, p, "task")

	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, res.ErrorText(), "nil feed")
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(Config{})
	p.Register("task", func(context.Context, Job) (Summary, error) { return Summary{}, nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err := p.Submit(context.Background(), "task", nil)
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestPool_SubmitDuringShutdown(t *testing.T) {
	p := NewPool(Config{Workers: 2, QueueSize: 8})
	p.Register("task", func(context.Context, Job) (Summary, error) {
		return Summary{Entries: 1}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
		answered atomic.Int64
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ch, err := p.Submit(context.Background(), "task", nil)
			if err != nil {
				assert.ErrorIs(t, err, ErrPoolStopped)
				return
			}
			accepted.Add(1)

			select {
			case <-ch:
				answered.Add(1)
			case <-time.After(5 * time.Second):
			}
		}()
		if i == 100 {
			cancel()
		}
	}

	wg.Wait()
	<-done

	assert.Equal(t, accepted.Load(), answered.Load(), "every accepted job gets a result")
}

func TestPool_Tasks(t *testing.T) {
	p := NewPool(Config{})
	noop := func(context.Context, Job) (Summary, error) { return Summary{}, nil }
	p.Register("fetch_results_feed", noop)
	p.Register("fetch_news_feed", noop)

	assert.Equal(t, []string{"fetch_news_feed", "fetch_results_feed"}, p.Tasks())
}
