package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const recordTimeout = 10 * time.Second

type Config struct {
	Workers int
	// MaxTasksPerWorker retires a worker after that many jobs; 0 disables it.
	MaxTasksPerWorker int
	QueueSize         int
	SoftTimeLimit     time.Duration
	HardTimeLimit     time.Duration
	Retry             RetryPolicy
}

type Pool struct {
	cfg       Config
	recorders []Recorder

	mu       sync.RWMutex
	handlers map[string]Handler
	started  bool

	jobs    chan *queued
	stopped chan struct{}
	wg      sync.WaitGroup

	// stopMu orders Submit against closing stopped; submitters counts the
	// Submit calls that may still enqueue.
	stopMu     sync.RWMutex
	submitters sync.WaitGroup

	retired atomic.Int64
	now     func() time.Time
}

type queued struct {
	job  Job
	done chan Result
}

func NewPool(cfg Config, recorders ...Recorder) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	return &Pool{
		cfg:       cfg,
		recorders: recorders,
		handlers:  make(map[string]Handler),
		jobs:      make(chan *queued, cfg.QueueSize),
		stopped:   make(chan struct{}),
		now:       time.Now,
	}
}

func (p *Pool) Register(task string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[task] = h
}

func (p *Pool) Tasks() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tasks := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		tasks = append(tasks, name)
	}
	sort.Strings(tasks)
	return tasks
}

func (p *Pool) handler(task string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[task]
	return h, ok
}

// Submit enqueues a job. The returned channel delivers the final result once
// and is then closed. Submit blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, task string, payload map[string]string) (<-chan Result, error) {
	if _, ok := p.handler(task); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	q := &queued{
		job: Job{
			ID:         uuid.NewString(),
			Task:       task,
			Payload:    payload,
			EnqueuedAt: p.now(),
		},
		done: make(chan Result, 1),
	}

	p.stopMu.RLock()
	select {
	case <-p.stopped:
		p.stopMu.RUnlock()
		return nil, ErrPoolStopped
	default:
	}
	p.submitters.Add(1)
	p.stopMu.RUnlock()
	defer p.submitters.Done()

	select {
	case p.jobs <- q:
		slog.Debug("job queued", "task", task, "job", q.job.ID, "state", StatePending)
		return q.done, nil
	case <-p.stopped:
		return nil, ErrPoolStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start runs the workers until ctx is done. Jobs still queued at that point
// are reported as FAILED with ErrPoolStopped.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("pool already started")
	}
	p.started = true
	p.mu.Unlock()

	slog.Info("worker pool started", "workers", p.cfg.Workers, "max_tasks_per_worker", p.cfg.MaxTasksPerWorker)

	for i := 0; i < p.cfg.Workers; i++ {
		p.spawn(ctx, i)
	}

	<-ctx.Done()
	p.stopMu.Lock()
	close(p.stopped)
	p.stopMu.Unlock()

	p.wg.Wait()
	p.submitters.Wait()
	p.drain(ctx)

	slog.Info("worker pool stopped")
	return ctx.Err()
}

// Retired reports how many workers were replaced so far.
func (p *Pool) Retired() int64 {
	return p.retired.Load()
}

func (p *Pool) spawn(ctx context.Context, id int) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.work(ctx, id)
	}()
}

func (p *Pool) work(ctx context.Context, id int) {
	handled := 0

	for {
		select {
		case <-ctx.Done():
			return
		case q := <-p.jobs:
			res, abandoned := p.process(ctx, q.job)
			p.finish(ctx, q, res)
			handled++

			limitReached := p.cfg.MaxTasksPerWorker > 0 && handled >= p.cfg.MaxTasksPerWorker
			if !abandoned && !limitReached {
				continue
			}

			p.retired.Add(1)
			slog.Info("worker retired", "worker", id, "handled", handled, "abandoned_task", abandoned)
			if ctx.Err() == nil {
				p.spawn(ctx, id)
			}
			return
		}
	}
}

// process runs every attempt of a job. abandoned is true when the hard time
// limit left a task running in the background.
func (p *Pool) process(ctx context.Context, job Job) (res Result, abandoned bool) {
	res = Result{JobID: job.ID, Task: job.Task, StartedAt: p.now()}

	h, ok := p.handler(job.Task)
	if !ok {
		res.State, res.Err = StateFailed, fmt.Errorf("%w: %s", ErrUnknownTask, job.Task)
		return res, false
	}

	for attempt := 1; ; attempt++ {
		job.Attempt = attempt
		res.Attempts = attempt

		slog.Info("task running", "task", job.Task, "job", job.ID, "attempt", attempt, "state", StateRunning)
		summary, state, err := p.execute(ctx, h, job)
		res.State, res.Summary, res.Err = state, summary, err

		if state == StateTimedOut && errors.Is(err, ErrHardTimeLimit) {
			return res, true
		}
		if state != StateFailed || !p.cfg.Retry.allows(attempt, err) || ctx.Err() != nil {
			return res, false
		}

		wait := p.cfg.Retry.Backoff * time.Duration(attempt)
		slog.Warn("task failed, retrying", "task", job.Task, "job", job.ID, "attempt", attempt, "backoff", wait, "err", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, false
		case <-timer.C:
		}
	}
}

type outcome struct {
	summary Summary
	err     error
}

func (p *Pool) execute(ctx context.Context, h Handler, job Job) (Summary, State, error) {
	var (
		hardCtx    context.Context
		cancelHard context.CancelFunc
		hardC      <-chan time.Time
	)
	if p.cfg.HardTimeLimit > 0 {
		job.Deadline = p.now().Add(p.cfg.HardTimeLimit)
		hardCtx, cancelHard = context.WithTimeout(ctx, p.cfg.HardTimeLimit)

		hard := time.NewTimer(p.cfg.HardTimeLimit)
		defer hard.Stop()
		hardC = hard.C
	} else {
		hardCtx, cancelHard = context.WithCancel(ctx)
	}
	defer cancelHard()

	var (
		softCtx    context.Context
		cancelSoft context.CancelFunc
	)
	if p.cfg.SoftTimeLimit > 0 {
		softCtx, cancelSoft = context.WithTimeout(hardCtx, p.cfg.SoftTimeLimit)
	} else {
		softCtx, cancelSoft = context.WithCancel(hardCtx)
	}
	defer cancelSoft()

	runCtx := withSoftLimit(hardCtx, softCtx)

	out := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome{err: fmt.Errorf("task %s panicked: %v", job.Task, r)}
			}
		}()

		summary, err := h(runCtx, job)
		out <- outcome{summary: summary, err: err}
	}()

	select {
	case o := <-out:
		switch {
		case o.err == nil:
			return o.summary, StateSucceeded, nil
		case errors.Is(o.err, ErrSkipped):
			return Summary{}, StateSkipped, o.err
		case ctx.Err() == nil && errors.Is(softCtx.Err(), context.DeadlineExceeded):
			return Summary{}, StateTimedOut, fmt.Errorf("%w: %w", ErrSoftTimeLimit, o.err)
		default:
			return Summary{}, StateFailed, o.err
		}
	case <-hardC:
		return Summary{}, StateTimedOut, ErrHardTimeLimit
	}
}

func (p *Pool) finish(ctx context.Context, q *queued, res Result) {
	res.FinishedAt = p.now()

	attrs := []any{
		"task", res.Task,
		"job", res.JobID,
		"state", res.State,
		"attempts", res.Attempts,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	}
	switch res.State {
	case StateSucceeded:
		slog.Info("task finished", append(attrs, "entries", res.Summary.Entries, "title", res.Summary.Title)...)
	case StateSkipped:
		slog.Info("task skipped", append(attrs, "reason", res.ErrorText())...)
	default:
		slog.Error("task finished", append(attrs, "err", res.ErrorText())...)
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	for _, r := range p.recorders {
		if err := r.Record(rctx, res); err != nil {
			slog.Error("failed to record task result", "task", res.Task, "job", res.JobID, "err", err)
		}
	}

	q.done <- res
	close(q.done)
}

func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case q := <-p.jobs:
			now := p.now()
			p.finish(ctx, q, Result{
				JobID:     q.job.ID,
				Task:      q.job.Task,
				State:     StateFailed,
				Err:       ErrPoolStopped,
				StartedAt: now,
			})
		default:
			return
		}
	}
}
