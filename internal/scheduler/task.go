// Package scheduler runs named tasks on a bounded worker pool, with retries,
// per-attempt time limits and cron recurrence layered on top.
//
// A job moves PENDING -> RUNNING -> one of SUCCEEDED, FAILED, TIMED_OUT or
// SKIPPED. The soft time limit is a checkpoint signal (see Checkpoint), the
// hard time limit cancels the task's context, abandons the task and replaces
// the worker running it.
package scheduler

import (
	"context"
	"errors"
	"time"
)

type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateTimedOut  State = "TIMED_OUT"
	StateSkipped   State = "SKIPPED"
)

func (s State) Final() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateSkipped:
		return true
	}
	return false
}

var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrPoolStopped   = errors.New("pool stopped")
	ErrSoftTimeLimit = errors.New("soft time limit exceeded")
	ErrHardTimeLimit = errors.New("hard time limit exceeded")

	// ErrSkipped is returned (possibly wrapped) by handlers that decided not
	// to run, e.g. because the same work is already in flight.
	ErrSkipped = errors.New("skipped")
)

// Summary is what a successful task reports.
type Summary struct {
	Entries int    `json:"entries"`
	Title   string `json:"title"`
}

type Job struct {
	ID         string
	Task       string
	Payload    map[string]string
	Attempt    int
	EnqueuedAt time.Time
	// Deadline is the hard deadline of the current attempt.
	Deadline time.Time
}

type Result struct {
	JobID      string
	Task       string
	State      State
	Summary    Summary
	Err        error
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Handler executes one attempt of a job. ctx ends at the hard time limit, so
// in-flight I/O may finish after the soft limit; the handler calls Checkpoint
// between items and stops once it reports an error.
type Handler func(ctx context.Context, job Job) (Summary, error)

type softLimitKey struct{}

func withSoftLimit(ctx, soft context.Context) context.Context {
	return context.WithValue(ctx, softLimitKey{}, soft)
}

// Checkpoint returns a non-nil error once the soft time limit of the running
// job has passed or ctx itself is done.
func Checkpoint(ctx context.Context) error {
	if soft, ok := ctx.Value(softLimitKey{}).(context.Context); ok && soft.Err() != nil {
		return soft.Err()
	}
	return ctx.Err()
}

// SoftDone is closed when the soft time limit of the running job passes. For
// a ctx not created by the pool it is ctx.Done().
func SoftDone(ctx context.Context) <-chan struct{} {
	if soft, ok := ctx.Value(softLimitKey{}).(context.Context); ok {
		return soft.Done()
	}
	return ctx.Done()
}

// Recorder observes every final result.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

type RecorderFunc func(ctx context.Context, r Result) error

func (f RecorderFunc) Record(ctx context.Context, r Result) error {
	return f(ctx, r)
}

type RetryPolicy struct {
	// MaxAttempts counts the first attempt; values below 1 mean one attempt.
	MaxAttempts int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff   time.Duration
	Retryable func(error) bool
}

func (p RetryPolicy) allows(attempt int, err error) bool {
	return p.Retryable != nil && attempt < p.MaxAttempts && p.Retryable(err)
}
