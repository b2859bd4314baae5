package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Submitter interface {
	Submit(ctx context.Context, task string, payload map[string]string) (<-chan Result, error)
}

// Scheduler triggers tasks on cron schedules. It only enqueues jobs; running
// them is the pool's business.
type Scheduler struct {
	submitter Submitter
	cron      *cron.Cron

	mu  sync.RWMutex
	ctx context.Context
}

func New(submitter Submitter, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		submitter: submitter,
		cron:      cron.New(cron.WithLocation(loc)),
		ctx:       context.Background(),
	}
}

// Every schedules task on a standard five-field cron spec or a descriptor
// such as "@every 10m". An empty spec leaves the task on demand only.
func (s *Scheduler) Every(spec, task string, payload map[string]string) error {
	if spec == "" {
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.trigger(task, payload)
	})
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", task, spec, err)
	}

	slog.Info("task scheduled", "task", task, "spec", spec)
	return nil
}

func (s *Scheduler) trigger(task string, payload map[string]string) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	if _, err := s.submitter.Submit(ctx, task, payload); err != nil {
		slog.Error("failed to trigger task", "task", task, "err", err)
		return
	}
	slog.Debug("task triggered", "task", task)
}

// Start runs the schedules until ctx is done and waits for running triggers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()

	return ctx.Err()
}
