package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []string
}

func (f *fakeSubmitter) Submit(_ context.Context, task string, _ map[string]string) (<-chan Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)

	ch := make(chan Result, 1)
	close(ch)
	return ch, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func TestScheduler_TriggersOnSchedule(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, time.UTC)

	require.NoError(t, s.Every("@every 1s", "fetch_news_feed", nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return sub.count() >= 1 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, "fetch_news_feed", sub.tasks[0])
}

func TestScheduler_EmptySpecIsOnDemandOnly(t *testing.T) {
	s := New(&fakeSubmitter{}, nil)
	assert.NoError(t, s.Every("", "fetch_program_feed", nil))
	assert.Empty(t, s.cron.Entries())
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(&fakeSubmitter{}, nil)
	assert.Error(t, s.Every("every ten minutes", "fetch_program_feed", nil))
}
