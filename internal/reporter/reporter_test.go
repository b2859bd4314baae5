package reporter

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/turfoo/internal/scheduler"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestReporter_AlertsOnFailureStates(t *testing.T) {
	bot := &fakeBot{}
	r := New(bot, 42)

	for _, state := range []scheduler.State{
		scheduler.StateSucceeded, scheduler.StateSkipped, scheduler.StateFailed, scheduler.StateTimedOut,
	} {
		require.NoError(t, r.Record(context.Background(), scheduler.Result{
			JobID:    "job-1",
			Task:     "fetch_results_feed",
			State:    state,
			Attempts: 3,
			Err:      errors.New("feed results: no entries"),
		}))
	}

	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "fetch_results_feed FAILED after 3 attempt(s)")
	assert.Contains(t, bot.sent[0].Text, "error: feed results: no entries")
	assert.Contains(t, bot.sent[1].Text, "TIMED_OUT")
}

func TestReporter_NilSafe(t *testing.T) {
	var r *Reporter
	assert.NotPanics(t, func() {
		_ = r.Record(context.Background(), scheduler.Result{State: scheduler.StateFailed})
	})

	bot := &fakeBot{}
	New(bot, 0).Notify("ignored")
	assert.Empty(t, bot.sent)
}

func TestReporter_SendErrorIsSwallowed(t *testing.T) {
	r := New(&fakeBot{err: errors.New("chat not found")}, 42)
	assert.NoError(t, r.Record(context.Background(), scheduler.Result{State: scheduler.StateFailed}))
}

func TestConnect_NotConfigured(t *testing.T) {
	r, err := Connect("", 42)
	require.NoError(t, err)
	assert.Nil(t, r)
}
