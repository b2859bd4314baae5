package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/0x0BSoD/turfoo/internal/scheduler"
)

var _ scheduler.Recorder = (*Reporter)(nil)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Reporter sends short failure messages to a Telegram admin chat.
// It is nil-safe: if adminID is 0 or the receiver is nil, it does nothing.
type Reporter struct {
	bot     Sender
	adminID int64
}

func New(bot Sender, adminID int64) *Reporter {
	return &Reporter{bot: bot, adminID: adminID}
}

// Connect builds a Reporter from a bot token; an empty token or chat gives a
// nil Reporter.
func Connect(token string, adminID int64) (*Reporter, error) {
	if token == "" || adminID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return New(bot, adminID), nil
}

func (r *Reporter) Notify(msg string) {
	if r == nil || r.adminID == 0 || r.bot == nil {
		return
	}
	if _, err := r.bot.Send(tgbotapi.NewMessage(r.adminID, msg)); err != nil {
		slog.Error("failed to send error notification", "err", err)
	}
}

// Record alerts on FAILED and TIMED_OUT results.
func (r *Reporter) Record(_ context.Context, res scheduler.Result) error {
	switch res.State {
	case scheduler.StateFailed, scheduler.StateTimedOut:
		r.Notify(format(res))
	}
	return nil
}

func format(res scheduler.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s after %d attempt(s)\n", res.Task, res.State, res.Attempts)
	fmt.Fprintf(&b, "job: %s\n", res.JobID)
	if text := res.ErrorText(); text != "" {
		fmt.Fprintf(&b, "error: %s", text)
	}
	return strings.TrimRight(b.String(), "\n")
}
