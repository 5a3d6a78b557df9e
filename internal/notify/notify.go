// Package notify pushes task failure and abort alerts to a Telegram chat.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"taskd/internal/scheduler"
)

// Notifier sends one message per noteworthy run cycle. Sends are rate
// limited so a hot-failing task cannot flood the chat.
type Notifier struct {
	bot    *tele.Bot
	chatID int64
	log    zerolog.Logger
	limit  *rate.Limiter
}

func New(token string, chatID int64, log zerolog.Logger) (*Notifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &Notifier{
		bot:    bot,
		chatID: chatID,
		log:    log,
		limit:  rate.NewLimiter(rate.Every(time.Minute), 5),
	}, nil
}

// Record implements scheduler.RunRecorder. Completed cycles are ignored;
// failures and aborts produce a message.
func (n *Notifier) Record(r scheduler.RunRecord) {
	if r.Outcome == scheduler.OutcomeCompleted {
		return
	}
	if !n.limit.Allow() {
		return
	}
	msg := formatRecord(r)
	if _, err := n.bot.Send(tele.ChatID(n.chatID), msg); err != nil {
		n.log.Warn().Err(err).Str("task", r.TaskName).Msg("failure notification not delivered")
	}
}

func formatRecord(r scheduler.RunRecord) string {
	var b strings.Builder
	switch r.Outcome {
	case scheduler.OutcomeFailed:
		fmt.Fprintf(&b, "❌ task %s failed", r.TaskName)
	case scheduler.OutcomeAborted:
		fmt.Fprintf(&b, "⚠️ task %s aborted", r.TaskName)
	default:
		fmt.Fprintf(&b, "task %s: %s", r.TaskName, r.Outcome)
	}
	fmt.Fprintf(&b, " after %s", r.Duration.Round(time.Millisecond))
	if r.Err != nil {
		fmt.Fprintf(&b, "\n%v", r.Err)
	}
	return b.String()
}
