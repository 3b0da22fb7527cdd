// Package bot answers direct messages with the result of an answer lookup.
package bot

import (
	"context"
	"errors"
	"log/slog"

	"kbbot/internal/domain"
	"kbbot/internal/metrics"
	"kbbot/internal/slackapp"
)

// ErrNoText is returned for a direct message event without a text field,
// such as an edit or a deletion. Nothing is looked up or posted.
var ErrNoText = errors.New("message event has no text")

// Handler routes direct messages to an Answerer.
type Handler struct {
	answerer domain.Answerer
	logger   *slog.Logger
}

func NewHandler(answerer domain.Answerer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{answerer: answerer, logger: logger}
}

// HandleMessage replies to a direct message with the lookup result for its
// text. Messages from any other kind of channel are ignored. Errors from the
// lookup or the reply are returned unchanged, as is ErrNoText.
func (h *Handler) HandleMessage(ctx context.Context, ev domain.Event, say domain.Say) error {
	if !ev.IsDirectMessage() {
		metrics.IgnoredEventsTotal.Inc()
		return nil
	}
	metrics.DirectMessagesTotal.Inc()
	if !ev.HasText {
		return ErrNoText
	}
	h.logger.Info("direct message received", "event_id", ev.ID, "user", ev.User, "channel", ev.Channel, "content_len", len(ev.Text))

	answer, err := h.answerer.Answer(ctx, ev.Text)
	if err != nil {
		return err
	}
	return say(ctx, answer)
}

// Register wires the handler into app for message events.
func (h *Handler) Register(app *slackapp.App) {
	app.Event("message", h.HandleMessage)
}
