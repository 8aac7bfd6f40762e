package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"shortsbot/internal/domain"
)

const classifierReplyTimeout = 10 * time.Second

// Classifier is the last stop for errors escaping a handler. It never
// returns or re-panics.
type Classifier struct {
	transport domain.Transport
	logger    *slog.Logger
}

func NewClassifier(transport domain.Transport, logger *slog.Logger) *Classifier {
	return &Classifier{transport: transport, logger: logger}
}

// Handle logs err according to its kind and, where useful, replies to msg's chat.
func (c *Classifier) Handle(ctx context.Context, msg domain.InboundMessage, err error) {
	if err == nil {
		return
	}
	logger := LoggerFrom(ctx, c.logger).With("update_id", msg.UpdateID, "query", msg.Text)

	switch kind := domain.KindOf(err); kind {
	case domain.KindBlocked:
		logger.Info("bot was blocked by the user", "user_id", msg.Sender.ID)
	case domain.KindRejected:
		logger.Error("error in request", "description", domain.DescriptionOf(err))
		c.reply(ctx, msg, domain.DescriptionOf(err), logger)
	case domain.KindConnectivity:
		logger.Error("could not contact telegram", "error", err)
	default:
		logger.Error("error while handling update", "kind", kind, "error", err)
		c.reply(ctx, msg, genericErrorText, logger)
	}
}

func (c *Classifier) reply(ctx context.Context, msg domain.InboundMessage, text string, logger *slog.Logger) {
	if msg.ChatID == 0 || c.transport == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), classifierReplyTimeout)
	defer cancel()
	if _, err := c.transport.SendText(rctx, domain.OutboundText{ChatID: msg.ChatID, Text: text}); err != nil {
		logger.Warn("error reply failed", "error", err)
	}
}

// Guard runs next and routes its error, or a recovered panic, to c.
func Guard(next Handler, c *Classifier) Handler {
	return HandlerFunc(func(ctx context.Context, msg domain.InboundMessage) (err error) {
		defer func() {
			if r := recover(); r != nil {
				LoggerFrom(ctx, c.logger).Error("handler panic", "panic", r, "stack", string(debug.Stack()))
				err = &domain.Error{Kind: domain.KindUnknown, Op: "handle update", Err: fmt.Errorf("panic: %v", r)}
			}
			c.Handle(ctx, msg, err)
			err = nil
		}()
		return next.Handle(ctx, msg)
	})
}
