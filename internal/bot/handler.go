// Package bot implements the update handling: command routing, the
// shorts download pipeline, error classification and dispatch.
package bot

import (
	"context"
	"log/slog"

	"shortsbot/internal/domain"
)

// Handler handles one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg domain.InboundMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg domain.InboundMessage) error {
	return f(ctx, msg)
}

type loggerKey struct{}

// WithLogger returns ctx carrying an update-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}

func reply(msg domain.InboundMessage, text string) domain.OutboundText {
	return domain.OutboundText{
		ChatID:    msg.ChatID,
		Text:      text,
		ParseMode: parseMode,
		ReplyTo:   msg.MessageID,
	}
}
