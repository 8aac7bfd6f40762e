package bot

import (
	"context"
	"log/slog"

	"shortsbot/internal/domain"
	"shortsbot/internal/metrics"
)

// Router answers the start and help commands and hands every other
// message to the pipeline.
type Router struct {
	registry  domain.UserRegistry
	transport domain.Transport
	next      Handler
	logger    *slog.Logger
}

func NewRouter(registry domain.UserRegistry, transport domain.Transport, next Handler, logger *slog.Logger) *Router {
	return &Router{
		registry:  registry,
		transport: transport,
		next:      next,
		logger:    logger,
	}
}

func (r *Router) Handle(ctx context.Context, msg domain.InboundMessage) error {
	logger := LoggerFrom(ctx, r.logger)
	logger.Info("query received", "user_id", msg.Sender.ID, "chat_id", msg.ChatID, "text", msg.Text)

	switch msg.Command {
	case "start":
		return r.start(ctx, msg)
	case "help":
		return r.help(ctx, msg)
	default:
		return r.next.Handle(ctx, msg)
	}
}

// start replies first; the registry write that follows never affects the reply.
func (r *Router) start(ctx context.Context, msg domain.InboundMessage) error {
	if _, err := r.transport.SendText(ctx, domain.OutboundText{
		ChatID:    msg.ChatID,
		Text:      welcomeText,
		ParseMode: parseMode,
	}); err != nil {
		return err
	}
	r.registerUser(ctx, msg.Sender)
	return nil
}

func (r *Router) help(ctx context.Context, msg domain.InboundMessage) error {
	if _, err := r.transport.SendText(ctx, domain.OutboundText{
		ChatID:    msg.ChatID,
		Text:      helpText,
		ParseMode: parseMode,
	}); err != nil {
		return err
	}
	LoggerFrom(ctx, r.logger).Info("help command sent", "user_id", msg.Sender.ID)
	return nil
}

func (r *Router) registerUser(ctx context.Context, u domain.User) {
	logger := LoggerFrom(ctx, r.logger)

	existing, err := r.registry.GetUser(ctx, u.ID)
	if err != nil {
		logger.Error("user lookup failed", "user_id", u.ID, "error", err)
		return
	}
	if existing != nil {
		logger.Debug("user exists in database", "user_id", u.ID)
		return
	}

	created, err := r.registry.CreateUser(ctx, u)
	if err != nil {
		logger.Error("user insert failed", "user_id", u.ID, "error", err)
		return
	}
	if created {
		metrics.UsersCreated.Inc()
		logger.Info("new user added", "user_id", u.ID, "username", u.Username)
	}
}
