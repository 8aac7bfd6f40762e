package bot

import (
	"context"
	"log/slog"
	"time"

	"shortsbot/internal/domain"
)

type Config struct {
	Transport       domain.Transport
	Resolver        domain.MediaResolver
	Registry        domain.UserRegistry
	MaxUploadMB     int
	StatusDelay     time.Duration
	DeliveryTimeout time.Duration
	MaxConcurrent   int
	// LinksPerMinute enables the per-user link throttle when > 0.
	LinksPerMinute int
	LinkBurst      int
	Logger         *slog.Logger
}

// Bot wires the handler chain: Guard(Timed(Router -> Pipeline)).
type Bot struct {
	pipeline   *Pipeline
	classifier *Classifier
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func New(cfg Config) *Bot {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var throttle *Throttle
	if cfg.LinksPerMinute > 0 {
		throttle = NewThrottle(cfg.LinkBurst, cfg.LinksPerMinute)
	}
	pipeline := NewPipeline(PipelineConfig{
		Resolver:        cfg.Resolver,
		Transport:       cfg.Transport,
		MaxUploadMB:     cfg.MaxUploadMB,
		StatusDelay:     cfg.StatusDelay,
		DeliveryTimeout: cfg.DeliveryTimeout,
		Throttle:        throttle,
		Logger:          cfg.Logger,
	})
	router := NewRouter(cfg.Registry, cfg.Transport, pipeline, cfg.Logger)
	classifier := NewClassifier(cfg.Transport, cfg.Logger)
	handler := Guard(Timed(router, cfg.Logger), classifier)

	return &Bot{
		pipeline:   pipeline,
		classifier: classifier,
		dispatcher: NewDispatcher(handler, cfg.MaxConcurrent, cfg.Logger),
		logger:     cfg.Logger,
	}
}

// Run dispatches updates from bus until the bus is closed, draining what
// is still queued. Call Wait after Run returns.
func (b *Bot) Run(ctx context.Context, bus domain.MessageBus) {
	b.dispatcher.Run(ctx, bus)
}

// Handle processes a single update synchronously.
func (b *Bot) Handle(ctx context.Context, msg domain.InboundMessage) {
	b.dispatcher.Dispatch(ctx, msg)
}

// Wait blocks until in-flight updates and scheduled status deletions finish.
func (b *Bot) Wait() {
	b.dispatcher.Wait()
	b.pipeline.Wait()
}
