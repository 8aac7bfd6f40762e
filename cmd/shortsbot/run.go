package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortsbot/internal/bot"
	"shortsbot/internal/bus"
	"shortsbot/internal/channel"
	"shortsbot/internal/config"
	"shortsbot/internal/media"
	"shortsbot/internal/metrics"
	"shortsbot/internal/registry"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

// app holds the wired components shared by serve and poll.
type app struct {
	cfg      *config.Config
	store    *registry.SQLStore
	telegram *channel.Telegram
	bot      *bot.Bot
	bus      *bus.InMemoryBus
	runDone  chan struct{}
}

func newApp(cfg *config.Config) (*app, error) {
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token is required (set BOT_TOKEN or telegram.token)")
	}

	store, err := registry.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("user registry: %w", err)
	}

	httpClient, err := media.NewHTTPClient(media.HTTPClientConfig{
		Timeout:  time.Duration(cfg.Media.HTTPTimeout) * time.Second,
		UseProxy: cfg.Media.UseProxy,
		ProxyURL: cfg.Media.ProxyURL,
		NoProxy:  cfg.Media.NoProxy,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("media http client: %w", err)
	}
	resolver := media.NewYouTube(media.YouTubeConfig{
		HTTPClient:     httpClient,
		MaxUploadBytes: int64(cfg.Media.MaxUploadMB) << 20,
		PreferMimeType: cfg.Media.PreferMimeType,
		Logger:         logger,
	})

	telegram, err := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		PollTimeout: cfg.Telegram.PollTimeout,
		Debug:       cfg.Telegram.Debug,
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.Info("authorized", "username", telegram.Username())

	b := bot.New(bot.Config{
		Transport:       telegram,
		Resolver:        resolver,
		Registry:        store,
		MaxUploadMB:     cfg.Media.MaxUploadMB,
		StatusDelay:     time.Duration(cfg.Pipeline.StatusDeleteDelayMs) * time.Millisecond,
		DeliveryTimeout: time.Duration(cfg.Pipeline.DeliveryTimeoutMs) * time.Millisecond,
		MaxConcurrent:   cfg.General.MaxConcurrentUpdates,
		LinksPerMinute:  cfg.Pipeline.LinksPerMinute,
		LinkBurst:       cfg.Pipeline.LinkBurst,
		Logger:          logger,
	})

	return &app{
		cfg:      cfg,
		store:    store,
		telegram: telegram,
		bot:      b,
		bus:      bus.New(cfg.General.BusBuffer, logger),
		runDone:  make(chan struct{}),
	}, nil
}

// run dispatches updates until the bus is closed by shutdown.
func (a *app) run(ctx context.Context) {
	go func() {
		defer close(a.runDone)
		a.bot.Run(ctx, a.bus)
	}()
}

// shutdown closes the bus, waits for queued and in-flight updates and
// scheduled status deletions, then closes the registry.
func (a *app) shutdown() error {
	logger.Info("shutting down...")
	a.bus.Close()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-a.runDone
		a.bot.Wait()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	if err := a.store.Close(); err != nil {
		logger.Warn("close registry", "err", err)
	}
	return shutdownErr
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive updates through a Telegram webhook",
		Long: `Starts the webhook HTTP server and registers webhook.publicUrl with
Telegram when it is set. Press Ctrl+C to stop.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	whCfg := channel.WebhookConfig{
		Host:        cfg.Webhook.Host,
		Port:        cfg.Webhook.Port,
		Path:        cfg.Webhook.Path,
		SecretToken: cfg.Webhook.SecretToken,
		Logger:      logger,
	}
	if cfg.Metrics.Enabled {
		whCfg.Metrics = metrics.Collector.Handler()
		whCfg.MetricsPath = cfg.Metrics.Path
	}
	wh := channel.NewWebhook(whCfg)

	if cfg.Webhook.PublicURL != "" {
		if err := a.telegram.SetWebhook(ctx, cfg.Webhook.PublicURL, cfg.Webhook.SecretToken); err != nil {
			a.store.Close()
			return fmt.Errorf("set webhook: %w", err)
		}
		logger.Info("webhook registered", "url", cfg.Webhook.PublicURL)
	} else {
		logger.Warn("webhook.publicUrl not set, assuming the webhook is registered elsewhere")
	}

	a.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- wh.Start(ctx, a.bus)
	}()

	logger.Info("bot started in webhook mode. Press Ctrl+C to stop.", "addr", wh.Addr(), "path", cfg.Webhook.Path)

	var runErr error
	select {
	case <-ctx.Done():
		<-errCh
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("webhook server error", "err", runErr)
		}
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Receive updates through long polling",
		Long: `Removes any registered webhook and long-polls getUpdates.
Useful for local development. Press Ctrl+C to stop.`,
		RunE: runPoll,
	}
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics)
	}

	a.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.telegram.Start(ctx, a.bus)
	}()

	logger.Info("bot started in polling mode. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		a.telegram.Stop()
		<-errCh
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("polling error", "err", runErr)
		}
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// serveMetrics runs a standalone metrics listener until ctx is done.
func serveMetrics(ctx context.Context, cfg config.MetricsConfig) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Collector.Handler())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", cfg.Addr, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "err", err)
	}
}
