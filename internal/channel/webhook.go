package channel

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shortsbot/internal/domain"
)

// SecretTokenHeader carries the secret_token registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateSize = 1 << 20

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	Host        string
	Port        int
	Path        string // default: /webhook
	SecretToken string // compared against SecretTokenHeader when set
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// Webhook receives Telegram updates over HTTP and publishes them to the bus.
type Webhook struct {
	host        string
	port        int
	path        string
	secret      string
	metrics     http.Handler
	metricsPath string
	bus         domain.MessageBus
	logger      *slog.Logger
	server      *http.Server
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{
		host:        cfg.Host,
		port:        cfg.Port,
		path:        cfg.Path,
		secret:      cfg.SecretToken,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		logger:      cfg.Logger,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Addr returns the listen address.
func (w *Webhook) Addr() string {
	return net.JoinHostPort(w.host, strconv.Itoa(w.port))
}

// Handler returns the HTTP routes served by the webhook.
func (w *Webhook) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleUpdate)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
	})
	if w.metrics != nil {
		mux.Handle(w.metricsPath, w.metrics)
	}
	return mux
}

// Start serves the webhook until ctx is cancelled.
func (w *Webhook) Start(ctx context.Context, bus domain.MessageBus) error {
	w.bus = bus

	w.server = &http.Server{
		Addr:              w.Addr(),
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.Addr(), "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (w *Webhook) Stop() error {
	return nil
}

// handleUpdate acknowledges every well-formed update with 200. Handling
// happens asynchronously, so later failures never surface to Telegram.
func (w *Webhook) handleUpdate(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if w.secret != "" && !hmac.Equal([]byte(r.Header.Get(SecretTokenHeader)), []byte(w.secret)) {
		w.logger.Warn("webhook request with invalid secret token", "remote", r.RemoteAddr)
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	w.logger.Debug("webhook update received", "update_id", update.UpdateID)
	if w.bus != nil {
		publishUpdate(w.bus, update, w.logger)
	}

	rw.WriteHeader(http.StatusOK)
}
