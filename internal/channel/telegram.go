// Package channel connects the bot to Telegram: outbound Bot API calls and
// inbound update sources (long polling and webhook).
package channel

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shortsbot/internal/domain"
	"shortsbot/internal/metrics"
)

// apiRequestTimeout caps a Bot API request beyond the long-poll wait.
const apiRequestTimeout = 60 * time.Second

type TelegramConfig struct {
	Token       string
	APIEndpoint string // empty = api.telegram.org
	PollTimeout int    // seconds
	Debug       bool
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Telegram is the Bot API transport. It also implements domain.Channel
// as a long-polling update source.
type Telegram struct {
	bot         *tgbotapi.BotAPI
	pollTimeout int
	logger      *slog.Logger
	stopOnce    sync.Once
}

// NewTelegram authenticates with the Bot API (getMe) and returns the transport.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newAPIClient(cfg.PollTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, classifyError("telegram bot init", err)
	}
	bot.Debug = cfg.Debug

	cfg.Logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	return &Telegram{
		bot:         bot,
		pollTimeout: cfg.PollTimeout,
		logger:      cfg.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Username returns the bot's @username.
func (t *Telegram) Username() string { return t.bot.Self.UserName }

// Start removes any registered webhook and long-polls for updates until
// ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if err := t.RemoveWebhook(ctx); err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started", "timeout", t.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram polling stopping")
			t.stopPolling()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			publishUpdate(bus, update, t.logger)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled.
func (t *Telegram) Stop() error {
	return nil
}

// StopReceivingUpdates panics when called twice.
func (t *Telegram) stopPolling() {
	t.stopOnce.Do(t.bot.StopReceivingUpdates)
}

// SetWebhook registers publicURL with Telegram. secret is echoed back by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (t *Telegram) SetWebhook(ctx context.Context, publicURL, secret string) error {
	params := tgbotapi.Params{"url": publicURL}
	params.AddNonEmpty("secret_token", secret)

	err := call(ctx, func() error {
		_, err := t.bot.MakeRequest("setWebhook", params)
		return err
	})
	if err != nil {
		return classifyError("set webhook", err)
	}
	t.logger.Info("telegram webhook registered", "url", publicURL)
	return nil
}

func (t *Telegram) RemoveWebhook(ctx context.Context) error {
	err := call(ctx, func() error {
		_, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{})
		return err
	})
	if err != nil {
		return classifyError("delete webhook", err)
	}
	return nil
}

func (t *Telegram) SendText(ctx context.Context, out domain.OutboundText) (int, error) {
	msg := tgbotapi.NewMessage(out.ChatID, out.Text)
	msg.ParseMode = out.ParseMode
	msg.ReplyToMessageID = out.ReplyTo

	var sent tgbotapi.Message
	err := call(ctx, func() error {
		var err error
		sent, err = t.bot.Send(msg)
		return err
	})
	if err != nil {
		return 0, classifyError("send message", err)
	}
	return sent.MessageID, nil
}

// SendVideo streams out.Media as a multipart upload. When ctx is done the
// media reader starts failing, which aborts the request body.
func (t *Telegram) SendVideo(ctx context.Context, out domain.OutboundVideo) error {
	if out.Media == nil || out.Media.Body == nil {
		return &domain.Error{Kind: domain.KindUnknown, Op: "send video", Description: "no media to send"}
	}

	video := tgbotapi.NewVideo(out.ChatID, tgbotapi.FileReader{
		Name:   out.Media.FileName(),
		Reader: &ctxReader{ctx: ctx, r: out.Media.Body},
	})
	video.Caption = out.Caption
	video.ParseMode = out.ParseMode
	video.ReplyToMessageID = out.ReplyTo
	video.SupportsStreaming = true
	video.Duration = int(out.Media.Duration.Seconds())

	err := call(ctx, func() error {
		_, err := t.bot.Send(video)
		return err
	})
	if err != nil {
		return classifyError("send video", err)
	}
	return nil
}

func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	err := call(ctx, func() error {
		_, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return err
	})
	if err != nil {
		return classifyError("delete message", err)
	}
	return nil
}

// newAPIClient bounds every Bot API request, so an upload abandoned by
// call cannot stall forever. Long polls hold the response for pollTimeout
// seconds, which the header and overall timeouts allow for.
func newAPIClient(pollTimeout int) *http.Client {
	poll := time.Duration(pollTimeout) * time.Second
	return &http.Client{
		Timeout: poll + apiRequestTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: poll + 15*time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// call runs fn and returns early with ctx.Err() when ctx is done first.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ctxReader fails reads once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// ConvertUpdate maps a Bot API update to an InboundMessage. Updates that
// carry no usable message are reported with ok=false.
func ConvertUpdate(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		UpdateID:  update.UpdateID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Sender: domain.User{
			ID:        m.From.ID,
			Username:  m.From.UserName,
			FirstName: m.From.FirstName,
			LastName:  m.From.LastName,
		},
		Text:       m.Text,
		Command:    m.Command(),
		ReceivedAt: m.Time(),
	}, true
}

func publishUpdate(bus domain.MessageBus, update tgbotapi.Update, logger *slog.Logger) {
	msg, ok := ConvertUpdate(update)
	if !ok {
		logger.Debug("ignoring update without message", "update_id", update.UpdateID)
		return
	}
	metrics.UpdatesReceived.Inc()
	if !bus.Publish(msg) {
		metrics.UpdatesDropped.Inc()
		logger.Warn("update not queued", "update_id", msg.UpdateID, "chat_id", msg.ChatID)
	}
}

var (
	_ domain.Transport = (*Telegram)(nil)
	_ domain.Channel   = (*Telegram)(nil)
)
