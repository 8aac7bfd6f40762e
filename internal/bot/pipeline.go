package bot

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"shortsbot/internal/domain"
	"shortsbot/internal/metrics"
)

const (
	DefaultStatusDelay     = 3000 * time.Millisecond
	DefaultDeliveryTimeout = 7000 * time.Millisecond

	deleteTimeout = 10 * time.Second
)

var shortsURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/shorts/([^\s/?#]+)(?:\?[^\s)]*)?$`)

// MatchShortsURL reports whether text (after trimming) is exactly one
// YouTube shorts link, returning the link and the video id.
func MatchShortsURL(text string) (url, id string, ok bool) {
	url = strings.TrimSpace(text)
	m := shortsURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", false
	}
	return url, m[1], true
}

type PipelineConfig struct {
	Resolver        domain.MediaResolver
	Transport       domain.Transport
	MaxUploadMB     int
	StatusDelay     time.Duration
	DeliveryTimeout time.Duration
	// Throttle, when set, limits valid links per user.
	Throttle *Throttle
	Logger   *slog.Logger
}

// Pipeline validates a shorts link, resolves it and uploads the video as
// a reply, reporting failures to the user.
type Pipeline struct {
	resolver        domain.MediaResolver
	transport       domain.Transport
	maxUploadMB     int
	statusDelay     time.Duration
	deliveryTimeout time.Duration
	throttle        *Throttle
	logger          *slog.Logger

	pending sync.WaitGroup // scheduled status deletions
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.StatusDelay < 0 {
		cfg.StatusDelay = DefaultStatusDelay
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 50
	}
	return &Pipeline{
		resolver:        cfg.Resolver,
		transport:       cfg.Transport,
		maxUploadMB:     cfg.MaxUploadMB,
		statusDelay:     cfg.StatusDelay,
		deliveryTimeout: cfg.DeliveryTimeout,
		throttle:        cfg.Throttle,
		logger:          cfg.Logger,
	}
}

// Handle runs the pipeline for one message. Failures of the download are
// answered here; only errors while replying are returned.
func (p *Pipeline) Handle(ctx context.Context, msg domain.InboundMessage) error {
	logger := LoggerFrom(ctx, p.logger)

	url, _, ok := MatchShortsURL(msg.Text)
	if !ok {
		metrics.InvalidLinks.Inc()
		_, err := p.transport.SendText(ctx, reply(msg, invalidLinkText))
		return err
	}

	if p.throttle != nil && !p.throttle.Allow(msg.Sender.ID) {
		metrics.LinksThrottled.Inc()
		logger.Info("user throttled", "user_id", msg.Sender.ID)
		_, err := p.transport.SendText(ctx, reply(msg, throttledText))
		return err
	}

	statusID, err := p.transport.SendText(ctx, reply(msg, statusText))
	if err != nil {
		return err
	}
	p.scheduleDelete(msg.ChatID, statusID, logger)

	media, err := p.resolver.Resolve(ctx, url)
	if err != nil {
		return p.fail(ctx, msg, err)
	}
	defer media.Close()

	if err := p.deliver(ctx, msg, url, media); err != nil {
		return p.fail(ctx, msg, err)
	}

	metrics.VideosSent.Inc()
	logger.Info("video sent", "user_id", msg.Sender.ID, "video_id", media.VideoID, "quality", media.Quality)
	return nil
}

// deliver uploads media bounded by the delivery timeout. On timeout the
// upload is cancelled through its context and the caller closes the stream.
func (p *Pipeline) deliver(ctx context.Context, msg domain.InboundMessage, url string, media *domain.Media) error {
	dctx, cancel := context.WithTimeout(ctx, p.deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := p.transport.SendVideo(dctx, domain.OutboundVideo{
		ChatID:    msg.ChatID,
		ReplyTo:   msg.MessageID,
		Caption:   captionText(media.Title, url),
		ParseMode: parseMode,
		Media:     media,
	})
	metrics.DeliveryDuration.ObserveDuration(time.Since(start))

	if err != nil && errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &domain.Error{Kind: domain.KindTimeout, Op: "deliver video", Err: err}
	}
	return err
}

// fail sends the single failure reply for err.
func (p *Pipeline) fail(ctx context.Context, msg domain.InboundMessage, err error) error {
	logger := LoggerFrom(ctx, p.logger)
	kind := domain.KindOf(err)
	metrics.Failures(kind.String()).Inc()

	if ctx.Err() != nil {
		logger.Warn("pipeline aborted", "kind", kind, "error", err)
		return nil
	}

	var text string
	switch kind {
	case domain.KindBlocked:
		logger.Info("bot was blocked by the user", "user_id", msg.Sender.ID)
		return nil
	case domain.KindTooLarge:
		text = tooLargeText(p.maxUploadMB)
	case domain.KindConnectivity:
		text = connectivityText
	case domain.KindTimeout:
		text = timeoutText
	case domain.KindRejected:
		text = rejectedText(domain.DescriptionOf(err))
	default:
		text = errorText(err.Error())
	}

	logger.Warn("pipeline failed", "kind", kind, "user_id", msg.Sender.ID, "error", err)
	_, sendErr := p.transport.SendText(ctx, reply(msg, text))
	return sendErr
}

// scheduleDelete removes the status message after the status delay. It
// uses a detached context so shutdown does not skip it.
func (p *Pipeline) scheduleDelete(chatID int64, messageID int, logger *slog.Logger) {
	p.pending.Add(1)
	time.AfterFunc(p.statusDelay, func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()
		if err := p.transport.DeleteMessage(ctx, chatID, messageID); err != nil {
			logger.Debug("status message delete failed", "chat_id", chatID, "message_id", messageID, "error", err)
		}
	})
}

// Wait blocks until every scheduled status deletion has run.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}
