// Package media resolves video links into downloadable streams.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"

	"shortsbot/internal/domain"
)

const defaultMimeType = "video/mp4"

// YouTubeConfig configures the YouTube resolver.
type YouTubeConfig struct {
	HTTPClient     *http.Client
	MaxUploadBytes int64 // 0 disables the size ceiling
	PreferMimeType string
	Logger         *slog.Logger
}

// YouTube resolves YouTube (shorts) links via github.com/kkdai/youtube.
type YouTube struct {
	client     *youtube.Client
	maxBytes   int64
	preferMime string
	logger     *slog.Logger
}

func NewYouTube(cfg YouTubeConfig) *YouTube {
	if cfg.PreferMimeType == "" {
		cfg.PreferMimeType = defaultMimeType
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &YouTube{
		client:     &youtube.Client{HTTPClient: cfg.HTTPClient},
		maxBytes:   cfg.MaxUploadBytes,
		preferMime: cfg.PreferMimeType,
		logger:     cfg.Logger,
	}
}

// Resolve fetches metadata for rawURL and opens a stream for the best
// format that fits the upload ceiling. The caller owns Media.Body.
func (y *YouTube) Resolve(ctx context.Context, rawURL string) (*domain.Media, error) {
	video, err := y.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, resolveError("get video", err)
	}

	format, err := selectFormat(video.Formats.WithAudioChannels(), video.Duration, y.maxBytes, y.preferMime)
	if err != nil {
		return nil, err
	}

	stream, size, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, resolveError("open stream", err)
	}

	y.logger.Debug("video resolved",
		"video_id", video.ID,
		"itag", format.ItagNo,
		"quality", format.QualityLabel,
		"mime", format.MimeType,
		"size", size,
	)

	return &domain.Media{
		Title:    video.Title,
		URL:      rawURL,
		VideoID:  video.ID,
		MimeType: format.MimeType,
		Quality:  format.QualityLabel,
		Size:     size,
		Duration: video.Duration,
		Body:     stream,
	}, nil
}

// selectFormat picks the highest-bitrate format whose size fits maxBytes,
// preferring formats of the preferred mime type. Unknown sizes are
// estimated from bitrate and duration; formats with no estimate are
// accepted. When every candidate is known to be too big the result is a
// KindTooLarge error.
func selectFormat(formats youtube.FormatList, duration time.Duration, maxBytes int64, preferMime string) (*youtube.Format, error) {
	if len(formats) == 0 {
		return nil, &domain.Error{Kind: domain.KindResolution, Op: "select format", Description: "no downloadable format with audio"}
	}

	candidates := make(youtube.FormatList, 0, len(formats))
	for _, f := range formats {
		if strings.HasPrefix(f.MimeType, preferMime) && f.QualityLabel != "" {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		candidates = formats
	}

	var best *youtube.Format
	for i := range candidates {
		f := &candidates[i]
		if maxBytes > 0 {
			if size := estimateSize(f, duration); size > maxBytes {
				continue
			}
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best == nil {
		return nil, &domain.Error{
			Kind:        domain.KindTooLarge,
			Op:          "select format",
			Description: fmt.Sprintf("every format exceeds %d MB", maxBytes>>20),
		}
	}
	return best, nil
}

// estimateSize returns the format size in bytes, 0 when unknown.
func estimateSize(f *youtube.Format, duration time.Duration) int64 {
	if f.ContentLength > 0 {
		return f.ContentLength
	}
	if f.Bitrate > 0 && duration > 0 {
		return int64(f.Bitrate) / 8 * int64(duration.Seconds())
	}
	return 0
}

func resolveError(op string, err error) error {
	kind := domain.KindResolution
	if isNetworkError(err) {
		kind = domain.KindConnectivity
	}
	return &domain.Error{Kind: kind, Op: op, Err: err}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
