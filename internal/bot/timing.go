package bot

import (
	"context"
	"log/slog"
	"time"

	"shortsbot/internal/domain"
	"shortsbot/internal/metrics"
)

// Timed logs the response time of next, including when it panics.
func Timed(next Handler, logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, msg domain.InboundMessage) error {
		start := time.Now()
		defer func() {
			elapsed := time.Since(start)
			metrics.UpdateDuration.ObserveDuration(elapsed)
			LoggerFrom(ctx, logger).Info("response time", "update_id", msg.UpdateID, "elapsed_ms", elapsed.Milliseconds())
		}()
		return next.Handle(ctx, msg)
	})
}
