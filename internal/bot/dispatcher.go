package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"shortsbot/internal/domain"
	"shortsbot/internal/metrics"
)

// Dispatcher drains the bus and runs the handler for each update on its
// own goroutine, at most concurrency at a time.
type Dispatcher struct {
	handler     Handler
	sem         *semaphore.Weighted
	concurrency int
	wg          sync.WaitGroup
	logger      *slog.Logger
}

func NewDispatcher(handler Handler, concurrency int, logger *slog.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Dispatcher{
		handler:     handler,
		sem:         semaphore.NewWeighted(int64(concurrency)),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run consumes bus until it is closed, so updates queued before
// shutdown are still handled. Handlers run with a context detached from
// ctx; call Wait after Run returns.
func (d *Dispatcher) Run(ctx context.Context, bus domain.MessageBus) {
	d.logger.Info("dispatcher started", "concurrency", d.concurrency)

	handlerCtx := context.WithoutCancel(ctx)
	for msg := range bus.Subscribe() {
		if ctx.Err() != nil {
			d.logger.Debug("draining queued update", "update_id", msg.UpdateID)
		}
		// handlerCtx is never cancelled, so Acquire only returns once a slot frees.
		if err := d.sem.Acquire(handlerCtx, 1); err != nil {
			d.logger.Warn("update not dispatched", "update_id", msg.UpdateID, "error", err)
			continue
		}
		d.wg.Add(1)
		go func(m domain.InboundMessage) {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.Dispatch(handlerCtx, m)
		}(msg)
	}
	d.logger.Info("bus closed, dispatcher stopping")
}

// Dispatch handles one update synchronously under a fresh correlation id.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	logger := d.logger.With("request_id", uuid.NewString(), "update_id", msg.UpdateID)
	if err := d.handler.Handle(WithLogger(ctx, logger), msg); err != nil {
		logger.Error("unhandled error", "error", err)
	}
}

// Wait blocks until every dispatched handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
