// Package bus queues inbound updates between the update sources and the dispatcher.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"shortsbot/internal/domain"
)

const defaultPublishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus for in-process communication.
type InMemoryBus struct {
	inbound        chan domain.InboundMessage
	publishTimeout time.Duration
	mu             sync.RWMutex
	closed         bool
	logger         *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:        make(chan domain.InboundMessage, bufferSize),
		publishTimeout: defaultPublishTimeout,
		logger:         logger,
	}
}

// Publish enqueues msg. It blocks up to the publish timeout when the bus
// is full and reports whether the message was accepted.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "update_id", msg.UpdateID)
		return false
	}

	select {
	case b.inbound <- msg:
		return true
	default:
	}

	b.logger.Warn("inbound bus full, waiting...", "update_id", msg.UpdateID, "chat_id", msg.ChatID)
	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case b.inbound <- msg:
		b.logger.Info("update delivered after wait", "update_id", msg.UpdateID)
		return true
	case <-timer.C:
		b.logger.Error("update dropped: bus full",
			"update_id", msg.UpdateID,
			"chat_id", msg.ChatID,
			"waited", b.publishTimeout,
		)
		return false
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// Len returns the number of queued updates.
func (b *InMemoryBus) Len() int {
	return len(b.inbound)
}

// Close stops accepting updates. Queued updates stay readable.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
