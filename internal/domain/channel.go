package domain

import "context"

// Transport delivers replies to a chat.
type Transport interface {
	// SendText sends a text message and returns its message id.
	SendText(ctx context.Context, msg OutboundText) (int, error)
	// SendVideo uploads a video. It returns once the upload settles or ctx is done.
	SendVideo(ctx context.Context, msg OutboundVideo) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Channel is an inbound update source (webhook, long polling).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
