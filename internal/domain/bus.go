package domain

// MessageBus queues inbound messages between channels and the dispatcher.
type MessageBus interface {
	Publish(msg InboundMessage) bool
	Subscribe() <-chan InboundMessage
	Close()
}
