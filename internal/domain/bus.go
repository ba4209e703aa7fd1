package domain

// MessageBus routes messages between surfaces and the dispatcher.
// Inbound messages from all surfaces fan in to one stream; outbound events
// are broadcast to every registered surface handler.
type MessageBus interface {
	Publish(msg ChatMessage)
	Subscribe() <-chan ChatMessage
	SendOutbound(out Outbound)
	OnOutbound(surfaceName string, handler func(Outbound))
	Close()
}
