package bus

import (
	"log/slog"
	"sync"
	"time"

	"chatty/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus connecting chat surfaces to
// the dispatcher. Inbound messages fan in to a single stream; outbound
// events are broadcast to every registered surface.
type InMemoryBus struct {
	inbound  chan domain.ChatMessage
	handlers map[string]func(domain.Outbound)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound:  make(chan domain.ChatMessage, bufferSize),
		handlers: make(map[string]func(domain.Outbound)),
		logger:   logger,
	}
}

// Publish delivers an inbound message to the dispatcher. Blocks up to
// publishTimeout if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.ChatMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "channel", msg.ChannelID, "author", msg.Author)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "channel", msg.ChannelID)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"channel", msg.ChannelID,
				"author", msg.Author,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.ChatMessage {
	return b.inbound
}

// SendOutbound broadcasts an event to every registered surface handler.
// Surfaces filter on the event's channel id themselves.
func (b *InMemoryBus) SendOutbound(out domain.Outbound) {
	b.mu.RLock()
	handlers := make([]func(domain.Outbound), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Warn("no surfaces registered for outbound event", "channel", out.ChannelID)
		return
	}
	for _, h := range handlers {
		h(out)
	}
}

func (b *InMemoryBus) OnOutbound(surfaceName string, handler func(domain.Outbound)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[surfaceName] = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
