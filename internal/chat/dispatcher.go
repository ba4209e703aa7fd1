package chat

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher fans bus traffic and gateway stream events out to per-channel
// coordinators, creating them lazily on first contact.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger

	mu           sync.Mutex
	coordinators map[string]*Coordinator
	ctx          context.Context
	wg           sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Coordinators inherit deps.
func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{
		deps:         deps,
		logger:       deps.Logger,
		coordinators: make(map[string]*Coordinator),
	}
}

// Run consumes the inbound bus stream until ctx is cancelled or the bus is
// closed, then waits for all coordinators to stop.
func (d *Dispatcher) Run(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	inbound := d.deps.Bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case msg, ok := <-inbound:
			if !ok {
				d.wg.Wait()
				return
			}
			if msg.ChannelID == "" {
				d.logger.Warn("dropping message without channel id", "author", msg.Author)
				continue
			}
			d.coordinator(msg.ChannelID).Deliver(msg)
		}
	}
}

// OnToken routes a streamed token to its channel's coordinator. Wired as
// the gateway's token callback.
func (d *Dispatcher) OnToken(channelID, token string) {
	d.coordinator(channelID).DeliverToken(token)
}

// OnResponse routes a completed generation turn to its coordinator.
func (d *Dispatcher) OnResponse(channelID, full string) {
	d.coordinator(channelID).DeliverResponse(full)
}

func (d *Dispatcher) coordinator(channelID string) *Coordinator {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.coordinators[channelID]; ok {
		return c
	}
	c := NewCoordinator(channelID, d.deps)
	d.coordinators[channelID] = c
	d.logger.Info("channel coordinator started", "channel", channelID)

	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		c.Run(ctx)
	}()
	return c
}
