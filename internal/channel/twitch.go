package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"

	"chatty/internal/config"
	"chatty/internal/domain"
)

const twitchMaxMsgLen = 500

// Twitch implements domain.Surface for Twitch chat over IRC.
type Twitch struct {
	cfg    config.TwitchConfig
	client *twitchirc.Client
	bus    domain.MessageBus
	logger *slog.Logger
}

// NewTwitch creates a Twitch surface.
func NewTwitch(cfg config.TwitchConfig, logger *slog.Logger) *Twitch {
	return &Twitch{cfg: cfg, logger: logger}
}

func (t *Twitch) Name() string { return "twitch" }

// Start connects to Twitch IRC and joins the configured channel.
func (t *Twitch) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	client := twitchirc.NewClient(t.cfg.Username, t.cfg.Token)
	t.client = client

	bus.OnOutbound("twitch", func(out domain.Outbound) {
		if !domain.OwnsChannel("twitch", out.ChannelID) {
			return
		}
		if out.Kind != domain.OutboundMessage || out.Text == "" {
			return
		}
		if !t.cfg.ReplyInChat {
			return
		}
		native := domain.NativeChannelID(out.ChannelID)
		for _, chunk := range splitMessage(out.Text, twitchMaxMsgLen) {
			client.Say(native, chunk)
		}
	})

	client.OnPrivateMessage(func(m twitchirc.PrivateMessage) {
		if m.User.Name == t.cfg.Username {
			return
		}
		t.logger.Debug("twitch message received",
			"author", m.User.DisplayName,
			"channel", m.Channel,
			"content_len", len(m.Message),
		)
		bus.Publish(domain.ChatMessage{
			Author:    m.User.DisplayName,
			Text:      m.Message,
			Timestamp: time.Now(),
			ChannelID: domain.ChannelID("twitch", m.Channel),
		})
	})

	client.OnConnect(func() {
		t.logger.Info("twitch connected", "channel", t.cfg.Channel)
	})

	client.Join(t.cfg.Channel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("twitch disconnecting")
		return client.Disconnect()
	case err := <-errCh:
		return fmt.Errorf("twitch irc: %w", err)
	}
}

func (t *Twitch) Stop() error {
	if t.client == nil {
		return nil
	}
	return t.client.Disconnect()
}
