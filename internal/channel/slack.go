package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"chatty/internal/config"
	"chatty/internal/domain"
)

const slackMaxMsgLen = 4000

// Slack implements domain.Surface for Slack using Socket Mode.
type Slack struct {
	cfg    config.SlackConfig
	client *slack.Client
	socket *socketmode.Client
	bus    domain.MessageBus
	logger *slog.Logger
	botUID string
}

// NewSlack creates a Slack surface.
func NewSlack(cfg config.SlackConfig, logger *slog.Logger) *Slack {
	return &Slack{cfg: cfg, logger: logger}
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and listens for events.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	s.bus = bus

	api := slack.New(s.cfg.BotToken, slack.OptionAppLevelToken(s.cfg.AppToken))
	s.client = api

	authResp, err := api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack connected", "user", authResp.User)

	socketClient := socketmode.New(api)
	s.socket = socketClient

	bus.OnOutbound("slack", func(out domain.Outbound) {
		if !domain.OwnsChannel("slack", out.ChannelID) {
			return
		}
		if out.Kind != domain.OutboundMessage || out.Text == "" {
			return
		}
		s.sendMessage(domain.NativeChannelID(out.ChannelID), out.Text)
	})

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(apiEvent)
			default:
				// Acknowledge everything else to keep Socket Mode alive.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) Stop() error { return nil }

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.User == s.botUID || ev.User == "" || ev.SubType != "" {
			return
		}
		s.publish(ev.User, ev.Channel, ev.Text)
	case *slackevents.AppMentionEvent:
		text := ev.Text
		if idx := strings.Index(text, ">"); idx >= 0 {
			text = strings.TrimSpace(text[idx+1:])
		}
		s.publish(ev.User, ev.Channel, text)
	}
}

func (s *Slack) publish(user, channel, text string) {
	if text == "" {
		return
	}
	s.logger.Debug("slack message received", "user", user, "channel", channel, "content_len", len(text))
	s.bus.Publish(domain.ChatMessage{
		Author:    user,
		Text:      text,
		Timestamp: time.Now(),
		ChannelID: domain.ChannelID("slack", channel),
	})
}

func (s *Slack) sendMessage(channelID, content string) {
	for _, chunk := range splitMessage(content, slackMaxMsgLen) {
		_, _, err := s.client.PostMessage(channelID, slack.MsgOptionText(chunk, false))
		if err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
		}
	}
}
