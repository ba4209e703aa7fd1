package channel

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"chatty/internal/config"
	"chatty/internal/domain"
)

const discordMaxMsgLen = 2000

// Discord implements domain.Surface for Discord.
type Discord struct {
	cfg     config.DiscordConfig
	session *discordgo.Session
	bus     domain.MessageBus
	logger  *slog.Logger
}

// NewDiscord creates a Discord surface.
func NewDiscord(cfg config.DiscordConfig, logger *slog.Logger) *Discord {
	return &Discord{cfg: cfg, logger: logger}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and begins listening.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	bus.OnOutbound("discord", func(out domain.Outbound) {
		if !domain.OwnsChannel("discord", out.ChannelID) {
			return
		}
		native := domain.NativeChannelID(out.ChannelID)
		switch out.Kind {
		case domain.OutboundTyping:
			if d.cfg.SendTyping {
				if err := session.ChannelTyping(native); err != nil {
					d.logger.Debug("discord typing failed", "err", err)
				}
			}
		case domain.OutboundMessage:
			if d.cfg.ReplyInChat && out.Text != "" {
				d.sendMessage(native, out.Text)
			}
		case domain.OutboundImage:
			if d.cfg.PostImages && len(out.Image) > 0 {
				d.sendImage(native, out.Image)
			}
		}
	})

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}
		if d.cfg.ChannelID != "" && m.ChannelID != d.cfg.ChannelID {
			return
		}

		d.logger.Debug("discord message received",
			"author", m.Author.Username,
			"channel", m.ChannelID,
			"content_len", len(m.Content),
		)

		msg := domain.ChatMessage{
			Author:    m.Author.Username,
			Text:      m.Content,
			Timestamp: time.Now(),
			ChannelID: domain.ChannelID("discord", m.ChannelID),
		}
		for _, att := range m.Attachments {
			if !strings.HasPrefix(att.ContentType, "image/") {
				continue
			}
			payload, err := fetchAttachment(att.URL)
			if err != nil {
				d.logger.Warn("discord attachment fetch failed", "url", att.URL, "err", err)
				continue
			}
			hash := sha256.Sum256(payload)
			msg.Attachments = append(msg.Attachments, domain.Attachment{
				Kind:        domain.AttachmentImage,
				SourceURL:   att.URL,
				ContentHash: hex.EncodeToString(hash[:]),
				Payload:     payload,
			})
		}
		bus.Publish(msg)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord disconnecting")
	return session.Close()
}

func (d *Discord) Stop() error {
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}

func (d *Discord) sendMessage(channelID, content string) {
	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(channelID, chunk); err != nil {
			d.logger.Error("discord send failed", "channel", channelID, "err", err)
		}
	}
}

func (d *Discord) sendImage(channelID string, image []byte) {
	_, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Files: []*discordgo.File{{
			Name:        "drawing.png",
			ContentType: "image/png",
			Reader:      bytes.NewReader(image),
		}},
	})
	if err != nil {
		d.logger.Error("discord image send failed", "channel", channelID, "err", err)
	}
}

func fetchAttachment(url string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch returned status %d", resp.StatusCode)
	}
	// 8 MiB cap; larger attachments are not worth captioning.
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
