package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatty/internal/config"
	"chatty/internal/domain"
)

const telegramMaxMsgLen = 4000

// Telegram implements domain.Surface for Telegram bots using long polling.
type Telegram struct {
	cfg    config.TelegramConfig
	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

// NewTelegram creates a Telegram surface.
func NewTelegram(cfg config.TelegramConfig, logger *slog.Logger) *Telegram {
	return &Telegram{cfg: cfg, logger: logger}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram connected", "username", bot.Self.UserName)

	bus.OnOutbound("telegram", func(out domain.Outbound) {
		if !domain.OwnsChannel("telegram", out.ChannelID) {
			return
		}
		chatID, err := strconv.ParseInt(domain.NativeChannelID(out.ChannelID), 10, 64)
		if err != nil {
			t.logger.Error("invalid telegram chat id", "channel", out.ChannelID, "err", err)
			return
		}
		switch out.Kind {
		case domain.OutboundTyping:
			action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
			_, _ = bot.Send(action)
		case domain.OutboundMessage:
			if out.Text != "" {
				t.sendMessage(chatID, out.Text)
			}
		case domain.OutboundImage:
			if len(out.Image) > 0 {
				photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "drawing.png", Bytes: out.Image})
				if _, err := bot.Send(photo); err != nil {
					t.logger.Error("telegram photo send failed", "err", err)
				}
			}
		}
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	author := update.Message.From.UserName
	if author == "" {
		author = update.Message.From.FirstName
	}

	t.logger.Debug("telegram message received",
		"author", author,
		"chat", update.Message.Chat.ID,
		"content_len", len(text),
	)

	t.bus.Publish(domain.ChatMessage{
		Author:    author,
		Text:      text,
		Timestamp: time.Unix(int64(update.Message.Date), 0),
		ChannelID: domain.ChannelID("telegram", strconv.FormatInt(update.Message.Chat.ID, 10)),
	})
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error("telegram send failed", "chat", chatID, "err", err)
		}
	}
}
