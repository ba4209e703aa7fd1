package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Chatty. It is loaded and validated
// once at startup; components receive the sub-structs they need by value
// and never mutate them at runtime.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Backend   BackendConfig   `yaml:"backend"`
	Messages  MessagesConfig  `yaml:"messages"`
	Sanitizer SanitizerConfig `yaml:"sanitizer"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Drawing   DrawingConfig   `yaml:"stable-diffusion"`
	Voice     VoiceConfig     `yaml:"voice"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel    string `yaml:"log-level"`
	PersonaFile string `yaml:"persona-file"`
	BusBuffer   int    `yaml:"bus-buffer"`
}

// BackendConfig describes the streaming text-generation backend
// (an oobabooga-compatible completions API).
type BackendConfig struct {
	BaseURL              string         `yaml:"base-url"`
	RequestParams        map[string]any `yaml:"request-params"`
	ReconnectIntervalMS  int            `yaml:"reconnect-interval-ms"`
	MaxReconnectAttempts int            `yaml:"max-reconnect-attempts"`
	RequestTimeoutMS     int            `yaml:"request-timeout-ms"`
}

func (c BackendConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMS) * time.Millisecond
}

func (c BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// MessagesConfig drives prompt construction, batching, response chunking
// and the per-channel response policy.
type MessagesConfig struct {
	MaxTokens int `yaml:"max-tokens"`

	// Prompt preamble pieces. {NAME}, {DATE}, {TIME} and {DELIMITER}
	// placeholders are resolved when the budgeter is built.
	Prompt              string `yaml:"prompt"`
	SafetyPrompt        string `yaml:"safety-prompt"`
	LimitationsPrompt   string `yaml:"limitations-prompt"`
	DatetimePrompt      string `yaml:"datetime-prompt"`
	IncludeDatetime     bool   `yaml:"include-datetime"`
	DrawAvailablePrompt string `yaml:"draw-available-prompt"`
	PersonaPrompt       string `yaml:"persona-prompt"`
	ChatHistoryPrefix   string `yaml:"chat-history-prefix"`
	NewChatPrefix       string `yaml:"new-chat-prefix"`
	ChatPrefix          string `yaml:"chat-prefix"`
	ChatDelimiter       string `yaml:"chat-delimiter"`
	ResponsePrefix      string `yaml:"prompt-response-prefix"`

	// Streaming segmentation.
	ChunkDelimiters []string `yaml:"chunk-delimiters"`
	IllegalTokens   []string `yaml:"illegal-tokens"`

	// Batching and history.
	ResponseIntervalMS        int  `yaml:"response-interval-ms"`
	ResponseExpireMS          int  `yaml:"response-expire-ms"`
	ChatHistoryLength         int  `yaml:"chat-history-length"`
	ChatMaxBatchSize          int  `yaml:"chat-max-batch-size"`
	IncludeResponsesInHistory bool `yaml:"include-responses-in-history"`
	PruneThreshold            int  `yaml:"prune-threshold"`

	// Response policy.
	WakeWords         []string `yaml:"wake-words"`
	RequireWakeWord   bool     `yaml:"require-wake-word"`
	SelectiveResponse bool     `yaml:"selective-response"`
	BaseChance        float64  `yaml:"base-chance"`
	MaxChance         float64  `yaml:"max-chance"`
	ChanceRampUpMS    int      `yaml:"chance-ramp-up-ms"`

	Repetition RepetitionConfig `yaml:"repetition"`
}

func (c MessagesConfig) ResponseInterval() time.Duration {
	return time.Duration(c.ResponseIntervalMS) * time.Millisecond
}

func (c MessagesConfig) ResponseExpire() time.Duration {
	return time.Duration(c.ResponseExpireMS) * time.Millisecond
}

func (c MessagesConfig) ChanceRampUp() time.Duration {
	return time.Duration(c.ChanceRampUpMS) * time.Millisecond
}

// RepetitionConfig tunes the near-duplicate response guard.
// ThrottleScope controls the history escape valve applied after a blocked
// response: "off", "next-turn" (drop history for exactly one flush) or
// "persistent" (drop history until a response passes the guard).
type RepetitionConfig struct {
	Threshold     float64 `yaml:"threshold"`
	Lookback      int     `yaml:"lookback"`
	Fallback      string  `yaml:"fallback"`
	ThrottleScope string  `yaml:"throttle-scope"`
}

type SanitizerConfig struct {
	RejectProfanity      bool     `yaml:"reject-profanity"`
	Wordlist             []string `yaml:"wordlist"`
	ProfanityReplacement string   `yaml:"profanity-replacement"`
	RemoveActions        bool     `yaml:"remove-actions"`
}

type ChannelsConfig struct {
	Twitch    TwitchConfig    `yaml:"twitch"`
	Discord   DiscordConfig   `yaml:"discord"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Slack     SlackConfig     `yaml:"slack"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type TwitchConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Username    string `yaml:"username"`
	Token       string `yaml:"token"`
	Channel     string `yaml:"channel"`
	ReplyInChat bool   `yaml:"reply-in-chat"`
}

type DiscordConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Token       string `yaml:"token"`
	ChannelID   string `yaml:"channel-id"`
	ReplyInChat bool   `yaml:"reply-in-chat"`
	SendTyping  bool   `yaml:"send-typing"`
	PostImages  bool   `yaml:"post-images"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot-token"`
	AppToken string `yaml:"app-token"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type DrawingConfig struct {
	Enabled            bool           `yaml:"enabled"`
	BaseURL            string         `yaml:"base-url"`
	Trigger            string         `yaml:"trigger"`
	NegativePrompt     string         `yaml:"negative-prompt"`
	RequestParams      map[string]any `yaml:"request-params"`
	CaptionAttachments bool           `yaml:"caption-attachments"`
	OutputLocation     string         `yaml:"output-location"`
	NextPromptLocation string         `yaml:"next-prompt-output-location"`
	NextPromptPrefix   string         `yaml:"next-prompt-output-prefix"`
}

type VoiceConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Provider           string `yaml:"provider"` // "openai" | "elevenlabs"
	APIBase            string `yaml:"api-base"`
	APIKey             string `yaml:"api-key"`
	Model              string `yaml:"model"`
	VoiceID            string `yaml:"voice-id"`
	StreamSpeech       bool   `yaml:"stream-speech"`
	BlockWhileSpeaking bool   `yaml:"block-while-speaking"`
	MaxSpeechMS        int    `yaml:"max-speech-ms"`
}

func (c VoiceConfig) MaxSpeechDuration() time.Duration {
	return time.Duration(c.MaxSpeechMS) * time.Millisecond
}

type OverlayConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ResponseFile string `yaml:"response-file"`
	PromptFile   string `yaml:"prompt-file"`
	ExpireMS     int    `yaml:"expire-ms"`
}

func (c OverlayConfig) Expire() time.Duration {
	return time.Duration(c.ExpireMS) * time.Millisecond
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db-path"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfigDir returns ~/.chatty.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatty"
	}
	return filepath.Join(home, ".chatty")
}

// DefaultConfigPath returns ~/.chatty/config.yml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yml")
}

// Load reads, parses and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes a config file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks cross-field constraints. Budget exhaustion against the
// persona preamble is checked separately when the prompt budgeter is built,
// since it depends on the persona file.
func (c *Config) Validate() error {
	if c.Messages.MaxTokens <= 0 {
		return fmt.Errorf("messages.max-tokens must be positive, got %d", c.Messages.MaxTokens)
	}
	if c.Messages.ChatDelimiter == "" {
		return fmt.Errorf("messages.chat-delimiter must not be empty")
	}
	if len(c.Messages.ChunkDelimiters) == 0 {
		return fmt.Errorf("messages.chunk-delimiters must not be empty")
	}
	if t := c.Messages.Repetition.Threshold; t < 0 || t > 1 {
		return fmt.Errorf("messages.repetition.threshold must be in [0,1], got %v", t)
	}
	if c.Messages.Repetition.Lookback < 0 {
		return fmt.Errorf("messages.repetition.lookback must not be negative")
	}
	switch c.Messages.Repetition.ThrottleScope {
	case "off", "next-turn", "persistent":
	default:
		return fmt.Errorf("messages.repetition.throttle-scope must be off, next-turn or persistent, got %q",
			c.Messages.Repetition.ThrottleScope)
	}
	if c.Messages.SelectiveResponse {
		b, m := c.Messages.BaseChance, c.Messages.MaxChance
		if b < 0 || m > 1 || b > m {
			return fmt.Errorf("response chance must satisfy 0 <= base-chance <= max-chance <= 1, got base=%v max=%v", b, m)
		}
		if c.Messages.ChanceRampUpMS <= 0 {
			return fmt.Errorf("messages.chance-ramp-up-ms must be positive when selective-response is enabled")
		}
	}
	if c.Messages.ResponseIntervalMS <= 0 {
		return fmt.Errorf("messages.response-interval-ms must be positive")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base-url must not be empty")
	}
	if c.Backend.RequestTimeoutMS <= 0 {
		return fmt.Errorf("backend.request-timeout-ms must be positive")
	}
	if c.Drawing.Enabled && c.Drawing.Trigger == "" {
		return fmt.Errorf("stable-diffusion.trigger must be set when drawing is enabled")
	}
	if c.Overlay.Enabled && c.Overlay.ResponseFile == "" {
		return fmt.Errorf("overlay.response-file must be set when overlay is enabled")
	}
	if c.Store.Enabled && c.Store.DBPath == "" {
		return fmt.Errorf("store.db-path must be set when store is enabled")
	}
	return nil
}
