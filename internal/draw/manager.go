package draw

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unicode"

	"chatty/internal/config"
	"chatty/internal/metrics"
)

// Manager detects drawing intent in response text and runs at most one
// render at a time. Requests made while a render is in flight are refused,
// not queued: the agent mentioning drawing twice in one breath should not
// produce two images.
type Manager struct {
	client  *Client
	cfg     config.DrawingConfig
	trigger string
	logger  *slog.Logger

	busy atomic.Bool
}

// NewManager creates a drawing manager around client.
func NewManager(client *Client, cfg config.DrawingConfig, logger *slog.Logger) *Manager {
	return &Manager{
		client:  client,
		cfg:     cfg,
		trigger: strings.ToLower(cfg.Trigger),
		logger:  logger,
	}
}

// Busy reports whether a render is in flight.
func (m *Manager) Busy() bool { return m.busy.Load() }

// CaptionsEnabled reports whether inbound image attachments should be
// captioned through the drawing backend.
func (m *Manager) CaptionsEnabled() bool { return m.cfg.CaptionAttachments }

// ExtractPrompt scans text for the trigger phrase and, if present, returns
// the drawing prompt: everything after the trigger up to the end of that
// sentence.
func (m *Manager) ExtractPrompt(text string) (string, bool) {
	if m.trigger == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	idx := strings.Index(lower, m.trigger)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(m.trigger):]
	if end := strings.IndexFunc(rest, isSentenceEnd); end >= 0 {
		rest = rest[:end]
	}
	prompt := strings.Trim(rest, " ,:;")
	if prompt == "" {
		return "", false
	}
	return prompt, true
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return unicode.Is(unicode.Po, r) && r != ',' && r != ';' && r != ':'
}

// Request starts a render for prompt and reports whether it was accepted.
// onDone is called from the render goroutine with the PNG bytes, or with a
// nil image on failure.
func (m *Manager) Request(prompt string, onDone func(image []byte, err error)) bool {
	if !m.busy.CompareAndSwap(false, true) {
		m.logger.Debug("drawing request refused, render in flight", "prompt", prompt)
		return false
	}
	m.writeNextPrompt(prompt)
	go func() {
		defer m.busy.Store(false)
		m.logger.Info("drawing", "prompt", prompt)
		img, err := m.client.TextToImage(context.Background(), prompt)
		if err != nil {
			m.logger.Error("drawing failed", "prompt", prompt, "err", err)
		} else {
			metrics.DrawingsTotal.Inc()
			m.saveOutput(img)
		}
		onDone(img, err)
	}()
	return true
}

// saveOutput mirrors the rendered image to the configured output file,
// replacing the previous render.
func (m *Manager) saveOutput(img []byte) {
	if m.cfg.OutputLocation == "" {
		return
	}
	if dir := filepath.Dir(m.cfg.OutputLocation); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			m.logger.Warn("drawing output directory not writable", "dir", dir, "err", err)
			return
		}
	}
	if err := os.WriteFile(m.cfg.OutputLocation, img, 0o644); err != nil {
		m.logger.Warn("drawing output write failed", "file", m.cfg.OutputLocation, "err", err)
	}
}

// Caption describes an inbound image attachment through the backend's
// interrogate endpoint.
func (m *Manager) Caption(ctx context.Context, image []byte) (string, error) {
	return m.client.Interrogate(ctx, image)
}

// writeNextPrompt mirrors the prompt to the overlay file, replacing the
// previous one.
func (m *Manager) writeNextPrompt(prompt string) {
	if m.cfg.NextPromptLocation == "" {
		return
	}
	content := m.cfg.NextPromptPrefix + prompt
	if err := os.WriteFile(m.cfg.NextPromptLocation, []byte(content), 0o644); err != nil {
		m.logger.Warn("next-prompt write failed", "file", m.cfg.NextPromptLocation, "err", err)
	}
}
