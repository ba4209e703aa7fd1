package draw

import (
	"log/slog"
	"testing"

	"chatty/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(nil, config.DrawingConfig{Trigger: "draws"}, slog.Default())
}

func TestExtractPromptToSentenceEnd(t *testing.T) {
	m := newTestManager(t)

	prompt, ok := m.ExtractPrompt("Sure! *draws a red fox in the snow. Hope you like it!")
	if !ok {
		t.Fatal("trigger not detected")
	}
	if prompt != "a red fox in the snow" {
		t.Fatalf("prompt = %q", prompt)
	}
}

func TestExtractPromptCaseInsensitive(t *testing.T) {
	m := newTestManager(t)
	prompt, ok := m.ExtractPrompt("She DRAWS a castle at dawn")
	if !ok || prompt != "a castle at dawn" {
		t.Fatalf("prompt = %q, ok = %v", prompt, ok)
	}
}

func TestExtractPromptNoTrigger(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.ExtractPrompt("just a normal sentence about painting"); ok {
		t.Fatal("false trigger")
	}
}

func TestExtractPromptEmptyAfterTrigger(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.ExtractPrompt("and then she draws."); ok {
		t.Fatal("empty prompt accepted")
	}
}

func TestRequestSingleFlight(t *testing.T) {
	m := newTestManager(t)
	m.busy.Store(true)

	if m.Request("anything", func([]byte, error) {}) {
		t.Fatal("second render accepted while busy")
	}
	if !m.Busy() {
		t.Fatal("busy flag lost")
	}
}
