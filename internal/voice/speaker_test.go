package voice

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"chatty/internal/config"
)

func newTestSpeaker() *Speaker {
	return New(config.VoiceConfig{Provider: "openai"}, nil, slog.Default())
}

func TestSpeakQueuesInOrder(t *testing.T) {
	s := newTestSpeaker()
	s.Speak("first")
	s.Speak("second")
	s.Speak("")

	if !s.Busy() {
		t.Fatal("not busy with queued chunks")
	}

	text, ok := s.next()
	if !ok || text != "first" {
		t.Fatalf("next = %q, %v", text, ok)
	}
	text, ok = s.next()
	if !ok || text != "second" {
		t.Fatalf("next = %q, %v", text, ok)
	}
	if _, ok := s.next(); ok {
		t.Fatal("empty text was queued")
	}
}

func TestBusyWhileSpeaking(t *testing.T) {
	s := newTestSpeaker()
	s.Speak("chunk")
	if _, ok := s.next(); !ok {
		t.Fatal("next returned nothing")
	}
	// Queue is drained but the utterance is still in flight.
	if !s.Busy() {
		t.Fatal("not busy mid-utterance")
	}
	s.mu.Lock()
	s.speaking = false
	s.mu.Unlock()
	if s.Busy() {
		t.Fatal("busy after utterance finished")
	}
}

func TestSynthesizeRejectsUnknownProvider(t *testing.T) {
	s := New(config.VoiceConfig{Provider: "festival"}, nil, slog.Default())
	_, err := s.synthesize(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscardPlayerDrains(t *testing.T) {
	if err := (discardPlayer{}).Play(context.Background(), strings.NewReader("audio")); err != nil {
		t.Fatalf("err = %v", err)
	}
}
