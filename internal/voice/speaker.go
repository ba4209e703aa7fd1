// Package voice queues response chunks for text-to-speech playback. Chunks
// are spoken in order; a watchdog caps how long a single utterance may run
// so a backend hang never wedges the speech queue.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatty/internal/config"
	"chatty/internal/metrics"
)

// Player consumes synthesized audio. The default player discards it, which
// is enough for headless runs; a real deployment plugs in an audio sink.
type Player interface {
	Play(ctx context.Context, audio io.Reader) error
}

type discardPlayer struct{}

func (discardPlayer) Play(_ context.Context, audio io.Reader) error {
	_, err := io.Copy(io.Discard, audio)
	return err
}

// Speaker synthesizes queued text chunks one at a time.
type Speaker struct {
	cfg    config.VoiceConfig
	client *http.Client
	player Player
	logger *slog.Logger

	mu       sync.Mutex
	queue    []string
	speaking bool
	wake     chan struct{}
}

// New creates a Speaker. A nil player discards audio after synthesis.
func New(cfg config.VoiceConfig, player Player, logger *slog.Logger) *Speaker {
	if player == nil {
		player = discardPlayer{}
	}
	return &Speaker{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		player: player,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Speak enqueues a chunk for playback.
func (s *Speaker) Speak(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, text)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Busy reports whether anything is speaking or queued. Coordinators use
// this to hold the next flush while the agent is mid-utterance.
func (s *Speaker) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking || len(s.queue) > 0
}

// Run drains the speech queue until ctx is cancelled.
func (s *Speaker) Run(ctx context.Context) {
	for {
		text, ok := s.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		if err := s.speakOne(ctx, text); err != nil {
			s.logger.Warn("speech failed", "err", err)
		}
		s.mu.Lock()
		s.speaking = false
		s.mu.Unlock()
	}
}

func (s *Speaker) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	text := s.queue[0]
	s.queue = s.queue[1:]
	s.speaking = true
	return text, true
}

// speakOne synthesizes and plays a single chunk under the max-speech
// watchdog.
func (s *Speaker) speakOne(ctx context.Context, text string) error {
	if max := s.cfg.MaxSpeechDuration(); max > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	started := time.Now()
	audio, err := s.synthesize(ctx, text)
	if err != nil {
		return err
	}
	defer audio.Close()
	metrics.SpeechLatency.Observe(time.Since(started).Seconds())

	return s.player.Play(ctx, audio)
}

func (s *Speaker) synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	switch s.cfg.Provider {
	case "", "openai":
		return s.synthesizeOpenAI(ctx, text)
	case "elevenlabs":
		return s.synthesizeElevenLabs(ctx, text)
	default:
		return nil, fmt.Errorf("unsupported TTS provider: %s", s.cfg.Provider)
	}
}

func (s *Speaker) synthesizeOpenAI(ctx context.Context, text string) (io.ReadCloser, error) {
	base := s.cfg.APIBase
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := s.cfg.Model
	if model == "" {
		model = "tts-1"
	}
	voice := s.cfg.VoiceID
	if voice == "" {
		voice = "alloy"
	}
	body, err := json.Marshal(map[string]string{
		"model": model,
		"input": text,
		"voice": voice,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	return s.do(req)
}

func (s *Speaker) synthesizeElevenLabs(ctx context.Context, text string) (io.ReadCloser, error) {
	voiceID := s.cfg.VoiceID
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs requires voice-id")
	}
	body, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": "eleven_monolingual_v1",
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s", voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	return s.do(req)
}

func (s *Speaker) do(req *http.Request) (io.ReadCloser, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS API request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("TTS API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return resp.Body, nil
}
