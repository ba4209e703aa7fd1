// Package gateway serializes generation requests against the single
// streaming text-generation backend connection. Exactly one request is in
// flight at a time; the rest wait in a FIFO queue tagged with their channel
// so streamed tokens can be attributed to the right coordinator.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatty/internal/config"
	"chatty/internal/metrics"
)

// State is the backend-connection lifecycle.
type State int

const (
	// Idle means no request is in flight.
	Idle State = iota
	// Sending means a request has been dispatched and the stream has not
	// started yet.
	Sending
	// StreamingTokens means tokens are arriving for the in-flight request.
	StreamingTokens
)

// Callbacks deliver demultiplexed stream events to the dispatcher. OnToken
// fires per streamed fragment; OnResponse fires once per turn with the
// aggregate text (empty on a failed or dropped turn, so the owning
// coordinator is always released).
type Callbacks struct {
	OnToken    func(channelID, token string)
	OnResponse func(channelID, fullText string)
}

type request struct {
	id         string
	channelID  string
	prompt     string
	enqueuedAt time.Time
}

// Gateway owns the backend connection. Submit never fails: while the
// backend is unreachable, requests queue and are drained once the bounded
// reconnect loop restores the connection.
type Gateway struct {
	cfg    config.BackendConfig
	client *http.Client
	logger *slog.Logger
	cb     Callbacks

	mu    sync.Mutex
	queue []request
	state State

	wake chan struct{}
}

// New creates a Gateway. Run must be started for requests to be processed.
func New(cfg config.BackendConfig, cb Callbacks, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
		cb:     cb,
		wake:   make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Submit enqueues a prompt for the given channel and returns the queue
// depth after the enqueue. The decision is synchronous; dispatch happens on
// the gateway's own goroutine.
func (g *Gateway) Submit(channelID, prompt string) int {
	req := request{
		id:         uuid.NewString(),
		channelID:  channelID,
		prompt:     prompt,
		enqueuedAt: time.Now(),
	}

	g.mu.Lock()
	g.queue = append(g.queue, req)
	depth := len(g.queue)
	g.mu.Unlock()

	metrics.QueueDepth.Set(int64(depth))
	g.logger.Debug("generation request queued", "request", req.id, "channel", channelID, "depth", depth)

	select {
	case g.wake <- struct{}{}:
	default:
	}
	return depth
}

// StopGeneration asks the backend to stop the current generation. It is
// best-effort and fire-and-forget; the critical path never waits on it.
func (g *Gateway) StopGeneration() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			g.cfg.BaseURL+"/v1/internal/stop-generation", nil)
		if err != nil {
			return
		}
		resp, err := g.client.Do(req)
		if err != nil {
			g.logger.Warn("stop-generation call failed", "err", err)
			return
		}
		resp.Body.Close()
	}()
}

// Run processes the queue until ctx is cancelled. One request at a time:
// the next queued request is dispatched only after the current turn's
// stream end.
func (g *Gateway) Run(ctx context.Context) {
	g.logger.Info("generation gateway started", "backend", g.cfg.BaseURL)
	for {
		req, ok := g.next()
		if !ok {
			select {
			case <-ctx.Done():
				g.logger.Info("generation gateway stopping")
				return
			case <-g.wake:
				continue
			}
		}

		if age := time.Since(req.enqueuedAt); age > g.cfg.RequestTimeout() {
			g.logger.Warn("dropping stale generation request",
				"request", req.id, "channel", req.channelID, "age", age)
			g.finish(req, "")
			continue
		}

		g.setState(Sending)
		full, err := g.streamOnce(ctx, req)
		g.finish(req, full)
		if err != nil {
			g.logger.Error("generation turn failed", "request", req.id, "err", err)
			if !g.reconnect(ctx) {
				return
			}
		}
	}
}

func (g *Gateway) next() (request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return request{}, false
	}
	req := g.queue[0]
	g.queue = g.queue[1:]
	metrics.QueueDepth.Set(int64(len(g.queue)))
	return req, true
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// finish releases the in-flight slot. A failed turn completes with an
// empty response so the queue is never permanently stuck.
func (g *Gateway) finish(req request, full string) {
	g.setState(Idle)
	if g.cb.OnResponse != nil {
		g.cb.OnResponse(req.channelID, full)
	}
}

// streamOnce sends one prompt and consumes its SSE token stream, returning
// the aggregate text. Malformed frames are logged and skipped.
func (g *Gateway) streamOnce(ctx context.Context, req request) (string, error) {
	turnCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout())
	defer cancel()

	body := map[string]any{
		"prompt": req.prompt,
		"stream": true,
	}
	for k, v := range g.cfg.RequestParams {
		body[k] = v
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(turnCtx, http.MethodPost,
		g.cfg.BaseURL+"/v1/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	g.setState(StreamingTokens)
	metrics.GenerationsTotal.Inc()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			g.logger.Warn("skipping malformed backend frame", "line", line)
			continue
		}
		if payload == "[DONE]" {
			break
		}
		var chunk completionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			g.logger.Warn("skipping undecodable backend frame", "err", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Text
		if token == "" {
			continue
		}
		full.WriteString(token)
		if g.cb.OnToken != nil {
			g.cb.OnToken(req.channelID, token)
		}
	}
	if err := scanner.Err(); err != nil {
		// Keep the partial text; the turn still completes.
		g.logger.Warn("backend stream ended with error", "request", req.id, "err", err)
	}

	metrics.GenerationLatency.Observe(time.Since(started).Seconds())
	g.logger.Debug("generation turn complete",
		"request", req.id, "channel", req.channelID, "chars", full.Len())
	return full.String(), nil
}

type completionChunk struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Healthy probes the backend's model listing endpoint.
func (g *Gateway) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

// reconnect retries the health probe at a fixed, bounded interval. Beyond
// the configured attempt cap it keeps probing at the same interval but
// logs at error level, so a long outage never turns into a retry storm.
// Returns false only when ctx is cancelled.
func (g *Gateway) reconnect(ctx context.Context) bool {
	interval := g.cfg.ReconnectInterval()
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for attempt := 1; ; attempt++ {
		if err := g.Healthy(ctx); err == nil {
			g.logger.Info("reconnected to backend", "attempts", attempt)
			return true
		} else if attempt <= g.cfg.MaxReconnectAttempts {
			g.logger.Warn("backend unreachable, retrying", "attempt", attempt, "err", err)
		} else {
			g.logger.Error("backend still unreachable", "attempt", attempt, "err", err)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
