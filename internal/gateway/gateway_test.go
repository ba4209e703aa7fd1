package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chatty/internal/config"
)

type recordedRequest struct {
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// newSSEBackend serves /v1/completions by streaming the given tokens as SSE
// frames, plus a healthy /v1/models.
func newSSEBackend(t *testing.T, tokens []string, extraFrames []string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []recordedRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range extraFrames {
			fmt.Fprintf(w, "%s\n", frame)
		}
		for _, tok := range tokens {
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]string{{"text": tok}},
			})
			fmt.Fprintf(w, "data: %s\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &requests
}

func testBackendConfig(url string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL:              url,
		RequestTimeoutMS:     5000,
		ReconnectIntervalMS:  50,
		MaxReconnectAttempts: 2,
		RequestParams:        map[string]any{"temperature": 0.7},
	}
}

func TestGatewayStreamsTokensAndResponse(t *testing.T) {
	srv, requests := newSSEBackend(t, []string{"Hel", "lo", "!"}, nil)

	var mu sync.Mutex
	var tokens []string
	responseCh := make(chan string, 1)

	g := New(testBackendConfig(srv.URL), Callbacks{
		OnToken: func(channelID, token string) {
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
		},
		OnResponse: func(channelID, full string) {
			responseCh <- channelID + "|" + full
		},
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	if depth := g.Submit("twitch:chan", "say hello"); depth != 1 {
		t.Fatalf("Submit depth = %d, want 1", depth)
	}

	select {
	case got := <-responseCh:
		if got != "twitch:chan|Hello!" {
			t.Fatalf("response = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	mu.Lock()
	n := len(tokens)
	mu.Unlock()
	if n != 3 {
		t.Fatalf("received %d tokens, want 3", n)
	}

	if len(*requests) != 1 || (*requests)[0].Prompt != "say hello" || !(*requests)[0].Stream {
		t.Fatalf("backend saw requests %+v", *requests)
	}
}

func TestGatewaySkipsMalformedFrames(t *testing.T) {
	srv, _ := newSSEBackend(t, []string{"ok"}, []string{"garbage line", "data: {not json"})

	responseCh := make(chan string, 1)
	g := New(testBackendConfig(srv.URL), Callbacks{
		OnResponse: func(_, full string) { responseCh <- full },
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)
	g.Submit("c", "p")

	select {
	case got := <-responseCh:
		if got != "ok" {
			t.Fatalf("response = %q, want %q", got, "ok")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestGatewaySerializesRequests(t *testing.T) {
	srv, requests := newSSEBackend(t, []string{"x"}, nil)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 2)
	g := New(testBackendConfig(srv.URL), Callbacks{
		OnResponse: func(channelID, _ string) {
			mu.Lock()
			order = append(order, channelID)
			mu.Unlock()
			done <- struct{}{}
		},
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	g.Submit("a", "first")
	g.Submit("b", "second")

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("completion order = %v, want [a b]", order)
	}
	if len(*requests) != 2 {
		t.Fatalf("backend saw %d requests, want 2", len(*requests))
	}
}

func TestGatewayDropsStaleRequests(t *testing.T) {
	srv, requests := newSSEBackend(t, []string{"x"}, nil)
	cfg := testBackendConfig(srv.URL)
	cfg.RequestTimeoutMS = 1

	responseCh := make(chan string, 1)
	g := New(cfg, Callbacks{
		OnResponse: func(_, full string) { responseCh <- full },
	}, slog.Default())

	// Enqueue before Run so the request ages past the timeout.
	g.Submit("c", "stale")
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	select {
	case got := <-responseCh:
		if got != "" {
			t.Fatalf("stale request produced response %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stale request never completed")
	}
	if len(*requests) != 0 {
		t.Fatalf("stale request reached the backend")
	}
}

func TestGatewayHealthy(t *testing.T) {
	srv, _ := newSSEBackend(t, nil, nil)
	g := New(testBackendConfig(srv.URL), Callbacks{}, slog.Default())

	if err := g.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy: %v", err)
	}

	bad := New(testBackendConfig("http://127.0.0.1:1"), Callbacks{}, slog.Default())
	if err := bad.Healthy(context.Background()); err == nil {
		t.Fatal("Healthy against dead backend succeeded")
	}
}
