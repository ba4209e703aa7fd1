package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatty/internal/config"
	"chatty/internal/domain"
)

// WSMessage is the JSON protocol spoken on the local WebSocket API.
// Inbound frames carry type "message"; outbound frames are "message",
// "typing", "image" or "status". Images are base64-encoded PNG.
type WSMessage struct {
	Type      string `json:"type"`
	Author    string `json:"author,omitempty"`
	Text      string `json:"text,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Image     string `json:"image,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketAPI implements domain.Surface as a local WebSocket server, used
// by overlays and custom frontends.
type WebSocketAPI struct {
	cfg    config.WebSocketConfig
	bus    domain.MessageBus
	logger *slog.Logger
	server *http.Server

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn      *websocket.Conn
	channelID string
	mu        sync.Mutex
}

func (c *wsClient) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewWebSocketAPI creates the WebSocket surface.
func NewWebSocketAPI(cfg config.WebSocketConfig, logger *slog.Logger) *WebSocketAPI {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	return &WebSocketAPI{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

func (ws *WebSocketAPI) Name() string { return "websocket" }

// Start runs the WebSocket server until ctx is cancelled.
func (ws *WebSocketAPI) Start(ctx context.Context, bus domain.MessageBus) error {
	ws.bus = bus

	mux := http.NewServeMux()
	mux.HandleFunc(ws.cfg.Path, ws.handleUpgrade)
	ws.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", ws.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bus.OnOutbound("websocket", func(out domain.Outbound) {
		if !domain.OwnsChannel("websocket", out.ChannelID) {
			return
		}
		msg := WSMessage{Type: string(out.Kind), Text: out.Text, ChannelID: out.ChannelID}
		if out.Kind == domain.OutboundImage {
			msg.Image = base64.StdEncoding.EncodeToString(out.Image)
		}
		ws.broadcast(out.ChannelID, msg)
	})

	ws.logger.Info("websocket api starting", "port", ws.cfg.Port, "path", ws.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (ws *WebSocketAPI) Stop() error {
	if ws.server == nil {
		return nil
	}
	ws.closeAll()
	return ws.server.Close()
}

func (ws *WebSocketAPI) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	native := r.URL.Query().Get("channel")
	if native == "" {
		native = fmt.Sprintf("local-%d", time.Now().UnixNano())
	}
	client := &wsClient{conn: conn, channelID: domain.ChannelID("websocket", native)}

	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()
	ws.logger.Info("websocket client connected", "channel", client.channelID)

	client.send(WSMessage{Type: "status", Text: "connected", ChannelID: client.channelID})

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, client)
		ws.mu.Unlock()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "channel", client.channelID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("websocket read error", "err", err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			ws.logger.Warn("invalid websocket frame", "err", err)
			continue
		}
		if msg.Type != "message" || msg.Text == "" {
			continue
		}
		author := msg.Author
		if author == "" {
			author = "local"
		}
		ws.bus.Publish(domain.ChatMessage{
			Author:    author,
			Text:      msg.Text,
			Timestamp: time.Now(),
			ChannelID: client.channelID,
		})
	}
}

func (ws *WebSocketAPI) broadcast(channelID string, msg WSMessage) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for client := range ws.clients {
		if client.channelID == channelID {
			client.send(msg)
		}
	}
}

func (ws *WebSocketAPI) closeAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for client := range ws.clients {
		client.conn.Close()
		delete(ws.clients, client)
	}
}
