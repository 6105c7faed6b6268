// Package ws implements the WebSocket adapter delivering request events to
// connected human clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection with its subscription filter.
type conn struct {
	ws        *websocket.Conn
	cancel    context.CancelFunc
	projectID string // only deliver events for this project when set
	agentID   string // only deliver events for this agent when set
}

// Hub manages all active WebSocket connections and fans events out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the connection. Optional project_id and agent_id query
// parameters scope which events the client receives.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		ws:        ws,
		cancel:    cancel,
		projectID: r.URL.Query().Get("project_id"),
		agentID:   r.URL.Query().Get("agent_id"),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected",
		"remote", r.RemoteAddr,
		"project_id", c.projectID,
		"agent_id", c.agentID,
	)

	// Read loop (to detect disconnects and consume pings). Blocks until the
	// peer goes away; returning would cancel the request context under us.
	defer func() {
		h.remove(c)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}

// broadcast sends a message to every connection whose filter matches.
func (h *Hub) broadcast(ctx context.Context, msg Message, projectID, agentID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.projectID != "" && c.projectID != projectID {
			continue
		}
		if c.agentID != "" && c.agentID != agentID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
