// Package ws implements the WebSocket adapter that pushes live dashboard
// state (agents, metrics, toasts, session changes) to connected clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SnapshotFunc returns the messages a client receives right after it
// connects, so it does not wait for the next change to render.
type SnapshotFunc func(ctx context.Context) []Message

// conn wraps a single WebSocket connection. Until the snapshot is written
// the connection is not ready and broadcasts queue in pending.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc

	mu      sync.Mutex
	ready   bool
	pending []Message
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*conn]struct{}
	originPatterns []string
	snapshot       SnapshotFunc
}

// NewHub creates a new WebSocket hub. allowedOrigin is the dashboard origin
// (e.g. "http://localhost:5173"); empty or "*" accepts any origin. snapshot
// may be nil.
func NewHub(allowedOrigin string, snapshot SnapshotFunc) *Hub {
	h := &Hub{
		conns:    make(map[*conn]struct{}),
		snapshot: snapshot,
	}
	if allowedOrigin != "" && allowedOrigin != "*" {
		if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
			h.originPatterns = []string{u.Host}
		}
	}
	return h
}

// HandleWS upgrades the request to a WebSocket and registers the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if len(h.originPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The request context ends when the handler returns; the connection
	// outlives it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel}

	// Register before taking the snapshot so no change between the two is lost.
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	if err := h.sendSnapshot(ctx, c); err != nil {
		slog.Debug("websocket snapshot failed", "error", err)
		h.remove(c)
		_ = ws.Close(websocket.StatusInternalError, "snapshot failed")
		return
	}

	slog.Info("websocket connected", "remote", r.RemoteAddr)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// sendSnapshot writes the snapshot, then the broadcasts queued meanwhile,
// and marks c ready.
func (h *Hub) sendSnapshot(ctx context.Context, c *conn) error {
	if h.snapshot != nil {
		for _, msg := range h.snapshot(ctx) {
			if err := h.write(ctx, c, msg); err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range c.pending {
		if err := h.write(ctx, c, msg); err != nil {
			return err
		}
	}
	c.pending = nil
	c.ready = true
	return nil
}

// Broadcast sends a message to all connected clients. Clients that fail a
// write are dropped.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		if !c.ready {
			c.pending = append(c.pending, msg)
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()
		if err := h.write(ctx, c, msg); err != nil {
			slog.Debug("websocket write failed", "error", err)
			h.remove(c)
		}
	}
}

func (h *Hub) write(ctx context.Context, c *conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
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
