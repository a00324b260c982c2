package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/AgentDeck/internal/domain/agent"
)

// Event type constants for WebSocket messages.
const (
	EventAgentUpdated   = "agent.updated"
	EventAgentsSnapshot = "agents.snapshot"
	EventMetricsUpdated = "metrics.updated"
	EventToast          = "toast"
	EventAuthSession    = "auth.session"
)

// AgentsSnapshotEvent carries the full agent list and metrics. It is sent to
// every new connection and after each perturbation tick.
type AgentsSnapshotEvent struct {
	Agents  []agent.Agent `json:"agents"`
	Metrics agent.Metrics `json:"metrics"`
}

// AuthSessionEvent is broadcast when the session changes. Tokens are never
// sent over the socket.
type AuthSessionEvent struct {
	Event         string `json:"event"`
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	msg, err := NewMessage(eventType, payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	h.Broadcast(ctx, msg)
}

// NewMessage wraps a payload in the message envelope.
func NewMessage(eventType string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: eventType, Payload: json.RawMessage(data)}, nil
}
