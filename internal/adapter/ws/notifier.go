package ws

import (
	"context"

	"github.com/Strob0t/AgentDeck/internal/port/notifier"
)

// Notifier delivers toasts to every connected dashboard.
type Notifier struct {
	hub *Hub
}

// NewNotifier creates a toast notifier on top of the hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// Name implements notifier.Notifier.
func (n *Notifier) Name() string { return "ws" }

// Send broadcasts the notification as a toast event.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	n.hub.BroadcastEvent(ctx, EventToast, notification)
	return nil
}
