// Package notifier defines the notification port used for user-facing toasts.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a notifier that lacks its destination.
var ErrNotConfigured = errors.New("notifier not configured")

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   Level  `json:"level"`
	Source  string `json:"source"` // e.g. "auth.signin", "agent.restart"
}

// Notifier is the port interface for delivering notifications.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "ws", "log").
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
