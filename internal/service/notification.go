// Package service contains application services.
package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/AgentDeck/internal/port/notifier"
)

// Toast titles per level, as shown by the dashboard.
var toastTitles = map[notifier.Level]string{
	notifier.LevelSuccess: "Success",
	notifier.LevelError:   "Error",
	notifier.LevelInfo:    "Info",
}

// NotificationService dispatches toasts to all registered notifiers.
type NotificationService struct {
	notifiers []notifier.Notifier
	levels    map[string]map[notifier.Level]bool // notifier name -> accepted levels
}

// NewNotificationService creates a NotificationService with the given notifiers.
func NewNotificationService(notifiers ...notifier.Notifier) *NotificationService {
	return &NotificationService{
		notifiers: notifiers,
		levels:    make(map[string]map[notifier.Level]bool),
	}
}

// Add registers a notifier. If levels is non-empty the notifier only
// receives toasts of those levels.
func (s *NotificationService) Add(n notifier.Notifier, levels ...notifier.Level) {
	s.notifiers = append(s.notifiers, n)
	if len(levels) == 0 {
		return
	}
	accepted := make(map[notifier.Level]bool, len(levels))
	for _, l := range levels {
		accepted[l] = true
	}
	s.levels[n.Name()] = accepted
}

// Notify sends a notification to all registered notifiers.
// Errors are logged but do not interrupt delivery to other notifiers.
// A nil service drops the notification.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	if s == nil {
		return
	}
	if n.Title == "" {
		n.Title = toastTitles[n.Level]
	}
	for _, provider := range s.notifiers {
		if accepted, ok := s.levels[provider.Name()]; ok && !accepted[n.Level] {
			continue
		}
		if err := provider.Send(ctx, n); err != nil {
			slog.Warn("notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			continue
		}
		slog.Debug("notification sent", "provider", provider.Name(), "title", n.Title)
	}
}

// Success shows a success toast.
func (s *NotificationService) Success(ctx context.Context, source, message string) {
	s.Notify(ctx, notifier.Notification{Level: notifier.LevelSuccess, Source: source, Message: message})
}

// Error shows an error toast.
func (s *NotificationService) Error(ctx context.Context, source, message string) {
	s.Notify(ctx, notifier.Notification{Level: notifier.LevelError, Source: source, Message: message})
}

// Info shows an informational toast.
func (s *NotificationService) Info(ctx context.Context, source, message string) {
	s.Notify(ctx, notifier.Notification{Level: notifier.LevelInfo, Source: source, Message: message})
}

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}
