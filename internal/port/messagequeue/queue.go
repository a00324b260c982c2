// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Queue is the port interface for publishing dashboard events to a broker.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// SubjectPrefix is prepended to every broadcast event type.
const SubjectPrefix = "agentdeck.events"

// Subject constants for events published by AgentDeck.
const (
	SubjectAgentUpdated   = SubjectPrefix + ".agent.updated"
	SubjectAgentsSnapshot = SubjectPrefix + ".agents.snapshot"
	SubjectMetrics        = SubjectPrefix + ".metrics.updated"
	SubjectToast          = SubjectPrefix + ".toast"
	SubjectSession        = SubjectPrefix + ".auth.session"
)

// SubjectFor returns the subject an event type is published on.
func SubjectFor(eventType string) string {
	return SubjectPrefix + "." + eventType
}
