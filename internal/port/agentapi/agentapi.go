// Package agentapi defines the port for the remote agent/task backend.
package agentapi

import (
	"context"

	"github.com/Strob0t/AgentDeck/internal/domain/agent"
)

// Backend is the remote API the agent container calls before mutating its
// local state.
type Backend interface {
	// CreateAgent registers a new agent and returns its server-assigned id.
	CreateAgent(ctx context.Context, name string, kind agent.Kind) (string, error)

	// UpdateStatus changes an agent's status on the remote side.
	UpdateStatus(ctx context.Context, id string, status agent.Status) error

	// CreateTask queues a task for an agent and returns the task id.
	CreateTask(ctx context.Context, agentID, description string) (string, error)

	// StoreMemory appends a memory entry for an agent.
	StoreMemory(ctx context.Context, agentID, content string) error
}
