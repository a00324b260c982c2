package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/AgentDeck/internal/domain/agent"
	"github.com/Strob0t/AgentDeck/internal/port/agentapi"
	"github.com/Strob0t/AgentDeck/internal/port/broadcast"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ broadcast.Broadcaster = (*mockBroadcaster)(nil)
	_ agentapi.Backend      = (*mockBackend)(nil)
)

type broadcastRecord struct {
	eventType string
	payload   any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, broadcastRecord{eventType, payload})
}

func (m *mockBroadcaster) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

// mockBackend records calls and fails on demand.
type mockBackend struct {
	mu          sync.Mutex
	created     []string
	statusCalls []agent.Status
	tasks       []string
	memories    []string

	createErr error
	memoryErr error
	// statusErr, when set, is consulted with the 1-based call number.
	statusErr func(call int, status agent.Status) error
}

func (m *mockBackend) CreateAgent(_ context.Context, name string, _ agent.Kind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.created = append(m.created, name)
	return fmt.Sprintf("srv-%d", len(m.created)), nil
}

func (m *mockBackend) UpdateStatus(_ context.Context, _ string, status agent.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, status)
	if m.statusErr != nil {
		return m.statusErr(len(m.statusCalls), status)
	}
	return nil
}

func (m *mockBackend) CreateTask(_ context.Context, agentID, description string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, agentID+":"+description)
	return fmt.Sprintf("task-%d", len(m.tasks)), nil
}

func (m *mockBackend) StoreMemory(_ context.Context, agentID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memoryErr != nil {
		return m.memoryErr
	}
	m.memories = append(m.memories, agentID+":"+content)
	return nil
}

func (m *mockBackend) statusCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statusCalls)
}
