// Package mockapi implements the agent backend port in process. It simulates
// network latency and a random failure rate so the dashboard's error paths
// are exercised without a real task queue.
package mockapi

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentDeck/internal/domain"
	"github.com/Strob0t/AgentDeck/internal/domain/agent"
)

// Record is the backend's view of an agent instance.
type Record struct {
	ID        string
	Name      string
	Kind      agent.Kind
	Status    agent.Status
	CreatedAt time.Time
}

// Task is a queued unit of work for an agent.
type Task struct {
	ID          string
	AgentID     string
	Description string
	Status      string // "pending"
	CreatedAt   time.Time
}

// Memory is a stored memory entry for an agent.
type Memory struct {
	AgentID   string
	Content   string
	CreatedAt time.Time
}

// Backend is the simulated agent API.
type Backend struct {
	latency     time.Duration
	failureRate float64

	mu     sync.Mutex
	rng    *rand.Rand
	newID  func() string
	now    func() time.Time
	agents map[string]*Record
	tasks  []Task
	memory []Memory
}

// New creates a backend with the given per-call latency and failure rate in
// [0, 1] applied to status updates and memory writes.
func New(latency time.Duration, failureRate float64) *Backend {
	return &Backend{
		latency:     latency,
		failureRate: failureRate,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)), //nolint:gosec // simulation only
		newID:       uuid.NewString,
		now:         time.Now,
		agents:      make(map[string]*Record),
	}
}

// WithRand replaces the random source. Intended for tests.
func (b *Backend) WithRand(r *rand.Rand) *Backend {
	b.rng = r
	return b
}

// CreateAgent registers an agent. It never fails apart from cancellation.
func (b *Backend) CreateAgent(ctx context.Context, name string, kind agent.Kind) (string, error) {
	if err := b.delay(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.newID()
	b.agents[id] = &Record{ID: id, Name: name, Kind: kind, Status: agent.StatusStopped, CreatedAt: b.now()}
	return id, nil
}

// UpdateStatus changes an agent's status, failing at the configured rate.
// Ids the backend has never seen (e.g. seeded agents) are accepted.
func (b *Backend) UpdateStatus(ctx context.Context, id string, status agent.Status) error {
	if err := b.delay(ctx); err != nil {
		return err
	}
	if b.fail() {
		return fmt.Errorf("%w: failed to update status of agent %s", domain.ErrSimulatedFailure, id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.agents[id]; ok {
		rec.Status = status
	}
	return nil
}

// CreateTask queues a pending task for an agent.
func (b *Backend) CreateTask(ctx context.Context, agentID, description string) (string, error) {
	if err := b.delay(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t := Task{ID: b.newID(), AgentID: agentID, Description: description, Status: "pending", CreatedAt: b.now()}
	b.tasks = append(b.tasks, t)
	return t.ID, nil
}

// StoreMemory appends a memory entry, failing at the configured rate.
func (b *Backend) StoreMemory(ctx context.Context, agentID, content string) error {
	if err := b.delay(ctx); err != nil {
		return err
	}
	if b.fail() {
		return fmt.Errorf("%w: failed to store memory for agent %s", domain.ErrSimulatedFailure, agentID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memory = append(b.memory, Memory{AgentID: agentID, Content: content, CreatedAt: b.now()})
	return nil
}

// Agent returns the backend record for id.
func (b *Backend) Agent(id string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.agents[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Tasks returns the tasks queued for agentID.
func (b *Backend) Tasks(agentID string) []Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Task
	for _, t := range b.tasks {
		if t.AgentID == agentID {
			out = append(out, t)
		}
	}
	return out
}

// Memories returns the memory entries stored for agentID.
func (b *Backend) Memories(agentID string) []Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Memory
	for _, m := range b.memory {
		if m.AgentID == agentID {
			out = append(out, m)
		}
	}
	return out
}

func (b *Backend) fail() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64() < b.failureRate
}

func (b *Backend) delay(ctx context.Context) error {
	if b.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(b.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
