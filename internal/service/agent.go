package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	adotel "github.com/Strob0t/AgentDeck/internal/adapter/otel"
	"github.com/Strob0t/AgentDeck/internal/adapter/ws"
	"github.com/Strob0t/AgentDeck/internal/config"
	"github.com/Strob0t/AgentDeck/internal/domain"
	"github.com/Strob0t/AgentDeck/internal/domain/agent"
	"github.com/Strob0t/AgentDeck/internal/port/agentapi"
	"github.com/Strob0t/AgentDeck/internal/port/broadcast"
)

const (
	// perturbSpread bounds the random memory/cpu delta per tick to [-5, +5].
	perturbSpread = 5.0
	// progressStep bounds the random progress delta per tick to [0, +5].
	progressStep = 5.0
)

// ContainerState is the loading/error status of a state container.
type ContainerState struct {
	Initialized bool   `json:"initialized"`
	Loading     bool   `json:"loading"`
	Error       string `json:"error,omitempty"`
}

// AgentService owns the agent list and fleet metrics. Mutations call the
// agent backend first and only touch local state once the backend agrees.
type AgentService struct {
	api     agentapi.Backend
	hub     broadcast.Broadcaster
	toasts  *NotificationService
	metrics *adotel.Metrics
	sim     config.Simulation

	rngMu sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.RWMutex
	agents      []agent.Agent
	fleet       agent.Metrics
	initialized bool
	inFlight    int
	lastErr     string
	stopLoop    context.CancelFunc
	loopDone    chan struct{}

	restarts singleflight.Group
}

// NewAgentService creates an AgentService. Nothing runs until Initialize.
func NewAgentService(api agentapi.Backend, hub broadcast.Broadcaster, toasts *NotificationService, sim config.Simulation) *AgentService {
	return &AgentService{
		api:    api,
		hub:    hub,
		toasts: toasts,
		sim:    sim,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5851f42d4c957f2d)), //nolint:gosec // simulation only
		sleep:  sleepCtx,
		fleet:  agent.DefaultMetrics(),
	}
}

// SetMetrics attaches OpenTelemetry instruments.
func (s *AgentService) SetMetrics(m *adotel.Metrics) {
	s.metrics = m
}

// SetRand replaces the perturbation random source.
func (s *AgentService) SetRand(r *rand.Rand) {
	s.rngMu.Lock()
	s.rng = r
	s.rngMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Initialize seeds the agent list and starts the perturbation loop. Only the
// first call has an effect. A seed failure is recorded in the container
// state and the service still counts as initialized, without a loop.
func (s *AgentService) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = true

	seed, err := s.loadSeed()
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		slog.Error("agent seed failed", "file", s.sim.SeedFile, "error", err)
		s.toasts.Error(ctx, "agent.initialize", err.Error())
		return
	}
	s.agents = seed

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopLoop = cancel
	s.loopDone = make(chan struct{})
	go s.perturbLoop(loopCtx, s.loopDone)
	s.mu.Unlock()

	slog.Info("agent service initialized", "agents", len(seed), "tick", s.sim.TickInterval)
	s.broadcastSnapshot(ctx)
}

// Close stops the perturbation loop and waits for it to exit.
func (s *AgentService) Close() {
	s.mu.Lock()
	stop, done := s.stopLoop, s.loopDone
	s.stopLoop, s.loopDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

type seedFile struct {
	Agents []struct {
		ID           string  `yaml:"id"`
		Name         string  `yaml:"name"`
		Status       string  `yaml:"status"`
		MemoryUsage  float64 `yaml:"memory_usage"`
		CPUUsage     float64 `yaml:"cpu_usage"`
		TaskProgress float64 `yaml:"task_progress"`
		CurrentTask  string  `yaml:"current_task"`
	} `yaml:"agents"`
}

// loadSeed returns the configured seed agents, or the built-in defaults when
// no seed file is set.
func (s *AgentService) loadSeed() ([]agent.Agent, error) {
	if s.sim.SeedFile == "" {
		return agent.Defaults(), nil
	}

	data, err := os.ReadFile(s.sim.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(f.Agents))
	out := make([]agent.Agent, 0, len(f.Agents))
	for i, sa := range f.Agents {
		d := agent.Draft{
			Name:         sa.Name,
			Status:       agent.Status(sa.Status),
			MemoryUsage:  sa.MemoryUsage,
			CPUUsage:     sa.CPUUsage,
			TaskProgress: sa.TaskProgress,
			CurrentTask:  sa.CurrentTask,
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("seed agent %d: %w", i, err)
		}
		id := sa.ID
		if id == "" {
			id = fmt.Sprintf("agent-%d", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("seed agent %d: %w: duplicate id %q", i, domain.ErrValidation, id)
		}
		seen[id] = true
		out = append(out, d.WithID(id))
	}
	return out, nil
}

func (s *AgentService) perturbLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.sim.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Perturb()
			s.broadcastSnapshot(ctx)
		}
	}
}

// Perturb applies one simulation tick: memory and cpu drift by up to 5 points
// either way and progress advances by up to 5 points, all clamped to [0, 100].
func (s *AgentService) Perturb() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.agents {
		a := &s.agents[i]
		a.MemoryUsage += s.uniform(-perturbSpread, perturbSpread)
		a.CPUUsage += s.uniform(-perturbSpread, perturbSpread)
		a.TaskProgress += s.uniform(0, progressStep)
		a.Clamp()
	}
}

func (s *AgentService) uniform(lo, hi float64) float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

// List returns a copy of all agents.
func (s *AgentService) List() []agent.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]agent.Agent(nil), s.agents...)
}

// Get returns the agent with the given id.
func (s *AgentService) Get(id string) (agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.agents[i], nil
	}
	return agent.Agent{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
}

// Metrics returns a copy of the fleet metrics.
func (s *AgentService) Metrics() agent.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fleet.Clone()
}

// State returns the container's loading/error status.
func (s *AgentService) State() ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ContainerState{Initialized: s.initialized, Loading: s.inFlight > 0, Error: s.lastErr}
}

// StatusCounts returns the number of agents per status.
func (s *AgentService) StatusCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(agent.ValidStatuses))
	for st := range agent.ValidStatuses {
		counts[string(st)] = 0
	}
	for i := range s.agents {
		counts[string(s.agents[i].Status)]++
	}
	return counts
}

// Create registers the draft with the backend and appends it under the
// identity the backend assigned.
func (s *AgentService) Create(ctx context.Context, d agent.Draft) (agent.Agent, error) {
	if err := d.Validate(); err != nil {
		return agent.Agent{}, err
	}
	done := s.begin()
	defer done()

	id, err := s.api.CreateAgent(ctx, d.Name, agent.KindWebNavigation)
	if err != nil {
		return agent.Agent{}, s.fail(ctx, "agent.create", fmt.Errorf("create agent: %w", err))
	}

	a := d.WithID(id)
	s.mu.Lock()
	s.agents = append(s.agents, a)
	s.mu.Unlock()

	slog.Info("agent created", "agent_id", id, "name", a.Name)
	s.hub.BroadcastEvent(ctx, ws.EventAgentUpdated, a)
	s.toasts.Success(ctx, "agent.create", "Agent created successfully")
	return a, nil
}

// UpdateStatus changes an agent's status on the backend, then locally. A
// backend failure leaves local state untouched.
func (s *AgentService) UpdateStatus(ctx context.Context, id string, status agent.Status) (agent.Agent, error) {
	if err := agent.ValidateStatus(status); err != nil {
		return agent.Agent{}, err
	}
	if _, err := s.Get(id); err != nil {
		return agent.Agent{}, err
	}
	done := s.begin()
	defer done()

	if err := s.api.UpdateStatus(ctx, id, status); err != nil {
		return agent.Agent{}, s.fail(ctx, "agent.status", fmt.Errorf("update status: %w", err))
	}

	a, err := s.mutate(ctx, id, func(a *agent.Agent) { a.Status = status })
	if err != nil {
		return agent.Agent{}, err
	}
	s.metrics.StatusChanged(ctx, string(status))

	verb := "started"
	switch status {
	case agent.StatusPaused:
		verb = "paused"
	case agent.StatusStopped:
		verb = "stopped"
	}
	s.toasts.Success(ctx, "agent.status", "Agent "+verb+" successfully")
	return a, nil
}

// Restart stops the agent, waits the configured pause and starts it again.
// Overlapping restarts of the same agent share one run. A failure in the
// second phase leaves the agent stopped; nothing is rolled back.
func (s *AgentService) Restart(ctx context.Context, id string) (agent.Agent, error) {
	v, err, _ := s.restarts.Do("restart:"+id, func() (any, error) {
		return s.restart(ctx, id)
	})
	if err != nil {
		return agent.Agent{}, err
	}
	return v.(agent.Agent), nil
}

func (s *AgentService) restart(ctx context.Context, id string) (a agent.Agent, err error) {
	if _, err := s.Get(id); err != nil {
		return agent.Agent{}, err
	}

	ctx, span := adotel.StartRestartSpan(ctx, id)
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RestartFinished(ctx, time.Since(start).Seconds(), err) }()

	done := s.begin()
	defer done()

	if err := s.api.UpdateStatus(ctx, id, agent.StatusStopped); err != nil {
		return agent.Agent{}, s.fail(ctx, "agent.restart", fmt.Errorf("stop agent: %w", err))
	}
	if _, err := s.mutate(ctx, id, func(a *agent.Agent) {
		a.Status = agent.StatusStopped
		a.TaskProgress = 0
		a.CurrentTask = agent.RestartingTask
	}); err != nil {
		return agent.Agent{}, err
	}

	if err := s.sleep(ctx, s.sim.RestartPause); err != nil {
		return agent.Agent{}, s.fail(ctx, "agent.restart", fmt.Errorf("restart pause: %w", err))
	}

	if err := s.api.UpdateStatus(ctx, id, agent.StatusRunning); err != nil {
		return agent.Agent{}, s.fail(ctx, "agent.restart", fmt.Errorf("start agent: %w", err))
	}
	a, err = s.mutate(ctx, id, func(a *agent.Agent) {
		a.Status = agent.StatusRunning
		a.MemoryUsage = 0
		a.CPUUsage = 0
	})
	if err != nil {
		return agent.Agent{}, err
	}

	slog.Info("agent restarted", "agent_id", id)
	s.toasts.Success(ctx, "agent.restart", "Agent restarted successfully")
	return a, nil
}

// AssignTask queues a task for the agent and makes it the agent's current
// task with zero progress.
func (s *AgentService) AssignTask(ctx context.Context, id, description string) (agent.Agent, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return agent.Agent{}, fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	if _, err := s.Get(id); err != nil {
		return agent.Agent{}, err
	}
	done := s.begin()
	defer done()

	taskID, err := s.api.CreateTask(ctx, id, description)
	if err != nil {
		return agent.Agent{}, s.fail(ctx, "agent.task", fmt.Errorf("create task: %w", err))
	}
	slog.Debug("task queued", "agent_id", id, "task_id", taskID)

	return s.mutate(ctx, id, func(a *agent.Agent) {
		a.CurrentTask = description
		a.TaskProgress = 0
	})
}

// StoreMemory appends a memory entry for the agent on the backend.
func (s *AgentService) StoreMemory(ctx context.Context, id, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if _, err := s.Get(id); err != nil {
		return err
	}
	done := s.begin()
	defer done()

	if err := s.api.StoreMemory(ctx, id, content); err != nil {
		return s.fail(ctx, "agent.memory", fmt.Errorf("store memory: %w", err))
	}
	return nil
}

// UpdateMetrics merges a partial metrics update into the fleet metrics.
func (s *AgentService) UpdateMetrics(ctx context.Context, p agent.MetricsPatch) agent.Metrics {
	s.mu.Lock()
	p.Apply(&s.fleet)
	m := s.fleet.Clone()
	s.mu.Unlock()

	s.hub.BroadcastEvent(ctx, ws.EventMetricsUpdated, m)
	return m
}

// AppendResourceSample records a host resource sample in the fleet history.
func (s *AgentService) AppendResourceSample(ctx context.Context, rs agent.ResourceSample) {
	s.mu.Lock()
	s.fleet.AppendSample(rs)
	m := s.fleet.Clone()
	s.mu.Unlock()

	s.hub.BroadcastEvent(ctx, ws.EventMetricsUpdated, m)
}

// Snapshot returns the current agents and metrics as a single event.
func (s *AgentService) Snapshot() ws.AgentsSnapshotEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ws.AgentsSnapshotEvent{
		Agents:  append([]agent.Agent(nil), s.agents...),
		Metrics: s.fleet.Clone(),
	}
}

func (s *AgentService) broadcastSnapshot(ctx context.Context) {
	s.hub.BroadcastEvent(ctx, ws.EventAgentsSnapshot, s.Snapshot())
}

// mutate applies fn to the agent under the lock, then broadcasts the result.
func (s *AgentService) mutate(ctx context.Context, id string, fn func(*agent.Agent)) (agent.Agent, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return agent.Agent{}, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	fn(&s.agents[i])
	s.agents[i].Clamp()
	a := s.agents[i]
	s.mu.Unlock()

	s.hub.BroadcastEvent(ctx, ws.EventAgentUpdated, a)
	return a, nil
}

func (s *AgentService) indexLocked(id string) int {
	for i := range s.agents {
		if s.agents[i].ID == id {
			return i
		}
	}
	return -1
}

// begin marks an operation in flight and clears the last error. The returned
// func ends it.
func (s *AgentService) begin() func() {
	s.mu.Lock()
	s.inFlight++
	s.lastErr = ""
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}
}

// fail records err as the container error and shows it as a toast.
func (s *AgentService) fail(ctx context.Context, source string, err error) error {
	msg := err.Error()
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()

	slog.Warn("agent operation failed", "source", source, "error", err)
	s.toasts.Error(ctx, source, msg)
	return err
}
