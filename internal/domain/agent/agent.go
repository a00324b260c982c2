// Package agent defines the Agent domain entity.
package agent

import (
	"fmt"
	"strings"

	"github.com/Strob0t/AgentDeck/internal/domain"
)

// Status represents the current state of an agent.
type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// ValidStatuses is the set of all valid agent statuses.
var ValidStatuses = map[Status]bool{
	StatusRunning: true,
	StatusPaused:  true,
	StatusStopped: true,
}

// Kind is the backend agent type requested on creation.
type Kind string

const (
	KindWebNavigation      Kind = "web_navigation"
	KindDocumentProcessing Kind = "document_processing"
)

const (
	// DefaultName is used when a draft is submitted without a name.
	DefaultName = "New Agent"
	// InitializingTask is the current task of a freshly created agent.
	InitializingTask = "Initializing..."
	// RestartingTask is shown while an agent is between restart phases.
	RestartingTask = "Restarting..."

	maxNameLength = 128
)

// Agent is a simulated worker record with status and resource-usage metrics.
// All percentage fields stay within [0, 100].
type Agent struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Status       Status  `json:"status"`
	MemoryUsage  float64 `json:"memory_usage"`
	CPUUsage     float64 `json:"cpu_usage"`
	TaskProgress float64 `json:"task_progress"`
	CurrentTask  string  `json:"current_task"`
}

// Draft is an agent without an identity, as submitted by the creation form.
type Draft struct {
	Name         string  `json:"name"`
	Status       Status  `json:"status"`
	MemoryUsage  float64 `json:"memory_usage"`
	CPUUsage     float64 `json:"cpu_usage"`
	TaskProgress float64 `json:"task_progress"`
	CurrentTask  string  `json:"current_task"`
}

// NewDraft returns the draft the creation form submits for the given name:
// stopped, zero usage, and the initializing task marker.
func NewDraft(name string) Draft {
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	return Draft{
		Name:        name,
		Status:      StatusStopped,
		CurrentTask: InitializingTask,
	}
}

// Validate checks that the draft has a usable name, status and percentages.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name too long (max %d chars)", domain.ErrValidation, maxNameLength)
	}
	if !ValidStatuses[d.Status] {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, d.Status)
	}
	for field, v := range map[string]float64{
		"memory_usage":  d.MemoryUsage,
		"cpu_usage":     d.CPUUsage,
		"task_progress": d.TaskProgress,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s must be within [0, 100]", domain.ErrValidation, field)
		}
	}
	return nil
}

// WithID materializes the draft into an Agent under the given identity.
func (d *Draft) WithID(id string) Agent {
	return Agent{
		ID:           id,
		Name:         d.Name,
		Status:       d.Status,
		MemoryUsage:  Clamp(d.MemoryUsage),
		CPUUsage:     Clamp(d.CPUUsage),
		TaskProgress: Clamp(d.TaskProgress),
		CurrentTask:  d.CurrentTask,
	}
}

// ValidateStatus reports an ErrValidation error for unknown statuses.
func ValidateStatus(s Status) error {
	if !ValidStatuses[s] {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, s)
	}
	return nil
}

// Clamp bounds a percentage to [0, 100].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// Clamp bounds every percentage field of the agent to [0, 100].
func (a *Agent) Clamp() {
	a.MemoryUsage = Clamp(a.MemoryUsage)
	a.CPUUsage = Clamp(a.CPUUsage)
	a.TaskProgress = Clamp(a.TaskProgress)
}

// Defaults returns the two agents seeded on first initialization.
func Defaults() []Agent {
	return []Agent{
		{
			ID:           "agent-1",
			Name:         "Data Processor",
			Status:       StatusRunning,
			MemoryUsage:  45,
			CPUUsage:     30,
			TaskProgress: 60,
			CurrentTask:  "Processing data streams",
		},
		{
			ID:           "agent-2",
			Name:         "Web Scraper",
			Status:       StatusPaused,
			MemoryUsage:  25,
			CPUUsage:     15,
			TaskProgress: 35,
			CurrentTask:  "Collecting product listings",
		},
	}
}
