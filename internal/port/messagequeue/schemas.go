package messagequeue

// AgentUpdatedPayload is the schema for agent.updated messages.
type AgentUpdatedPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	MemoryUsage  float64 `json:"memory_usage"`
	CPUUsage     float64 `json:"cpu_usage"`
	TaskProgress float64 `json:"task_progress"`
	CurrentTask  string  `json:"current_task"`
}

// ToastPayload is the schema for toast messages.
type ToastPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
	Source  string `json:"source"`
}

// SessionPayload is the schema for auth.session messages. The session itself
// is never published to the broker, only whether one exists.
type SessionPayload struct {
	Event         string `json:"event"`
	Authenticated bool   `json:"authenticated"`
}
