package http

import (
	"net/http"
	"time"

	"github.com/Strob0t/AgentDeck/internal/domain/agent"
	"github.com/Strob0t/AgentDeck/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Agents *service.AgentService
	Auth   *service.AuthService
	Chat   *service.ChatService
	Cache  *service.FetchCache
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Agents.List())
}

// GetAgent handles GET /api/v1/agents/{id}
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Agents.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CreateAgent handles POST /api/v1/agents. Fields missing from the body take
// the creation form's defaults.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Name         string        `json:"name"`
		Status       *agent.Status `json:"status"`
		MemoryUsage  *float64      `json:"memory_usage"`
		CPUUsage     *float64      `json:"cpu_usage"`
		TaskProgress *float64      `json:"task_progress"`
		CurrentTask  *string       `json:"current_task"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}

	d := agent.NewDraft(req.Name)
	if req.Status != nil {
		d.Status = *req.Status
	}
	if req.MemoryUsage != nil {
		d.MemoryUsage = *req.MemoryUsage
	}
	if req.CPUUsage != nil {
		d.CPUUsage = *req.CPUUsage
	}
	if req.TaskProgress != nil {
		d.TaskProgress = *req.TaskProgress
	}
	if req.CurrentTask != nil {
		d.CurrentTask = *req.CurrentTask
	}

	a, err := h.Agents.Create(r.Context(), d)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAgentStatus handles PUT /api/v1/agents/{id}/status
func (h *Handlers) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Status agent.Status `json:"status"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}
	if !requireField(w, string(req.Status), "status") {
		return
	}

	a, err := h.Agents.UpdateStatus(r.Context(), urlParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// RestartAgent handles POST /api/v1/agents/{id}/restart
func (h *Handlers) RestartAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Agents.Restart(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AssignAgentTask handles POST /api/v1/agents/{id}/tasks
func (h *Handlers) AssignAgentTask(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Description string `json:"description"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Description, "description") {
		return
	}

	a, err := h.Agents.AssignTask(r.Context(), urlParam(r, "id"), req.Description)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// StoreAgentMemory handles POST /api/v1/agents/{id}/memory
func (h *Handlers) StoreAgentMemory(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Content string `json:"content"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}

	if err := h.Agents.StoreMemory(r.Context(), urlParam(r, "id"), req.Content); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMetrics handles GET /api/v1/metrics
func (h *Handlers) GetMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Agents.Metrics())
}

// PatchMetrics handles PATCH /api/v1/metrics
func (h *Handlers) PatchMetrics(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[agent.MetricsPatch](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Agents.UpdateMetrics(r.Context(), p))
}

// GetState handles GET /api/v1/state
func (h *Handlers) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Agents.State())
}

// ListTemplates handles GET /api/v1/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, agent.Templates())
}

// AnalyzeChat handles POST /api/v1/chat/analyze
func (h *Handlers) AnalyzeChat(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Message string `json:"message"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}

	ex, err := h.Chat.Send(r.Context(), req.Message)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// ChatSuggestions handles GET /api/v1/chat/suggestions
func (h *Handlers) ChatSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, service.ChatSuggestions)
}

// Fetch handles GET /api/v1/fetch?url=&debounce=
// debounce is an optional Go duration ("300ms") overriding the configured
// wait before a miss is fetched.
func (h *Handlers) Fetch(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if !requireField(w, target, "url") {
		return
	}

	var (
		res *service.FetchResult
		err error
	)
	if raw := r.URL.Query().Get("debounce"); raw != "" {
		d, perr := time.ParseDuration(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "debounce must be a duration such as 300ms")
			return
		}
		res, err = h.Cache.GetDebounced(r.Context(), target, d)
	} else {
		res, err = h.Cache.Get(r.Context(), target)
	}
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
