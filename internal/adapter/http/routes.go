package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. apiMiddleware
// wraps only the /api/v1 group (e.g. the per-IP rate limiter).
func MountRoutes(r chi.Router, h *Handlers, apiMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiMiddleware...)

		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents/{id}", h.GetAgent)
		r.Put("/agents/{id}/status", h.UpdateAgentStatus)
		r.Post("/agents/{id}/restart", h.RestartAgent)
		r.Post("/agents/{id}/tasks", h.AssignAgentTask)
		r.Post("/agents/{id}/memory", h.StoreAgentMemory)

		// Fleet metrics and container state
		r.Get("/metrics", h.GetMetrics)
		r.Patch("/metrics", h.PatchMetrics)
		r.Get("/state", h.GetState)

		// Auth
		r.Get("/auth/session", h.GetSession)
		r.Post("/auth/signin", h.SignIn)
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/signout", h.SignOut)
		r.Post("/auth/reset-password", h.ResetPassword)
		r.Post("/auth/update-password", h.UpdatePassword)
		r.Put("/auth/remember-me", h.SetRememberMe)
		r.Get("/auth/oauth/{provider}", h.OAuthURL)
		r.Post("/auth/mfa/enroll", h.EnrollMFA)
		r.Post("/auth/mfa/verify", h.VerifyMFA)

		// Chat, templates, fetch cache
		r.Post("/chat/analyze", h.AnalyzeChat)
		r.Get("/chat/suggestions", h.ChatSuggestions)
		r.Get("/templates", h.ListTemplates)
		r.Get("/fetch", h.Fetch)
	})
}
