package http

import (
	"net/http"

	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/service"
)

// sessionView is the session as exposed to the dashboard. Tokens stay on the
// server.
type sessionView struct {
	Authenticated bool       `json:"authenticated"`
	User          *user.User `json:"user,omitempty"`
	ExpiresAt     int64      `json:"expires_at,omitempty"`
	RememberMe    bool       `json:"remember_me"`
}

func (h *Handlers) sessionView(s *user.Session) sessionView {
	v := sessionView{RememberMe: h.Auth.RememberMe()}
	if s != nil {
		u := s.User
		v.Authenticated = true
		v.User = &u
		v.ExpiresAt = s.ExpiresAt
	}
	return v
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// GetSession handles GET /api/v1/auth/session
func (h *Handlers) GetSession(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		sessionView
		State service.ContainerState `json:"state"`
	}
	writeJSON(w, http.StatusOK, response{sessionView: h.sessionView(h.Auth.Session()), State: h.Auth.State()})
}

// SignIn handles POST /api/v1/auth/signin
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[credentialsRequest](w, r)
	if !ok {
		return
	}

	s, err := h.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView(s))
}

// SignUp handles POST /api/v1/auth/signup
func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[credentialsRequest](w, r)
	if !ok {
		return
	}

	u, s, err := h.Auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	type response struct {
		sessionView
		ConfirmationRequired bool `json:"confirmation_required"`
	}
	resp := response{sessionView: h.sessionView(s), ConfirmationRequired: s == nil}
	if s == nil {
		resp.User = u
	}
	writeJSON(w, http.StatusCreated, resp)
}

// SignOut handles POST /api/v1/auth/signout
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.SignOut(r.Context()); err != nil {
		writeDomainError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email string `json:"email"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}

	if err := h.Auth.ResetPassword(r.Context(), req.Email); err != nil {
		writeDomainError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UpdatePassword handles POST /api/v1/auth/update-password
func (h *Handlers) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}

	if err := h.Auth.UpdatePassword(r.Context(), req.Password); err != nil {
		writeDomainError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetRememberMe handles PUT /api/v1/auth/remember-me
func (h *Handlers) SetRememberMe(w http.ResponseWriter, r *http.Request) {
	type request struct {
		RememberMe bool `json:"remember_me"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}

	if err := h.Auth.SetRememberMe(r.Context(), req.RememberMe); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"remember_me": req.RememberMe})
}

// OAuthURL handles GET /api/v1/auth/oauth/{provider}
func (h *Handlers) OAuthURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.Auth.OAuthURL(r.Context(), urlParam(r, "provider"))
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

// EnrollMFA handles POST /api/v1/auth/mfa/enroll
func (h *Handlers) EnrollMFA(w http.ResponseWriter, r *http.Request) {
	e, err := h.Auth.EnrollMFA(r.Context())
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// VerifyMFA handles POST /api/v1/auth/mfa/verify
func (h *Handlers) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	type request struct {
		FactorID string `json:"factor_id"`
		Code     string `json:"code"`
	}
	req, ok := readJSON[request](w, r)
	if !ok {
		return
	}

	v, err := h.Auth.VerifyMFA(r.Context(), req.FactorID, req.Code)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": v.Verified})
}
