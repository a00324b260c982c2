package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	adotel "github.com/Strob0t/AgentDeck/internal/adapter/otel"
	"github.com/Strob0t/AgentDeck/internal/adapter/ws"
	"github.com/Strob0t/AgentDeck/internal/config"
	"github.com/Strob0t/AgentDeck/internal/domain"
	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/port/broadcast"
	"github.com/Strob0t/AgentDeck/internal/port/connectivity"
	"github.com/Strob0t/AgentDeck/internal/port/identity"
	"github.com/Strob0t/AgentDeck/internal/resilience"
)

// Redirect paths on the dashboard origin.
const (
	ResetPasswordPath = "/auth/reset-password"
	OAuthCallbackPath = "/auth/callback"
)

// Toast texts shown on success.
const (
	msgSignedIn        = "Successfully signed in"
	msgSignedOut       = "Successfully signed out"
	msgSignedUp        = "Successfully signed in!"
	msgConfirmEmail    = "Please check your email for the confirmation link."
	msgResetSent       = "Password reset email sent"
	msgPasswordUpdated = "Password updated successfully"
	msgMFAEnabled      = "Two-factor authentication enabled"
)

// AuthService wraps the identity provider with connectivity checks, a local
// sign-in attempt limit, user-facing error messages and toasts. It caches
// the current session and keeps it in sync with provider events.
type AuthService struct {
	provider identity.Provider
	online   connectivity.Checker
	prefs    *Preferences
	hub      broadcast.Broadcaster
	toasts   *NotificationService
	metrics  *adotel.Metrics
	attempts *resilience.Attempts
	siteURL  string

	mu          sync.RWMutex
	session     *user.Session
	initialized bool
	inFlight    int
	lastErr     string
	rememberMe  bool
	unsubscribe func()

	signIns singleflight.Group
}

// NewAuthService creates an AuthService. siteURL is the dashboard origin used
// to build password-reset and OAuth redirect links.
func NewAuthService(
	provider identity.Provider,
	online connectivity.Checker,
	prefs *Preferences,
	hub broadcast.Broadcaster,
	toasts *NotificationService,
	signIn config.SignIn,
	siteURL string,
) *AuthService {
	return &AuthService{
		provider: provider,
		online:   online,
		prefs:    prefs,
		hub:      hub,
		toasts:   toasts,
		attempts: resilience.NewAttempts(signIn.MaxAttempts, signIn.Window),
		siteURL:  strings.TrimRight(siteURL, "/"),
	}
}

// SetMetrics attaches OpenTelemetry instruments.
func (s *AuthService) SetMetrics(m *adotel.Metrics) {
	s.metrics = m
}

// Initialize loads the current session and subscribes to provider events.
// Only the first call has an effect. On failure the error is recorded, the
// session cleared and the service still counts as initialized.
func (s *AuthService) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = true
	s.mu.Unlock()

	done := s.begin()
	defer done()

	if remember, err := s.prefs.RememberMe(ctx); err != nil {
		slog.Warn("read rememberMe failed", "error", err)
	} else {
		s.mu.Lock()
		s.rememberMe = remember
		s.mu.Unlock()
	}

	if !s.online.Online() {
		s.setSession(nil)
		s.fail(ctx, "auth.initialize", &UserError{Message: user.MsgOfflineInit, Err: domain.ErrOffline})
		return
	}

	sess, err := s.provider.GetSession(ctx)
	if err != nil {
		s.setSession(nil)
		s.fail(ctx, "auth.initialize", err)
		return
	}
	s.setSession(sess)

	unsubscribe := s.provider.Subscribe(s.onEvent)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	slog.Info("auth service initialized", "authenticated", sess != nil)
}

// Close removes the provider subscription.
func (s *AuthService) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *AuthService) onEvent(ev identity.Event) {
	s.setSession(ev.Session)
	slog.Debug("session event", "event", ev.Type, "authenticated", ev.Session != nil)

	payload := ws.AuthSessionEvent{Event: string(ev.Type), Authenticated: ev.Session != nil}
	if ev.Session != nil {
		payload.Email = ev.Session.User.Email
	}
	s.hub.BroadcastEvent(context.Background(), ws.EventAuthSession, payload)
}

// Session returns a copy of the cached session, or nil when signed out.
func (s *AuthService) Session() *user.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// State returns the container's loading/error status.
func (s *AuthService) State() ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ContainerState{Initialized: s.initialized, Loading: s.inFlight > 0, Error: s.lastErr}
}

// RememberMe returns the cached "keep me signed in" preference.
func (s *AuthService) RememberMe() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rememberMe
}

// SetRememberMe stores the preference.
func (s *AuthService) SetRememberMe(ctx context.Context, remember bool) error {
	if err := s.prefs.SetRememberMe(ctx, remember); err != nil {
		return fmt.Errorf("store rememberMe: %w", err)
	}
	s.mu.Lock()
	s.rememberMe = remember
	s.mu.Unlock()
	return nil
}

// SignIn checks the local attempt limit and connectivity, then exchanges the
// credentials for a session. Overlapping sign-ins with identical credentials
// share one provider call.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*user.Session, error) {
	v, err, _ := s.signIns.Do(signInKey(email, password), func() (any, error) {
		return s.signIn(ctx, user.Credentials{Email: strings.TrimSpace(email), Password: password})
	})
	if err != nil {
		return nil, err
	}
	return v.(*user.Session), nil
}

// signInKey identifies a sign-in flight. The password digest keeps callers
// with different passwords out of each other's flights.
func signInKey(email, password string) string {
	sum := sha256.Sum256([]byte(password))
	return "signin:" + strings.ToLower(strings.TrimSpace(email)) + ":" + hex.EncodeToString(sum[:])
}

func (s *AuthService) signIn(ctx context.Context, creds user.Credentials) (*user.Session, error) {
	if resetAt, ok := s.attempts.Acquire(); !ok {
		s.metrics.SignInRateLimited(ctx)
		return nil, s.fail(ctx, "auth.signin", &RateLimitError{ResetAt: resetAt})
	}
	if !s.online.Online() {
		return nil, s.fail(ctx, "auth.signin", &UserError{Message: user.MsgOffline, Err: domain.ErrOffline})
	}
	if err := creds.Validate(); err != nil {
		return nil, s.fail(ctx, "auth.signin", &UserError{Message: err.Error(), Err: domain.ErrValidation})
	}

	done := s.begin()
	defer done()
	ctx, span := adotel.StartAuthSpan(ctx, "signin")
	defer span.End()
	s.metrics.SignInAttempted(ctx)

	sess, err := s.provider.SignInWithPassword(ctx, creds)
	if err != nil {
		return nil, s.fail(ctx, "auth.signin", rewrite(err, user.SignInMessage))
	}

	s.attempts.Reset()
	s.setSession(sess)
	slog.Info("signed in", "user_id", sess.User.ID)
	s.toasts.Success(ctx, "auth.signin", msgSignedIn)
	return sess, nil
}

// SignUp registers an account. The session is nil when the provider wants
// the email confirmed first.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*user.User, *user.Session, error) {
	if !s.online.Online() {
		return nil, nil, s.fail(ctx, "auth.signup", &UserError{Message: user.MsgOffline, Err: domain.ErrOffline})
	}
	creds := user.Credentials{Email: strings.TrimSpace(email), Password: password}
	if err := creds.Validate(); err != nil {
		return nil, nil, s.fail(ctx, "auth.signup", &UserError{Message: err.Error(), Err: domain.ErrValidation})
	}

	done := s.begin()
	defer done()
	ctx, span := adotel.StartAuthSpan(ctx, "signup")
	defer span.End()

	u, sess, err := s.provider.SignUp(ctx, creds)
	if err != nil {
		return nil, nil, s.fail(ctx, "auth.signup", rewrite(err, user.UpdatePasswordMessage))
	}
	if sess == nil {
		s.toasts.Success(ctx, "auth.signup", msgConfirmEmail)
		return u, nil, nil
	}
	s.setSession(sess)
	s.toasts.Success(ctx, "auth.signup", msgSignedUp)
	return u, sess, nil
}

// SignOut ends the session. The local session is cleared even when the
// provider call fails or the environment is offline.
func (s *AuthService) SignOut(ctx context.Context) error {
	done := s.begin()
	defer done()

	if !s.online.Online() {
		err := s.fail(ctx, "auth.signout", &UserError{Message: user.MsgOfflineSignOut, Err: domain.ErrOffline})
		s.setSession(nil)
		return err
	}

	if err := s.provider.SignOut(ctx); err != nil {
		err = s.fail(ctx, "auth.signout", rewrite(err, nil))
		s.setSession(nil)
		return err
	}

	s.setSession(nil)
	if err := s.prefs.ClearRememberMe(ctx); err != nil {
		slog.Warn("clear rememberMe failed", "error", err)
	}
	s.mu.Lock()
	s.rememberMe = false
	s.mu.Unlock()
	s.toasts.Success(ctx, "auth.signout", msgSignedOut)
	return nil
}

// ResetPassword sends a recovery email linking back to the dashboard.
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	if !s.online.Online() {
		return s.fail(ctx, "auth.reset", &UserError{Message: user.MsgOffline, Err: domain.ErrOffline})
	}
	email = strings.TrimSpace(email)
	if err := user.ValidateEmail(email); err != nil {
		return s.fail(ctx, "auth.reset", &UserError{Message: err.Error(), Err: domain.ErrValidation})
	}

	done := s.begin()
	defer done()

	if err := s.provider.ResetPasswordForEmail(ctx, email, s.siteURL+ResetPasswordPath); err != nil {
		return s.fail(ctx, "auth.reset", rewrite(err, user.ResetMessage))
	}
	s.toasts.Success(ctx, "auth.reset", msgResetSent)
	return nil
}

// UpdatePassword changes the signed-in user's password.
func (s *AuthService) UpdatePassword(ctx context.Context, password string) error {
	if !s.online.Online() {
		return s.fail(ctx, "auth.password", &UserError{Message: user.MsgOffline, Err: domain.ErrOffline})
	}
	if password == "" {
		return s.fail(ctx, "auth.password", &UserError{Message: "password is required", Err: domain.ErrValidation})
	}

	done := s.begin()
	defer done()

	if _, err := s.provider.UpdatePassword(ctx, password); err != nil {
		return s.fail(ctx, "auth.password", rewrite(err, user.UpdatePasswordMessage))
	}
	s.toasts.Success(ctx, "auth.password", msgPasswordUpdated)
	return nil
}

// OAuthURL returns the link that starts an OAuth sign-in with provider.
func (s *AuthService) OAuthURL(ctx context.Context, provider string) (string, error) {
	if !s.online.Online() {
		return "", s.fail(ctx, "auth.oauth", &UserError{Message: user.MsgOffline, Err: domain.ErrOffline})
	}
	u, err := s.provider.OAuthURL(provider, s.siteURL+OAuthCallbackPath)
	if err != nil {
		return "", s.fail(ctx, "auth.oauth", rewrite(err, nil))
	}
	return u, nil
}

// EnrollMFA enrolls a TOTP factor for the signed-in user.
func (s *AuthService) EnrollMFA(ctx context.Context) (*user.Enrollment, error) {
	if !s.online.Online() {
		return nil, s.fail(ctx, "auth.mfa", &UserError{Message: user.MsgOffline, Err: domain.ErrOffline})
	}
	done := s.begin()
	defer done()

	e, err := s.provider.EnrollMFA(ctx)
	if err != nil {
		return nil, s.fail(ctx, "auth.mfa", rewrite(err, nil))
	}
	return e, nil
}

// VerifyMFA verifies a code for an enrolled factor.
func (s *AuthService) VerifyMFA(ctx context.Context, factorID, code string) (*user.Verification, error) {
	if !s.online.Online() {
		return nil, s.fail(ctx, "auth.mfa", &UserError{Message: user.MsgOffline, Err: domain.ErrOffline})
	}
	if factorID == "" || strings.TrimSpace(code) == "" {
		return nil, s.fail(ctx, "auth.mfa", &UserError{Message: "factor id and code are required", Err: domain.ErrValidation})
	}
	done := s.begin()
	defer done()

	v, err := s.provider.VerifyMFA(ctx, factorID, code)
	if err != nil {
		return nil, s.fail(ctx, "auth.mfa", rewrite(err, nil))
	}
	if v.Session != nil {
		s.setSession(v.Session)
	}
	s.toasts.Success(ctx, "auth.mfa", msgMFAEnabled)
	return v, nil
}

// rewrite maps a provider error to a UserError using the given message
// rewriter. Non-provider errors keep their text.
func rewrite(err error, messageFor func(string) string) error {
	var pe *identity.Error
	if errors.As(err, &pe) {
		msg := pe.Message
		if messageFor != nil {
			msg = messageFor(msg)
		}
		return &UserError{Message: msg, Err: err}
	}
	return err
}

func (s *AuthService) setSession(sess *user.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess == nil {
		s.session = nil
		return
	}
	cp := *sess
	s.session = &cp
}

// begin marks an operation in flight and clears the last error. The returned
// func ends it.
func (s *AuthService) begin() func() {
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
func (s *AuthService) fail(ctx context.Context, source string, err error) error {
	msg := err.Error()
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()

	slog.Warn("auth operation failed", "source", source, "error", err)
	s.toasts.Error(ctx, source, msg)
	return err
}
