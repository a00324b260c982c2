// Package identity defines the port for the external identity/session
// provider. The provider owns authentication semantics; callers only supply
// credentials and consume the returned sessions and errors.
package identity

import (
	"context"

	"github.com/Strob0t/AgentDeck/internal/domain/user"
)

// EventType names a session change reported by the provider.
type EventType string

const (
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventUserUpdated      EventType = "USER_UPDATED"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
	EventTokenRefreshed   EventType = "TOKEN_REFRESHED"
	EventMFAEnabled       EventType = "MFA_ENABLED"
)

// Event is a session change. Session is nil after sign-out.
type Event struct {
	Type    EventType     `json:"event"`
	Session *user.Session `json:"session"`
}

// Listener receives session change events.
type Listener func(Event)

// Provider is the port interface for the identity provider.
type Provider interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*user.Session, error)

	// SignInWithPassword exchanges credentials for a session.
	SignInWithPassword(ctx context.Context, creds user.Credentials) (*user.Session, error)

	// SignUp registers an account. The session is nil when the provider
	// requires email confirmation first.
	SignUp(ctx context.Context, creds user.Credentials) (*user.User, *user.Session, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// ResetPasswordForEmail sends a recovery link that lands on redirectTo.
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error

	// UpdatePassword changes the password of the signed-in user.
	UpdatePassword(ctx context.Context, password string) (*user.User, error)

	// EnrollMFA enrolls a TOTP factor for the signed-in user.
	EnrollMFA(ctx context.Context) (*user.Enrollment, error)

	// VerifyMFA verifies a challenge code for an enrolled factor.
	VerifyMFA(ctx context.Context, factorID, code string) (*user.Verification, error)

	// OAuthURL returns the URL that starts an OAuth flow with the given
	// external provider (e.g. "github", "google").
	OAuthURL(provider, redirectTo string) (string, error)

	// Subscribe registers a listener for session changes. The returned
	// function removes it; it is safe to call more than once.
	Subscribe(l Listener) (unsubscribe func())
}

// Error is an error reported by the provider itself. Message is the raw
// provider text that callers match against known substrings.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
