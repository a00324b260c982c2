// Package user defines the identity-side models: users, sessions, and the
// credential requests the auth container forwards to the identity provider.
package user

import (
	"errors"
	"net/mail"
	"time"
)

// User is the identity provider's view of an account.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Session is the opaque authentication state issued by the identity provider.
type Session struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // response field, not a hardcoded secret
	RefreshToken string `json:"refresh_token"` //nolint:gosec // response field, not a hardcoded secret
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Expired reports whether the session is past its expiry at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != 0 && now.Unix() >= s.ExpiresAt
}

// Credentials is the input for password sign-in and sign-up.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the Credentials have all required fields.
func (c *Credentials) Validate() error {
	if c.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return errors.New("invalid email format")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// ValidateEmail checks a bare email address, as used by password reset.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email format")
	}
	return nil
}
