package service

import (
	"time"

	"github.com/Strob0t/AgentDeck/internal/domain"
)

// UserError is an error whose message is meant for end users. Err classifies
// it (domain sentinel or the provider error it was rewritten from).
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Err }

// RateLimitError rejects a sign-in locally until ResetAt.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return "Too many login attempts. Please try again after " + e.ResetAt.Format("3:04:05 PM")
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }
