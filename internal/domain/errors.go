// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates the caller supplied invalid input.
var ErrValidation = errors.New("validation failed")

// ErrOffline indicates the environment reports no connectivity. Operations
// that need the network fail fast with this error instead of calling out.
var ErrOffline = errors.New("offline")

// ErrRateLimited indicates a locally enforced attempt limit was reached.
var ErrRateLimited = errors.New("rate limited")

// ErrSimulatedFailure is returned by mocked backends to exercise error paths.
var ErrSimulatedFailure = errors.New("simulated failure")

// ErrUpstream indicates a remote service answered with an error status.
var ErrUpstream = errors.New("upstream error")
