package resilience

import (
	"sync"
	"time"
)

// Attempts bounds how many times an operation may be tried within a window
// that starts at the first attempt. It is process-local; nothing is persisted.
type Attempts struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	count  int
	first  time.Time
	now    func() time.Time
}

// NewAttempts creates a limiter allowing max attempts per window.
func NewAttempts(maxAttempts int, window time.Duration) *Attempts {
	return &Attempts{
		max:    maxAttempts,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the time source.
func (a *Attempts) WithClock(now func() time.Time) *Attempts {
	a.now = now
	return a
}

// Acquire records an attempt. When the limit is reached it records nothing
// and returns ok=false with the time at which attempts are allowed again.
func (a *Attempts) Acquire() (resetAt time.Time, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.count > 0 && now.Sub(a.first) >= a.window {
		a.count = 0
	}
	if a.count >= a.max {
		return a.first.Add(a.window), false
	}
	if a.count == 0 {
		a.first = now
	}
	a.count++
	return time.Time{}, true
}

// Reset clears the counter, e.g. after a successful sign-in.
func (a *Attempts) Reset() {
	a.mu.Lock()
	a.count = 0
	a.mu.Unlock()
}

// Count returns the attempts recorded in the current window.
func (a *Attempts) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count > 0 && a.now().Sub(a.first) >= a.window {
		return 0
	}
	return a.count
}
