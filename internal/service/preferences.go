package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Strob0t/AgentDeck/internal/port/cache"
)

const (
	// RememberMeKey stores the "keep me signed in" preference.
	RememberMeKey = "rememberMe"
	// expirySuffix names the companion key holding an entry's expiry in
	// unix milliseconds.
	expirySuffix = "_expiry"
)

// Preferences is a small key-value store for user preferences. It outlives
// sessions: signing out only clears rememberMe.
type Preferences struct {
	store cache.Cache
	now   func() time.Time
}

// NewPreferences creates a preference store on top of a cache backend.
func NewPreferences(store cache.Cache) *Preferences {
	return &Preferences{store: store, now: time.Now}
}

// RememberMe reports whether the user asked to stay signed in.
func (p *Preferences) RememberMe(ctx context.Context) (bool, error) {
	v, ok, err := p.store.Get(ctx, RememberMeKey)
	if err != nil || !ok {
		return false, err
	}
	return string(v) == "true", nil
}

// SetRememberMe stores the preference without expiry.
func (p *Preferences) SetRememberMe(ctx context.Context, remember bool) error {
	return p.store.Set(ctx, RememberMeKey, []byte(strconv.FormatBool(remember)), 0)
}

// ClearRememberMe removes the preference.
func (p *Preferences) ClearRememberMe(ctx context.Context) error {
	return p.store.Delete(ctx, RememberMeKey)
}

// SetWithExpiry stores value under key together with a <key>_expiry entry.
func (p *Preferences) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiry := p.now().Add(ttl).UnixMilli()
	if err := p.store.Set(ctx, key, value, 0); err != nil {
		return err
	}
	return p.store.Set(ctx, key+expirySuffix, []byte(strconv.FormatInt(expiry, 10)), 0)
}

// GetWithExpiry returns the value stored by SetWithExpiry. Expired or
// malformed entries are deleted and reported as missing.
func (p *Preferences) GetWithExpiry(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := p.store.Get(ctx, key+expirySuffix)
	if err != nil || !ok {
		return nil, false, err
	}
	expiry, perr := strconv.ParseInt(string(raw), 10, 64)
	if perr != nil || p.now().UnixMilli() >= expiry {
		return nil, false, p.remove(ctx, key)
	}

	v, ok, err := p.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

// Remove deletes key and its expiry entry.
func (p *Preferences) Remove(ctx context.Context, key string) error {
	return p.remove(ctx, key)
}

func (p *Preferences) remove(ctx context.Context, key string) error {
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if err := p.store.Delete(ctx, key+expirySuffix); err != nil {
		return fmt.Errorf("delete %s: %w", key+expirySuffix, err)
	}
	return nil
}
