package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	adotel "github.com/Strob0t/AgentDeck/internal/adapter/otel"
	"github.com/Strob0t/AgentDeck/internal/config"
	"github.com/Strob0t/AgentDeck/internal/domain"
	"github.com/Strob0t/AgentDeck/internal/port/cache"
)

// maxFetchBody caps the size of a fetched document.
const maxFetchBody = 4 << 20

// cachedEntry is the stored form of a fetch result. The timestamp is kept
// with the data so freshness does not depend on the backend honoring TTLs.
type cachedEntry struct {
	FetchedAt int64           `json:"fetched_at"` // unix ms
	Data      json.RawMessage `json:"data"`
}

// FetchResult is a fetched JSON document and whether it came from the cache.
type FetchResult struct {
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
	Cached    bool            `json:"cached"`
}

// FetchCache memoizes JSON GET requests by URL for a fixed TTL. Misses for
// the same URL share one request; with a debounce delay set, a miss waits
// for the delay first so a burst of requests collapses into one fetch.
type FetchCache struct {
	store    cache.Cache
	client   *http.Client
	ttl      time.Duration
	debounce time.Duration
	allowed  []string
	metrics  *adotel.Metrics
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	flights singleflight.Group
}

// NewFetchCache creates a FetchCache. Only URLs under one of
// cfg.AllowedPrefixes are fetched; an empty list rejects every URL.
func NewFetchCache(store cache.Cache, client *http.Client, cfg config.Cache) *FetchCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &FetchCache{
		store:    store,
		client:   client,
		ttl:      cfg.TTL,
		debounce: cfg.Debounce,
		allowed:  cfg.AllowedPrefixes,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// SetMetrics attaches OpenTelemetry instruments.
func (f *FetchCache) SetMetrics(m *adotel.Metrics) {
	f.metrics = m
}

// SetDebounce sets the delay a miss waits before fetching.
func (f *FetchCache) SetDebounce(d time.Duration) {
	f.debounce = d
}

// Get returns the document at rawURL, from the cache when the stored copy is
// younger than the TTL. Misses wait for the configured debounce.
func (f *FetchCache) Get(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.GetDebounced(ctx, rawURL, f.debounce)
}

// GetDebounced is Get with an explicit debounce delay for misses. The delay
// must be within [0, config.MaxFetchDebounce].
func (f *FetchCache) GetDebounced(ctx context.Context, rawURL string, debounce time.Duration) (*FetchResult, error) {
	if debounce < 0 || debounce > config.MaxFetchDebounce {
		return nil, &UserError{
			Message: fmt.Sprintf("debounce must be between 0 and %s", config.MaxFetchDebounce),
			Err:     domain.ErrValidation,
		}
	}
	if err := f.checkURL(rawURL); err != nil {
		return nil, err
	}

	if res, ok := f.lookup(ctx, rawURL); ok {
		f.metrics.CacheLookup(ctx, true)
		return res, nil
	}
	f.metrics.CacheLookup(ctx, false)

	v, err, _ := f.flights.Do(rawURL, func() (any, error) {
		if debounce > 0 {
			if err := f.sleep(ctx, debounce); err != nil {
				return nil, err
			}
		}
		// A caller that finished while we waited may have filled the cache.
		if res, ok := f.lookup(ctx, rawURL); ok {
			return res, nil
		}
		return f.fetch(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FetchResult), nil
}

// Invalidate drops the cached copy of rawURL.
func (f *FetchCache) Invalidate(ctx context.Context, rawURL string) error {
	return f.store.Delete(ctx, fetchKey(rawURL))
}

func (f *FetchCache) lookup(ctx context.Context, rawURL string) (*FetchResult, bool) {
	raw, ok, err := f.store.Get(ctx, fetchKey(rawURL))
	if err != nil {
		slog.Warn("fetch cache read failed", "url", rawURL, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var e cachedEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		slog.Warn("dropping malformed fetch cache entry", "url", rawURL, "error", err)
		_ = f.store.Delete(ctx, fetchKey(rawURL))
		return nil, false
	}
	fetchedAt := time.UnixMilli(e.FetchedAt)
	if f.now().Sub(fetchedAt) >= f.ttl {
		return nil, false
	}
	return &FetchResult{Data: e.Data, FetchedAt: fetchedAt, Cached: true}, true
}

func (f *FetchCache) fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	ctx, span := adotel.StartFetchSpan(ctx, rawURL)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w: %w", rawURL, domain.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UserError{
			Message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode),
			Err:     domain.ErrUpstream,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if !json.Valid(body) {
		return nil, &UserError{Message: "response is not valid JSON", Err: domain.ErrUpstream}
	}

	now := f.now()
	entry, err := json.Marshal(cachedEntry{FetchedAt: now.UnixMilli(), Data: body})
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	if err := f.store.Set(ctx, fetchKey(rawURL), entry, f.ttl); err != nil {
		slog.Warn("fetch cache write failed", "url", rawURL, "error", err)
	}
	slog.Debug("fetched", "url", rawURL, "bytes", len(body))
	return &FetchResult{Data: body, FetchedAt: time.UnixMilli(now.UnixMilli())}, nil
}

func (f *FetchCache) checkURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return &UserError{Message: "url must be an absolute http(s) URL", Err: domain.ErrValidation}
	}
	for _, p := range f.allowed {
		if strings.HasPrefix(rawURL, p) {
			return nil
		}
	}
	return &UserError{Message: "url is not in the allowed list", Err: domain.ErrValidation}
}

func fetchKey(rawURL string) string {
	return "fetch:" + rawURL
}
