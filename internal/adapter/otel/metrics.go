package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentdeck"

// Metrics holds all AgentDeck metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	StatusChanges   metric.Int64Counter
	Restarts        metric.Int64Counter
	RestartFailures metric.Int64Counter
	SignInAttempts  metric.Int64Counter
	SignInRejected  metric.Int64Counter
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	RestartDuration metric.Float64Histogram

	meter metric.Meter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{meter: meter}
	var err error

	m.StatusChanges, err = meter.Int64Counter("agentdeck.agent.status_changes",
		metric.WithDescription("Number of agent status changes"))
	if err != nil {
		return nil, err
	}

	m.Restarts, err = meter.Int64Counter("agentdeck.agent.restarts",
		metric.WithDescription("Number of completed agent restarts"))
	if err != nil {
		return nil, err
	}

	m.RestartFailures, err = meter.Int64Counter("agentdeck.agent.restart_failures",
		metric.WithDescription("Number of agent restarts that failed in either phase"))
	if err != nil {
		return nil, err
	}

	m.SignInAttempts, err = meter.Int64Counter("agentdeck.auth.signin_attempts",
		metric.WithDescription("Number of sign-in attempts forwarded to the identity provider"))
	if err != nil {
		return nil, err
	}

	m.SignInRejected, err = meter.Int64Counter("agentdeck.auth.signin_rejected",
		metric.WithDescription("Number of sign-in attempts rejected by the local rate limit"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("agentdeck.fetchcache.hits",
		metric.WithDescription("Number of fetch-cache hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("agentdeck.fetchcache.misses",
		metric.WithDescription("Number of fetch-cache misses"))
	if err != nil {
		return nil, err
	}

	m.RestartDuration, err = meter.Float64Histogram("agentdeck.agent.restart.duration_seconds",
		metric.WithDescription("Agent restart duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RegisterAgentGauge reports the current agent count by status on every
// collection.
func (m *Metrics) RegisterAgentGauge(counts func() map[string]int) error {
	if m == nil {
		return nil
	}
	gauge, err := m.meter.Int64ObservableGauge("agentdeck.agents",
		metric.WithDescription("Number of agents by status"))
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for status, n := range counts() {
			o.ObserveInt64(gauge, int64(n), metric.WithAttributes(attribute.String("status", status)))
		}
		return nil
	}, gauge)
	return err
}

// The recording helpers below are no-ops on a nil receiver so callers need
// not check whether metrics are configured.

// StatusChanged counts a status change to status.
func (m *Metrics) StatusChanged(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.StatusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RestartFinished counts a restart outcome and, on success, its duration.
func (m *Metrics) RestartFinished(ctx context.Context, seconds float64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RestartFailures.Add(ctx, 1)
		return
	}
	m.Restarts.Add(ctx, 1)
	m.RestartDuration.Record(ctx, seconds)
}

// SignInAttempted counts a sign-in forwarded to the provider.
func (m *Metrics) SignInAttempted(ctx context.Context) {
	if m == nil {
		return
	}
	m.SignInAttempts.Add(ctx, 1)
}

// SignInRateLimited counts a locally rejected sign-in.
func (m *Metrics) SignInRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.SignInRejected.Add(ctx, 1)
}

// CacheLookup counts a fetch-cache hit or miss.
func (m *Metrics) CacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}
