// Package netprobe implements connectivity.Checker by periodically dialing
// the identity provider's host over TCP.
package netprobe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync/atomic"
	"time"
)

// Probe tracks reachability of a single host:port.
type Probe struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)

	online atomic.Bool
}

// New creates a probe for the host of rawURL. The port defaults to 443 for
// https and 80 otherwise. The probe reports online until the first check
// says otherwise.
func New(rawURL string, interval, timeout time.Duration) (*Probe, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse probe url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("probe url %q has no host", rawURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	d := &net.Dialer{}
	p := &Probe{
		addr:     net.JoinHostPort(u.Hostname(), port),
		interval: interval,
		timeout:  timeout,
		dial:     d.DialContext,
	}
	p.online.Store(true)
	return p, nil
}

// Online reports the result of the most recent check.
func (p *Probe) Online() bool {
	return p.online.Load()
}

// Addr returns the probed host:port.
func (p *Probe) Addr() string {
	return p.addr
}

// Check dials once and records the result.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.addr)
	ok := err == nil
	if ok {
		_ = conn.Close()
	}

	if prev := p.online.Swap(ok); prev != ok {
		if ok {
			slog.Info("connectivity restored", "addr", p.addr)
		} else {
			slog.Warn("connectivity lost", "addr", p.addr, "error", err)
		}
	}
	return ok
}

// Run checks immediately and then every interval until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
