package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/AgentDeck/internal/adapter/gotrue"
	"github.com/Strob0t/AgentDeck/internal/adapter/hostmetrics"
	adhttp "github.com/Strob0t/AgentDeck/internal/adapter/http"
	"github.com/Strob0t/AgentDeck/internal/adapter/memidentity"
	"github.com/Strob0t/AgentDeck/internal/adapter/memkv"
	"github.com/Strob0t/AgentDeck/internal/adapter/mockapi"
	adnats "github.com/Strob0t/AgentDeck/internal/adapter/nats"
	"github.com/Strob0t/AgentDeck/internal/adapter/natskv"
	"github.com/Strob0t/AgentDeck/internal/adapter/netprobe"
	adotel "github.com/Strob0t/AgentDeck/internal/adapter/otel"
	"github.com/Strob0t/AgentDeck/internal/adapter/ristretto"
	"github.com/Strob0t/AgentDeck/internal/adapter/slack"
	"github.com/Strob0t/AgentDeck/internal/adapter/tiered"
	"github.com/Strob0t/AgentDeck/internal/adapter/ws"
	"github.com/Strob0t/AgentDeck/internal/config"
	"github.com/Strob0t/AgentDeck/internal/domain/agent"
	"github.com/Strob0t/AgentDeck/internal/domain/user"
	"github.com/Strob0t/AgentDeck/internal/port/broadcast"
	"github.com/Strob0t/AgentDeck/internal/port/cache"
	"github.com/Strob0t/AgentDeck/internal/port/connectivity"
	"github.com/Strob0t/AgentDeck/internal/port/identity"
	"github.com/Strob0t/AgentDeck/internal/port/notifier"
	"github.com/Strob0t/AgentDeck/internal/resilience"
	"github.com/Strob0t/AgentDeck/internal/service"
)

// app holds the wired services and the resources they depend on.
type app struct {
	cfg *config.Config

	Hub    *ws.Hub
	Agents *service.AgentService
	Auth   *service.AuthService
	Chat   *service.ChatService
	Fetch  *service.FetchCache

	probe   *netprobe.Probe // nil unless the gotrue provider is used
	closers []func()
}

// buildApp wires adapters and services. NATS is optional: without it the
// fetch cache is L1 only and preferences live in process memory.
func buildApp(ctx context.Context, cfg *config.Config, metrics *adotel.Metrics) (*app, error) {
	a := &app{cfg: cfg}

	// NATS
	var queue *adnats.Queue
	if cfg.NATS.URL != "" {
		q, err := adnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		queue = q
		a.closers = append(a.closers, func() { _ = q.Close() })
	}

	// Caches
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	a.closers = append(a.closers, l1.Close)

	var fetchStore cache.Cache = l1
	var prefStore cache.Cache = memkv.New()
	if queue != nil {
		fetchKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.TTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		prefKV, err := queue.KeyValue(ctx, cfg.Cache.PrefsBucket, 0)
		if err != nil {
			a.Close()
			return nil, err
		}
		fetchStore = tiered.New(l1, natskv.New(fetchKV), cfg.Cache.TTL)
		prefStore = natskv.New(prefKV)
	}

	// Identity provider and connectivity
	provider, probe, err := newIdentityProvider(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	var online connectivity.Checker = connectivity.Always(true)
	if probe != nil {
		a.probe = probe
		online = probe
	}

	// Live updates and toasts
	var agents *service.AgentService
	a.Hub = ws.NewHub(cfg.Server.CORSOrigin, func(context.Context) []ws.Message {
		msg, err := ws.NewMessage(ws.EventAgentsSnapshot, agents.Snapshot())
		if err != nil {
			slog.Error("marshal snapshot", "error", err)
			return nil
		}
		return []ws.Message{msg}
	})
	var events broadcast.Broadcaster = a.Hub
	if queue != nil {
		events = broadcast.Multi{a.Hub, adnats.NewPublisher(queue)}
	}

	toasts := service.NewNotificationService(ws.NewNotifier(a.Hub))
	if cfg.Notify.SlackWebhookURL != "" {
		levels := make([]notifier.Level, 0, len(cfg.Notify.SlackLevels))
		for _, l := range cfg.Notify.SlackLevels {
			levels = append(levels, notifier.Level(l))
		}
		toasts.Add(slack.NewNotifier(cfg.Notify.SlackWebhookURL), levels...)
	}

	// Services
	backend := mockapi.New(cfg.Simulation.Latency, cfg.Simulation.FailureRate)
	agents = service.NewAgentService(backend, events, toasts, cfg.Simulation)
	agents.SetMetrics(metrics)
	a.Agents = agents
	a.closers = append(a.closers, agents.Close)

	if err := metrics.RegisterAgentGauge(agents.StatusCounts); err != nil {
		slog.Warn("agent gauge registration failed", "error", err)
	}

	a.Auth = service.NewAuthService(provider, online, service.NewPreferences(prefStore), events, toasts, cfg.SignIn, cfg.Identity.SiteURL)
	a.Auth.SetMetrics(metrics)
	a.closers = append(a.closers, a.Auth.Close)

	a.Chat = service.NewChatService()

	a.Fetch = service.NewFetchCache(fetchStore, &http.Client{Timeout: cfg.Identity.Timeout}, cfg.Cache)
	a.Fetch.SetMetrics(metrics)
	if len(cfg.Cache.AllowedPrefixes) == 0 {
		slog.Warn("cache.allowed_prefixes is empty; /api/v1/fetch rejects every url")
	}

	slog.Info("services wired",
		"notifiers", toasts.NotifierCount(),
		"fetch_l2", queue != nil,
	)
	return a, nil
}

// newIdentityProvider builds the configured identity provider. The probe is
// nil for the in-memory provider, which is always reachable.
func newIdentityProvider(cfg *config.Config) (identity.Provider, *netprobe.Probe, error) {
	switch cfg.Identity.Provider {
	case "memory":
		slog.Warn("using in-memory identity provider; accounts are lost on restart")
		return memidentity.New(user.DefaultPasswordPolicy()), nil, nil
	default:
		client := gotrue.NewClient(cfg.Identity.URL, cfg.Identity.AnonKey, cfg.Identity.Timeout)
		client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

		probe, err := netprobe.New(cfg.Identity.URL, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connectivity probe: %w", err)
		}
		return client, probe, nil
	}
}

// Handlers returns the HTTP handlers for the wired services.
func (a *app) Handlers() *adhttp.Handlers {
	return &adhttp.Handlers{
		Agents: a.Agents,
		Auth:   a.Auth,
		Chat:   a.Chat,
		Cache:  a.Fetch,
	}
}

// StartBackground runs the connectivity probe and host sampler in g.
func (a *app) StartBackground(ctx context.Context, g *errgroup.Group) {
	if a.probe != nil {
		g.Go(func() error {
			a.probe.Run(ctx)
			return nil
		})
	}
	if a.cfg.HostSampling.Enabled {
		sampler := hostmetrics.New()
		g.Go(func() error {
			sampler.Run(ctx, a.cfg.HostSampling.Interval, func(s agent.ResourceSample) {
				a.Agents.AppendResourceSample(ctx, s)
			})
			return nil
		})
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
