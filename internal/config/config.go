// Package config provides hierarchical configuration loading for AgentDeck.
// Precedence: defaults < YAML file < environment variables < CLI flags.
package config

import (
	"strings"
	"time"
)

// Config holds all runtime configuration for the AgentDeck service.
type Config struct {
	Server       Server       `yaml:"server"`
	Identity     Identity     `yaml:"identity"`
	Features     Features     `yaml:"features"`
	Mode         Mode         `yaml:"mode"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
	Rate         Rate         `yaml:"rate"`
	SignIn       SignIn       `yaml:"signin"`
	Simulation   Simulation   `yaml:"simulation"`
	Cache        Cache        `yaml:"cache"`
	NATS         NATS         `yaml:"nats"`
	Connectivity Connectivity `yaml:"connectivity"`
	OTEL         OTEL         `yaml:"otel"`
	HostSampling HostSampling `yaml:"host_sampling"`
	Notify       Notify       `yaml:"notify"`
}

// Mode is the enumerated runtime mode.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
	ModeTest        Mode = "test"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeDevelopment, ModeProduction, ModeTest:
		return true
	}
	return false
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Identity holds the identity provider connection.
type Identity struct {
	URL      string        `yaml:"url"`
	AnonKey  string        `yaml:"anon_key"`
	Provider string        `yaml:"provider"` // "gotrue" | "memory"
	Timeout  time.Duration `yaml:"timeout"`
	SiteURL  string        `yaml:"site_url"` // dashboard origin for auth redirects
}

// Features holds the optional feature-flag string (comma separated).
type Features struct {
	Flags string `yaml:"flags"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
	// AsyncBuffer is the number of records queued before the async
	// handler starts dropping.
	AsyncBuffer int `yaml:"async_buffer"`
}

// Breaker holds circuit breaker configuration for the identity client.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds the per-IP HTTP rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// SignIn holds the local sign-in attempt limit.
type SignIn struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

// Simulation holds the mocked agent backend and perturbation settings.
type Simulation struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Latency      time.Duration `yaml:"latency"`
	FailureRate  float64       `yaml:"failure_rate"`
	RestartPause time.Duration `yaml:"restart_pause"`
	SeedFile     string        `yaml:"seed_file"`
}

// Cache holds fetch-cache configuration. An empty AllowedPrefixes list
// disables the fetch proxy.
type Cache struct {
	TTL             time.Duration `yaml:"ttl"`
	Debounce        time.Duration `yaml:"debounce"` // default wait before a miss is fetched
	L1MaxSizeMB     int64         `yaml:"l1_max_size_mb"`
	L2Bucket        string        `yaml:"l2_bucket"`
	PrefsBucket     string        `yaml:"prefs_bucket"`
	AllowedPrefixes []string      `yaml:"allowed_prefixes"`
}

// NATS holds NATS JetStream configuration. An empty URL disables NATS.
type NATS struct {
	URL string `yaml:"url"`
}

// Connectivity holds the reachability probe settings.
type Connectivity struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// OTEL holds OpenTelemetry export configuration.
type OTEL struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// HostSampling controls host CPU/memory samples in the resource history.
type HostSampling struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Notify configures toast delivery beyond the dashboard. An empty Slack
// webhook disables Slack delivery.
type Notify struct {
	SlackWebhookURL string   `yaml:"slack_webhook_url"`
	SlackLevels     []string `yaml:"slack_levels"` // empty means all levels
}

// Defaults returns a Config with sensible default values for local development.
// The identity URL and anon key have no defaults and must be supplied.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:5173",
		},
		Identity: Identity{
			Provider: "gotrue",
			Timeout:  10 * time.Second,
			SiteURL:  "http://localhost:5173",
		},
		Mode: ModeDevelopment,
		Logging: Logging{
			Level:       "info",
			Service:     "agentdeck",
			AsyncBuffer: 4096,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		SignIn: SignIn{
			MaxAttempts: 5,
			Window:      300 * time.Second,
		},
		Simulation: Simulation{
			TickInterval: 5 * time.Second,
			Latency:      500 * time.Millisecond,
			FailureRate:  0.1,
			RestartPause: time.Second,
		},
		Cache: Cache{
			TTL:         5 * time.Minute,
			L1MaxSizeMB: 64,
			L2Bucket:    "AGENTDECK_FETCH",
			PrefsBucket: "AGENTDECK_PREFS",
		},
		Connectivity: Connectivity{
			ProbeInterval: 10 * time.Second,
			ProbeTimeout:  2 * time.Second,
		},
		OTEL: OTEL{
			Endpoint:    "localhost:4317",
			ServiceName: "agentdeck",
			Insecure:    true,
			SampleRate:  1.0,
		},
		HostSampling: HostSampling{
			Interval: time.Minute,
		},
		Notify: Notify{
			SlackLevels: []string{"error"},
		},
	}
}

// Enabled reports whether the named flag appears in the comma-separated
// flag string. Matching is case-insensitive and ignores surrounding spaces.
func (f Features) Enabled(name string) bool {
	for _, flag := range strings.Split(f.Flags, ",") {
		flag = strings.TrimSpace(flag)
		if flag != "" && strings.EqualFold(flag, name) {
			return true
		}
	}
	return false
}
