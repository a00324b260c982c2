package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// MaxFetchDebounce bounds the fetch-cache debounce, configured or per request.
const MaxFetchDebounce = 5 * time.Second

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentdeck.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	return load(yamlPath, CLIFlags{})
}

// CLIFlags holds command-line overrides. Nil fields were not given.
type CLIFlags struct {
	ConfigPath  *string
	Port        *string
	LogLevel    *string
	Mode        *string
	IdentityURL *string
	NatsURL     *string
}

// ParseFlags parses server flags from args (without the program name).
func ParseFlags(args []string) (CLIFlags, error) {
	fs := pflag.NewFlagSet("agentdeck", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configPath := fs.StringP("config", "c", "", "path to YAML config file")
	port := fs.StringP("port", "p", "", "HTTP listen port")
	logLevel := fs.String("log-level", "", "log level (debug|info|warn|error)")
	mode := fs.String("mode", "", "runtime mode (development|production|test)")
	identityURL := fs.String("identity-url", "", "identity provider base URL")
	natsURL := fs.String("nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	if fs.Changed("config") {
		flags.ConfigPath = configPath
	}
	if fs.Changed("port") {
		flags.Port = port
	}
	if fs.Changed("log-level") {
		flags.LogLevel = logLevel
	}
	if fs.Changed("mode") {
		flags.Mode = mode
	}
	if fs.Changed("identity-url") {
		flags.IdentityURL = identityURL
	}
	if fs.Changed("nats-url") {
		flags.NatsURL = natsURL
	}
	return flags, nil
}

// LoadWithCLI loads configuration with CLI flags applied last. It returns
// the YAML path that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}
	cfg, err := load(path, flags)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func load(yamlPath string, flags CLIFlags) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTDECK_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTDECK_CORS_ORIGIN")

	// Identity
	setString(&cfg.Identity.URL, "AGENTDECK_IDENTITY_URL")
	setString(&cfg.Identity.AnonKey, "AGENTDECK_IDENTITY_ANON_KEY")
	setString(&cfg.Identity.Provider, "AGENTDECK_IDENTITY_PROVIDER")
	setDuration(&cfg.Identity.Timeout, "AGENTDECK_IDENTITY_TIMEOUT")
	setString(&cfg.Identity.SiteURL, "AGENTDECK_IDENTITY_SITE_URL")

	setString(&cfg.Features.Flags, "AGENTDECK_FEATURE_FLAGS")
	if v := os.Getenv("AGENTDECK_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}

	setString(&cfg.Logging.Level, "AGENTDECK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTDECK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTDECK_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "AGENTDECK_LOG_ASYNC_BUFFER")
	setInt(&cfg.Breaker.MaxFailures, "AGENTDECK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTDECK_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "AGENTDECK_RATE_RPS")
	setInt(&cfg.Rate.Burst, "AGENTDECK_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "AGENTDECK_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "AGENTDECK_RATE_MAX_IDLE_TIME")
	setInt(&cfg.SignIn.MaxAttempts, "AGENTDECK_SIGNIN_MAX_ATTEMPTS")
	setDuration(&cfg.SignIn.Window, "AGENTDECK_SIGNIN_WINDOW")

	// Simulation
	setDuration(&cfg.Simulation.TickInterval, "AGENTDECK_SIM_TICK_INTERVAL")
	setDuration(&cfg.Simulation.Latency, "AGENTDECK_SIM_LATENCY")
	setFloat64(&cfg.Simulation.FailureRate, "AGENTDECK_SIM_FAILURE_RATE")
	setDuration(&cfg.Simulation.RestartPause, "AGENTDECK_SIM_RESTART_PAUSE")
	setString(&cfg.Simulation.SeedFile, "AGENTDECK_SIM_SEED_FILE")

	// Cache
	setDuration(&cfg.Cache.TTL, "AGENTDECK_CACHE_TTL")
	setDuration(&cfg.Cache.Debounce, "AGENTDECK_CACHE_DEBOUNCE")
	setInt64(&cfg.Cache.L1MaxSizeMB, "AGENTDECK_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "AGENTDECK_CACHE_L2_BUCKET")
	setString(&cfg.Cache.PrefsBucket, "AGENTDECK_CACHE_PREFS_BUCKET")
	setList(&cfg.Cache.AllowedPrefixes, "AGENTDECK_CACHE_ALLOWED_PREFIXES")

	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.Connectivity.ProbeInterval, "AGENTDECK_PROBE_INTERVAL")
	setDuration(&cfg.Connectivity.ProbeTimeout, "AGENTDECK_PROBE_TIMEOUT")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "AGENTDECK_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "AGENTDECK_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "AGENTDECK_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "AGENTDECK_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "AGENTDECK_OTEL_SAMPLE_RATE")

	setBool(&cfg.HostSampling.Enabled, "AGENTDECK_HOST_SAMPLING")
	setDuration(&cfg.HostSampling.Interval, "AGENTDECK_HOST_SAMPLING_INTERVAL")

	setString(&cfg.Notify.SlackWebhookURL, "AGENTDECK_SLACK_WEBHOOK_URL")
	setList(&cfg.Notify.SlackLevels, "AGENTDECK_SLACK_LEVELS")
}

// applyCLI overlays command-line flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.Mode != nil {
		cfg.Mode = Mode(*flags.Mode)
	}
	if flags.IdentityURL != nil {
		cfg.Identity.URL = *flags.IdentityURL
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// validate checks required fields and ranges. Any error is fatal at startup.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Identity.URL == "" {
		return errors.New("identity.url is required (AGENTDECK_IDENTITY_URL)")
	}
	u, err := url.Parse(cfg.Identity.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("identity.url %q must be an absolute http(s) URL", cfg.Identity.URL)
	}
	if cfg.Identity.AnonKey == "" {
		return errors.New("identity.anon_key is required (AGENTDECK_IDENTITY_ANON_KEY)")
	}
	switch cfg.Identity.Provider {
	case "gotrue", "memory":
	default:
		return fmt.Errorf("identity.provider %q must be gotrue or memory", cfg.Identity.Provider)
	}
	if !cfg.Mode.Valid() {
		return fmt.Errorf("mode %q must be development, production or test", cfg.Mode)
	}
	if cfg.Logging.Async && cfg.Logging.AsyncBuffer < 1 {
		return errors.New("logging.async_buffer must be >= 1 when async logging is enabled")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Rate.CleanupInterval <= 0 {
		return errors.New("rate.cleanup_interval must be > 0")
	}
	if cfg.SignIn.MaxAttempts < 1 {
		return errors.New("signin.max_attempts must be >= 1")
	}
	if cfg.SignIn.Window <= 0 {
		return errors.New("signin.window must be > 0")
	}
	if cfg.Simulation.FailureRate < 0 || cfg.Simulation.FailureRate > 1 {
		return errors.New("simulation.failure_rate must be within [0, 1]")
	}
	if cfg.Simulation.TickInterval <= 0 {
		return errors.New("simulation.tick_interval must be > 0")
	}
	if cfg.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}
	if cfg.Cache.Debounce < 0 || cfg.Cache.Debounce > MaxFetchDebounce {
		return fmt.Errorf("cache.debounce must be within [0, %s]", MaxFetchDebounce)
	}
	if cfg.Connectivity.ProbeInterval <= 0 {
		return errors.New("connectivity.probe_interval must be > 0")
	}
	if cfg.Connectivity.ProbeTimeout <= 0 {
		return errors.New("connectivity.probe_timeout must be > 0")
	}
	if cfg.HostSampling.Enabled && cfg.HostSampling.Interval <= 0 {
		return errors.New("host_sampling.interval must be > 0 when sampling is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
