// ABOUTME: Configuration loading and parsing for the meta-orchestrator
// ABOUTME: Reads YAML or TOML files, expands ${VAR} references, and overlays recognized env vars

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete meta-orchestrator configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Control   ControlConfig   `yaml:"control" toml:"control"`
	Bus       BusConfig       `yaml:"bus" toml:"bus"`
	Agents    AgentsConfig    `yaml:"agents" toml:"agents"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
}

// ServerConfig holds listen addresses and optional TLS for the RPC port
type ServerConfig struct {
	RPCAddr     string `yaml:"rpc_addr" toml:"rpc_addr"`
	HTTPAddr    string `yaml:"http_addr" toml:"http_addr"`
	TLSCertFile string `yaml:"tls_cert_file" toml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" toml:"tls_key_file"`
}

// ControlConfig holds the control plane client settings
type ControlConfig struct {
	URL          string `yaml:"url" toml:"url"`
	MaxConns     int    `yaml:"max_conns" toml:"max_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" toml:"max_idle_conns"`

	Timeout        time.Duration `yaml:"-" toml:"-"`
	ConnectTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TimeoutRaw        string `yaml:"timeout" toml:"timeout"`
	ConnectTimeoutRaw string `yaml:"connect_timeout" toml:"connect_timeout"`
}

// BusConfig holds the durable stream settings. An empty URL disables the bus.
type BusConfig struct {
	URL             string   `yaml:"url" toml:"url"`
	Stream          string   `yaml:"stream" toml:"stream"`
	Group           string   `yaml:"group" toml:"group"`
	Consumer        string   `yaml:"consumer" toml:"consumer"`
	DeadLetter      string   `yaml:"dead_letter" toml:"dead_letter"`
	LegacyChannels  []string `yaml:"legacy_channels" toml:"legacy_channels"`
	MaxRetries      int      `yaml:"max_retries" toml:"max_retries"`
	TrimProbability float64  `yaml:"trim_probability" toml:"trim_probability"`
	TrimMaxLen      int64    `yaml:"trim_max_len" toml:"trim_max_len"`
}

// AgentsConfig holds liveness and queueing settings for connected agents
type AgentsConfig struct {
	HeartbeatAck  bool `yaml:"heartbeat_ack" toml:"heartbeat_ack"`
	QueueCapacity int  `yaml:"queue_capacity" toml:"queue_capacity"`

	StalenessThreshold time.Duration `yaml:"-" toml:"-"`
	CheckInterval      time.Duration `yaml:"-" toml:"-"`
	DedupeTTL          time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	StalenessThresholdRaw string `yaml:"staleness_threshold" toml:"staleness_threshold"`
	CheckIntervalRaw      string `yaml:"check_interval" toml:"check_interval"`
	DedupeTTLRaw          string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// Default returns the configuration used when no file is given. Durations
// are populated, so the result is valid without further parsing.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			RPCAddr:  "0.0.0.0:50051",
			HTTPAddr: "0.0.0.0:8081",
		},
		Control: ControlConfig{
			URL:               "http://nexus_cortex:8090",
			MaxConns:          50,
			MaxIdleConns:      20,
			Timeout:           10 * time.Second,
			ConnectTimeout:    5 * time.Second,
			TimeoutRaw:        "10s",
			ConnectTimeoutRaw: "5s",
		},
		Bus: BusConfig{
			URL:             "redis://nexus_redis:6379/0",
			Stream:          "nexus:commands:stream",
			Group:           "orchestrator_group",
			DeadLetter:      "nexus:commands:dlq",
			LegacyChannels:  []string{"nexus:events", "nexus:agents"},
			MaxRetries:      3,
			TrimProbability: 0.1,
			TrimMaxLen:      10000,
		},
		Agents: AgentsConfig{
			HeartbeatAck:          true,
			QueueCapacity:         100,
			StalenessThreshold:    60 * time.Second,
			CheckInterval:         15 * time.Second,
			DedupeTTL:             5 * time.Minute,
			StalenessThresholdRaw: "60s",
			CheckIntervalRaw:      "15s",
			DedupeTTLRaw:          "5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tailscale: TailscaleConfig{
			Hostname: "meta-orchestrator",
		},
	}
}

// Load builds a Config from defaults, the file at path (if any), and the
// process environment, in that order of precedence from lowest to highest.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded in the file.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables in the raw content
		expanded := expandEnvVars(string(data), getenv)

		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(expanded, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string, getenv func(string) string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyEnv overlays the recognized environment variables. Durations in the
// environment are plain seconds.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("CONTROL_URL"); v != "" {
		c.Control.URL = v
	}
	if v := getenv("BUS_URL"); v != "" {
		c.Bus.URL = v
	}
	if v := getenv("RPC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("RPC_PORT %q is not a valid port", v)
		}
		host, _, err := net.SplitHostPort(c.Server.RPCAddr)
		if err != nil {
			host = "0.0.0.0"
		}
		c.Server.RPCAddr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	if v := getenv("HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := getenv("STALENESS_THRESHOLD"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("STALENESS_THRESHOLD: %w", err)
		}
		c.Agents.StalenessThreshold = d
	}
	if v := getenv("STALENESS_CHECK_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("STALENESS_CHECK_INTERVAL: %w", err)
		}
		c.Agents.CheckInterval = d
	}
	if v := getenv("HEARTBEAT_ACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HEARTBEAT_ACK %q is not a boolean", v)
		}
		c.Agents.HeartbeatAck = b
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	return nil
}

// parseSeconds reads a number of seconds, fractional values allowed.
func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number of seconds", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The RPC address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.RPCAddr == "" {
		return fmt.Errorf("server.rpc_addr is required (or enable tailscale)")
	}

	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Control.URL == "" {
		return fmt.Errorf("control.url is required")
	}
	if u, err := url.Parse(c.Control.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("control.url %q must be an absolute URL", c.Control.URL)
	}

	if c.Bus.URL != "" {
		u, err := url.Parse(c.Bus.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
			return fmt.Errorf("bus.url %q must be a redis://, rediss:// or unix:// URL", c.Bus.URL)
		}
	}

	if c.Agents.StalenessThreshold <= 0 {
		return fmt.Errorf("agents.staleness_threshold must be positive")
	}
	if c.Agents.CheckInterval <= 0 {
		return fmt.Errorf("agents.check_interval must be positive")
	}
	if c.Agents.QueueCapacity <= 0 {
		return fmt.Errorf("agents.queue_capacity must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}

	return nil
}

// Warnings lists settings that are valid but probably unintended.
func (c *Config) Warnings() []string {
	var out []string
	if c.Agents.CheckInterval > c.Agents.StalenessThreshold {
		out = append(out, fmt.Sprintf(
			"agents.check_interval (%s) exceeds agents.staleness_threshold (%s); stale agents may linger up to one interval",
			c.Agents.CheckInterval, c.Agents.StalenessThreshold))
	}
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		out = append(out, "server.http_addr is empty; health and metrics endpoints are disabled")
	}
	if c.Bus.URL == "" {
		out = append(out, "bus.url is empty; durable command fan-out is disabled")
	}
	return out
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"control.timeout", cfg.Control.TimeoutRaw, &cfg.Control.Timeout},
		{"control.connect_timeout", cfg.Control.ConnectTimeoutRaw, &cfg.Control.ConnectTimeout},
		{"agents.staleness_threshold", cfg.Agents.StalenessThresholdRaw, &cfg.Agents.StalenessThreshold},
		{"agents.check_interval", cfg.Agents.CheckIntervalRaw, &cfg.Agents.CheckInterval},
		{"agents.dedupe_ttl", cfg.Agents.DedupeTTLRaw, &cfg.Agents.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
