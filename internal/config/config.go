package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	Database    DatabaseConfig    `yaml:"database"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Security    SecurityConfig    `yaml:"security"`
	TLS         TLSConfig         `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type SandboxConfig struct {
	Backend          string        `yaml:"backend"`     // "auto" (default), "process", "docker" or "containerd"
	Interpreter      string        `yaml:"interpreter"` // python executable for the process backend
	Image            string        `yaml:"image"`       // python image for container backends
	ContainerdSocket string        `yaml:"containerd_socket"`
	Namespace        string        `yaml:"namespace"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	MaxTimeout       time.Duration `yaml:"max_timeout"`
	KillGrace        time.Duration `yaml:"kill_grace"` // bound on reaping a killed worker
	MaxConcurrent    int           `yaml:"max_concurrent"`
	DefaultLimits    DefaultLimits `yaml:"default_limits"`
}

type DefaultLimits struct {
	CPUShares int64 `yaml:"cpu_shares"`
	MemoryMB  int64 `yaml:"memory_mb"`
	PidsLimit int64 `yaml:"pids_limit"`
	DiskMB    int64 `yaml:"disk_mb"`
}

// DiagnosticsConfig sizes the source window attached to a diagnosis.
type DiagnosticsConfig struct {
	ContextBefore int `yaml:"context_before"`
	ContextAfter  int `yaml:"context_after"`
}

// SessionsConfig selects where playground session state lives.
type SessionsConfig struct {
	Driver string        `yaml:"driver"` // "memory" or "sqlite"
	Path   string        `yaml:"path"`   // sqlite database file
	TTL    time.Duration `yaml:"ttl"`    // idle sessions older than this are purged; 0 keeps them
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig toggles spans on the globally registered TracerProvider.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type SecurityConfig struct {
	APIKeyHeader   string   `yaml:"api_key_header"`
	AllowedKeys    []string `yaml:"allowed_keys"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS; "*" allows any origin
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	BlockCritical  bool     `yaml:"block_critical"` // reject snippets with critical escape detections
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads path when it exists and falls back to DefaultConfig otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	return Load(path)
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    40 * time.Second, // > max sandbox timeout + overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  2 << 20, // JSON-escaped 1MB snippet
		},
		Sandbox: SandboxConfig{
			Backend:          "auto",
			Interpreter:      "python3",
			Image:            "docker.io/library/python:3.12-slim",
			ContainerdSocket: "/run/containerd/containerd.sock",
			Namespace:        "playground",
			DefaultTimeout:   5 * time.Second,
			MaxTimeout:       30 * time.Second,
			KillGrace:        2 * time.Second,
			MaxConcurrent:    64,
			DefaultLimits: DefaultLimits{
				CPUShares: 512,
				MemoryMB:  256,
				PidsLimit: 16,
				DiskMB:    16,
			},
		},
		Diagnostics: DiagnosticsConfig{
			ContextBefore: 1,
			ContextAfter:  1,
		},
		Sessions: SessionsConfig{
			Driver: "memory",
			Path:   "playground.db",
			TTL:    24 * time.Hour,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
		Security: SecurityConfig{
			APIKeyHeader:   "X-API-Key",
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			BlockCritical:  true,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

var validBackends = map[string]bool{"auto": true, "process": true, "docker": true, "containerd": true}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if !validBackends[c.Sandbox.Backend] {
		return fmt.Errorf("sandbox.backend must be auto, process, docker or containerd, got %q", c.Sandbox.Backend)
	}
	if c.Sandbox.DefaultTimeout <= 0 {
		return fmt.Errorf("sandbox.default_timeout must be > 0")
	}
	if c.Sandbox.DefaultTimeout > c.Sandbox.MaxTimeout {
		return fmt.Errorf("sandbox.default_timeout (%s) must be <= max_timeout (%s)",
			c.Sandbox.DefaultTimeout, c.Sandbox.MaxTimeout)
	}
	if c.Sandbox.MaxConcurrent < 1 {
		return fmt.Errorf("sandbox.max_concurrent must be >= 1")
	}
	if c.Sandbox.DefaultLimits.MemoryMB < 16 {
		return fmt.Errorf("sandbox.default_limits.memory_mb must be >= 16")
	}
	if c.Diagnostics.ContextBefore < 0 || c.Diagnostics.ContextAfter < 0 {
		return fmt.Errorf("diagnostics context sizes must be >= 0")
	}
	switch c.Sessions.Driver {
	case "memory":
	case "sqlite":
		if c.Sessions.Path == "" {
			return fmt.Errorf("sessions.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("sessions.driver must be memory or sqlite, got %q", c.Sessions.Driver)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
