// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads mcpd configuration from defaults, a YAML file and
// MCPD_* environment variables, in that order.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

// Config is the daemon configuration.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Probe   ProbeConfig   `yaml:"probe"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ListenConfig configures the HTTP listener.
type ListenConfig struct {
	// Addr is the TCP address the API binds to.
	// Environment: MCPD_LISTEN_ADDR
	// Default: 127.0.0.1:7420
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// Secret is the HS256 key used to verify JWTs.
	// Environment: MCPD_JWT_SECRET
	Secret string `yaml:"jwt_secret,omitempty"`

	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer,omitempty"`

	// Disabled skips token verification and attributes every request to LocalUser.
	// Intended for single-user local setups.
	// Environment: MCPD_AUTH_DISABLED
	Disabled bool `yaml:"disabled,omitempty"`

	// LocalUser is the user id used when auth is disabled.
	// Default: local
	LocalUser string `yaml:"local_user,omitempty"`
}

// StoreConfig selects and tunes the persistent store.
type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	// Environment: MCPD_STORE_BACKEND
	// Default: sqlite
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	// Environment: MCPD_STORE_PATH
	// Default: $XDG_DATA_HOME/mcpd/mcpd.db
	Path string `yaml:"path,omitempty"`

	// WAL enables write-ahead logging.
	// Default: true
	WAL *bool `yaml:"wal,omitempty"`

	// WriteTimeout bounds every store write issued by the status sync queue.
	// Environment: MCPD_STORE_WRITE_TIMEOUT
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// WALEnabled reports whether write-ahead logging is on.
func (s StoreConfig) WALEnabled() bool {
	return s.WAL == nil || *s.WAL
}

// ProbeConfig is the readiness polling policy.
type ProbeConfig struct {
	// MaxAttempts is the attempt ceiling for a fresh probe.
	// Environment: MCPD_PROBE_MAX_ATTEMPTS
	// Default: 20
	MaxAttempts int `yaml:"max_attempts"`

	// ReuseAttempts is the attempt ceiling when re-checking an existing sandbox.
	// Environment: MCPD_PROBE_REUSE_ATTEMPTS
	// Default: 3
	ReuseAttempts int `yaml:"reuse_attempts"`

	// AttemptTimeout bounds a single GET.
	// Environment: MCPD_PROBE_ATTEMPT_TIMEOUT
	// Default: 5s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// BackoffStep is the linear backoff increment.
	// Environment: MCPD_PROBE_BACKOFF_STEP
	// Default: 1s
	BackoffStep time.Duration `yaml:"backoff_step"`

	// MaxBackoff caps the wait between attempts.
	// Environment: MCPD_PROBE_MAX_BACKOFF
	// Default: 5s
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// SandboxConfig configures the sandbox service client.
type SandboxConfig struct {
	// BaseURL of the sandbox service. Empty disables stdio servers.
	// Environment: MCPD_SANDBOX_URL
	BaseURL string `yaml:"base_url,omitempty"`

	// Token is sent as a bearer token to the sandbox service.
	// Environment: MCPD_SANDBOX_TOKEN
	Token string `yaml:"token,omitempty"`

	// Timeout bounds each sandbox call.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Rate is the sustained calls per second allowed to the sandbox service.
	// Default: 5
	Rate float64 `yaml:"rate,omitempty"`

	// Burst is the token bucket size.
	// Default: 10
	Burst int `yaml:"burst,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is trace, debug, info, warn or error.
	// Environment: LOG_LEVEL
	Level string `yaml:"level"`

	// Format is json or text.
	// Environment: LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource adds file:line to log records.
	AddSource bool `yaml:"add_source,omitempty"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	// Enabled turns span export on.
	// Environment: MCPD_TRACING_ENABLED
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this process in traces.
	// Default: mcpd
	ServiceName string `yaml:"service_name,omitempty"`

	// SampleRate is the fraction of traces recorded (0.0 - 1.0).
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// Exporter selects where spans go.
	Exporter ExporterConfig `yaml:"exporter"`
}

// ExporterConfig selects a span exporter.
type ExporterConfig struct {
	// Type is stdout, otlp (gRPC), otlp_http or none.
	// Environment: MCPD_TRACING_EXPORTER
	// Default: stdout
	Type string `yaml:"type"`

	// Endpoint is the collector address for otlp exporters.
	// Environment: MCPD_TRACING_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr:            "127.0.0.1:7420",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			LocalUser: "local",
		},
		Store: StoreConfig{
			Backend:      "sqlite",
			Path:         filepath.Join(DataDir(), "mcpd.db"),
			WriteTimeout: 5 * time.Second,
		},
		Probe: ProbeConfig{
			MaxAttempts:    20,
			ReuseAttempts:  3,
			AttemptTimeout: 5 * time.Second,
			BackoffStep:    time.Second,
			MaxBackoff:     5 * time.Second,
		},
		Sandbox: SandboxConfig{
			Timeout: 30 * time.Second,
			Rate:    5,
			Burst:   10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "mcpd",
			SampleRate:  1.0,
			Exporter:    ExporterConfig{Type: "stdout"},
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over the file, and overrides (such
// as command line flags) take precedence over both.
func Load(configPath string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &mcpderrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Listen.Addr == "" {
		c.Listen.Addr = defaults.Listen.Addr
	}
	if c.Listen.ShutdownTimeout == 0 {
		c.Listen.ShutdownTimeout = defaults.Listen.ShutdownTimeout
	}
	if c.Auth.LocalUser == "" {
		c.Auth.LocalUser = defaults.Auth.LocalUser
	}

	if c.Store.Backend == "" {
		c.Store.Backend = defaults.Store.Backend
	}
	if c.Store.Path == "" {
		c.Store.Path = defaults.Store.Path
	}
	if c.Store.WriteTimeout == 0 {
		c.Store.WriteTimeout = defaults.Store.WriteTimeout
	}

	if c.Probe.MaxAttempts == 0 {
		c.Probe.MaxAttempts = defaults.Probe.MaxAttempts
	}
	if c.Probe.ReuseAttempts == 0 {
		c.Probe.ReuseAttempts = defaults.Probe.ReuseAttempts
	}
	if c.Probe.AttemptTimeout == 0 {
		c.Probe.AttemptTimeout = defaults.Probe.AttemptTimeout
	}
	if c.Probe.BackoffStep == 0 {
		c.Probe.BackoffStep = defaults.Probe.BackoffStep
	}
	if c.Probe.MaxBackoff == 0 {
		c.Probe.MaxBackoff = defaults.Probe.MaxBackoff
	}

	if c.Sandbox.Timeout == 0 {
		c.Sandbox.Timeout = defaults.Sandbox.Timeout
	}
	if c.Sandbox.Rate == 0 {
		c.Sandbox.Rate = defaults.Sandbox.Rate
	}
	if c.Sandbox.Burst == 0 {
		c.Sandbox.Burst = defaults.Sandbox.Burst
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}
	if c.Tracing.Exporter.Type == "" {
		c.Tracing.Exporter.Type = defaults.Tracing.Exporter.Type
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv overrides fields from MCPD_* variables. Malformed numbers and
// durations are reported rather than silently ignored.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("MCPD_LISTEN_ADDR"); val != "" {
		c.Listen.Addr = val
	}

	if val := os.Getenv("MCPD_JWT_SECRET"); val != "" {
		c.Auth.Secret = val
	}
	if val := os.Getenv("MCPD_AUTH_DISABLED"); val != "" {
		c.Auth.Disabled = parseBool(val)
	}

	if val := os.Getenv("MCPD_STORE_BACKEND"); val != "" {
		c.Store.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("MCPD_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if err := envDuration("MCPD_STORE_WRITE_TIMEOUT", &c.Store.WriteTimeout); err != nil {
		return err
	}

	if err := envInt("MCPD_PROBE_MAX_ATTEMPTS", &c.Probe.MaxAttempts); err != nil {
		return err
	}
	if err := envInt("MCPD_PROBE_REUSE_ATTEMPTS", &c.Probe.ReuseAttempts); err != nil {
		return err
	}
	if err := envDuration("MCPD_PROBE_ATTEMPT_TIMEOUT", &c.Probe.AttemptTimeout); err != nil {
		return err
	}
	if err := envDuration("MCPD_PROBE_BACKOFF_STEP", &c.Probe.BackoffStep); err != nil {
		return err
	}
	if err := envDuration("MCPD_PROBE_MAX_BACKOFF", &c.Probe.MaxBackoff); err != nil {
		return err
	}

	if val := os.Getenv("MCPD_SANDBOX_URL"); val != "" {
		c.Sandbox.BaseURL = val
	}
	if val := os.Getenv("MCPD_SANDBOX_TOKEN"); val != "" {
		c.Sandbox.Token = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = parseBool(val)
	}

	if val := os.Getenv("MCPD_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = parseBool(val)
	}
	if val := os.Getenv("MCPD_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter.Type = strings.ToLower(val)
	}
	if val := os.Getenv("MCPD_TRACING_ENDPOINT"); val != "" {
		c.Tracing.Exporter.Endpoint = val
	}

	return nil
}

func parseBool(val string) bool {
	return val == "1" || strings.ToLower(val) == "true"
}

func envInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return &mcpderrors.ConfigError{Key: key, Reason: "must be an integer", Cause: err}
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return &mcpderrors.ConfigError{Key: key, Reason: "must be a duration", Cause: err}
	}
	*dst = d
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen.Addr == "" {
		return &mcpderrors.ConfigError{Key: "listen.addr", Reason: "is required"}
	}

	if !c.Auth.Disabled && c.Auth.Secret == "" {
		return &mcpderrors.ConfigError{Key: "auth.jwt_secret", Reason: "is required unless auth.disabled is set"}
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return &mcpderrors.ConfigError{Key: "store.path", Reason: "is required for the sqlite backend"}
		}
	case "memory":
	default:
		return &mcpderrors.ConfigError{Key: "store.backend", Reason: fmt.Sprintf("must be one of [sqlite, memory], got %q", c.Store.Backend)}
	}
	if c.Store.WriteTimeout <= 0 {
		return &mcpderrors.ConfigError{Key: "store.write_timeout", Reason: "must be positive"}
	}

	if err := c.Probe.Validate(); err != nil {
		return err
	}

	if c.Sandbox.BaseURL != "" {
		u, err := url.Parse(c.Sandbox.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &mcpderrors.ConfigError{Key: "sandbox.base_url", Reason: "must be an absolute http(s) URL", Cause: err}
		}
	}
	if c.Sandbox.Rate < 0 || c.Sandbox.Burst < 0 {
		return &mcpderrors.ConfigError{Key: "sandbox.rate", Reason: "rate and burst must not be negative"}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		return &mcpderrors.ConfigError{Key: "log.level", Reason: fmt.Sprintf("must be one of [trace, debug, info, warn, error], got %q", c.Log.Level)}
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return &mcpderrors.ConfigError{Key: "log.format", Reason: fmt.Sprintf("must be one of [json, text], got %q", c.Log.Format)}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return &mcpderrors.ConfigError{Key: "tracing.sample_rate", Reason: "must be between 0 and 1"}
	}
	switch c.Tracing.Exporter.Type {
	case "stdout", "none":
	case "otlp", "otlp_http":
		if c.Tracing.Enabled && c.Tracing.Exporter.Endpoint == "" {
			return &mcpderrors.ConfigError{Key: "tracing.exporter.endpoint", Reason: "is required for otlp exporters"}
		}
	default:
		return &mcpderrors.ConfigError{Key: "tracing.exporter.type", Reason: fmt.Sprintf("unknown exporter %q", c.Tracing.Exporter.Type)}
	}

	return nil
}

// Validate checks the probe policy on its own so hot reloads can reuse it.
func (p ProbeConfig) Validate() error {
	if p.MaxAttempts < 1 {
		return &mcpderrors.ConfigError{Key: "probe.max_attempts", Reason: "must be at least 1"}
	}
	if p.ReuseAttempts < 1 {
		return &mcpderrors.ConfigError{Key: "probe.reuse_attempts", Reason: "must be at least 1"}
	}
	if p.AttemptTimeout <= 0 {
		return &mcpderrors.ConfigError{Key: "probe.attempt_timeout", Reason: "must be positive"}
	}
	if p.BackoffStep < 0 || p.MaxBackoff < 0 {
		return &mcpderrors.ConfigError{Key: "probe.backoff_step", Reason: "backoff must not be negative"}
	}
	return nil
}
