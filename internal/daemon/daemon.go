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

// Package daemon assembles and runs mcpd: the store, the connection
// sessions, the sandbox client and the HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maxbaines/ai-chatbot-plus/internal/api"
	"github.com/maxbaines/ai-chatbot-plus/internal/config"
	mcplog "github.com/maxbaines/ai-chatbot-plus/internal/log"
	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	"github.com/maxbaines/ai-chatbot-plus/internal/store/memory"
	"github.com/maxbaines/ai-chatbot-plus/internal/store/sqlite"
	"github.com/maxbaines/ai-chatbot-plus/internal/tracing"
)

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath is watched for probe policy changes. Empty disables
	// watching.
	ConfigPath string

	// Overrides are reapplied when the watched config reloads.
	Overrides func(*config.Config)

	// Logger defaults to one built from the log config.
	Logger *slog.Logger

	// Registry receives metrics. Defaults to the Prometheus default
	// registry.
	Registry *prometheus.Registry
}

// Daemon is the mcpd process.
type Daemon struct {
	cfg      *config.Config
	opts     Options
	logger   *slog.Logger
	store    store.Store
	sessions *mcp.SessionManager
	provider *tracing.Provider
	server   *http.Server

	mu      sync.Mutex
	ln      net.Listener
	started bool
}

// New creates a new daemon instance. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = mcplog.New(&mcplog.Config{
			Level:     cfg.Log.Level,
			Format:    mcplog.Format(cfg.Log.Format),
			AddSource: cfg.Log.AddSource,
		})
	}
	logger = mcplog.WithComponent(logger, "daemon")

	provider, err := tracing.New(ctx, tracingConfig(cfg.Tracing, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	sandbox, err := newSandbox(cfg.Sandbox, logger)
	if err != nil {
		_ = st.Close()
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	sessions := mcp.NewSessionManager(mcp.SessionConfig{
		Store:        st,
		Sandbox:      sandbox,
		Probe:        probePolicy(cfg.Probe),
		WriteTimeout: cfg.Store.WriteTimeout,
		Logger:       mcplog.WithComponent(logger, "mcp"),
	})

	apiServer := api.New(api.Config{
		Sessions: sessions,
		Auth: api.AuthConfig{
			Secret:    []byte(cfg.Auth.Secret),
			Issuer:    cfg.Auth.Issuer,
			Disabled:  cfg.Auth.Disabled,
			LocalUser: cfg.Auth.LocalUser,
		},
		Metrics: provider.MetricsHandler(),
		Version: opts.Version,
		Logger:  mcplog.WithComponent(logger, "api"),
	})

	return &Daemon{
		cfg:      cfg,
		opts:     opts,
		logger:   logger,
		store:    st,
		sessions: sessions,
		provider: provider,
		server: &http.Server{
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "", "sqlite":
		st, err := sqlite.New(sqlite.Config{Path: cfg.Path, WAL: cfg.WALEnabled()})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newSandbox(cfg config.SandboxConfig, logger *slog.Logger) (mcp.Sandbox, error) {
	if cfg.BaseURL == "" {
		logger.Warn("no sandbox service configured, stdio servers cannot be started")
		return mcp.UnavailableSandbox{}, nil
	}
	sb, err := mcp.NewHTTPSandbox(mcp.SandboxConfig{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
		Rate:    cfg.Rate,
		Burst:   cfg.Burst,
		Logger:  mcplog.WithComponent(logger, "sandbox"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox client: %w", err)
	}
	attrs := []any{slog.String("base_url", cfg.BaseURL)}
	if cfg.Token != "" {
		attrs = append(attrs, slog.String("token", mcplog.SanitizeSecret(cfg.Token)))
	}
	logger.Info("sandbox service configured", attrs...)
	return sb, nil
}

func probePolicy(p config.ProbeConfig) mcp.ProbePolicy {
	return mcp.ProbePolicy{
		MaxAttempts:    p.MaxAttempts,
		ReuseAttempts:  p.ReuseAttempts,
		AttemptTimeout: p.AttemptTimeout,
		BackoffStep:    p.BackoffStep,
		MaxBackoff:     p.MaxBackoff,
	}
}

func tracingConfig(t config.TracingConfig, opts Options) tracing.Config {
	cfg := tracing.Config{
		Enabled:        t.Enabled,
		ServiceName:    t.ServiceName,
		ServiceVersion: opts.Version,
		SampleRate:     t.SampleRate,
		Exporter: tracing.ExporterConfig{
			Type:     t.Exporter.Type,
			Endpoint: t.Exporter.Endpoint,
			Insecure: t.Exporter.Insecure,
			Headers:  t.Exporter.Headers,
		},
	}
	if opts.Registry != nil {
		cfg.Registerer = opts.Registry
		cfg.Gatherer = opts.Registry
	}
	return cfg
}

// Listen binds the configured address. Start calls it when needed.
func (d *Daemon) Listen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", d.cfg.Listen.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Listen.Addr, err)
	}
	d.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Start serves the API until ctx is cancelled or the server fails.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.Listen(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}
	d.started = true
	ln := d.ln
	d.mu.Unlock()

	if d.opts.ConfigPath != "" {
		var overrides []func(*config.Config)
		if d.opts.Overrides != nil {
			overrides = append(overrides, d.opts.Overrides)
		}
		err := config.Watch(ctx, d.opts.ConfigPath, d.logger, func(cfg *config.Config) {
			d.sessions.SetProbePolicy(probePolicy(cfg.Probe))
			d.logger.Info("probe policy reloaded",
				slog.Int("max_attempts", cfg.Probe.MaxAttempts),
				slog.Duration("max_backoff", cfg.Probe.MaxBackoff))
		}, overrides...)
		if err != nil {
			d.logger.Warn("config watch disabled", mcplog.Error(err))
		}
	}

	d.logger.Info("mcpd starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()),
		slog.Bool("auth", !d.cfg.Auth.Disabled))

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, cancels in-flight connection attempts,
// drains status writes and closes the store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	timeout := d.cfg.Listen.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if d.started {
		d.server.SetKeepAlivesEnabled(false)
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Error("HTTP server shutdown error", mcplog.Error(err))
			errs = append(errs, err)
		}
	} else if d.ln != nil {
		_ = d.ln.Close()
	}

	if err := d.sessions.Close(ctx); err != nil {
		d.logger.Error("session shutdown error", mcplog.Error(err))
		errs = append(errs, err)
	}

	if err := d.provider.Shutdown(ctx); err != nil {
		d.logger.Error("OpenTelemetry provider shutdown error", mcplog.Error(err))
		errs = append(errs, err)
	}

	if err := d.store.Close(); err != nil {
		d.logger.Error("failed to close store", mcplog.Error(err))
		errs = append(errs, err)
	}

	d.started = false
	d.logger.Info("daemon stopped")
	return errors.Join(errs...)
}
