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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maxbaines/ai-chatbot-plus/internal/config"
	mcplog "github.com/maxbaines/ai-chatbot-plus/internal/log"
)

// RunOptions configures daemon execution.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath is the YAML config file. Empty uses the default location
	// if a file exists there.
	ConfigPath string

	// Config overrides
	ListenAddr   string
	StoreBackend string
	StorePath    string
	NoAuth       bool
}

func (o RunOptions) apply(cfg *config.Config) {
	if o.ListenAddr != "" {
		cfg.Listen.Addr = o.ListenAddr
	}
	if o.StoreBackend != "" {
		cfg.Store.Backend = o.StoreBackend
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.NoAuth {
		cfg.Auth.Disabled = true
	}
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(opts RunOptions) error {
	path := ResolveConfigPath(opts.ConfigPath)
	cfg, err := config.Load(path, opts.apply)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := mcplog.New(&mcplog.Config{
		Level:     cfg.Log.Level,
		Format:    mcplog.Format(cfg.Log.Format),
		AddSource: cfg.Log.AddSource,
	})
	slog.SetDefault(logger)

	for _, p := range cfg.SensitivePaths(path) {
		for _, warning := range config.CheckPermissions(p) {
			logger.Warn("security warning", slog.String("warning", warning))
		}
	}

	if cfg.Auth.Disabled {
		logger.Warn("authentication is disabled; every request runs as the local user",
			slog.String("local_user", cfg.Auth.LocalUser))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := New(ctx, cfg, Options{
		Version:    opts.Version,
		Commit:     opts.Commit,
		BuildDate:  opts.BuildDate,
		ConfigPath: path,
		Overrides:  opts.apply,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	startErr := d.Start(ctx)
	if startErr != nil {
		logger.Error("daemon error", mcplog.Error(startErr))
	} else {
		logger.Info("shutting down")
	}

	// The signal context is already done; shutdown gets a fresh one.
	if err := d.Shutdown(context.Background()); err != nil {
		logger.Error("error during shutdown", mcplog.Error(err))
		if startErr == nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}
	if startErr != nil {
		return fmt.Errorf("daemon error: %w", startErr)
	}
	return nil
}

// ResolveConfigPath returns the explicit path, or the default config file
// when one exists.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	path, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
