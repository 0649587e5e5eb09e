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

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes and hands the new config to
// a callback. A file that fails to load or validate is logged and ignored;
// the previous config stays in effect.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	onChange  func(*Config)
	overrides []func(*Config)
	logger    *slog.Logger

	// debounceDelay collapses the burst of events editors emit on save
	debounceDelay time.Duration

	mu      sync.Mutex
	pending *time.Timer

	wg sync.WaitGroup
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the config file to watch.
	Path string

	// OnChange receives every successfully reloaded config.
	OnChange func(*Config)

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// DebounceDelay defaults to 200ms
	DebounceDelay time.Duration

	// Overrides are reapplied to every reload, as for Load.
	Overrides []func(*Config)
}

// NewWatcher creates a watcher. Call Run to start processing events.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", cfg.Path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors replace files by rename, which drops a
	// watch placed on the file itself.
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounceDelay := cfg.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	return &Watcher{
		fsWatcher:     fsWatcher,
		path:          absPath,
		onChange:      cfg.OnChange,
		overrides:     cfg.Overrides,
		logger:        logger,
		debounceDelay: debounceDelay,
	}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		if w.pending != nil && w.pending.Stop() {
			w.wg.Done()
		}
		w.mu.Unlock()
		w.wg.Wait()
		w.fsWatcher.Close()
	}()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil && w.pending.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.pending = time.AfterFunc(w.debounceDelay, func() {
		defer w.wg.Done()
		w.reload()
	})
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path, w.overrides...)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

// Watch is a convenience wrapper that creates a watcher and runs it in the
// background until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config), overrides ...func(*Config)) error {
	w, err := NewWatcher(WatcherConfig{
		Path:      path,
		OnChange:  onChange,
		Logger:    logger,
		Overrides: overrides,
	})
	if err != nil {
		return err
	}
	go w.Run(ctx)
	return nil
}
