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

package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	mcplog "github.com/maxbaines/ai-chatbot-plus/internal/log"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// Session holds the registry and supervisor of one user.
type Session struct {
	UserID     string
	Registry   *Registry
	Supervisor *Supervisor
	Sync       *StatusSync
}

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	Store        store.Store
	Sandbox      Sandbox
	Probe        ProbePolicy
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Events       *EventEmitter
}

// SessionManager creates sessions on first use and keeps them until Close.
type SessionManager struct {
	cfg    SessionConfig
	prober *Prober
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*sessionSlot
}

type sessionSlot struct {
	ready chan struct{}
	sess  *Session
	err   error
}

// ErrSessionsClosed is returned by Get after Close.
var ErrSessionsClosed = errors.New("session manager closed")

// NewSessionManager creates a session manager. All sessions share one
// prober so a policy change reaches every user.
func NewSessionManager(cfg SessionConfig) *SessionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sandbox == nil {
		cfg.Sandbox = UnavailableSandbox{}
	}
	if cfg.Probe.MaxAttempts == 0 {
		cfg.Probe = DefaultProbePolicy()
	}
	if cfg.Events == nil {
		cfg.Events = NewEventEmitter(logger)
	}
	return &SessionManager{
		cfg:      cfg,
		prober:   NewProber(cfg.Probe, logger),
		logger:   logger,
		sessions: make(map[string]*sessionSlot),
	}
}

// Get returns the session for userID, creating and loading it if needed.
// A session whose load fails is not kept, so the next call retries.
func (m *SessionManager) Get(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSessionsClosed
	}
	slot, ok := m.sessions[userID]
	if !ok {
		slot = &sessionSlot{ready: make(chan struct{})}
		m.sessions[userID] = slot
	}
	m.mu.Unlock()

	if ok {
		select {
		case <-slot.ready:
			return slot.sess, slot.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sess, err := m.newSession(ctx, userID)
	slot.sess, slot.err = sess, err
	if err != nil {
		m.mu.Lock()
		if m.sessions[userID] == slot {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
	}
	close(slot.ready)
	return sess, err
}

func (m *SessionManager) newSession(ctx context.Context, userID string) (*Session, error) {
	logger := mcplog.WithUser(m.logger, userID)
	ss := NewStatusSync(SyncConfig{
		Store:        m.cfg.Store,
		UserID:       userID,
		WriteTimeout: m.cfg.WriteTimeout,
		Logger:       logger,
	})
	reg := NewRegistry(RegistryConfig{
		UserID:  userID,
		Store:   m.cfg.Store,
		Sync:    ss,
		Sandbox: m.cfg.Sandbox,
		Events:  m.cfg.Events,
		Logger:  logger,
	})
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}
	sup := NewSupervisor(SupervisorConfig{
		Registry: reg,
		Prober:   m.prober,
		Logger:   logger,
	})
	m.logger.Debug("session created", "user_id", userID)
	return &Session{UserID: userID, Registry: reg, Supervisor: sup, Sync: ss}, nil
}

// SetProbePolicy changes the readiness policy for every session.
func (m *SessionManager) SetProbePolicy(p ProbePolicy) {
	m.prober.SetPolicy(p)
	m.logger.Info("probe policy updated",
		"max_attempts", p.MaxAttempts,
		"reuse_attempts", p.ReuseAttempts,
		"attempt_timeout", p.AttemptTimeout,
	)
}

// Close cancels every start in flight and waits for pending writes.
func (m *SessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	slots := make([]*sessionSlot, 0, len(m.sessions))
	for _, slot := range m.sessions {
		slots = append(slots, slot)
	}
	m.mu.Unlock()

	var errs []error
	for _, slot := range slots {
		select {
		case <-slot.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		if slot.sess == nil {
			continue
		}
		slot.sess.Supervisor.Close()
		if err := slot.sess.Sync.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
