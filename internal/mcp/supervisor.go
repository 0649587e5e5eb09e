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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcplog "github.com/maxbaines/ai-chatbot-plus/internal/log"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// ErrSupervisorClosed is returned by Start after Close.
var ErrSupervisorClosed = errors.New("supervisor closed")

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	Registry *Registry
	Sandbox  Sandbox
	Prober   *Prober
	Logger   *slog.Logger
}

// Supervisor drives the connection state machine of a registry's servers.
// It is the only writer of Status.
type Supervisor struct {
	reg     *Registry
	sandbox Sandbox
	prober  *Prober
	logger  *slog.Logger
	tracer  trace.Tracer

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor for reg. The sandbox defaults to the
// registry's.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sb := cfg.Sandbox
	if sb == nil {
		sb = cfg.Registry.sandbox
	}
	prober := cfg.Prober
	if prober == nil {
		prober = NewProber(DefaultProbePolicy(), logger)
	}
	return &Supervisor{
		reg:     cfg.Registry,
		sandbox: sb,
		prober:  prober,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
	}
}

// attempt is one start of one server.
type attempt struct {
	e      *entry
	gen    uint64
	ctx    context.Context
	server *store.Server
}

// Start connects a server and blocks until it reaches connected or error,
// or is superseded. Starting a server that is already connecting or
// connected returns its snapshot without doing anything.
//
// Connection failures are recorded on the server, not returned.
func (s *Supervisor) Start(ctx context.Context, id string) (*store.Server, error) {
	a, snap, err := s.begin(ctx, id)
	if err != nil || a == nil {
		return snap, err
	}
	s.run(a)
	return s.reg.Get(ctx, id)
}

// StartAsync is Start without the wait. It returns the connecting
// snapshot.
func (s *Supervisor) StartAsync(ctx context.Context, id string) (*store.Server, error) {
	a, snap, err := s.begin(ctx, id)
	if err != nil || a == nil {
		return snap, err
	}
	go s.run(a)
	return snap, nil
}

// begin moves the server to connecting and opens a new attempt. It returns
// a nil attempt when there is nothing to do.
func (s *Supervisor) begin(ctx context.Context, id string) (*attempt, *store.Server, error) {
	e, err := s.reg.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSupervisorClosed
	}

	if err := s.reg.lockLive(e, id); err != nil {
		return nil, nil, err
	}
	defer e.mu.Unlock()

	switch e.server.Status {
	case store.StatusConnecting, store.StatusConnected:
		return nil, e.server.Clone(), nil
	}

	e.gen++
	if e.cancel != nil {
		e.cancel()
	}
	// The attempt outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	snap := s.reg.transitionLocked(e, store.Patch{Status: store.Ptr(store.StatusConnecting)})
	s.wg.Add(1)
	return &attempt{e: e, gen: e.gen, ctx: runCtx, server: snap}, snap.Clone(), nil
}

// Stop disconnects a server. Any start in flight is superseded and makes
// no further writes. The record shows disconnected before the sandbox is
// torn down. The sandbox URL is dropped only once the sandbox service
// confirms the stop.
func (s *Supervisor) Stop(ctx context.Context, id string) (*store.Server, error) {
	ctx, span := s.tracer.Start(ctx, "mcp.stop", trace.WithAttributes(attribute.String("server.id", id)))
	defer span.End()

	e, err := s.reg.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.reg.lockLive(e, id); err != nil {
		return nil, err
	}
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	hadSandbox := e.server.Transport.Type == store.TransportStdio && e.server.SandboxURL != ""
	if hadSandbox {
		e.pendingTeardown = true
	}
	snap := s.reg.transitionLocked(e, store.Patch{Status: store.Ptr(store.StatusDisconnected)})
	e.mu.Unlock()

	if hadSandbox {
		s.reg.drainTeardown(ctx, e, id)
		e.mu.Lock()
		snap = e.server.Clone()
		e.mu.Unlock()
	}
	mcplog.WithServer(s.logger, id).Info("server stopped")
	return snap, nil
}

// Close cancels every start in flight and waits for them to finish.
// Cancelled starts record disconnected.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.reg.cancelAll()
	s.wg.Wait()
}

// errorPatch records a failed start.
func errorPatch(msg string) store.Patch {
	return store.Patch{Status: store.Ptr(store.StatusError), ErrorMessage: &msg}
}
