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
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

const resourceServer = "server"

// entry is the in-memory record for one server.
//
// Lock order: sandboxMu before mu. mu is never held across network calls
// or store writes.
type entry struct {
	mu     sync.Mutex
	server *store.Server

	// gen identifies the current start attempt. Stop, Delete and a new
	// Start bump it so older attempts can tell they were superseded.
	gen    uint64
	cancel context.CancelFunc

	enabledSeq       uint64
	confirmedEnabled bool

	// pendingTeardown marks a sandbox that Stop, Update or Delete detached from
	// the record but has not yet stopped. Whoever next holds sandboxMu
	// stops it.
	pendingTeardown bool
	deleted         bool

	// sandboxMu serializes sandbox calls for the server.
	sandboxMu sync.Mutex
}

func newEntry(s *store.Server) *entry {
	return &entry{server: s, confirmedEnabled: s.Enabled}
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	UserID  string
	Store   store.Store
	Sync    *StatusSync
	Sandbox Sandbox
	Events  *EventEmitter
	Logger  *slog.Logger
}

// Registry is the authoritative set of one user's servers.
type Registry struct {
	userID  string
	store   store.Store
	sync    *StatusSync
	sandbox Sandbox
	events  *EventEmitter
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry. Call Load to populate it.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sb := cfg.Sandbox
	if sb == nil {
		sb = UnavailableSandbox{}
	}
	events := cfg.Events
	if events == nil {
		events = NewEventEmitter(logger)
	}
	ss := cfg.Sync
	if ss == nil {
		ss = NewStatusSync(SyncConfig{Store: cfg.Store, UserID: cfg.UserID, Logger: logger})
	}
	return &Registry{
		userID:  cfg.UserID,
		store:   cfg.Store,
		sync:    ss,
		sandbox: sb,
		events:  events,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// UserID returns the owner of every server in the registry.
func (r *Registry) UserID() string {
	return r.userID
}

// Load replaces the in-memory set with the persisted servers. On failure
// the previous set is kept.
//
// Servers already in memory keep their runtime state and take the
// persisted configuration. Servers persisted as connecting are loaded as
// disconnected, since no start is running for them.
func (r *Registry) Load(ctx context.Context) error {
	servers, err := r.store.ListServers(ctx, r.userID)
	if err != nil {
		return &mcpderrors.PersistenceError{Op: "list", Cause: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*entry, len(servers))
	for _, s := range servers {
		if e, ok := r.entries[s.ID]; ok && refreshConfig(e, s) {
			next[s.ID] = e
			continue
		}
		next[s.ID] = newEntry(normalizeLoaded(s))
	}

	for id, e := range r.entries {
		if _, ok := next[id]; ok {
			continue
		}
		e.mu.Lock()
		e.gen++
		if e.cancel != nil {
			e.cancel()
		}
		e.mu.Unlock()
	}

	r.entries = next
	r.logger.Debug("registry loaded", "count", len(next))
	return nil
}

// refreshConfig copies persisted configuration onto a live entry. It
// reports false for entries being deleted.
func refreshConfig(e *entry, s *store.Server) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return false
	}
	e.server.Name = s.Name
	e.server.Description = s.Description
	e.server.Transport = s.Transport.Clone()
	return true
}

// normalizeLoaded repairs records whose runtime fields cannot be trusted
// after a restart.
func normalizeLoaded(s *store.Server) *store.Server {
	s = s.Clone()
	if s.Status == store.StatusConnecting || !s.Status.Valid() {
		s.Status = store.StatusDisconnected
	}
	if s.Status != store.StatusError {
		s.ErrorMessage = ""
	} else if s.ErrorMessage == "" {
		s.ErrorMessage = "Unknown error"
	}
	if s.Transport.Type != store.TransportStdio {
		s.SandboxURL = ""
	}
	return s
}

// lookup finds the entry for id, loading it from the store when it is
// owned by the user but not yet in memory.
func (r *Registry) lookup(ctx context.Context, id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	s, err := r.store.GetServer(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, &mcpderrors.NotFoundError{Resource: resourceServer, ID: id}
	case err != nil:
		return nil, &mcpderrors.PersistenceError{Op: "get", Cause: err}
	case s.UserID != r.userID:
		return nil, &mcpderrors.OwnershipError{Resource: resourceServer, ID: id, UserID: r.userID}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	e = newEntry(normalizeLoaded(s))
	r.entries[id] = e
	return e, nil
}

// lockLive locks e.mu and fails if the server is being deleted.
func (r *Registry) lockLive(e *entry, id string) error {
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return &mcpderrors.NotFoundError{Resource: resourceServer, ID: id}
	}
	return nil
}

// Get returns a snapshot of one server.
func (r *Registry) Get(ctx context.Context, id string) (*store.Server, error) {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.lockLive(e, id); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.server.Clone(), nil
}

// List returns snapshots of the servers matching f, newest update first.
func (r *Registry) List(f Filter) []*store.Server {
	out := make([]*store.Server, 0)
	for _, s := range r.snapshot() {
		if f.match(s) {
			out = append(out, s)
		}
	}
	return out
}

// Summary counts the servers matching f.
func (r *Registry) Summary(f Filter) Summary {
	return Summarize(r.List(f))
}

// ActiveServers returns the servers the chat pipeline may use right now.
func (r *Registry) ActiveServers() []ActiveServer {
	return ActiveServers(r.snapshot())
}

func (r *Registry) snapshot() []*store.Server {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*store.Server, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.server.Clone())
		}
		e.mu.Unlock()
	}
	sortByUpdated(out)
	return out
}

// Create validates and persists a new server. New servers start
// disconnected and disabled.
func (r *Registry) Create(ctx context.Context, in ServerInput) (*store.Server, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	s := &store.Server{
		ID:          uuid.NewString(),
		UserID:      r.userID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Transport:   transportFor(in.Transport),
		Status:      store.StatusDisconnected,
	}
	saved, err := r.store.InsertServer(ctx, s)
	if err != nil {
		return nil, &mcpderrors.PersistenceError{Op: "insert", Cause: err}
	}

	r.mu.Lock()
	r.entries[saved.ID] = newEntry(saved.Clone())
	r.mu.Unlock()

	r.logger.Info("server created", "server_id", saved.ID, "transport", string(saved.Transport.Type))
	return saved.Clone(), nil
}

// Update replaces the configuration of a server. The in-memory record
// changes only once the write succeeds. Runtime fields are left alone
// unless the endpoint changes: then any start is superseded, a live
// server drops to disconnected and its sandbox is torn down.
func (r *Registry) Update(ctx context.Context, id string, in ServerInput) (*store.Server, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	e, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	desc := strings.TrimSpace(in.Description)
	transport := transportFor(in.Transport)
	p := store.Patch{Name: &name, Description: &desc, Transport: &transport}

	if err := r.lockLive(e, id); err != nil {
		return nil, err
	}
	detached := false
	if endpointChanged(e.server.Transport, transport) {
		detached = r.detachLocked(e)
	}
	done := r.sync.Submit(id, p, func(*store.Server) {
		e.mu.Lock()
		p.Apply(e.server)
		e.server.UpdatedAt = r.now()
		e.mu.Unlock()
	})
	e.mu.Unlock()

	if detached {
		r.drainTeardown(ctx, e, id)
	}
	if err := r.sync.Wait(ctx, done); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Duplicate copies a server's configuration under a new id. An empty name
// becomes "<name> (Copy)". The copy is disconnected and disabled.
func (r *Registry) Duplicate(ctx context.Context, id, name string) (*store.Server, error) {
	src, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = src.Name + " (Copy)"
	}
	return r.Create(ctx, ServerInput{
		Name:        name,
		Description: src.Description,
		Transport:   src.Transport,
	})
}

// SetEnabled flips the enabled flag immediately and persists it. If the
// write fails and no newer SetEnabled has happened since, the flag reverts
// and the reverted snapshot is returned with the error.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (*store.Server, error) {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.lockLive(e, id); err != nil {
		return nil, err
	}
	e.enabledSeq++
	seq := e.enabledSeq
	e.server.Enabled = enabled
	e.server.UpdatedAt = r.now()
	done := r.sync.Submit(id, store.Patch{Enabled: &enabled}, func(*store.Server) {
		e.mu.Lock()
		e.confirmedEnabled = enabled
		e.mu.Unlock()
	})
	e.mu.Unlock()

	werr := r.sync.Wait(ctx, done)

	e.mu.Lock()
	defer e.mu.Unlock()
	if werr != nil {
		if e.enabledSeq == seq {
			e.server.Enabled = e.confirmedEnabled
		}
		r.logger.Warn("enable flag not persisted", "server_id", id, "enabled", enabled, "error", werr)
		return e.server.Clone(), werr
	}
	return e.server.Clone(), nil
}

// Delete removes a server. A running start is cancelled and a live sandbox
// is stopped best-effort first. The server leaves memory only after the
// store delete succeeds.
func (r *Registry) Delete(ctx context.Context, id string) error {
	e, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := r.lockLive(e, id); err != nil {
		return err
	}
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.server.Transport.Type == store.TransportStdio && e.server.SandboxURL != "" {
		e.pendingTeardown = true
	}
	r.transitionLocked(e, store.Patch{Status: store.Ptr(store.StatusDisconnected)})
	e.deleted = true
	e.mu.Unlock()

	r.drainTeardown(ctx, e, id)

	if err := r.sync.Delete(ctx, id); err != nil {
		e.mu.Lock()
		e.deleted = false
		e.mu.Unlock()
		return err
	}

	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	r.events.EmitDeleted(r.userID, id)
	return nil
}

// endpointChanged reports whether a transport edit points the server
// somewhere else. Headers and streaming only shape requests from the chat
// pipeline and take effect without reconnecting.
func endpointChanged(old, next store.Transport) bool {
	return old.Type != next.Type ||
		old.URL != next.URL ||
		old.Command != next.Command ||
		!slices.Equal(old.Args, next.Args) ||
		!slices.Equal(old.Env, next.Env)
}

// detachLocked supersedes any start, moves a live server to disconnected
// and forgets its sandbox, which is stopped by the next drainTeardown. A
// sandbox running the previous configuration is never reused, so the URL
// goes even if that stop later fails. It reports whether a teardown is
// pending. The caller holds e.mu.
func (r *Registry) detachLocked(e *entry) bool {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	var p store.Patch
	switch e.server.Status {
	case store.StatusConnecting, store.StatusConnected:
		p.Status = store.Ptr(store.StatusDisconnected)
	}
	pending := e.server.Transport.Type == store.TransportStdio && e.server.SandboxURL != ""
	if pending {
		e.pendingTeardown = true
	}
	if e.server.SandboxURL != "" {
		p.SandboxURL = store.Ptr("")
	}
	if p.Status != nil || p.SandboxURL != nil {
		r.transitionLocked(e, p)
	}
	return pending
}

// current reports whether gen is still the live start attempt.
func (r *Registry) current(e *entry, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == gen && !e.deleted
}

// transition applies p if gen is still current. It returns the resulting
// snapshot and whether p was applied.
func (r *Registry) transition(e *entry, gen uint64, p store.Patch) (*store.Server, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.deleted {
		return e.server.Clone(), false
	}
	return r.transitionLocked(e, p), true
}

// transitionLocked applies a status patch and queues it for persistence.
// The caller holds e.mu. ErrorMessage is set exactly when Status is error.
// SandboxURL is only ever kept for stdio servers, and is cleared by
// clearSandboxURL once the sandbox service confirms a stop.
func (r *Registry) transitionLocked(e *entry, p store.Patch) *store.Server {
	from := e.server.Status
	if p.Status != nil {
		switch *p.Status {
		case store.StatusError:
			if p.ErrorMessage == nil || *p.ErrorMessage == "" {
				p.ErrorMessage = store.Ptr("Unknown error")
			}
		default:
			p.ErrorMessage = store.Ptr("")
		}
	}
	if e.server.Transport.Type != store.TransportStdio && p.SandboxURL != nil {
		p.SandboxURL = store.Ptr("")
	}

	p.Apply(e.server)
	e.server.UpdatedAt = r.now()
	r.sync.Enqueue(e.server.ID, p)

	if p.Status != nil && from != *p.Status {
		r.events.EmitTransition(r.userID, e.server.ID, from, *p.Status, e.server.ErrorMessage)
	}
	return e.server.Clone()
}

// drainTeardown stops a sandbox detached by Stop, Update or Delete, unless a newer
// start already did.
func (r *Registry) drainTeardown(ctx context.Context, e *entry, id string) {
	e.sandboxMu.Lock()
	defer e.sandboxMu.Unlock()
	r.takeTeardown(ctx, e, id)
}

// takeTeardown runs a pending teardown. The caller holds e.sandboxMu.
func (r *Registry) takeTeardown(ctx context.Context, e *entry, id string) {
	e.mu.Lock()
	pending := e.pendingTeardown
	e.pendingTeardown = false
	e.mu.Unlock()
	if pending {
		r.stopSandbox(ctx, e, id)
	}
}

// stopSandbox stops the sandbox for id. Failures are logged, never
// returned. A confirmed stop clears the recorded URL. After a failed stop
// the URL stays, so the next start re-checks that sandbox before asking
// for another one. The caller holds e.sandboxMu.
func (r *Registry) stopSandbox(ctx context.Context, e *entry, id string) {
	err := r.sandbox.Stop(context.WithoutCancel(ctx), id)
	recordSandboxCall("stop", err)
	if err != nil {
		r.logger.Warn("sandbox stop failed", "server_id", id, "error", err)
		return
	}
	r.events.EmitSandbox(r.userID, id, EventSandboxStopped, "")
	r.clearSandboxURL(e)
}

// clearSandboxURL forgets the sandbox of a server that is not connected.
func (r *Registry) clearSandboxURL(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server.SandboxURL == "" || e.server.Status == store.StatusConnected {
		return
	}
	r.transitionLocked(e, store.Patch{SandboxURL: store.Ptr("")})
}

// cancelAll cancels every running start without superseding it.
func (r *Registry) cancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.mu.Lock()
		if e.cancel != nil {
			e.cancel()
		}
		e.mu.Unlock()
	}
}
