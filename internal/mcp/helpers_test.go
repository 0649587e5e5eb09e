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
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	"github.com/maxbaines/ai-chatbot-plus/internal/store/memory"
)

const testUser = "user-1"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() ProbePolicy {
	return ProbePolicy{
		MaxAttempts:    3,
		ReuseAttempts:  1,
		AttemptTimeout: 200 * time.Millisecond,
		BackoffStep:    10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}
}

// statusServer answers every request with code.
func statusServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// flakyStore fails UpdateServer while failUpdates is set.
type flakyStore struct {
	store.Store
	failUpdates atomic.Bool
	failDeletes atomic.Bool
	updates     atomic.Int32
}

func (f *flakyStore) UpdateServer(ctx context.Context, id, userID string, p store.Patch) (*store.Server, error) {
	f.updates.Add(1)
	if f.failUpdates.Load() {
		return nil, errors.New("database is locked")
	}
	return f.Store.UpdateServer(ctx, id, userID, p)
}

func (f *flakyStore) DeleteServer(ctx context.Context, id, userID string) error {
	if f.failDeletes.Load() {
		return errors.New("database is locked")
	}
	return f.Store.DeleteServer(ctx, id, userID)
}

// fakeSandbox hands out a fixed URL and records calls.
type fakeSandbox struct {
	mu       sync.Mutex
	url      string
	startErr error
	stopErr  error
	delay    time.Duration
	starts   []string
	stops    []string
}

func (f *fakeSandbox) Start(ctx context.Context, req SandboxRequest) (string, error) {
	f.mu.Lock()
	f.starts = append(f.starts, req.ID)
	url, err, delay := f.url, f.startErr, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return url, err
}

func (f *fakeSandbox) Stop(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, id)
	return f.stopErr
}

func (f *fakeSandbox) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeSandbox) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stops)
}

type harness struct {
	store   *flakyStore
	sandbox *fakeSandbox
	sync    *StatusSync
	reg     *Registry
	sup     *Supervisor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := &flakyStore{Store: memory.New()}
	sb := &fakeSandbox{}
	logger := testLogger()

	ss := NewStatusSync(SyncConfig{Store: st, UserID: testUser, WriteTimeout: time.Second, Logger: logger})
	reg := NewRegistry(RegistryConfig{
		UserID:  testUser,
		Store:   st,
		Sync:    ss,
		Sandbox: sb,
		Logger:  logger,
	})
	require.NoError(t, reg.Load(context.Background()))
	sup := NewSupervisor(SupervisorConfig{
		Registry: reg,
		Prober:   NewProber(fastPolicy(), logger),
		Logger:   logger,
	})
	t.Cleanup(func() {
		sup.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ss.Flush(ctx)
	})
	return &harness{store: st, sandbox: sb, sync: ss, reg: reg, sup: sup}
}

func (h *harness) createSSE(t *testing.T, name, url string) *store.Server {
	t.Helper()
	srv, err := h.reg.Create(context.Background(), ServerInput{
		Name:      name,
		Transport: store.Transport{Type: store.TransportSSE, URL: url},
	})
	require.NoError(t, err)
	return srv
}

func (h *harness) createStdio(t *testing.T, name string) *store.Server {
	t.Helper()
	srv, err := h.reg.Create(context.Background(), ServerInput{
		Name: name,
		Transport: store.Transport{
			Type:    store.TransportStdio,
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-everything"},
		},
	})
	require.NoError(t, err)
	return srv
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.sync.Flush(ctx))
}

// persisted reads the stored record after pending writes land.
func (h *harness) persisted(t *testing.T, id string) *store.Server {
	t.Helper()
	h.flush(t)
	s, err := h.store.GetServer(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (h *harness) status(t *testing.T, id string) store.Status {
	t.Helper()
	s, err := h.reg.Get(context.Background(), id)
	require.NoError(t, err)
	return s.Status
}
