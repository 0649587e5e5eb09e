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
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	"github.com/maxbaines/ai-chatbot-plus/internal/store/memory"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

func TestRegistry_CreateDefaults(t *testing.T) {
	h := newHarness(t)

	srv := h.createSSE(t, "  Search  ", "https://example.com/sse")

	assert.NotEmpty(t, srv.ID)
	assert.Equal(t, testUser, srv.UserID)
	assert.Equal(t, "Search", srv.Name)
	assert.Equal(t, store.StatusDisconnected, srv.Status)
	assert.False(t, srv.Enabled)
	assert.Empty(t, srv.ErrorMessage)
	assert.False(t, srv.CreatedAt.IsZero())

	got, err := h.reg.Get(context.Background(), srv.ID)
	require.NoError(t, err)
	assert.Equal(t, srv.ID, got.ID)
}

func TestRegistry_CreateRejectsInvalid(t *testing.T) {
	h := newHarness(t)

	_, err := h.reg.Create(context.Background(), ServerInput{
		Name:      "bad",
		Transport: store.Transport{Type: store.TransportSSE, URL: "not-a-url"},
	})
	assert.True(t, mcpderrors.IsValidation(err))
	assert.Empty(t, h.reg.List(Filter{}))
}

func TestRegistry_LookupErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.reg.Get(ctx, "missing")
	assert.True(t, mcpderrors.IsNotFound(err))

	_, err = h.store.InsertServer(ctx, &store.Server{
		ID:        "theirs",
		UserID:    "someone-else",
		Name:      "theirs",
		Transport: store.Transport{Type: store.TransportSSE, URL: "https://example.com"},
		Status:    store.StatusDisconnected,
	})
	require.NoError(t, err)

	_, err = h.reg.Get(ctx, "theirs")
	assert.True(t, mcpderrors.IsOwnership(err))
	_, err = h.reg.Update(ctx, "theirs", ServerInput{Name: "x", Transport: store.Transport{Type: store.TransportSSE, URL: "https://example.com"}})
	assert.True(t, mcpderrors.IsOwnership(err))
	assert.True(t, mcpderrors.IsOwnership(h.reg.Delete(ctx, "theirs")))
	_, err = h.reg.SetEnabled(ctx, "theirs", true)
	assert.True(t, mcpderrors.IsOwnership(err))
	_, err = h.sup.Start(ctx, "theirs")
	assert.True(t, mcpderrors.IsOwnership(err))
}

func TestRegistry_Update(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srv := h.createSSE(t, "Search", "https://example.com/sse")

	updated, err := h.reg.Update(ctx, srv.ID, ServerInput{
		Name:        "Search v2",
		Description: "new",
		Transport: store.Transport{
			Type:    store.TransportSSE,
			URL:     "https://example.com/v2",
			Headers: []store.KeyValue{{Key: "X-Key", Value: "1"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Search v2", updated.Name)
	assert.Equal(t, "https://example.com/v2", updated.Transport.URL)
	assert.Equal(t, store.StatusDisconnected, updated.Status)

	persisted := h.persisted(t, srv.ID)
	assert.Equal(t, "Search v2", persisted.Name)
	assert.Equal(t, []store.KeyValue{{Key: "X-Key", Value: "1"}}, persisted.Transport.Headers)
}

func TestRegistry_UpdateFailureLeavesMemory(t *testing.T) {
	h := newHarness(t)
	srv := h.createSSE(t, "Search", "https://example.com/sse")
	h.store.failUpdates.Store(true)

	_, err := h.reg.Update(context.Background(), srv.ID, ServerInput{
		Name:      "Renamed",
		Transport: store.Transport{Type: store.TransportSSE, URL: "https://example.com/sse"},
	})
	assert.True(t, mcpderrors.IsPersistence(err))

	got, err := h.reg.Get(context.Background(), srv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Search", got.Name)
}

func TestRegistry_UpdateEndpointDetachesLiveServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ready := statusServer(t, http.StatusOK)
	h.sandbox.url = ready.URL
	srv := h.createStdio(t, "fs")

	started, err := h.sup.Start(ctx, srv.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusConnected, started.Status)
	_, err = h.reg.SetEnabled(ctx, srv.ID, true)
	require.NoError(t, err)

	updated, err := h.reg.Update(ctx, srv.ID, ServerInput{
		Name:      "fs",
		Transport: store.Transport{Type: store.TransportSSE, URL: "http://unreachable.invalid/sse"},
	})
	require.NoError(t, err)
	assert.Equal(t, store.TransportSSE, updated.Transport.Type)
	assert.Equal(t, store.StatusDisconnected, updated.Status)
	assert.Empty(t, updated.SandboxURL)
	assert.Equal(t, 1, h.sandbox.stopCount())
	assert.Empty(t, h.reg.ActiveServers())

	persisted := h.persisted(t, srv.ID)
	assert.Equal(t, store.TransportSSE, persisted.Transport.Type)
	assert.Equal(t, store.StatusDisconnected, persisted.Status)
	assert.Empty(t, persisted.SandboxURL)
}

func TestRegistry_UpdateEndpointChanges(t *testing.T) {
	stdio := store.Transport{Type: store.TransportStdio, Command: "npx", Args: []string{"-y", "server"}}
	tests := []struct {
		name       string
		next       store.Transport
		wantStatus store.Status
		wantStops  int
	}{
		{
			name:       "new args",
			next:       store.Transport{Type: store.TransportStdio, Command: "npx", Args: []string{"-y", "server@2"}},
			wantStatus: store.StatusDisconnected,
			wantStops:  1,
		},
		{
			name: "new env",
			next: store.Transport{Type: store.TransportStdio, Command: "npx", Args: []string{"-y", "server"},
				Env: []store.KeyValue{{Key: "ROOT", Value: "/data"}}},
			wantStatus: store.StatusDisconnected,
			wantStops:  1,
		},
		{
			name:       "same endpoint",
			next:       stdio,
			wantStatus: store.StatusConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.sandbox.url = statusServer(t, http.StatusOK).URL
			srv, err := h.reg.Create(ctx, ServerInput{Name: "fs", Transport: stdio})
			require.NoError(t, err)
			_, err = h.sup.Start(ctx, srv.ID)
			require.NoError(t, err)

			updated, err := h.reg.Update(ctx, srv.ID, ServerInput{Name: "fs renamed", Transport: tt.next})
			require.NoError(t, err)
			assert.Equal(t, "fs renamed", updated.Name)
			assert.Equal(t, tt.wantStatus, updated.Status)
			assert.Equal(t, tt.wantStops, h.sandbox.stopCount())
			assert.Equal(t, tt.wantStatus, h.persisted(t, srv.ID).Status)
		})
	}
}

func TestRegistry_UpdateHeadersKeepsConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ready := statusServer(t, http.StatusOK)
	srv := h.createSSE(t, "Search", ready.URL)
	_, err := h.sup.Start(ctx, srv.ID)
	require.NoError(t, err)

	updated, err := h.reg.Update(ctx, srv.ID, ServerInput{
		Name: "Search",
		Transport: store.Transport{
			Type:    store.TransportSSE,
			URL:     ready.URL,
			Headers: []store.KeyValue{{Key: "Authorization", Value: "Bearer t"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusConnected, updated.Status)
	assert.Equal(t, []store.KeyValue{{Key: "Authorization", Value: "Bearer t"}}, updated.Transport.Headers)
}

func TestRegistry_Duplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	srv, err := h.reg.Create(ctx, ServerInput{
		Name:        "Foo",
		Description: "tools",
		Transport: store.Transport{
			Type:    store.TransportSSE,
			URL:     "https://example.com/sse",
			Headers: []store.KeyValue{{Key: "A", Value: "1"}},
		},
	})
	require.NoError(t, err)
	_, err = h.reg.SetEnabled(ctx, srv.ID, true)
	require.NoError(t, err)

	dup, err := h.reg.Duplicate(ctx, srv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Foo (Copy)", dup.Name)
	assert.NotEqual(t, srv.ID, dup.ID)
	assert.Equal(t, store.StatusDisconnected, dup.Status)
	assert.False(t, dup.Enabled)
	assert.Empty(t, dup.SandboxURL)
	assert.Equal(t, "tools", dup.Description)
	assert.Equal(t, srv.Transport, dup.Transport)

	named, err := h.reg.Duplicate(ctx, srv.ID, "Bar")
	require.NoError(t, err)
	assert.Equal(t, "Bar", named.Name)
	assert.Len(t, h.reg.List(Filter{}), 3)
}

func TestRegistry_DuplicateStdioDropsSandbox(t *testing.T) {
	h := newHarness(t)
	ready := statusServer(t, 200)
	h.sandbox.url = ready.URL
	srv := h.createStdio(t, "fs")

	started, err := h.sup.Start(context.Background(), srv.ID)
	require.NoError(t, err)
	require.Equal(t, ready.URL, started.SandboxURL)

	dup, err := h.reg.Duplicate(context.Background(), srv.ID, "")
	require.NoError(t, err)
	assert.Empty(t, dup.SandboxURL)
	assert.Equal(t, store.StatusDisconnected, dup.Status)
	assert.Equal(t, srv.Transport.Args, dup.Transport.Args)
}

func TestRegistry_SetEnabled(t *testing.T) {
	h := newHarness(t)
	srv := h.createSSE(t, "Search", "https://example.com/sse")

	got, err := h.reg.SetEnabled(context.Background(), srv.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, h.persisted(t, srv.ID).Enabled)
}

func TestRegistry_SetEnabledRollsBack(t *testing.T) {
	h := newHarness(t)
	srv := h.createSSE(t, "Search", "https://example.com/sse")
	h.store.failUpdates.Store(true)

	got, err := h.reg.SetEnabled(context.Background(), srv.ID, true)
	require.Error(t, err)
	assert.True(t, mcpderrors.IsPersistence(err))
	assert.False(t, got.Enabled)

	mem, err := h.reg.Get(context.Background(), srv.ID)
	require.NoError(t, err)
	assert.False(t, mem.Enabled)

	h.store.failUpdates.Store(false)
	assert.False(t, h.persisted(t, srv.ID).Enabled)
}

// gatedStore blocks the first enable write until released, then fails it.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
	first   sync.Once
}

func (g *gatedStore) UpdateServer(ctx context.Context, id, userID string, p store.Patch) (*store.Server, error) {
	if p.Enabled != nil {
		gated := false
		g.first.Do(func() { gated = true })
		if gated {
			close(g.entered)
			<-g.release
			return nil, errors.New("database is locked")
		}
	}
	return g.Store.UpdateServer(ctx, id, userID, p)
}

func TestRegistry_SetEnabledRollbackKeepsNewerIntent(t *testing.T) {
	st := &gatedStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	ss := NewStatusSync(SyncConfig{Store: st, UserID: testUser, Logger: testLogger()})
	reg := NewRegistry(RegistryConfig{UserID: testUser, Store: st, Sync: ss, Logger: testLogger()})
	ctx := context.Background()

	srv, err := reg.Create(ctx, ServerInput{
		Name:      "Search",
		Transport: store.Transport{Type: store.TransportSSE, URL: "https://example.com/sse"},
	})
	require.NoError(t, err)
	e, err := reg.lookup(ctx, srv.ID)
	require.NoError(t, err)

	firstErr := make(chan error, 1)
	go func() {
		_, err := reg.SetEnabled(ctx, srv.ID, true)
		firstErr <- err
	}()
	<-st.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := reg.SetEnabled(ctx, srv.ID, true)
		secondErr <- err
	}()
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.enabledSeq == 2
	}, time.Second, 5*time.Millisecond)

	close(st.release)
	assert.Error(t, <-firstErr)
	assert.NoError(t, <-secondErr)

	got, err := reg.Get(ctx, srv.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled, "the newer request wins over the failed older one")
}

// slowServer answers 200 after delay.
func slowServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistry_SetEnabledRacingStartKeepsBothFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srv := h.createSSE(t, "Search", slowServer(t, 30*time.Millisecond).URL)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.sup.Start(ctx, srv.ID)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := h.reg.SetEnabled(ctx, srv.ID, true)
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := h.reg.Get(ctx, srv.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, store.StatusConnected, got.Status)

	persisted := h.persisted(t, srv.ID)
	assert.True(t, persisted.Enabled)
	assert.Equal(t, store.StatusConnected, persisted.Status)
	assert.Empty(t, persisted.ErrorMessage)
}

func TestRegistry_SetEnabledRacingStopKeepsBothFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	srv := h.createSSE(t, "Search", slowServer(t, 30*time.Millisecond).URL)

	_, err := h.sup.StartAsync(ctx, srv.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := h.sup.Stop(ctx, srv.ID)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := h.reg.SetEnabled(ctx, srv.ID, true)
		assert.NoError(t, err)
	}()
	wg.Wait()
	h.sup.Close()

	persisted := h.persisted(t, srv.ID)
	assert.True(t, persisted.Enabled)
	assert.Equal(t, store.StatusDisconnected, persisted.Status)
	assert.Empty(t, h.reg.ActiveServers())
}

func TestRegistry_ListAndSummary(t *testing.T) {
	h := newHarness(t)
	a := h.createSSE(t, "Alpha", "https://a.example/sse")
	h.createStdio(t, "Beta")
	_, err := h.reg.Update(context.Background(), a.ID, ServerInput{
		Name:      "Alpha",
		Transport: store.Transport{Type: store.TransportSSE, URL: "https://a.example/v2"},
	})
	require.NoError(t, err)

	all := h.reg.List(Filter{})
	require.Len(t, all, 2)
	assert.Equal(t, "Alpha", all[0].Name, "most recently updated first")

	assert.Len(t, h.reg.List(Filter{Search: "BETA"}), 1)
	assert.Equal(t, Summary{Total: 2, Disconnected: 2, SSE: 1, Stdio: 1}, h.reg.Summary(Filter{}))
	assert.Equal(t, Summary{Total: 1, Disconnected: 1, Stdio: 1}, h.reg.Summary(Filter{Type: store.TransportStdio}))
}

func TestRegistry_DeleteStopsSandboxEvenWhenStopFails(t *testing.T) {
	h := newHarness(t)
	ready := statusServer(t, 200)
	h.sandbox.url = ready.URL
	h.sandbox.stopErr = errors.New("sandbox service down")
	srv := h.createStdio(t, "fs")

	started, err := h.sup.Start(context.Background(), srv.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusConnected, started.Status)

	require.NoError(t, h.reg.Delete(context.Background(), srv.ID))
	assert.Equal(t, 1, h.sandbox.stopCount())

	_, err = h.reg.Get(context.Background(), srv.ID)
	assert.True(t, mcpderrors.IsNotFound(err))
	_, err = h.store.GetServer(context.Background(), srv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegistry_DeleteSSEMakesNoSandboxCall(t *testing.T) {
	h := newHarness(t)
	srv := h.createSSE(t, "Search", "https://example.com/sse")

	require.NoError(t, h.reg.Delete(context.Background(), srv.ID))
	assert.Equal(t, 0, h.sandbox.stopCount())
	assert.Empty(t, h.reg.List(Filter{}))
}

func TestRegistry_DeleteFailureKeepsServer(t *testing.T) {
	h := newHarness(t)
	srv := h.createSSE(t, "Search", "https://example.com/sse")
	h.store.failDeletes.Store(true)

	err := h.reg.Delete(context.Background(), srv.ID)
	assert.True(t, mcpderrors.IsPersistence(err))

	got, err := h.reg.Get(context.Background(), srv.ID)
	require.NoError(t, err)
	assert.Equal(t, srv.ID, got.ID)
}

func TestRegistry_LoadNormalizesAndKeepsOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.store.InsertServer(ctx, &store.Server{
		ID:        "stuck",
		UserID:    testUser,
		Name:      "stuck",
		Transport: store.Transport{Type: store.TransportSSE, URL: "https://example.com"},
		Status:    store.StatusConnecting,
	})
	require.NoError(t, err)
	_, err = h.store.InsertServer(ctx, &store.Server{
		ID:           "broken",
		UserID:       testUser,
		Name:         "broken",
		Transport:    store.Transport{Type: store.TransportSSE, URL: "https://example.com"},
		Status:       store.StatusDisconnected,
		ErrorMessage: "stale",
	})
	require.NoError(t, err)

	require.NoError(t, h.reg.Load(ctx))
	stuck, err := h.reg.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDisconnected, stuck.Status)
	broken, err := h.reg.Get(ctx, "broken")
	require.NoError(t, err)
	assert.Empty(t, broken.ErrorMessage)

	failing := NewRegistry(RegistryConfig{UserID: testUser, Store: failingList{h.store}, Logger: testLogger()})
	failing.entries = h.reg.entries
	err = failing.Load(ctx)
	assert.True(t, mcpderrors.IsPersistence(err))
	assert.Len(t, failing.List(Filter{}), 2)
}

type failingList struct {
	store.Store
}

func (failingList) ListServers(context.Context, string) ([]*store.Server, error) {
	return nil, errors.New("connection refused")
}

// ErrorMessage is set exactly when Status is error, whatever the patch says.
func TestRegistry_ErrorMessageInvariant(t *testing.T) {
	h := newHarness(t)
	srv := h.createSSE(t, "Search", "https://example.com/sse")
	e, err := h.reg.lookup(context.Background(), srv.ID)
	require.NoError(t, err)

	patches := []store.Patch{
		{Status: store.Ptr(store.StatusConnecting), ErrorMessage: store.Ptr("leftover")},
		errorPatch(""),
		{Status: store.Ptr(store.StatusConnected), ErrorMessage: store.Ptr("leftover")},
		errorPatch("Could not connect to server"),
		{Status: store.Ptr(store.StatusDisconnected)},
	}
	for _, p := range patches {
		e.mu.Lock()
		snap := h.reg.transitionLocked(e, p)
		e.mu.Unlock()
		assert.Equal(t, snap.Status == store.StatusError, snap.ErrorMessage != "", "status %s", snap.Status)
	}

	persisted := h.persisted(t, srv.ID)
	assert.Equal(t, store.StatusDisconnected, persisted.Status)
	assert.Empty(t, persisted.ErrorMessage)
}
