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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// createTestStore creates a SQLite store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(Config{
		Path: filepath.Join(t.TempDir(), "nested", "test.db"),
		WAL:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stdioServer(id, userID string) *store.Server {
	return &store.Server{
		ID:          id,
		UserID:      userID,
		Name:        "filesystem",
		Description: "local files",
		Transport: store.Transport{
			Type:    store.TransportStdio,
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
			Env:     []store.KeyValue{{Key: "B", Value: "2"}, {Key: "A", Value: "1"}},
		},
		Status: store.StatusDisconnected,
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertServer(ctx, stdioServer("s1", "u1"))
	require.NoError(t, err)
	assert.False(t, inserted.CreatedAt.IsZero())

	got, err := s.GetServer(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, store.TransportStdio, got.Transport.Type)
	assert.Equal(t, []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"}, got.Transport.Args)
	assert.Equal(t, []store.KeyValue{{Key: "B", Value: "2"}, {Key: "A", Value: "1"}}, got.Transport.Env, "env order preserved")
	assert.Nil(t, got.Transport.Headers)
	assert.Equal(t, store.StatusDisconnected, got.Status)
	assert.False(t, got.Enabled)

	_, err = s.GetServer(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStore_ListScopedAndOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.InsertServer(ctx, stdioServer(id, "u1"))
		require.NoError(t, err)
	}
	_, err := s.InsertServer(ctx, stdioServer("x", "u2"))
	require.NoError(t, err)

	// Touch "a" so it becomes the most recently updated.
	_, err = s.UpdateServer(ctx, "a", "u1", store.Patch{Description: store.Ptr("touched")})
	require.NoError(t, err)

	list, err := s.ListServers(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{list[0].ID, list[1].ID, list[2].ID})

	empty, err := s.ListServers(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSQLiteStore_PatchLeavesOtherFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.InsertServer(ctx, stdioServer("s1", "u1"))
	require.NoError(t, err)

	_, err = s.UpdateServer(ctx, "s1", "u1", store.Patch{Enabled: store.Ptr(true)})
	require.NoError(t, err)

	status := store.StatusConnected
	got, err := s.UpdateServer(ctx, "s1", "u1", store.Patch{
		Status:       &status,
		ErrorMessage: store.Ptr(""),
		SandboxURL:   store.Ptr("http://sandbox/s1/sse"),
	})
	require.NoError(t, err)

	assert.True(t, got.Enabled)
	assert.Equal(t, store.StatusConnected, got.Status)
	assert.Equal(t, "http://sandbox/s1/sse", got.SandboxURL)
	assert.Equal(t, "npx", got.Transport.Command)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestSQLiteStore_TransportPatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.InsertServer(ctx, stdioServer("s1", "u1"))
	require.NoError(t, err)

	got, err := s.UpdateServer(ctx, "s1", "u1", store.Patch{
		Transport: &store.Transport{
			Type:      store.TransportSSE,
			URL:       "https://example.com/sse",
			Headers:   []store.KeyValue{{Key: "X-Key", Value: "v"}},
			Streaming: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, store.TransportSSE, got.Transport.Type)
	assert.Equal(t, "https://example.com/sse", got.Transport.URL)
	assert.True(t, got.Transport.Streaming)
	assert.Empty(t, got.Transport.Command)
	assert.Nil(t, got.Transport.Args)
}

func TestSQLiteStore_OwnershipScope(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.InsertServer(ctx, stdioServer("s1", "u1"))
	require.NoError(t, err)

	_, err = s.UpdateServer(ctx, "s1", "u2", store.Patch{Enabled: store.Ptr(true)})
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteServer(ctx, "s1", "u2"), store.ErrNotFound)
	require.NoError(t, s.DeleteServer(ctx, "s1", "u1"))
	assert.ErrorIs(t, s.DeleteServer(ctx, "s1", "u1"), store.ErrNotFound)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := New(Config{Path: path})
	require.NoError(t, err)
	_, err = s.InsertServer(ctx, stdioServer("s1", "u1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetServer(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "filesystem", got.Name)
}
