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

// Package memory provides an in-memory store implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// Compile-time interface assertion.
var _ store.Store = (*Store)(nil)

// Store is a map-backed store. Records are cloned on the way in and out so
// callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	servers map[string]*store.Server

	// now is swapped in tests that need deterministic timestamps
	now func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		servers: make(map[string]*store.Server),
		now:     time.Now,
	}
}

// ListServers returns every server owned by userID, newest update first.
func (s *Store) ListServers(ctx context.Context, userID string) ([]*store.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Server, 0)
	for _, srv := range s.servers {
		if srv.UserID == userID {
			out = append(out, srv.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// GetServer returns a server regardless of owner.
func (s *Store) GetServer(ctx context.Context, id string) (*store.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	srv, ok := s.servers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return srv.Clone(), nil
}

// InsertServer stores a new record.
func (s *Store) InsertServer(ctx context.Context, srv *store.Server) (*store.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.servers[srv.ID]; exists {
		return nil, fmt.Errorf("server already exists: %s", srv.ID)
	}

	rec := srv.Clone()
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.servers[rec.ID] = rec
	return rec.Clone(), nil
}

// UpdateServer applies p and bumps UpdatedAt.
func (s *Store) UpdateServer(ctx context.Context, id, userID string, p store.Patch) (*store.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok || srv.UserID != userID {
		return nil, store.ErrNotFound
	}

	p.Apply(srv)
	srv.UpdatedAt = s.now()
	return srv.Clone(), nil
}

// DeleteServer removes the record.
func (s *Store) DeleteServer(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok || srv.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.servers, id)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
