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

// Package store defines the persistent MCP server record and the
// ownership-scoped storage interface implemented by the sqlite and memory
// backends.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record matches the id (and owner, for
// scoped operations).
var ErrNotFound = errors.New("server not found")

// Status is the connection state of a server.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusError:
		return true
	}
	return false
}

// TransportType identifies how a server is reached.
type TransportType string

const (
	// TransportSSE servers are reached directly at their URL.
	TransportSSE TransportType = "sse"
	// TransportStdio servers run as a process inside a sandbox.
	TransportStdio TransportType = "stdio"
)

// KeyValue is one ordered header or environment entry.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Transport holds the connection parameters. Only the fields for Type are
// meaningful: URL, Headers and Streaming for SSE; Command, Args and Env for
// stdio.
type Transport struct {
	Type      TransportType `json:"type"`
	URL       string        `json:"url,omitempty"`
	Headers   []KeyValue    `json:"headers,omitempty"`
	Streaming bool          `json:"streaming,omitempty"`
	Command   string        `json:"command,omitempty"`
	Args      []string      `json:"args,omitempty"`
	Env       []KeyValue    `json:"env,omitempty"`
}

// Clone returns a deep copy.
func (t Transport) Clone() Transport {
	out := t
	out.Headers = append([]KeyValue(nil), t.Headers...)
	out.Args = append([]string(nil), t.Args...)
	out.Env = append([]KeyValue(nil), t.Env...)
	return out
}

// Server is a persisted MCP server configuration together with its last
// known runtime state.
type Server struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Transport    Transport `json:"transport"`
	SandboxURL   string    `json:"sandboxUrl,omitempty"`
	Enabled      bool      `json:"enabled"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers can hand out snapshots without
// sharing slices.
func (s *Server) Clone() *Server {
	if s == nil {
		return nil
	}
	out := *s
	out.Transport = s.Transport.Clone()
	return &out
}

// Patch is a field-level update. Nil fields are left untouched, so two
// writers updating different fields never overwrite each other.
type Patch struct {
	Name         *string
	Description  *string
	Transport    *Transport
	SandboxURL   *string
	Enabled      *bool
	Status       *Status
	ErrorMessage *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Transport == nil &&
		p.SandboxURL == nil && p.Enabled == nil && p.Status == nil && p.ErrorMessage == nil
}

// Apply writes the non-nil fields of p onto s. UpdatedAt is not touched.
func (p Patch) Apply(s *Server) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Transport != nil {
		s.Transport = p.Transport.Clone()
	}
	if p.SandboxURL != nil {
		s.SandboxURL = *p.SandboxURL
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ErrorMessage != nil {
		s.ErrorMessage = *p.ErrorMessage
	}
}

// Store persists servers. Every operation except GetServer is scoped to the
// owning user; a record owned by someone else is reported as ErrNotFound.
type Store interface {
	// ListServers returns every server owned by userID, newest update first.
	ListServers(ctx context.Context, userID string) ([]*Server, error)

	// GetServer returns a server regardless of owner. Callers use it to tell
	// a missing record from one owned by another user.
	GetServer(ctx context.Context, id string) (*Server, error)

	// InsertServer stores a new record and returns it with timestamps set.
	InsertServer(ctx context.Context, s *Server) (*Server, error)

	// UpdateServer applies p to the record and bumps UpdatedAt.
	UpdateServer(ctx context.Context, id, userID string, p Patch) (*Server, error)

	// DeleteServer removes the record.
	DeleteServer(ctx context.Context, id, userID string) error

	// Close releases backend resources.
	Close() error
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
