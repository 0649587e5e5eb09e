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

// Package sqlite provides a SQLite store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// Compile-time interface assertion.
var _ store.Store = (*Store)(nil)

// Store is a SQLite-backed server store.
type Store struct {
	db *sql.DB

	// now is swapped in tests that need deterministic timestamps
	now func() time.Time
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if needed) the database and runs migrations.
func New(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, now: time.Now}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// configurePragmas sets SQLite configuration options.
func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS mcp_servers (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			transport_type TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			headers TEXT NOT NULL DEFAULT '[]',
			streaming INTEGER NOT NULL DEFAULT 0,
			command TEXT NOT NULL DEFAULT '',
			args TEXT NOT NULL DEFAULT '[]',
			env TEXT NOT NULL DEFAULT '[]',
			sandbox_url TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'disconnected',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mcp_servers_user_id ON mcp_servers(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mcp_servers_updated_at ON mcp_servers(updated_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const selectColumns = `id, user_id, name, description, transport_type, url, headers, streaming,
	command, args, env, sandbox_url, enabled, status, error_message, created_at, updated_at`

// ListServers returns every server owned by userID, newest update first.
func (s *Store) ListServers(ctx context.Context, userID string) ([]*store.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM mcp_servers WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	servers := make([]*store.Server, 0)
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate servers: %w", err)
	}
	return servers, nil
}

// GetServer returns a server regardless of owner.
func (s *Store) GetServer(ctx context.Context, id string) (*store.Server, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM mcp_servers WHERE id = ?`, id)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// InsertServer stores a new record.
func (s *Store) InsertServer(ctx context.Context, srv *store.Server) (*store.Server, error) {
	headers, err := json.Marshal(nonNil(srv.Transport.Headers))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal headers: %w", err)
	}
	args, err := json.Marshal(nonNilStrings(srv.Transport.Args))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}
	env, err := json.Marshal(nonNil(srv.Transport.Env))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal env: %w", err)
	}

	now := s.now().UTC()
	query := `
		INSERT INTO mcp_servers (id, user_id, name, description, transport_type, url, headers, streaming,
			command, args, env, sandbox_url, enabled, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		srv.ID, srv.UserID, srv.Name, srv.Description, string(srv.Transport.Type),
		srv.Transport.URL, string(headers), boolToInt(srv.Transport.Streaming),
		srv.Transport.Command, string(args), string(env),
		srv.SandboxURL, boolToInt(srv.Enabled), string(srv.Status), srv.ErrorMessage,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert server: %w", err)
	}

	out := srv.Clone()
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

// UpdateServer applies the non-nil fields of p and bumps updated_at.
func (s *Store) UpdateServer(ctx context.Context, id, userID string, p store.Patch) (*store.Server, error) {
	sets := make([]string, 0, 12)
	args := make([]any, 0, 14)

	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Transport != nil {
		headers, err := json.Marshal(nonNil(p.Transport.Headers))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal headers: %w", err)
		}
		argv, err := json.Marshal(nonNilStrings(p.Transport.Args))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal args: %w", err)
		}
		env, err := json.Marshal(nonNil(p.Transport.Env))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal env: %w", err)
		}
		set("transport_type", string(p.Transport.Type))
		set("url", p.Transport.URL)
		set("headers", string(headers))
		set("streaming", boolToInt(p.Transport.Streaming))
		set("command", p.Transport.Command)
		set("args", string(argv))
		set("env", string(env))
	}
	if p.SandboxURL != nil {
		set("sandbox_url", *p.SandboxURL)
	}
	if p.Enabled != nil {
		set("enabled", boolToInt(*p.Enabled))
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.ErrorMessage != nil {
		set("error_message", *p.ErrorMessage)
	}
	set("updated_at", formatTime(s.now().UTC()))

	query := `UPDATE mcp_servers SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND user_id = ?`
	args = append(args, id, userID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update server: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetServer(ctx, id)
}

// DeleteServer removes the record.
func (s *Store) DeleteServer(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete server: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (*store.Server, error) {
	var srv store.Server
	var transportType, status string
	var headers, args, env string
	var streaming, enabled int
	var createdAt, updatedAt string

	err := row.Scan(
		&srv.ID, &srv.UserID, &srv.Name, &srv.Description, &transportType,
		&srv.Transport.URL, &headers, &streaming,
		&srv.Transport.Command, &args, &env,
		&srv.SandboxURL, &enabled, &status, &srv.ErrorMessage,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan server: %w", err)
	}

	srv.Transport.Type = store.TransportType(transportType)
	srv.Transport.Streaming = streaming != 0
	srv.Enabled = enabled != 0
	srv.Status = store.Status(status)

	if err := json.Unmarshal([]byte(headers), &srv.Transport.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	if err := json.Unmarshal([]byte(args), &srv.Transport.Args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if err := json.Unmarshal([]byte(env), &srv.Transport.Env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env: %w", err)
	}

	if len(srv.Transport.Headers) == 0 {
		srv.Transport.Headers = nil
	}
	if len(srv.Transport.Args) == 0 {
		srv.Transport.Args = nil
	}
	if len(srv.Transport.Env) == 0 {
		srv.Transport.Env = nil
	}

	srv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	srv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &srv, nil
}

// formatTime uses a fixed-width layout so updated_at sorts correctly as text.
func formatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000000Z07:00")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(kv []store.KeyValue) []store.KeyValue {
	if kv == nil {
		return []store.KeyValue{}
	}
	return kv
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
