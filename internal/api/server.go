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

// Package api serves the mcpd HTTP API.
//
// Every /v1 route is scoped to the user named by the bearer token's sub
// claim. Each user gets a session from the mcp.SessionManager on first use.
package api

import (
	"log/slog"
	"net/http"
	"time"

	mcplog "github.com/maxbaines/ai-chatbot-plus/internal/log"
	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/tracing"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config configures a Server.
type Config struct {
	Sessions *mcp.SessionManager
	Auth     AuthConfig

	// Metrics serves /metrics. Nil disables the route.
	Metrics http.Handler

	Version string
	Logger  *slog.Logger
}

// Server routes API requests to user sessions.
type Server struct {
	sessions *mcp.SessionManager
	auth     AuthConfig
	metrics  http.Handler
	version  string
	logger   *slog.Logger
	started  time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth.LocalUser == "" {
		auth.LocalUser = "local"
	}
	return &Server{
		sessions: cfg.Sessions,
		auth:     auth,
		metrics:  cfg.Metrics,
		version:  cfg.Version,
		logger:   mcplog.WithComponent(logger, "api"),
		started:  time.Now(),
	}
}

// Handler returns the root handler with logging and tracing applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /v1/servers", s.handleList)
	v1.HandleFunc("POST /v1/servers", s.handleCreate)
	v1.HandleFunc("POST /v1/servers/reload", s.handleReload)
	v1.HandleFunc("GET /v1/servers/{id}", s.handleGet)
	v1.HandleFunc("PUT /v1/servers/{id}", s.handleUpdate)
	v1.HandleFunc("DELETE /v1/servers/{id}", s.handleDelete)
	v1.HandleFunc("POST /v1/servers/{id}/duplicate", s.handleDuplicate)
	v1.HandleFunc("POST /v1/servers/{id}/enabled", s.handleSetEnabled)
	v1.HandleFunc("POST /v1/servers/{id}/start", s.handleStart)
	v1.HandleFunc("POST /v1/servers/{id}/stop", s.handleStop)
	v1.HandleFunc("GET /v1/active", s.handleActive)
	mux.Handle("/v1/", s.authMiddleware(v1))

	return mcplog.HTTPMiddleware(s.logger, tracing.HTTPMiddleware(mux))
}
