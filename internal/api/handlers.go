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

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

// ListResponse is the body of GET /v1/servers.
type ListResponse struct {
	Servers []*store.Server `json:"servers"`
	Summary mcp.Summary     `json:"summary"`
}

// ActiveResponse is the body of GET /v1/active.
type ActiveResponse struct {
	Servers []mcp.ActiveServer `json:"servers"`
}

// DuplicateRequest is the optional body of POST /v1/servers/{id}/duplicate.
type DuplicateRequest struct {
	Name string `json:"name,omitempty"`
}

// EnabledRequest is the body of POST /v1/servers/{id}/enabled.
type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	})
}

// session resolves the caller's session, writing the error response when
// it cannot.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*mcp.Session, bool) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "no user on request")
		return nil, false
	}
	sess, err := s.sessions.Get(r.Context(), userID)
	if err != nil {
		s.logger.Warn("failed to open session", "user_id", userID, "error", err)
		writeError(w, err)
		return nil, false
	}
	return sess, true
}

// decode reads a JSON body. An empty body is accepted when optional is set.
func decode(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return &mcpderrors.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

func filterFrom(r *http.Request) (mcp.Filter, error) {
	q := r.URL.Query()
	f := mcp.Filter{
		Search: q.Get("search"),
		Type:   store.TransportType(q.Get("type")),
		Status: store.Status(q.Get("status")),
	}
	switch f.Type {
	case "", store.TransportSSE, store.TransportStdio:
	default:
		return f, &mcpderrors.ValidationError{Field: "type", Message: "type must be sse or stdio"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, &mcpderrors.ValidationError{Field: "status", Message: "unknown status"}
	}
	return f, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	f, err := filterFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	servers := sess.Registry.List(f)
	if servers == nil {
		servers = []*store.Server{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Servers: servers, Summary: mcp.Summarize(servers)})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var in mcp.ServerInput
	if err := decode(r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	server, err := sess.Registry.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, server)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	server, err := sess.Registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var in mcp.ServerInput
	if err := decode(r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	server, err := sess.Registry.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Registry.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req DuplicateRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	server, err := sess.Registry.Duplicate(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, server)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req EnabledRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, &mcpderrors.ValidationError{Field: "enabled", Message: "enabled is required"})
		return
	}
	server, err := sess.Registry.SetEnabled(r.Context(), r.PathValue("id"), *req.Enabled)
	if err != nil {
		writeServerError(w, err, server)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// handleStart returns 202 with the connecting snapshot, or waits for the
// outcome when wait=true.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, &mcpderrors.ValidationError{Field: "wait", Message: "wait must be a boolean"})
			return
		}
		wait = b
	}

	id := r.PathValue("id")
	if wait {
		server, err := sess.Supervisor.Start(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, server)
		return
	}

	server, err := sess.Supervisor.StartAsync(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, server)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	server, err := sess.Supervisor.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Registry.Load(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	servers := sess.Registry.List(mcp.Filter{})
	if servers == nil {
		servers = []*store.Server{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Servers: servers, Summary: mcp.Summarize(servers)})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	active := sess.Registry.ActiveServers()
	if active == nil {
		active = []mcp.ActiveServer{}
	}
	writeJSON(w, http.StatusOK, ActiveResponse{Servers: active})
}
