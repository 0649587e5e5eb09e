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
	"log/slog"
	"net/http"

	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

// ErrorResponse is the body of every non-2xx response. Server carries the
// record as it stands after a failed command that rolled back.
type ErrorResponse struct {
	Error  string        `json:"error"`
	Code   string        `json:"code"`
	Server *store.Server `json:"server,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// writeError maps err onto a status code.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeErrorMessage(w, status, code, err.Error())
}

// writeServerError is writeError with the server's current state attached.
func writeServerError(w http.ResponseWriter, err error, server *store.Server) {
	status, code := statusFor(err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Server: server})
}

func statusFor(err error) (int, string) {
	switch {
	case mcpderrors.IsValidation(err):
		return http.StatusBadRequest, "validation"
	case mcpderrors.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case mcpderrors.IsOwnership(err):
		return http.StatusForbidden, "ownership"
	case mcpderrors.IsPersistence(err):
		return http.StatusServiceUnavailable, "persistence"
	case errors.Is(err, mcp.ErrSupervisorClosed), errors.Is(err, mcp.ErrSessionsClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
