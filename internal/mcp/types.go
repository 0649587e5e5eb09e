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
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

// MaxNameLength is the longest accepted server name, in characters.
const MaxNameLength = 255

// Status messages recorded on failed starts.
const (
	MsgConnectFailed   = "Could not connect to server"
	MsgStartFailed     = "Server failed to start"
	MsgCommandRequired = "Invalid server configuration: command is required"
)

// ServerInput carries the user-editable fields of a server.
type ServerInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Transport   store.Transport `json:"transport"`
}

// Validate checks a server input before it is persisted.
func Validate(in ServerInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return &mcpderrors.ValidationError{Field: "name", Message: "name is required"}
	}
	if len([]rune(in.Name)) > MaxNameLength {
		return &mcpderrors.ValidationError{Field: "name", Message: "name must be at most 255 characters"}
	}

	switch in.Transport.Type {
	case store.TransportSSE:
		u, err := url.Parse(in.Transport.URL)
		if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &mcpderrors.ValidationError{Field: "transport.url", Message: "url must be an absolute http or https URL"}
		}
		for _, h := range in.Transport.Headers {
			if strings.TrimSpace(h.Key) == "" {
				return &mcpderrors.ValidationError{Field: "transport.headers", Message: "header names must not be empty"}
			}
		}
	case store.TransportStdio:
		if strings.TrimSpace(in.Transport.Command) == "" {
			return &mcpderrors.ValidationError{Field: "transport.command", Message: "command is required"}
		}
		for _, e := range in.Transport.Env {
			if strings.TrimSpace(e.Key) == "" {
				return &mcpderrors.ValidationError{Field: "transport.env", Message: "environment variable names must not be empty"}
			}
		}
	default:
		return &mcpderrors.ValidationError{Field: "transport.type", Message: `type must be "sse" or "stdio"`}
	}
	return nil
}

// transportFor drops the fields that do not belong to the transport type.
func transportFor(t store.Transport) store.Transport {
	switch t.Type {
	case store.TransportSSE:
		return store.Transport{Type: t.Type, URL: t.URL, Headers: t.Headers, Streaming: t.Streaming}.Clone()
	case store.TransportStdio:
		return store.Transport{Type: t.Type, Command: t.Command, Args: t.Args, Env: t.Env}.Clone()
	}
	return t.Clone()
}

// Filter narrows List and Summary. Zero values match everything.
type Filter struct {
	// Search matches name or description, ignoring case.
	Search string
	Type   store.TransportType
	Status store.Status
}

func (f Filter) match(s *store.Server) bool {
	if f.Type != "" && s.Transport.Type != f.Type {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Search == "" {
		return true
	}
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(f.Search))
	return strings.Contains(fold.String(s.Name), needle) ||
		strings.Contains(fold.String(s.Description), needle)
}

// Summary counts servers by status and transport.
type Summary struct {
	Total        int `json:"total"`
	Connected    int `json:"connected"`
	Disconnected int `json:"disconnected"`
	SSE          int `json:"sse"`
	Stdio        int `json:"stdio"`
}

// Summarize counts servers. Errored servers count as disconnected;
// connecting servers count toward neither.
func Summarize(servers []*store.Server) Summary {
	var sum Summary
	for _, s := range servers {
		sum.Total++
		switch s.Status {
		case store.StatusConnected:
			sum.Connected++
		case store.StatusDisconnected, store.StatusError:
			sum.Disconnected++
		}
		switch s.Transport.Type {
		case store.TransportSSE:
			sum.SSE++
		case store.TransportStdio:
			sum.Stdio++
		}
	}
	return sum
}

// sortByUpdated orders servers newest first, falling back to id for a
// stable order.
func sortByUpdated(servers []*store.Server) {
	sort.SliceStable(servers, func(i, j int) bool {
		if !servers[i].UpdatedAt.Equal(servers[j].UpdatedAt) {
			return servers[i].UpdatedAt.After(servers[j].UpdatedAt)
		}
		return servers[i].ID < servers[j].ID
	})
}
