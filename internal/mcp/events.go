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
	"log/slog"
	"time"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// EventType represents the type of server event.
type EventType string

const (
	// EventTransition is a status change.
	EventTransition EventType = "transition"
	// EventSandboxStarted indicates a sandbox was created for a stdio server.
	EventSandboxStarted EventType = "sandbox_started"
	// EventSandboxStopped indicates a sandbox was torn down.
	EventSandboxStopped EventType = "sandbox_stopped"
	// EventDeleted indicates a server was removed.
	EventDeleted EventType = "deleted"
)

// ServerEvent is a structured record of something that happened to a server.
type ServerEvent struct {
	Type      EventType      `json:"type"`
	UserID    string         `json:"user_id"`
	ServerID  string         `json:"server_id"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// EventEmitter emits server events.
type EventEmitter struct {
	logger *slog.Logger
	hook   func(ServerEvent)
}

// NewEventEmitter creates a new event emitter.
func NewEventEmitter(logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{logger: logger}
}

// OnEvent registers fn to receive every emitted event. Register before the
// emitter is shared; fn must not block.
func (e *EventEmitter) OnEvent(fn func(ServerEvent)) {
	e.hook = fn
}

// Emit logs an event.
func (e *EventEmitter) Emit(event ServerEvent) {
	if e == nil {
		return
	}
	attrs := []any{
		"user_id", event.UserID,
		"server_id", event.ServerID,
		"type", string(event.Type),
	}
	if event.Message != "" {
		attrs = append(attrs, "message", event.Message)
	}
	for k, v := range event.Details {
		attrs = append(attrs, k, v)
	}

	e.logger.Info("mcp server event", attrs...)
	if e.hook != nil {
		e.hook(event)
	}
}

// EmitTransition emits a status change.
func (e *EventEmitter) EmitTransition(userID, serverID string, from, to store.Status, message string) {
	recordTransition(string(to))
	e.Emit(ServerEvent{
		Type:      EventTransition,
		UserID:    userID,
		ServerID:  serverID,
		Timestamp: time.Now(),
		Message:   message,
		Details: map[string]any{
			"from": string(from),
			"to":   string(to),
		},
	})
}

// EmitSandbox emits a sandbox start or stop.
func (e *EventEmitter) EmitSandbox(userID, serverID string, typ EventType, sandboxURL string) {
	e.Emit(ServerEvent{
		Type:      typ,
		UserID:    userID,
		ServerID:  serverID,
		Timestamp: time.Now(),
		Details: map[string]any{
			"sandbox_url": sandboxURL,
		},
	})
}

// EmitDeleted emits a server deletion.
func (e *EventEmitter) EmitDeleted(userID, serverID string) {
	e.Emit(ServerEvent{
		Type:      EventDeleted,
		UserID:    userID,
		ServerID:  serverID,
		Timestamp: time.Now(),
		Message:   "Server deleted",
	})
}
