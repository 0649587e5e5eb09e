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

// Connection attempts.
// An attempt runs until the server is connected or errored, or until a
// newer Stop, Start or Delete supersedes it. Superseded attempts make no
// writes and clean up any sandbox they created.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
	"github.com/maxbaines/ai-chatbot-plus/pkg/secrets"
)

// run drives one attempt to a terminal status.
func (s *Supervisor) run(a *attempt) {
	defer s.wg.Done()

	id := a.server.ID
	transport := string(a.server.Transport.Type)
	ctx, span := s.tracer.Start(a.ctx, "mcp.start", trace.WithAttributes(
		attribute.String("server.id", id),
		attribute.String("server.transport", transport),
	))
	defer span.End()

	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("connection attempt panicked", "server_id", id, "panic", rec)
			s.reg.transition(a.e, a.gen, errorPatch(fmt.Sprintf("Unexpected error: %v", rec)))
		}
		result := s.ensureTerminal(a)
		recordStart(transport, result, time.Since(started))
		span.SetAttributes(attribute.String("server.status", result))
		if result == string(store.StatusError) {
			span.SetStatus(codes.Error, "start failed")
		}
	}()

	var err error
	switch a.server.Transport.Type {
	case store.TransportSSE:
		err = s.connectSSE(ctx, a)
	case store.TransportStdio:
		err = s.connectStdio(ctx, a)
	default:
		err = &mcpderrors.ConnectionError{ServerID: id, Message: "Invalid server configuration: unsupported transport"}
	}
	if err != nil {
		s.fail(ctx, a, err)
	}
}

// ensureTerminal moves a current attempt still at connecting to error and
// reports the outcome for metrics.
func (s *Supervisor) ensureTerminal(a *attempt) string {
	e := a.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != a.gen || e.deleted {
		return "superseded"
	}
	if e.server.Status == store.StatusConnecting {
		s.reg.transitionLocked(e, errorPatch("Connection attempt ended unexpectedly"))
	}
	return string(e.server.Status)
}

// fail records err on the server. A cancelled attempt that was not
// superseded records disconnected.
func (s *Supervisor) fail(ctx context.Context, a *attempt, err error) {
	if ctx.Err() != nil {
		s.reg.transition(a.e, a.gen, store.Patch{Status: store.Ptr(store.StatusDisconnected)})
		return
	}

	msg := err.Error()
	var ce *mcpderrors.ConnectionError
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	if _, applied := s.reg.transition(a.e, a.gen, errorPatch(msg)); applied {
		s.logger.Warn("server failed to connect", "server_id", a.server.ID, "error", err)
	}
}

func (s *Supervisor) connectSSE(ctx context.Context, a *attempt) error {
	policy := s.prober.Policy()
	if !s.prober.WaitReady(ctx, a.server.Transport.URL, policy.MaxAttempts) {
		return &mcpderrors.ConnectionError{ServerID: a.server.ID, Message: MsgConnectFailed}
	}
	s.reg.transition(a.e, a.gen, store.Patch{Status: store.Ptr(store.StatusConnected)})
	return nil
}

// connectStdio reuses the recorded sandbox when it still answers and
// starts a new one otherwise. It holds sandboxMu throughout, so sandbox
// calls for the server never interleave.
func (s *Supervisor) connectStdio(ctx context.Context, a *attempt) error {
	id := a.server.ID
	t := a.server.Transport
	if t.Command == "" {
		return &mcpderrors.ConnectionError{ServerID: id, Message: MsgCommandRequired}
	}

	e := a.e
	e.sandboxMu.Lock()
	defer e.sandboxMu.Unlock()

	s.reg.takeTeardown(ctx, e, id)
	if !s.reg.current(e, a.gen) {
		return nil
	}

	policy := s.prober.Policy()

	e.mu.Lock()
	existing := e.server.SandboxURL
	e.mu.Unlock()
	if existing != "" {
		if s.prober.WaitReady(ctx, existing, policy.ReuseAttempts) {
			s.reg.transition(e, a.gen, store.Patch{Status: store.Ptr(store.StatusConnected)})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Info("recorded sandbox not ready, starting a new one", "server_id", id, "sandbox_url", existing)
		s.reg.stopSandbox(ctx, e, id)
	}

	url, err := s.sandbox.Start(ctx, SandboxRequest{
		ID:      id,
		Command: t.Command,
		Args:    t.Args,
		Env:     t.Env,
	})
	recordSandboxCall("start", err)
	if err != nil {
		if ctx.Err() != nil {
			s.reg.stopSandbox(ctx, e, id)
			return ctx.Err()
		}
		return &mcpderrors.ConnectionError{
			ServerID: id,
			Message:  envMasker(t.Env).Mask(fmt.Sprintf("%s: %v", MsgStartFailed, err)),
			Cause:    err,
		}
	}
	s.reg.events.EmitSandbox(s.reg.userID, id, EventSandboxStarted, url)

	if !s.prober.WaitReady(ctx, url, policy.MaxAttempts) {
		s.reg.stopSandbox(ctx, e, id)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &mcpderrors.ConnectionError{ServerID: id, Message: MsgStartFailed}
	}

	if _, applied := s.reg.transition(e, a.gen, store.Patch{
		Status:     store.Ptr(store.StatusConnected),
		SandboxURL: &url,
	}); !applied {
		s.reg.stopSandbox(ctx, e, id)
	}
	return nil
}

// envMasker masks secret-looking env values, which the sandbox service may
// echo back in error bodies that end up in the stored error message.
func envMasker(env []store.KeyValue) *secrets.Masker {
	m := secrets.NewMasker()
	for _, kv := range env {
		if m.IsSecretName(kv.Key) {
			m.AddSecret(kv.Value)
		}
	}
	return m
}
