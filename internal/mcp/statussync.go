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
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

const instrumentationName = "github.com/maxbaines/ai-chatbot-plus/internal/mcp"

// DefaultWriteTimeout bounds each store write.
const DefaultWriteTimeout = 5 * time.Second

// SyncConfig configures a StatusSync.
type SyncConfig struct {
	Store        store.Store
	UserID       string
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// StatusSync serializes store writes per server. Writes for one server run
// in submission order on a single worker; different servers write in
// parallel. Workers exit when their queue drains.
type StatusSync struct {
	store        store.Store
	userID       string
	writeTimeout time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	writeLatency metric.Float64Histogram

	mu      sync.Mutex
	queues  map[string][]*syncJob
	pending int
	idle    chan struct{}
}

type syncJob struct {
	op   string
	run  func(ctx context.Context) error
	done chan error
}

// NewStatusSync creates a StatusSync.
func NewStatusSync(cfg SyncConfig) *StatusSync {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hist, err := otel.Meter(instrumentationName).Float64Histogram(
		"mcpd_store_write_duration",
		metric.WithDescription("Duration of store writes issued by the status sync"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("store write histogram unavailable", "error", err)
		hist, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("mcpd_store_write_duration")
	}

	return &StatusSync{
		store:        cfg.Store,
		userID:       cfg.UserID,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
		tracer:       otel.Tracer(instrumentationName),
		writeLatency: hist,
		queues:       make(map[string][]*syncJob),
	}
}

// Enqueue persists p for id without waiting. Failures are logged and
// counted; callers do not roll back.
func (s *StatusSync) Enqueue(id string, p store.Patch) {
	s.Submit(id, p, nil)
}

// Submit queues p for id and returns a channel that receives the outcome.
// then, if non-nil, runs on the worker after a successful write, so it
// observes writes for id in order.
func (s *StatusSync) Submit(id string, p store.Patch, then func(*store.Server)) <-chan error {
	return s.submit(id, "update", func(ctx context.Context) error {
		saved, err := s.store.UpdateServer(ctx, id, s.userID, p)
		if err != nil {
			return err
		}
		if then != nil {
			then(saved)
		}
		return nil
	})
}

// Apply persists p for id and waits for the outcome.
func (s *StatusSync) Apply(ctx context.Context, id string, p store.Patch, then func(*store.Server)) error {
	return s.Wait(ctx, s.Submit(id, p, then))
}

// Delete removes id from the store after every earlier write for id has
// landed. A record that is already gone counts as deleted.
func (s *StatusSync) Delete(ctx context.Context, id string) error {
	done := s.submit(id, "delete", func(ctx context.Context) error {
		err := s.store.DeleteServer(ctx, id, s.userID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	return s.Wait(ctx, done)
}

// Wait blocks until done yields or ctx ends. A write abandoned by ctx may
// still land.
func (s *StatusSync) Wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &mcpderrors.PersistenceError{Op: "wait", Cause: ctx.Err()}
	}
}

// Flush waits until every queued write has finished.
func (s *StatusSync) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *StatusSync) submit(id, op string, run func(ctx context.Context) error) <-chan error {
	job := &syncJob{op: op, run: run, done: make(chan error, 1)}

	s.mu.Lock()
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	q, running := s.queues[id]
	s.queues[id] = append(q, job)
	s.mu.Unlock()

	if !running {
		go s.worker(id)
	}
	return job.done
}

func (s *StatusSync) worker(id string) {
	for {
		s.mu.Lock()
		q := s.queues[id]
		if len(q) == 0 {
			delete(s.queues, id)
			s.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		s.queues[id] = q[1:]
		s.mu.Unlock()

		job.done <- s.exec(id, job)

		s.mu.Lock()
		s.pending--
		if s.pending == 0 {
			close(s.idle)
		}
		s.mu.Unlock()
	}
}

func (s *StatusSync) exec(id string, job *syncJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "mcp.statussync.write", trace.WithAttributes(
		attribute.String("server.id", id),
		attribute.String("store.op", job.op),
	))
	defer span.End()

	start := time.Now()
	err := job.run(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.writeLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("op", job.op),
		attribute.String("result", result),
	))

	if err == nil {
		return nil
	}
	recordPersistenceError(job.op)
	s.logger.Error("store write failed",
		"server_id", id,
		"op", job.op,
		"error", err,
	)
	return &mcpderrors.PersistenceError{Op: job.op, Cause: err}
}
