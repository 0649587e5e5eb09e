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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbePolicy_Backoff(t *testing.T) {
	p := DefaultProbePolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestProbePolicy_TotalWait(t *testing.T) {
	p := DefaultProbePolicy()

	assert.Equal(t, time.Duration(0), p.TotalWait(0))
	assert.Equal(t, 3*time.Second, p.TotalWait(2))
	// 1+2+3+4+5 for the first five, then 5s each.
	assert.Equal(t, 15*time.Second+15*5*time.Second, p.TotalWait(20))
}

func TestWaitReady_Success(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	p := NewProber(fastPolicy(), testLogger())

	assert.True(t, p.WaitReady(context.Background(), srv.URL, 3))
}

func TestWaitReady_OnlyExact200(t *testing.T) {
	for _, code := range []int{http.StatusNoContent, http.StatusNotFound, http.StatusInternalServerError} {
		srv := statusServer(t, code)
		p := NewProber(fastPolicy(), testLogger())
		assert.False(t, p.WaitReady(context.Background(), srv.URL, 2), "status %d", code)
	}
}

func TestWaitReady_BecomesReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(fastPolicy(), testLogger())
	require.True(t, p.WaitReady(context.Background(), srv.URL, 5))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitReady_ExhaustsAttemptsWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	policy := fastPolicy()
	p := NewProber(policy, testLogger())

	start := time.Now()
	require.False(t, p.WaitReady(context.Background(), srv.URL, 4))
	elapsed := time.Since(start)

	assert.Equal(t, int32(4), calls.Load())
	assert.GreaterOrEqual(t, elapsed, policy.TotalWait(4))
}

func TestWaitReady_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	policy := fastPolicy()
	policy.AttemptTimeout = 20 * time.Millisecond
	p := NewProber(policy, testLogger())

	start := time.Now()
	assert.False(t, p.WaitReady(context.Background(), srv.URL, 2))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitReady_ContextCancelled(t *testing.T) {
	srv := statusServer(t, http.StatusInternalServerError)
	policy := fastPolicy()
	policy.BackoffStep = time.Second
	policy.MaxBackoff = time.Second
	p := NewProber(policy, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.False(t, p.WaitReady(ctx, srv.URL, 20))
	assert.Less(t, time.Since(start), time.Second)
}

func TestProber_SetPolicy(t *testing.T) {
	p := NewProber(DefaultProbePolicy(), testLogger())
	next := fastPolicy()
	p.SetPolicy(next)
	assert.Equal(t, next, p.Policy())
}
