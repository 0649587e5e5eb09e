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
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	mcplog "github.com/maxbaines/ai-chatbot-plus/internal/log"
	"github.com/maxbaines/ai-chatbot-plus/pkg/httpclient"
)

// ProbePolicy bounds the readiness loop.
type ProbePolicy struct {
	// MaxAttempts is the attempt ceiling for a fresh endpoint.
	MaxAttempts int
	// ReuseAttempts is the ceiling when re-checking a known sandbox URL.
	ReuseAttempts int
	// AttemptTimeout bounds each GET.
	AttemptTimeout time.Duration
	// BackoffStep is the linear backoff increment.
	BackoffStep time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
}

// DefaultProbePolicy returns 20 attempts of up to 5s each with a 1s..5s
// linear backoff.
func DefaultProbePolicy() ProbePolicy {
	return ProbePolicy{
		MaxAttempts:    20,
		ReuseAttempts:  3,
		AttemptTimeout: 5 * time.Second,
		BackoffStep:    time.Second,
		MaxBackoff:     5 * time.Second,
	}
}

// Backoff returns the wait after failed attempt i (zero based).
func (p ProbePolicy) Backoff(i int) time.Duration {
	d := p.BackoffStep * time.Duration(i+1)
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// TotalWait is the sum of backoffs over n failed attempts.
func (p ProbePolicy) TotalWait(n int) time.Duration {
	var total time.Duration
	for i := 0; i < n; i++ {
		total += p.Backoff(i)
	}
	return total
}

// Prober polls an HTTP endpoint until it answers 200.
type Prober struct {
	client *http.Client
	policy atomic.Pointer[ProbePolicy]
	logger *slog.Logger
}

// NewProber creates a prober. Retries are handled by the probe loop itself,
// so the underlying client never retries.
func NewProber(policy ProbePolicy, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	cfg.Timeout = policy.AttemptTimeout
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProbePolicy().AttemptTimeout
	}
	cfg.Logger = logger
	client, err := httpclient.New(cfg)
	if err != nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	// Per-attempt contexts carry the deadline.
	client.Timeout = 0

	p := &Prober{client: client, logger: logger}
	p.SetPolicy(policy)
	return p
}

// SetPolicy swaps the policy used by subsequent probes.
func (p *Prober) SetPolicy(policy ProbePolicy) {
	p.policy.Store(&policy)
}

// Policy returns the current policy.
func (p *Prober) Policy() ProbePolicy {
	return *p.policy.Load()
}

// WaitReady probes url up to attempts times and reports whether it answered
// 200. It returns false early when ctx is done.
func (p *Prober) WaitReady(ctx context.Context, url string, attempts int) bool {
	policy := p.Policy()
	for i := 0; i < attempts; i++ {
		ok := p.probeOnce(ctx, url, policy.AttemptTimeout)
		if ok {
			recordProbe("ready")
			return true
		}
		recordProbe("not_ready")
		if ctx.Err() != nil {
			return false
		}

		timer := time.NewTimer(policy.Backoff(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return false
}

func (p *Prober) probeOnce(ctx context.Context, url string, timeout time.Duration) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Debug("probe request invalid", "url", url, "error", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		mcplog.Trace(p.logger, "probe failed", slog.String("url", url), mcplog.Error(err))
		return false
	}
	// SSE endpoints stream forever; the status line is all we need.
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
