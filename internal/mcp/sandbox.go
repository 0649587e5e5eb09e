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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
	"github.com/maxbaines/ai-chatbot-plus/pkg/httpclient"
)

// SandboxRequest describes the process to run in a new sandbox.
type SandboxRequest struct {
	// ID is the server id; the sandbox is addressed by it afterwards.
	ID      string           `json:"id"`
	Command string           `json:"command"`
	Args    []string         `json:"args,omitempty"`
	Env     []store.KeyValue `json:"env,omitempty"`
}

// Sandbox hosts stdio servers behind an HTTP endpoint.
type Sandbox interface {
	// Start launches the process and returns the URL it is reachable at.
	// The URL may not be ready yet.
	Start(ctx context.Context, req SandboxRequest) (string, error)

	// Stop tears down the sandbox for id. Stopping an unknown sandbox is
	// not an error.
	Stop(ctx context.Context, id string) error
}

// SandboxConfig configures an HTTPSandbox.
type SandboxConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Rate    float64
	Burst   int
	Logger  *slog.Logger
}

// HTTPSandbox talks to the sandbox service over REST.
type HTTPSandbox struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

var _ Sandbox = (*HTTPSandbox)(nil)

// NewHTTPSandbox creates a sandbox client.
func NewHTTPSandbox(cfg SandboxConfig) (*HTTPSandbox, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("invalid sandbox base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Timeout
	hc.Token = cfg.Token
	hc.Logger = logger
	client, err := httpclient.New(hc)
	if err != nil {
		return nil, fmt.Errorf("sandbox http client: %w", err)
	}

	return &HTTPSandbox{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

type startResponse struct {
	URL string `json:"url"`
}

// Start implements Sandbox.
func (s *HTTPSandbox) Start(ctx context.Context, req SandboxRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return "", &mcpderrors.SandboxError{ServerID: req.ID, Op: "start", Cause: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &mcpderrors.SandboxError{ServerID: req.ID, Op: "start", Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sandboxes", bytes.NewReader(body))
	if err != nil {
		return "", &mcpderrors.SandboxError{ServerID: req.ID, Op: "start", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", &mcpderrors.SandboxError{ServerID: req.ID, Op: "start", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &mcpderrors.SandboxError{
			ServerID:   req.ID,
			Op:         "start",
			StatusCode: resp.StatusCode,
			Cause:      errors.New(readErrorBody(resp.Body)),
		}
	}

	var out startResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &mcpderrors.SandboxError{ServerID: req.ID, Op: "start", Cause: fmt.Errorf("decode response: %w", err)}
	}
	if out.URL == "" {
		return "", &mcpderrors.SandboxError{ServerID: req.ID, Op: "start", Cause: errors.New("response has no url")}
	}
	return out.URL, nil
}

// Stop implements Sandbox. A 404 means the sandbox is already gone.
func (s *HTTPSandbox) Stop(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return &mcpderrors.SandboxError{ServerID: id, Op: "stop", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/sandboxes/"+url.PathEscape(id), nil)
	if err != nil {
		return &mcpderrors.SandboxError{ServerID: id, Op: "stop", Cause: err}
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return &mcpderrors.SandboxError{ServerID: id, Op: "stop", Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &mcpderrors.SandboxError{
			ServerID:   id,
			Op:         "stop",
			StatusCode: resp.StatusCode,
			Cause:      errors.New(readErrorBody(resp.Body)),
		}
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return "no response body"
	}
	return msg
}

// UnavailableSandbox is used when no sandbox service is configured.
type UnavailableSandbox struct{}

var _ Sandbox = UnavailableSandbox{}

// Start always fails.
func (UnavailableSandbox) Start(_ context.Context, req SandboxRequest) (string, error) {
	return "", &mcpderrors.SandboxError{ServerID: req.ID, Op: "start", Cause: errors.New("no sandbox service configured")}
}

// Stop is a no-op.
func (UnavailableSandbox) Stop(context.Context, string) error {
	return nil
}
