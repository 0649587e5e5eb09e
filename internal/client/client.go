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

package client

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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maxbaines/ai-chatbot-plus/internal/api"
	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	"github.com/maxbaines/ai-chatbot-plus/pkg/httpclient"
)

// Environment variable names for client configuration.
const (
	AddrEnv  = "MCPD_ADDR"
	TokenEnv = "MCPD_TOKEN"
)

// DefaultAddr is the daemon's default listen address.
const DefaultAddr = "127.0.0.1:7420"

const startWaitTimeout = 5 * time.Minute

// Client is a client for the mcpd API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL sets the daemon address. A bare host:port is treated as http.
func WithBaseURL(addr string) Option {
	return func(c *Client) error {
		u, err := NormalizeAddr(addr)
		if err != nil {
			return err
		}
		c.baseURL = u
		return nil
	}
}

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithLogger sets the logger used for request logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// New creates a client. Defaults come from MCPD_ADDR and MCPD_TOKEN.
func New(opts ...Option) (*Client, error) {
	base, err := NormalizeAddr(os.Getenv(AddrEnv))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", AddrEnv, err)
	}
	c := &Client{
		baseURL: base,
		token:   os.Getenv(TokenEnv),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		cfg := httpclient.DefaultConfig()
		cfg.UserAgent = "mcpctl/1.0"
		// start?wait=true blocks for the whole readiness window.
		cfg.Timeout = startWaitTimeout
		cfg.Logger = c.logger
		hc, err := httpclient.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = hc
	}

	return c, nil
}

// NormalizeAddr turns host:port or a URL into a base URL without a
// trailing slash. Empty means DefaultAddr.
func NormalizeAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid address %q: scheme must be http or https", addr)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid address %q: missing host", addr)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the daemon. Server is set when the
// daemon reported the record's state alongside the failure.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Server     *store.Server
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mcpd returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("mcpd returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ListOptions filters ListServers.
type ListOptions struct {
	Search string
	Type   store.TransportType
	Status store.Status
}

// Health returns the daemon health status. It needs no token.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListServers returns the caller's servers and their summary.
func (c *Client) ListServers(ctx context.Context, opts ListOptions) (*api.ListResponse, error) {
	q := url.Values{}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.Type != "" {
		q.Set("type", string(opts.Type))
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	path := "/v1/servers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out api.ListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServer returns one server.
func (c *Client) GetServer(ctx context.Context, id string) (*store.Server, error) {
	return c.server(ctx, http.MethodGet, serverPath(id, ""), nil)
}

// CreateServer registers a new server.
func (c *Client) CreateServer(ctx context.Context, in mcp.ServerInput) (*store.Server, error) {
	return c.server(ctx, http.MethodPost, "/v1/servers", in)
}

// UpdateServer replaces a server's configuration.
func (c *Client) UpdateServer(ctx context.Context, id string, in mcp.ServerInput) (*store.Server, error) {
	return c.server(ctx, http.MethodPut, serverPath(id, ""), in)
}

// DeleteServer removes a server.
func (c *Client) DeleteServer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, serverPath(id, ""), nil, nil)
}

// DuplicateServer copies a server. An empty name lets the daemon choose.
func (c *Client) DuplicateServer(ctx context.Context, id, name string) (*store.Server, error) {
	return c.server(ctx, http.MethodPost, serverPath(id, "duplicate"), api.DuplicateRequest{Name: name})
}

// SetEnabled enables or disables a server. When the daemon could not
// persist the change the reverted server is returned with the error.
func (c *Client) SetEnabled(ctx context.Context, id string, enabled bool) (*store.Server, error) {
	s, err := c.server(ctx, http.MethodPost, serverPath(id, "enabled"), api.EnabledRequest{Enabled: &enabled})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Server != nil {
		return apiErr.Server, err
	}
	return s, err
}

// Start connects a server. With wait set the call returns once the server
// is connected or errored.
func (c *Client) Start(ctx context.Context, id string, wait bool) (*store.Server, error) {
	path := serverPath(id, "start")
	if wait {
		path += "?wait=" + strconv.FormatBool(wait)
	}
	return c.server(ctx, http.MethodPost, path, nil)
}

// Stop disconnects a server.
func (c *Client) Stop(ctx context.Context, id string) (*store.Server, error) {
	return c.server(ctx, http.MethodPost, serverPath(id, "stop"), nil)
}

// Reload re-reads the caller's servers from the store.
func (c *Client) Reload(ctx context.Context) (*api.ListResponse, error) {
	var out api.ListResponse
	if err := c.do(ctx, http.MethodPost, "/v1/servers/reload", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveServers returns the connection descriptors of enabled, connected
// servers.
func (c *Client) ActiveServers(ctx context.Context) ([]mcp.ActiveServer, error) {
	var out api.ActiveResponse
	if err := c.do(ctx, http.MethodGet, "/v1/active", nil, &out); err != nil {
		return nil, err
	}
	return out.Servers, nil
}

func serverPath(id, action string) string {
	p := "/v1/servers/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) server(ctx context.Context, method, path string, body any) (*store.Server, error) {
	var out store.Server
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends a JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body api.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.Server = body.Server
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

// addAuth adds authentication headers to the request if configured.
func (c *Client) addAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
