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

// Package httpclient builds the HTTP clients mcpd and mcpctl use to reach
// the sandbox service and the daemon API.
//
// Clients created by New share the same behavior:
//   - Retry with exponential backoff and jitter for idempotent methods
//   - Request logging with sanitized URLs
//   - User-Agent and optional bearer token injection
//   - W3C trace context propagation from the request context
//   - TLS 1.2 minimum
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Token = token
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//
// # Retry Behavior
//
// 5xx, 408 and 429 responses and transient network errors are retried.
// Only GET, HEAD, OPTIONS, PUT and DELETE are retried unless
// AllowNonIdempotentRetry is set; POST requests run once.
package httpclient
