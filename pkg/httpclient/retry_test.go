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

package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestIsIdempotent(t *testing.T) {
	tests := map[string]bool{
		http.MethodGet:     true,
		http.MethodHead:    true,
		http.MethodOptions: true,
		http.MethodPut:     true,
		http.MethodDelete:  true,
		http.MethodPost:    false,
		http.MethodPatch:   false,
	}
	for method, want := range tests {
		if got := isIdempotent(method); got != want {
			t.Errorf("isIdempotent(%s) = %v, want %v", method, got, want)
		}
	}
}

func TestShouldRetryStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		if got := shouldRetryStatus(tt.status); got != tt.want {
			t.Errorf("shouldRetryStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	if isRetryableError(context.Canceled) {
		t.Error("context.Canceled should not be retried")
	}
	if isRetryableError(context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should not be retried")
	}
	if !isRetryableError(&net.OpError{Op: "dial", Err: errors.New("connection refused")}) {
		t.Error("dial errors should be retried")
	}
	if isRetryableError(errors.New("boom")) {
		t.Error("plain errors should not be retried")
	}
}

func TestCalculateBackoff(t *testing.T) {
	rt := &retryTransport{baseBackoff: 100 * time.Millisecond, maxBackoff: 300 * time.Millisecond}

	first := rt.calculateBackoff(1)
	if first < 100*time.Millisecond || first > 120*time.Millisecond {
		t.Errorf("attempt 1 backoff out of range: %v", first)
	}

	capped := rt.calculateBackoff(10)
	if capped < 300*time.Millisecond || capped > 360*time.Millisecond {
		t.Errorf("capped backoff out of range: %v", capped)
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if d := parseRetryAfter(resp); d != 0 {
		t.Errorf("missing header should yield 0, got %v", d)
	}

	resp.Header.Set("Retry-After", "2")
	if d := parseRetryAfter(resp); d != 2*time.Second {
		t.Errorf("expected 2s, got %v", d)
	}

	resp.Header.Set("Retry-After", "soon")
	if d := parseRetryAfter(resp); d != 0 {
		t.Errorf("invalid header should yield 0, got %v", d)
	}
}
