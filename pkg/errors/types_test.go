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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

func TestValidationError(t *testing.T) {
	tests := []struct {
		name     string
		err      *mcpderrors.ValidationError
		contains []string
	}{
		{
			name:     "with field",
			err:      &mcpderrors.ValidationError{Field: "url", Message: "must be a valid URL"},
			contains: []string{"url", "must be a valid URL"},
		},
		{
			name:     "without field",
			err:      &mcpderrors.ValidationError{Message: "command is required"},
			contains: []string{"validation failed", "command is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want it to contain %q", msg, s)
				}
			}
			if tt.err.ErrorType() != "validation" {
				t.Errorf("ErrorType() = %q, want validation", tt.err.ErrorType())
			}
			if tt.err.IsRetryable() {
				t.Error("validation errors should not be retryable")
			}
		})
	}
}

func TestNotFoundAndOwnershipError(t *testing.T) {
	nf := &mcpderrors.NotFoundError{Resource: "server", ID: "abc"}
	if got := nf.Error(); got != "server not found: abc" {
		t.Errorf("NotFoundError.Error() = %q", got)
	}

	own := &mcpderrors.OwnershipError{Resource: "server", ID: "abc", UserID: "u2"}
	msg := own.Error()
	for _, s := range []string{"server", "abc", "u2"} {
		if !strings.Contains(msg, s) {
			t.Errorf("OwnershipError.Error() = %q, want it to contain %q", msg, s)
		}
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &mcpderrors.ConnectionError{ServerID: "s1", Message: "Could not connect to server", Cause: cause}

	if err.Error() != "Could not connect to server" {
		t.Errorf("Error() = %q, want the displayable message only", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("ConnectionError should unwrap to its cause")
	}
	if !err.IsRetryable() {
		t.Error("connection errors should be retryable")
	}
}

func TestSandboxError(t *testing.T) {
	tests := []struct {
		name      string
		err       *mcpderrors.SandboxError
		contains  string
		retryable bool
	}{
		{
			name:      "transport failure",
			err:       &mcpderrors.SandboxError{ServerID: "s1", Op: "start", Cause: errors.New("timeout")},
			contains:  "sandbox start failed for s1: timeout",
			retryable: true,
		},
		{
			name:      "server error",
			err:       &mcpderrors.SandboxError{ServerID: "s1", Op: "stop", StatusCode: 502},
			contains:  "[HTTP 502]",
			retryable: true,
		},
		{
			name:      "client error",
			err:       &mcpderrors.SandboxError{ServerID: "s1", Op: "start", StatusCode: 400},
			contains:  "[HTTP 400]",
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("Error() = %q, want it to contain %q", tt.err.Error(), tt.contains)
			}
			if tt.err.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", tt.err.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("database is locked")
	err := &mcpderrors.PersistenceError{Op: "update", Cause: cause}

	if !strings.Contains(err.Error(), "persistence update failed") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("PersistenceError should unwrap to its cause")
	}

	wrapped := fmt.Errorf("set enabled: %w", err)
	if !mcpderrors.IsPersistence(wrapped) {
		t.Error("IsPersistence should see through wrapping")
	}
}

func TestConfigError(t *testing.T) {
	err := &mcpderrors.ConfigError{Key: "probe.max_attempts", Reason: "must be positive"}
	want := "config error at probe.max_attempts: must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&mcpderrors.ValidationError{Message: "x"}, "validation"},
		{fmt.Errorf("wrap: %w", &mcpderrors.NotFoundError{Resource: "server", ID: "1"}), "not_found"},
		{&mcpderrors.OwnershipError{Resource: "server", ID: "1", UserID: "u"}, "ownership"},
		{&mcpderrors.PersistenceError{Op: "list"}, "persistence"},
		{errors.New("plain"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := mcpderrors.TypeOf(tt.err); got != tt.want {
				t.Errorf("TypeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
