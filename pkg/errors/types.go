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

package errors

import (
	"fmt"
)

// ValidationError represents malformed or missing server configuration.
// It is always raised before any persistence or network attempt.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a reference to a resource that does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "server")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements ErrorClassifier.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable implements ErrorClassifier.
func (e *NotFoundError) IsRetryable() bool { return false }

// OwnershipError represents a reference to a resource owned by another user.
type OwnershipError struct {
	// Resource is the type of resource (e.g., "server")
	Resource string

	// ID is the identifier of the resource
	ID string

	// UserID is the caller that attempted the access
	UserID string
}

// Error implements the error interface.
func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s %s is not owned by user %s", e.Resource, e.ID, e.UserID)
}

// ErrorType implements ErrorClassifier.
func (e *OwnershipError) ErrorType() string { return "ownership" }

// IsRetryable implements ErrorClassifier.
func (e *OwnershipError) IsRetryable() bool { return false }

// ConnectionError represents a failed readiness check against a server.
// The message is what ends up in the server's error message field.
type ConnectionError struct {
	// ServerID is the server whose connection attempt failed
	ServerID string

	// Message is the human-readable, displayable reason
	Message string

	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConnectionError) ErrorType() string { return "connection" }

// IsRetryable implements ErrorClassifier.
func (e *ConnectionError) IsRetryable() bool { return true }

// SandboxError represents a failed call to the sandbox service.
type SandboxError struct {
	// ServerID is the server the sandbox belongs to
	ServerID string

	// Op is the sandbox operation ("start" or "stop")
	Op string

	// StatusCode is the HTTP status returned by the sandbox service (if any)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *SandboxError) Error() string {
	msg := fmt.Sprintf("sandbox %s failed for %s", e.Op, e.ServerID)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *SandboxError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *SandboxError) ErrorType() string { return "sandbox" }

// IsRetryable implements ErrorClassifier.
func (e *SandboxError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// PersistenceError represents a failed call to the persistent store.
type PersistenceError struct {
	// Op is the store operation (e.g., "insert", "update", "list")
	Op string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("persistence %s failed", e.Op)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *PersistenceError) ErrorType() string { return "persistence" }

// IsRetryable implements ErrorClassifier.
func (e *PersistenceError) IsRetryable() bool { return true }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "probe.max_attempts")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := "config error"
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s", e.Key)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }
