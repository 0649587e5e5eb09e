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
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "no retries needs no backoff", modify: func(c *Config) {
			c.RetryAttempts = 0
			c.RetryBackoff = 0
		}},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, wantErr: "timeout"},
		{name: "negative retries", modify: func(c *Config) { c.RetryAttempts = -1 }, wantErr: "retry_attempts"},
		{name: "zero backoff", modify: func(c *Config) { c.RetryBackoff = 0 }, wantErr: "retry_backoff"},
		{name: "max below base", modify: func(c *Config) { c.MaxBackoff = time.Millisecond }, wantErr: "max_backoff"},
		{name: "empty user agent", modify: func(c *Config) { c.UserAgent = "" }, wantErr: "user_agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
