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

package mcpserver

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter bounds MCP tool calls. Connection tests start sandboxes, so
// they get a tighter budget than plain reads.
type RateLimiter struct {
	starts *rate.Limiter
	calls  *rate.Limiter
}

// NewRateLimiter creates a rate limiter with specified limits.
// startsPerMinute: max mcpd_test_connection calls per minute
// callsPerMinute: max total tool calls per minute
func NewRateLimiter(startsPerMinute, callsPerMinute int) *RateLimiter {
	return &RateLimiter{
		starts: perMinute(startsPerMinute),
		calls:  perMinute(callsPerMinute),
	}
}

func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(0, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// AllowStart checks if a connection test is allowed.
func (rl *RateLimiter) AllowStart() bool {
	return rl.starts.Allow()
}

// AllowCall checks if any tool call is allowed.
func (rl *RateLimiter) AllowCall() bool {
	return rl.calls.Allow()
}
