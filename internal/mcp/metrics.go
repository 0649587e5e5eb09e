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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// statusTransitions counts status changes by target status
	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpd_status_transitions_total",
			Help: "Total server status transitions by target status",
		},
		[]string{"to"},
	)

	// probeAttempts counts readiness probe attempts by outcome
	probeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpd_probe_attempts_total",
			Help: "Total readiness probe attempts by result",
		},
		[]string{"result"},
	)

	// sandboxCalls counts sandbox service calls
	sandboxCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpd_sandbox_calls_total",
			Help: "Total sandbox service calls by operation and result",
		},
		[]string{"op", "result"},
	)

	// persistenceErrors counts failed store writes
	persistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpd_persistence_errors_total",
			Help: "Total failed store writes by operation",
		},
		[]string{"op"},
	)

	// startDuration tracks how long Start takes to reach a terminal status
	startDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpd_start_duration_seconds",
			Help:    "Time from connecting to a terminal status",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"transport", "result"},
	)
)

func recordTransition(to string) {
	statusTransitions.WithLabelValues(to).Inc()
}

func recordProbe(result string) {
	probeAttempts.WithLabelValues(result).Inc()
}

func recordSandboxCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sandboxCalls.WithLabelValues(op, result).Inc()
}

func recordPersistenceError(op string) {
	persistenceErrors.WithLabelValues(op).Inc()
}

func recordStart(transport, result string, elapsed time.Duration) {
	startDuration.WithLabelValues(transport, result).Observe(elapsed.Seconds())
}
