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

package tracing

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are sampled and exported. Metrics are
	// always recorded.
	Enabled bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRate is the fraction of root traces recorded (0.0 - 1.0).
	SampleRate float64

	// Exporter selects where spans go.
	Exporter ExporterConfig

	// Registerer receives the OTel metric collector. Defaults to the
	// Prometheus default registerer.
	Registerer prometheus.Registerer

	// Gatherer serves /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is "stdout", "otlp" (gRPC), "otlp_http" or "none".
	Type string

	// Endpoint is the collector address for the otlp exporters.
	Endpoint string

	// Insecure disables TLS to the collector.
	Insecure bool

	// Headers are sent with every export request.
	Headers map[string]string

	// Writer receives stdout spans. Defaults to os.Stdout.
	Writer io.Writer
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "mcpd",
		ServiceVersion: "unknown",
		SampleRate:     1.0,
		Exporter:       ExporterConfig{Type: "stdout"},
	}
}
