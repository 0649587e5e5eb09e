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

/*
Package tracing sets up OpenTelemetry for mcpd.

New installs a global TracerProvider and MeterProvider. Spans go to the
exporter named in the config (stdout, OTLP over gRPC or HTTP, or nowhere).
Metrics recorded through the OTel API are exposed on the same Prometheus
registry as the promauto counters, so one /metrics endpoint serves both.

# Quick Start

	p, err := tracing.New(ctx, tracing.Config{
	    Enabled:     true,
	    ServiceName: "mcpd",
	    SampleRate:  1.0,
	    Exporter:    tracing.ExporterConfig{Type: "stdout"},
	})
	if err != nil {
	    return err
	}
	defer p.Shutdown(context.Background())

	mux.Handle("GET /metrics", p.MetricsHandler())
	handler := tracing.HTTPMiddleware(mux)
*/
package tracing
