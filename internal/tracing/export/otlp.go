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


// Package export builds span exporters for the configured backends.
package export

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// Values of tracing.exporter.type that ship spans to a collector.
const (
	ProtocolGRPC = "otlp"
	ProtocolHTTP = "otlp_http"
)

// Collector is the OpenTelemetry collector mcpd sends connection spans to.
type Collector struct {
	// Endpoint is host:port, usually 4317 for gRPC and 4318 for HTTP.
	Endpoint string

	// Insecure sends plaintext, for a collector sidecar next to mcpd.
	Insecure bool

	// Headers go with every export, typically an ingest key.
	Headers map[string]string
}

// NewOTLPExporter builds an exporter speaking protocol to c. Nothing is
// dialed until the first batch is exported.
func NewOTLPExporter(ctx context.Context, protocol string, c Collector) (trace.SpanExporter, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("%s exporter requires a collector endpoint", protocol)
	}

	var (
		exp trace.SpanExporter
		err error
	)
	switch protocol {
	case ProtocolGRPC:
		exp, err = otlptracegrpc.New(ctx, grpcOptions(c)...)
	case ProtocolHTTP:
		exp, err = otlptracehttp.New(ctx, httpOptions(c)...)
	default:
		return nil, fmt.Errorf("unknown collector protocol %q", protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s collector %s: %w", protocol, c.Endpoint, err)
	}
	return exp, nil
}

func grpcOptions(c Collector) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.Endpoint)}
	if c.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(collectorTLS())))
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(c.Headers))
	}
	return opts
}

func httpOptions(c Collector) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.Endpoint)}
	if c.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	} else {
		opts = append(opts, otlptracehttp.WithTLSClientConfig(collectorTLS()))
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.Headers))
	}
	return opts
}

func collectorTLS() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}
