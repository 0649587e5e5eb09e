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

package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewConsoleExporter(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewConsoleExporter(ConsoleConfig{Writer: &buf})
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "mcp.start")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"mcp.start"`)
}

func TestNewOTLPExporter(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		c        Collector
		wantErr  string
	}{
		{name: "grpc sidecar", protocol: ProtocolGRPC, c: Collector{Endpoint: "localhost:4317", Insecure: true}},
		{name: "grpc tls", protocol: ProtocolGRPC, c: Collector{Endpoint: "collector.internal:4317"}},
		{name: "http with ingest key", protocol: ProtocolHTTP, c: Collector{
			Endpoint: "localhost:4318",
			Headers:  map[string]string{"x-api-key": "k"},
		}},
		{name: "missing endpoint", protocol: ProtocolGRPC, wantErr: "requires a collector endpoint"},
		{name: "unknown protocol", protocol: "zipkin", c: Collector{Endpoint: "localhost:9411"}, wantErr: `unknown collector protocol "zipkin"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := NewOTLPExporter(context.Background(), tt.protocol, tt.c)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, exp.Shutdown(context.Background()))
		})
	}
}
