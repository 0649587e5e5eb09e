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
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// ActiveServer is what the chat pipeline needs to reach a server. Every
// active server is addressed over SSE: stdio servers are exposed through
// their sandbox.
type ActiveServer struct {
	Type      string           `json:"type"`
	URL       string           `json:"url"`
	Headers   []store.KeyValue `json:"headers,omitempty"`
	Streaming bool             `json:"streaming,omitempty"`
}

// ActiveServers projects servers onto the enabled, connected ones. Order
// follows the input.
func ActiveServers(servers []*store.Server) []ActiveServer {
	out := make([]ActiveServer, 0, len(servers))
	for _, s := range servers {
		if s == nil || !s.Enabled || s.Status != store.StatusConnected {
			continue
		}
		switch s.Transport.Type {
		case store.TransportSSE:
			out = append(out, ActiveServer{
				Type:      string(store.TransportSSE),
				URL:       s.Transport.URL,
				Headers:   append([]store.KeyValue(nil), s.Transport.Headers...),
				Streaming: s.Transport.Streaming,
			})
		case store.TransportStdio:
			if s.SandboxURL == "" {
				continue
			}
			out = append(out, ActiveServer{
				Type: string(store.TransportSSE),
				URL:  s.SandboxURL,
			})
		}
	}
	return out
}
