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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	mcpderrors "github.com/maxbaines/ai-chatbot-plus/pkg/errors"
)

func TestValidate(t *testing.T) {
	sse := func(url string) store.Transport {
		return store.Transport{Type: store.TransportSSE, URL: url}
	}

	tests := []struct {
		name      string
		input     ServerInput
		wantField string
	}{
		{name: "valid sse", input: ServerInput{Name: "search", Transport: sse("https://example.com/sse")}},
		{name: "valid http sse", input: ServerInput{Name: "local", Transport: sse("http://localhost:8080/sse")}},
		{name: "valid stdio", input: ServerInput{Name: "fs", Transport: store.Transport{Type: store.TransportStdio, Command: "npx"}}},
		{name: "max length name", input: ServerInput{Name: strings.Repeat("a", 255), Transport: sse("https://example.com")}},
		{name: "empty name", input: ServerInput{Name: "  ", Transport: sse("https://example.com")}, wantField: "name"},
		{name: "long name", input: ServerInput{Name: strings.Repeat("a", 256), Transport: sse("https://example.com")}, wantField: "name"},
		{name: "relative url", input: ServerInput{Name: "x", Transport: sse("/sse")}, wantField: "transport.url"},
		{name: "ftp url", input: ServerInput{Name: "x", Transport: sse("ftp://example.com")}, wantField: "transport.url"},
		{name: "empty url", input: ServerInput{Name: "x", Transport: sse("")}, wantField: "transport.url"},
		{name: "blank header", input: ServerInput{Name: "x", Transport: store.Transport{
			Type: store.TransportSSE, URL: "https://example.com", Headers: []store.KeyValue{{Key: "", Value: "v"}},
		}}, wantField: "transport.headers"},
		{name: "stdio without command", input: ServerInput{Name: "x", Transport: store.Transport{Type: store.TransportStdio}}, wantField: "transport.command"},
		{name: "stdio blank env", input: ServerInput{Name: "x", Transport: store.Transport{
			Type: store.TransportStdio, Command: "node", Env: []store.KeyValue{{Key: " ", Value: "1"}},
		}}, wantField: "transport.env"},
		{name: "unknown type", input: ServerInput{Name: "x", Transport: store.Transport{Type: "ws"}}, wantField: "transport.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *mcpderrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestTransportFor_DropsForeignFields(t *testing.T) {
	got := transportFor(store.Transport{
		Type:    store.TransportSSE,
		URL:     "https://example.com",
		Command: "node",
		Args:    []string{"server.js"},
	})
	assert.Equal(t, "https://example.com", got.URL)
	assert.Empty(t, got.Command)
	assert.Empty(t, got.Args)
}

func TestFilter(t *testing.T) {
	servers := []*store.Server{
		{ID: "1", Name: "GitHub Tools", Description: "issues and PRs", Transport: store.Transport{Type: store.TransportSSE}, Status: store.StatusConnected},
		{ID: "2", Name: "Filesystem", Description: "Local FILES", Transport: store.Transport{Type: store.TransportStdio}, Status: store.StatusError},
		{ID: "3", Name: "Weather", Transport: store.Transport{Type: store.TransportSSE}, Status: store.StatusDisconnected},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "empty", filter: Filter{}, want: []string{"1", "2", "3"}},
		{name: "search name ignores case", filter: Filter{Search: "github"}, want: []string{"1"}},
		{name: "search description", filter: Filter{Search: "files"}, want: []string{"2"}},
		{name: "by type", filter: Filter{Type: store.TransportSSE}, want: []string{"1", "3"}},
		{name: "by status", filter: Filter{Status: store.StatusError}, want: []string{"2"}},
		{name: "combined", filter: Filter{Search: "e", Type: store.TransportSSE, Status: store.StatusDisconnected}, want: []string{"3"}},
		{name: "no match", filter: Filter{Search: "nothing"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range servers {
				if tt.filter.match(s) {
					got = append(got, s.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	servers := []*store.Server{
		{Transport: store.Transport{Type: store.TransportSSE}, Status: store.StatusConnected},
		{Transport: store.Transport{Type: store.TransportSSE}, Status: store.StatusError},
		{Transport: store.Transport{Type: store.TransportStdio}, Status: store.StatusDisconnected},
		{Transport: store.Transport{Type: store.TransportStdio}, Status: store.StatusConnecting},
	}

	assert.Equal(t, Summary{Total: 4, Connected: 1, Disconnected: 2, SSE: 2, Stdio: 2}, Summarize(servers))
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSortByUpdated(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	servers := []*store.Server{
		{ID: "old", UpdatedAt: base},
		{ID: "new", UpdatedAt: base.Add(time.Hour)},
		{ID: "b", UpdatedAt: base.Add(time.Minute)},
		{ID: "a", UpdatedAt: base.Add(time.Minute)},
	}
	sortByUpdated(servers)

	var ids []string
	for _, s := range servers {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"new", "a", "b", "old"}, ids)
}
