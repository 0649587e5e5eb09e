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

package servers

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// kvList is a repeatable key=value flag that keeps the given order.
type kvList []store.KeyValue

var _ pflag.Value = (*kvList)(nil)

func (l *kvList) String() string {
	parts := make([]string, 0, len(*l))
	for _, kv := range *l {
		parts = append(parts, kv.Key+"="+kv.Value)
	}
	return strings.Join(parts, ",")
}

func (l *kvList) Set(s string) error {
	kv, err := parseKeyValue(s)
	if err != nil {
		return err
	}
	*l = append(*l, kv)
	return nil
}

func (l *kvList) Type() string {
	return "key=value"
}

func parseKeyValue(s string) (store.KeyValue, error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return store.KeyValue{}, fmt.Errorf("expected key=value, got %q", s)
	}
	return store.KeyValue{Key: key, Value: value}, nil
}

// parseKeyValueLines parses one key=value per line, skipping blanks.
func parseKeyValueLines(text string) ([]store.KeyValue, error) {
	var out []store.KeyValue
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kv, err := parseKeyValue(line)
		if err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, nil
}

// transportFlags are the connection flags shared by add and edit.
type transportFlags struct {
	typ         string
	url         string
	headers     kvList
	streaming   bool
	command     string
	args        []string
	env         kvList
	description string
}

func (f *transportFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.typ, "type", "", "Transport type: sse or stdio (default: stdio when --command is set)")
	fs.StringVar(&f.url, "url", "", "Server URL (sse)")
	fs.Var(&f.headers, "header", "Request header as key=value (sse, repeatable)")
	fs.BoolVar(&f.streaming, "streaming", false, "Use streamable HTTP instead of SSE (sse)")
	fs.StringVar(&f.command, "command", "", "Command to run (stdio)")
	fs.StringArrayVar(&f.args, "arg", nil, "Command argument (stdio, repeatable)")
	fs.Var(&f.env, "env", "Environment variable as key=value (stdio, repeatable)")
	fs.StringVarP(&f.description, "description", "d", "", "Description")
}

// transport builds a transport from the flags alone.
func (f *transportFlags) transport() (store.Transport, error) {
	typ := store.TransportType(strings.ToLower(f.typ))
	if typ == "" {
		typ = store.TransportSSE
		if f.command != "" {
			typ = store.TransportStdio
		}
	}
	switch typ {
	case store.TransportSSE:
		return store.Transport{Type: typ, URL: f.url, Headers: f.headers, Streaming: f.streaming}, nil
	case store.TransportStdio:
		return store.Transport{Type: typ, Command: f.command, Args: f.args, Env: f.env}, nil
	default:
		return store.Transport{}, fmt.Errorf("unknown transport type %q (must be sse or stdio)", f.typ)
	}
}

// apply overlays the flags that were set on fs onto t.
func (f *transportFlags) apply(fs *pflag.FlagSet, t store.Transport) (store.Transport, error) {
	if fs.Changed("type") {
		typ := store.TransportType(strings.ToLower(f.typ))
		if typ != store.TransportSSE && typ != store.TransportStdio {
			return t, fmt.Errorf("unknown transport type %q (must be sse or stdio)", f.typ)
		}
		t.Type = typ
	}
	if fs.Changed("url") {
		t.URL = f.url
	}
	if fs.Changed("header") {
		t.Headers = f.headers
	}
	if fs.Changed("streaming") {
		t.Streaming = f.streaming
	}
	if fs.Changed("command") {
		t.Command = f.command
	}
	if fs.Changed("arg") {
		t.Args = f.args
	}
	if fs.Changed("env") {
		t.Env = f.env
	}
	return t, nil
}
