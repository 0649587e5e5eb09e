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
	"io"
	"strings"
	"time"

	"github.com/maxbaines/ai-chatbot-plus/internal/api"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
	"github.com/maxbaines/ai-chatbot-plus/pkg/secrets"
)

// truncate shortens s to n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func target(s *store.Server) string {
	if s.Transport.Type == store.TransportStdio {
		return strings.TrimSpace(s.Transport.Command + " " + strings.Join(s.Transport.Args, " "))
	}
	return s.Transport.URL
}

func printServerTable(w io.Writer, list *api.ListResponse) {
	if len(list.Servers) == 0 {
		fmt.Fprintln(w, "No MCP servers configured.")
		fmt.Fprintln(w, "\nTo add a server:")
		fmt.Fprintln(w, "  mcpctl add <name> --url https://example.com/sse")
		return
	}

	fmt.Fprintln(w, shared.RenderHeader(fmt.Sprintf("%-8s  %-24s %-6s %-12s %-7s %s", "ID", "NAME", "TYPE", "STATUS", "ENABLED", "TARGET")))
	for _, s := range list.Servers {
		fmt.Fprintf(w, "%-8s  %-24s %-6s %s %-7s %s\n",
			shortID(s.ID),
			truncate(s.Name, 24),
			s.Transport.Type,
			shared.RenderServerStatus(s.Status, 12),
			yesNo(s.Enabled),
			truncate(target(s), 48),
		)
		if s.Status == store.StatusError && s.ErrorMessage != "" {
			fmt.Fprintf(w, "%-8s  %s\n", "", shared.RenderLabel("└ "+s.ErrorMessage))
		}
	}

	sum := list.Summary
	fmt.Fprintf(w, "\n%s\n", shared.RenderLabel(fmt.Sprintf("%d servers: %d connected, %d disconnected (%d sse, %d stdio)",
		sum.Total, sum.Connected, sum.Disconnected, sum.SSE, sum.Stdio)))
}

func printServer(w io.Writer, s *store.Server) {
	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "%s %s\n", shared.RenderLabel(fmt.Sprintf("%-12s", label+":")), value)
	}

	row("ID", s.ID)
	row("Name", s.Name)
	row("Description", s.Description)
	row("Type", string(s.Transport.Type))
	row("Status", shared.RenderServerStatus(s.Status, 0))
	row("Error", s.ErrorMessage)
	row("Enabled", yesNo(s.Enabled))

	switch s.Transport.Type {
	case store.TransportSSE:
		row("URL", s.Transport.URL)
		if s.Transport.Streaming {
			row("Streaming", "yes")
		}
		for _, h := range s.Transport.Headers {
			row("Header", h.Key+": "+masker.MaskValue(h.Key, h.Value))
		}
	case store.TransportStdio:
		row("Command", s.Transport.Command)
		if len(s.Transport.Args) > 0 {
			row("Args", strings.Join(s.Transport.Args, " "))
		}
		for _, e := range s.Transport.Env {
			row("Env", e.Key+"="+masker.MaskValue(e.Key, e.Value))
		}
		row("Sandbox", s.SandboxURL)
	}

	if !s.UpdatedAt.IsZero() {
		row("Updated", s.UpdatedAt.Local().Format(time.RFC3339))
	}
}

// masker hides header and env values whose names look like credentials.
var masker = secrets.NewMasker()

func printActive(w io.Writer, active []mcp.ActiveServer) {
	if len(active) == 0 {
		fmt.Fprintln(w, "No active servers.")
		return
	}
	fmt.Fprintln(w, shared.RenderHeader(fmt.Sprintf("%-6s %-9s %s", "TYPE", "HEADERS", "URL")))
	for _, a := range active {
		fmt.Fprintf(w, "%-6s %-9d %s\n", a.Type, len(a.Headers), a.URL)
	}
}
