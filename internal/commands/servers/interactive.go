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
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
	"github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// promptServerInput fills in with a two-step form: the common fields, then
// the fields of the chosen transport.
func promptServerInput(in *mcp.ServerInput) error {
	typ := string(store.TransportSSE)

	baseForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("How the server is shown in lists").
				Validate(validateName).
				Value(&in.Name),
			huh.NewInput().
				Title("Description").
				Description("Optional").
				Value(&in.Description),
			huh.NewSelect[string]().
				Title("Transport").
				Options(
					huh.NewOption("SSE / HTTP (remote URL)", string(store.TransportSSE)),
					huh.NewOption("Stdio (command run in a sandbox)", string(store.TransportStdio)),
				).
				Value(&typ),
		),
	)
	if err := runForm(baseForm); err != nil {
		return err
	}

	in.Transport = store.Transport{Type: store.TransportType(typ)}
	var kvText, argsText string

	var detailForm *huh.Form
	if in.Transport.Type == store.TransportSSE {
		detailForm = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("URL").
					Placeholder("https://example.com/sse").
					Validate(validateURL).
					Value(&in.Transport.URL),
				huh.NewText().
					Title("Headers").
					Description("One key=value per line").
					Validate(validateKeyValues).
					Value(&kvText),
				huh.NewConfirm().
					Title("Use streamable HTTP?").
					Value(&in.Transport.Streaming),
			),
		)
	} else {
		detailForm = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Command").
					Placeholder("npx").
					Validate(validateRequired("command")).
					Value(&in.Transport.Command),
				huh.NewInput().
					Title("Arguments").
					Description("Separated by spaces").
					Value(&argsText),
				huh.NewText().
					Title("Environment").
					Description("One KEY=value per line").
					Validate(validateKeyValues).
					Value(&kvText),
			),
		)
	}
	if err := runForm(detailForm); err != nil {
		return err
	}

	kvs, err := parseKeyValueLines(kvText)
	if err != nil {
		return shared.NewUsageError(err.Error(), nil)
	}
	if in.Transport.Type == store.TransportSSE {
		in.Transport.Headers = kvs
	} else {
		in.Transport.Args = strings.Fields(argsText)
		in.Transport.Env = kvs
	}
	return nil
}

func runForm(form *huh.Form) error {
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return &shared.ExitError{Code: 130, Message: "cancelled"}
		}
		return fmt.Errorf("form cancelled: %w", err)
	}
	return nil
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("name is required")
	}
	if len([]rune(s)) > mcp.MaxNameLength {
		return fmt.Errorf("name must be at most %d characters", mcp.MaxNameLength)
	}
	return nil
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("enter an http or https URL")
	}
	return nil
}

func validateKeyValues(s string) error {
	_, err := parseKeyValueLines(s)
	return err
}
