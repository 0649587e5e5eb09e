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

// Package auth implements mcpctl login and logout.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/maxbaines/ai-chatbot-plus/internal/client"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a daemon token in the system keychain",
		Long: `Store a bearer token for the daemon at --addr in the system keychain.

The token is checked against the daemon before it is saved. Tokens are
issued with 'mcpd token --user <id>'.`,
		Example: `  # Prompt for the token
  mcpctl login

  # Read it from a pipe
  mcpd token --user alice | mcpctl login --stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := shared.ResolveAddr()

			token := shared.GetToken()
			var err error
			switch {
			case token != "":
			case fromStdin:
				token, err = readToken(cmd.InOrStdin())
			case shared.IsInteractive():
				token, err = promptToken()
			default:
				return shared.NewUsageError("no token given: use --token, --stdin or run in a terminal", nil)
			}
			if err != nil {
				return err
			}

			c, err := client.New(client.WithBaseURL(addr), client.WithToken(token))
			if err != nil {
				return shared.NewUsageError("invalid daemon address", err)
			}
			if _, err := c.ListServers(cmd.Context(), client.ListOptions{}); err != nil {
				return fmt.Errorf("token rejected by %s: %w", c.BaseURL(), err)
			}

			if err := shared.SaveToken(addr, token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Logged in to "+c.BaseURL()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the token from stdin")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored daemon token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := shared.ResolveAddr()
			if err := shared.DeleteToken(addr); err != nil {
				if errors.Is(err, shared.ErrNoToken) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
					return nil
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Logged out"))
			return nil
		},
	}
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", shared.NewUsageError("empty token on stdin", nil)
	}
	return token, nil
}

func promptToken() (string, error) {
	var token string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Token").
				Description("Bearer token issued by 'mcpd token'").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("token is required")
					}
					return nil
				}).
				Value(&token),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", &shared.ExitError{Code: 130, Message: "cancelled"}
		}
		return "", fmt.Errorf("form cancelled: %w", err)
	}
	return strings.TrimSpace(token), nil
}
