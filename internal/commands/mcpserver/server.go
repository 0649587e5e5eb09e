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

// Package mcpserver implements mcpctl serve-mcp.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
	"github.com/maxbaines/ai-chatbot-plus/internal/mcpserver"
)

// NewCommand creates the serve-mcp command
func NewCommand() *cobra.Command {
	var (
		logLevel        string
		startsPerMinute int
	)

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run the mcpd MCP tool server on stdio",
		Long: `Run an MCP (Model Context Protocol) server on stdio that lets an AI
assistant inspect and test the MCP servers registered with mcpd.

Configuration example for an MCP client:
  {
    "mcpServers": {
      "mcpd": {
        "command": "mcpctl",
        "args": ["serve-mcp"]
      }
    }
  }

The server exposes these tools:
  - mcpd_list_servers: List servers with status and summary
  - mcpd_active_servers: Connection descriptors of active servers
  - mcpd_test_connection: Start a server and report the outcome
  - mcpd_stop_server: Disconnect a server
  - mcpd_set_enabled: Enable or disable a server

The daemon address and token are resolved like every other command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServer(cmd, logLevel, startsPerMinute)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Logging verbosity (debug, info, warn, error)")
	cmd.Flags().IntVar(&startsPerMinute, "starts-per-minute", 10, "Limit on mcpd_test_connection calls")

	return cmd
}

func runMCPServer(cmd *cobra.Command, logLevel string, startsPerMinute int) error {
	versionStr, _, _ := shared.GetVersion()

	c, err := shared.NewClient()
	if err != nil {
		return err
	}

	srv, err := mcpserver.NewServer(mcpserver.ServerConfig{
		Name:            "mcpd",
		Version:         versionStr,
		LogLevel:        logLevel,
		API:             c,
		StartsPerMinute: startsPerMinute,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
