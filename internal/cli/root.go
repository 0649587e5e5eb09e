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

package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
	mcplog "github.com/maxbaines/ai-chatbot-plus/internal/log"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for mcpctl
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcpctl",
		Short: "mcpctl - manage MCP server connections",
		Long: `mcpctl talks to a running mcpd daemon to register MCP servers,
connect them, and inspect which ones are active.

Run 'mcpctl login' to store a token, then 'mcpctl list' to get started.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if shared.GetVerbose() {
				cfg := mcplog.FromEnv()
				if cfg.Level != "trace" {
					cfg.Level = "debug"
				}
				cfg.Format = mcplog.FormatText
				cfg.Output = cmd.ErrOrStderr()
				slog.SetDefault(mcplog.New(cfg))
			}
		},
	}

	flags := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().StringVar(flags.Addr, "addr", "", "Daemon address (default: $MCPD_ADDR or 127.0.0.1:7420)")
	cmd.PersistentFlags().StringVar(flags.Token, "token", "", "Bearer token (default: $MCPD_TOKEN or the stored login)")
	cmd.PersistentFlags().BoolVar(flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(flags.Verbose, "verbose", "v", false, "Log HTTP requests to stderr")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
