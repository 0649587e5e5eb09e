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

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxbaines/ai-chatbot-plus/internal/api"
	"github.com/maxbaines/ai-chatbot-plus/internal/config"
	"github.com/maxbaines/ai-chatbot-plus/internal/daemon"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts daemon.RunOptions

	root := &cobra.Command{
		Use:   "mcpd",
		Short: "mcpd - MCP server connection manager",
		Long: `mcpd keeps a per-user registry of MCP servers, connects them on request
and serves the set of active servers to chat clients over HTTP.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/mcpd/config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts)
		},
	}
	for _, c := range []*cobra.Command{root, serveCmd} {
		c.Flags().StringVar(&opts.ListenAddr, "listen", "", "Address to listen on (overrides listen.addr)")
		c.Flags().StringVar(&opts.StoreBackend, "store", "", "Store backend: sqlite or memory")
		c.Flags().StringVar(&opts.StorePath, "db", "", "SQLite database path")
		c.Flags().BoolVar(&opts.NoAuth, "no-auth", false, "Disable token verification (single-user local setups)")
	}

	root.AddCommand(serveCmd, newTokenCommand(&opts.ConfigPath))
	return root
}

func serve(opts daemon.RunOptions) error {
	opts.Version = version
	opts.Commit = commit
	opts.BuildDate = buildDate
	return daemon.Run(opts)
}

func newTokenCommand(configPath *string) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		Long: `Issue an HS256 bearer token signed with the configured JWT secret.

Hand the token to mcpctl with 'mcpctl login' or $MCPD_TOKEN.`,
		Example: `  mcpd token --user alice --ttl 720h | mcpctl login --stdin`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(daemon.ResolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			tok, err := api.GenerateToken(user, ttl, api.AuthConfig{
				Secret: []byte(cfg.Auth.Secret),
				Issuer: cfg.Auth.Issuer,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id to put in the token's subject (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
