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

// Package version implements mcpctl version.
package version

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxbaines/ai-chatbot-plus/internal/commands/shared"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`

	// Daemon is the version reported by mcpd, when it answers.
	Daemon string `json:"daemon,omitempty"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date for mcpctl, and the version of the daemon if it is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Do not contact the daemon")

	return cmd
}

func runVersion(cmd *cobra.Command, offline bool) error {
	v, c, b := shared.GetVersion()

	info := VersionInfo{
		Version:   v,
		Commit:    c,
		BuildDate: b,
	}
	if !offline {
		info.Daemon = daemonVersion(cmd.Context())
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), info)
	}

	cmd.Printf("mcpctl version %s\n", info.Version)
	cmd.Printf("  commit:     %s\n", info.Commit)
	cmd.Printf("  build date: %s\n", info.BuildDate)
	if info.Daemon != "" {
		cmd.Printf("  daemon:     %s\n", info.Daemon)
	}

	return nil
}

// daemonVersion asks the daemon for its version, giving up quickly.
func daemonVersion(ctx context.Context) string {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := shared.NewClient()
	if err != nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	health, err := c.Health(ctx)
	if err != nil {
		return ""
	}
	if health.Version == "" {
		return fmt.Sprintf("unknown (%s)", health.Status)
	}
	return health.Version
}
