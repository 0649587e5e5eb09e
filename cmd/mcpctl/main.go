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
	"github.com/maxbaines/ai-chatbot-plus/internal/cli"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/auth"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/completion"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/mcpserver"
	"github.com/maxbaines/ai-chatbot-plus/internal/commands/servers"
	versioncmd "github.com/maxbaines/ai-chatbot-plus/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Server management
	rootCmd.AddCommand(servers.NewCommands()...)

	// Credentials
	rootCmd.AddCommand(auth.NewLoginCommand())
	rootCmd.AddCommand(auth.NewLogoutCommand())

	// MCP tool server for assistants
	rootCmd.AddCommand(mcpserver.NewCommand())

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
