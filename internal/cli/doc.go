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

/*
Package cli provides the root command and shared configuration for mcpctl.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	mcpctl
	├── list        List servers
	├── get         Show one server
	├── add         Register a server (-i to prompt)
	├── edit        Change a server
	├── remove      Delete a server
	├── duplicate   Copy a server
	├── enable      Include in the active set
	├── disable     Exclude from the active set
	├── test        Connect and report
	├── stop        Disconnect
	├── active      Show active connection descriptors
	├── reload      Re-read servers from the store
	├── login       Store a token in the keychain
	├── logout      Remove the stored token
	├── serve-mcp   Run the MCP tool server on stdio
	└── version     Show version

# Global Flags

	--addr     daemon address (MCPD_ADDR, default 127.0.0.1:7420)
	--token    bearer token (MCPD_TOKEN, then the keychain)
	--json     machine-readable output
	--verbose  log HTTP requests to stderr
*/
package cli
