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
Package mcp manages a user's MCP server configurations and their connections.

A Session bundles the pieces for one user:

  - Registry: the authoritative in-memory set of servers, loaded from the
    store and mutated through Create, Update, Delete, Duplicate and SetEnabled.
  - Supervisor: the per-server connection state machine. Start probes an SSE
    endpoint, or starts a sandbox for a stdio server and probes that. Stop
    supersedes any start in flight.
  - StatusSync: persists every change through a per-server FIFO so writes for
    one server land in the order they were made.
  - ActiveServers: the projection handed to the chat pipeline. It contains
    every enabled, connected server with a usable URL.

# State machine

	disconnected --Start--> connecting --ready--> connected
	                             |
	                             +--failed--> error
	any --Stop--> disconnected

Status only changes inside the Supervisor. ErrorMessage is non-empty exactly
when Status is error.

# Usage

	sessions := mcp.NewSessionManager(mcp.SessionConfig{
	    Store:   st,
	    Sandbox: mcp.NewHTTPSandbox(sandboxCfg),
	    Logger:  logger,
	})

	sess, err := sessions.Get(ctx, userID)
	srv, err := sess.Registry.Create(ctx, mcp.ServerInput{
	    Name:      "search",
	    Transport: store.Transport{Type: store.TransportSSE, URL: "https://search.example/sse"},
	})
	srv, err = sess.Supervisor.Start(ctx, srv.ID)
	active := sess.Registry.ActiveServers()
*/
package mcp
