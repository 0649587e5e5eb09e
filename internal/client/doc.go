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
Package client provides an HTTP client for the mcpd API.

mcpctl and the MCP tool server use it to talk to a running daemon.

# Basic Usage

	c, err := client.New(client.WithBaseURL("127.0.0.1:7420"), client.WithToken(tok))
	if err != nil {
	    return err
	}

	list, err := c.ListServers(ctx, client.ListOptions{Status: "connected"})

	// Start and wait for the outcome.
	server, err := c.Start(ctx, id, true)

# Configuration

When no options are given the address comes from MCPD_ADDR and the token
from MCPD_TOKEN. Requests are sent through pkg/httpclient, so idempotent
calls are retried on transient failures.

# Errors

Non-2xx responses are returned as *APIError carrying the status code and
the daemon's error code:

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
	    // ...
	}
*/
package client
