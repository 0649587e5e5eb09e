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

package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/maxbaines/ai-chatbot-plus/internal/client"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

func idSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Server id (from mcpd_list_servers)",
	}
}

// tools returns every tool this server exposes.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.Tool{
				Name:        "mcpd_list_servers",
				Description: "List configured MCP servers with their connection status, plus a summary of counts.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"search": map[string]interface{}{
							"type":        "string",
							"description": "Case-insensitive match on name or description",
						},
						"type": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"sse", "stdio"},
							"description": "Only servers with this transport",
						},
						"status": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"disconnected", "connecting", "connected", "error"},
							"description": "Only servers in this status",
						},
					},
				},
			},
			Handler: s.handleListServers,
		},
		{
			Tool: mcp.Tool{
				Name:        "mcpd_active_servers",
				Description: "Return the connection descriptors of every enabled, connected server.",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{},
				},
			},
			Handler: s.handleActiveServers,
		},
		{
			Tool: mcp.Tool{
				Name:        "mcpd_test_connection",
				Description: "Start a server and report whether it became ready. Stdio servers are launched in a sandbox.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"id": idSchema(),
						"wait": map[string]interface{}{
							"type":        "boolean",
							"description": "Wait for the outcome (default: true)",
							"default":     true,
						},
					},
					Required: []string{"id"},
				},
			},
			Handler: s.handleTestConnection,
		},
		{
			Tool: mcp.Tool{
				Name:        "mcpd_stop_server",
				Description: "Disconnect a server and tear down its sandbox if it has one.",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{"id": idSchema()},
					Required:   []string{"id"},
				},
			},
			Handler: s.handleStopServer,
		},
		{
			Tool: mcp.Tool{
				Name:        "mcpd_set_enabled",
				Description: "Enable or disable a server. Only enabled servers appear in mcpd_active_servers.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"id": idSchema(),
						"enabled": map[string]interface{}{
							"type":        "boolean",
							"description": "New enabled state",
						},
					},
					Required: []string{"id", "enabled"},
				},
			},
			Handler: s.handleSetEnabled,
		},
	}
}

func (s *Server) handleListServers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse(rateLimitMessage), nil
	}

	opts := client.ListOptions{
		Search: request.GetString("search", ""),
		Type:   store.TransportType(request.GetString("type", "")),
		Status: store.Status(request.GetString("status", "")),
	}
	list, err := s.api.ListServers(ctx, opts)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to list servers: %v", err)), nil
	}
	return jsonResponse(list), nil
}

func (s *Server) handleActiveServers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse(rateLimitMessage), nil
	}

	active, err := s.api.ActiveServers(ctx)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to get active servers: %v", err)), nil
	}
	return jsonResponse(map[string]any{"servers": active}), nil
}

// ConnectionResult is the body of mcpd_test_connection.
type ConnectionResult struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    store.Status `json:"status"`
	Connected bool         `json:"connected"`
	Error     string       `json:"error,omitempty"`
}

func (s *Server) handleTestConnection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() || !s.rateLimiter.AllowStart() {
		return errorResponse(rateLimitMessage), nil
	}

	id, err := request.RequireString("id")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	wait := request.GetBool("wait", true)

	srv, err := s.api.Start(ctx, id, wait)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to start server: %v", err)), nil
	}
	s.logger.Debug("connection test", "server_id", id, "status", srv.Status)

	return jsonResponse(ConnectionResult{
		ID:        srv.ID,
		Name:      srv.Name,
		Status:    srv.Status,
		Connected: srv.Status == store.StatusConnected,
		Error:     srv.ErrorMessage,
	}), nil
}

func (s *Server) handleStopServer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse(rateLimitMessage), nil
	}

	id, err := request.RequireString("id")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	srv, err := s.api.Stop(ctx, id)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to stop server: %v", err)), nil
	}
	return textResponse(fmt.Sprintf("%s is %s", srv.Name, srv.Status)), nil
}

func (s *Server) handleSetEnabled(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.rateLimiter.AllowCall() {
		return errorResponse(rateLimitMessage), nil
	}

	id, err := request.RequireString("id")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	enabled, err := request.RequireBool("enabled")
	if err != nil {
		return errorResponse(err.Error()), nil
	}
	srv, err := s.api.SetEnabled(ctx, id, enabled)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to update server: %v", err)), nil
	}

	state := "disabled"
	if srv.Enabled {
		state = "enabled"
	}
	return textResponse(fmt.Sprintf("%s is %s", srv.Name, state)), nil
}
