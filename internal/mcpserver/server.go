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

// Package mcpserver implements an MCP server that exposes mcpd server
// management as tools, so an assistant can inspect and test its own
// connections.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/maxbaines/ai-chatbot-plus/internal/api"
	"github.com/maxbaines/ai-chatbot-plus/internal/client"
	mcpd "github.com/maxbaines/ai-chatbot-plus/internal/mcp"
	"github.com/maxbaines/ai-chatbot-plus/internal/store"
)

// API is the subset of the daemon client the tools use.
type API interface {
	ListServers(ctx context.Context, opts client.ListOptions) (*api.ListResponse, error)
	ActiveServers(ctx context.Context) ([]mcpd.ActiveServer, error)
	Start(ctx context.Context, id string, wait bool) (*store.Server, error)
	Stop(ctx context.Context, id string) (*store.Server, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*store.Server, error)
}

// Server wraps the MCP server and provides mcpd tools
type Server struct {
	mcpServer   *server.MCPServer
	api         API
	name        string
	version     string
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// ServerConfig configures the MCP server
type ServerConfig struct {
	// Name is the server name (default: "mcpd")
	Name string

	// Version is the mcpd version
	Version string

	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string

	// API reaches the daemon. Required.
	API API

	// StartsPerMinute and CallsPerMinute override the default rate limits.
	StartsPerMinute int
	CallsPerMinute  int
}

// createLogger creates a logger with the specified log level.
// Writes to stderr to avoid interfering with MCP stdio protocol.
func createLogger(levelStr string) (*slog.Logger, error) {
	var level slog.Level

	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), nil
}

// NewServer creates a new MCP server instance
func NewServer(config ServerConfig) (*Server, error) {
	if config.API == nil {
		return nil, fmt.Errorf("mcpd API client is required")
	}
	if config.Name == "" {
		config.Name = "mcpd"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.StartsPerMinute == 0 {
		config.StartsPerMinute = 10
	}
	if config.CallsPerMinute == 0 {
		config.CallsPerMinute = 100
	}

	logger, err := createLogger(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s := &Server{
		mcpServer:   server.NewMCPServer(config.Name, config.Version, server.WithToolCapabilities(false)),
		api:         config.API,
		name:        config.Name,
		version:     config.Version,
		rateLimiter: NewRateLimiter(config.StartsPerMinute, config.CallsPerMinute),
		logger:      logger,
	}
	s.mcpServer.AddTools(s.tools()...)

	return s, nil
}

// Run serves MCP over stdin and stdout until ctx is cancelled or stdin
// closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting mcpd MCP server", slog.String("version", s.version))

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// Helper function to create error response
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// Helper function to create success response
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// jsonResponse renders v as indented JSON.
func jsonResponse(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResponse(string(data))
}

const rateLimitMessage = "Rate limit exceeded. Please try again later."
