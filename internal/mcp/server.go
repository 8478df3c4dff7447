// Package mcp exposes the question-answering pipeline over the Model Context
// Protocol, so MCP clients can ask questions, browse the accessible schema,
// and inspect the cache without going through the HTTP API.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/model"
	"github.com/tabletalk/tabletalk/internal/pipeline"
	"github.com/tabletalk/tabletalk/internal/policy"
)

// MCPServer wraps the mcp-go server with the tool and resource registrations.
// The MCP session runs under one fixed identity; the pipeline applies that
// identity's table access to every question, same as an HTTP caller.
type MCPServer struct {
	pipe     *pipeline.Pipeline
	catalog  *catalog.Catalog
	policy   *policy.Policy
	identity model.Identity
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and resources.
// The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(pipe *pipeline.Pipeline, cat *catalog.Catalog, pol *policy.Policy, identity model.Identity, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		pipe:     pipe,
		catalog:  cat,
		policy:   pol,
		identity: identity,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"TableTalk",
		"0.1.0",
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, the integration path for
// clients that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "role", s.identity.Role)
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on the
// given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr, "role", s.identity.Role)
	return httpServer.Start(addr)
}

// Every tool here is read-only; the pipeline refuses anything else.
func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
