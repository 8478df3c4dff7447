package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			"tabletalk://schema",
			"Accessible Schema",
			mcp.WithResourceDescription(
				"Tables and columns the session's role may query, "+
					"in the same compact form the SQL generator sees.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleSchemaResource,
	)
}

// handleSchemaResource returns the role-filtered schema as JSON.
func (s *MCPServer) handleSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load the schema catalog: %w", err)
	}

	visible, allowed := s.policy.Resolve(s.identity.Role, snap.Tables)

	payload := map[string]interface{}{
		"role":           s.identity.Role,
		"allowed_tables": allowed,
		"tables":         visible,
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "tabletalk://schema",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
