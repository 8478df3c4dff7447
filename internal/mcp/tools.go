package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	srv.AddTool(
		mcp.NewTool("tabletalk_ask",
			mcp.WithDescription(
				"Ask a question about the data in plain language. The question is "+
					"translated to a single read-only SELECT, checked against the "+
					"session's table access, and executed with a row cap and timeout. "+
					"Returns the SQL that ran and the resulting rows as JSON. "+
					"Use tabletalk_list_tables first to see what can be asked about.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("The question to answer, e.g. \"total amount by region in sales\""),
			),
		),
		s.handleAsk,
	)

	srv.AddTool(
		mcp.NewTool("tabletalk_list_tables",
			mcp.WithDescription(
				"List the tables and columns this session may query. Tables outside "+
					"the session's access are absent, not marked restricted. Use this "+
					"to ground questions before calling tabletalk_ask.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListTables,
	)

	srv.AddTool(
		mcp.NewTool("tabletalk_cache_stats",
			mcp.WithDescription(
				"Report the result cache's entry count, capacity, TTL, and lifetime "+
					"hit count.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleCacheStats,
	)
}

// handleAsk runs a question through the pipeline under the session identity.
func (s *MCPServer) handleAsk(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	question, err := requireString(request, "question")
	if err != nil {
		return toolError("%v", err)
	}

	ans, rej := s.pipe.HandleQuestion(ctx, s.identity, question)
	if rej != nil {
		// Rejections go back as tool errors so the client can rephrase.
		if rej.Fragment != "" {
			return toolError("%s: %s (offending fragment: %s)", rej.Code, rej.Message, rej.Fragment)
		}
		return toolError("%s: %s", rej.Code, rej.Message)
	}

	return successJSON(ans)
}

// handleListTables returns the schema visible to the session identity.
func (s *MCPServer) handleListTables(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return toolError("Failed to load the schema catalog: %v", err)
	}

	visible, allowed := s.policy.Resolve(s.identity.Role, snap.Tables)

	type columnSummary struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	type tableInfo struct {
		Name    string          `json:"name"`
		Columns []columnSummary `json:"columns"`
	}

	tables := make([]tableInfo, 0, len(visible))
	for _, name := range allowed {
		t, ok := visible[name]
		if !ok {
			continue
		}
		cols := make([]columnSummary, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = columnSummary{Name: c.Name, Type: c.Type}
		}
		tables = append(tables, tableInfo{Name: t.Name, Columns: cols})
	}

	return successJSON(map[string]interface{}{
		"role":   s.identity.Role,
		"tables": tables,
	})
}

// handleCacheStats reports the result cache state.
func (s *MCPServer) handleCacheStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return successJSON(s.pipe.CacheStats())
}
