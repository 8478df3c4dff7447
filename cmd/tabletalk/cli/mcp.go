package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	tmcp "github.com/tabletalk/tabletalk/internal/mcp"
	"github.com/tabletalk/tabletalk/internal/model"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
		role      string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that lets AI agents ask
questions about the data. The whole session runs under one role; every
question passes the same safety checks and table access rules as the HTTP API.

In stdio mode the server communicates over stdin/stdout using JSON-RPC,
suitable for clients that launch it as a subprocess. In HTTP mode it listens
on the given port.`,
		Example: `  tabletalk mcp                              # stdio mode
  tabletalk mcp --role readonly              # restrict the session's access
  tabletalk mcp --transport http --port 3001 # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port, role)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().StringVar(&role, "role", "analyst", "Role the MCP session queries as")

	return cmd
}

func runMCP(transport string, port int, role string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdio carries the protocol; logs must stay on stderr and stay quiet.
	if transport == "stdio" {
		cfg.Logging.Level = "warn"
	}
	logger := newLogger(cfg)

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := a.catalog.Snapshot(warmCtx); err != nil {
		logger.Warn("initial schema introspection failed", "error", err)
	}
	cancel()

	id := model.Identity{UserID: "mcp", Username: "mcp", Role: strings.ToLower(role)}
	mcpSrv := tmcp.NewMCPServer(a.pipeline, a.catalog, a.policy, id, logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
