// Package mcp implements the Model Context Protocol server for provgraph.
//
// The MCP server lets MCP-compatible agents query the provenance graph
// that their own runtime events populate.
package mcp

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/provgraph/provgraph/internal/port/graphstore"
)

// Server wraps the MCP server with the graph query layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     graphstore.Store
	querier   graphstore.Querier // nil when the backend has no query surface
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
// querier may be nil; the query tool then reports the backend as read-only.
func New(store graphstore.Store, querier graphstore.Querier, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:   store,
		querier: querier,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"provgraph",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp server listening on stdio")
	return mcpserver.ServeStdio(s.mcpServer)
}
