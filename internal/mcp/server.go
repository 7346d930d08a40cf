package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/dshills/modelstore/internal/app"
)

const (
	// ServerName is the MCP server name
	ServerName = "modelstore"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server exposes an App over the Model Context Protocol
type Server struct {
	mcp *server.MCPServer
	app *app.App
	log logrus.FieldLogger
}

// NewServer creates a server for a and registers its tools
func NewServer(a *app.App) *Server {
	s := &Server{
		mcp: server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		app: a,
		log: a.Log.WithField("component", "mcp"),
	}
	s.registerTools()
	return s
}

// Serve answers MCP requests on stdio until ctx is done or stdin closes.
// The App stays open; the caller owns it.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("Serving MCP on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(queryModelTool(), s.handleQueryModel)
	s.mcp.AddTool(relatedTablesTool(), s.handleRelatedTables)
	s.mcp.AddTool(workspaceStatsTool(), s.handleWorkspaceStats)
	s.mcp.AddTool(migrationStatusTool(), s.handleMigrationStatus)
	s.mcp.AddTool(changedFilesTool(), s.handleChangedFiles)
	s.mcp.AddTool(syncSnapshotTool(), s.handleSyncSnapshot)
}
