package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/guillermoBallester/pgchat/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer over the same tools the chat agent uses.
// tracer and inst may be nil.
func NewServer(version string, explorer port.SchemaExplorer, tools *service.Toolset, query *service.QueryService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, explorer, tools, query, logger)

	return s
}
