package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/guillermoBallester/pgchat/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "pgchat"

const (
	descListTables = "List all tables and views with schema, type, estimated row count and comment. " +
		"Call this first to see what can be queried."

	descDescribeTable = "Describe one table as JSON: columns with types, nullability, defaults and comments; " +
		"primary keys; foreign keys with referenced tables; indexes; a few sample rows. " +
		"Foreign keys show the JOIN paths."

	descTableInfo = "Input is a comma-separated list of tables, output is a CREATE TABLE statement and " +
		"three sample rows for each. Example: customers, orders"

	descQuery = "Execute one read-only SQL query and return columns and rows as JSON. " +
		"Only SELECT, WITH, EXPLAIN and SHOW are accepted; anything else is rejected before it reaches the database. " +
		"A server-side row limit and query timeout are enforced; truncated is true when rows were cut."

	descExplainQuery = "Show the PostgreSQL execution plan for a SELECT query " +
		"(scan types, join methods, cost estimates). The query itself is not run."
)

// RegisterTools adds the database tools to s.
func RegisterTools(s *server.MCPServer, explorer port.SchemaExplorer, tools *service.Toolset, query *service.QueryService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
		),
		listTablesHandler(explorer, logger),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description("Name of the table to describe"),
			),
			mcp.WithString("schema",
				mcp.Description("Schema name (optional, resolves automatically if omitted)"),
			),
		),
		describeTableHandler(explorer, logger),
	)

	s.AddTool(
		mcp.NewTool("table_info",
			mcp.WithDescription(descTableInfo),
			mcp.WithString("tables",
				mcp.Required(),
				mcp.Description("Comma-separated table names"),
			),
		),
		tableInfoHandler(tools, logger),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL query to execute (read-only statements only)"),
			),
		),
		queryHandler(query, logger, "query", ""),
	)

	s.AddTool(
		mcp.NewTool("explain_query",
			mcp.WithDescription(descExplainQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("The SELECT query to explain (without the EXPLAIN keyword)"),
			),
		),
		queryHandler(query, logger, "explain_query", "EXPLAIN "),
	)
}

func listTablesHandler(explorer port.SchemaExplorer, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := explorer.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list tables")), nil
		}
		return jsonResult(tables)
	}
}

func describeTableHandler(explorer port.SchemaExplorer, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName := request.GetString("table_name", "")
		if tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}
		schema := request.GetString("schema", "")

		detail, err := explorer.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "describe table")), nil
		}
		return jsonResult(detail)
	}
}

func tableInfoHandler(tools *service.Toolset, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names := request.GetString("tables", "")
		if names == "" {
			return mcp.NewToolResultError("tables is required"), nil
		}

		info, err := tools.TableInfo(service.WithToolName(ctx, "table_info"), names)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "table info")), nil
		}
		return mcp.NewToolResultText(info), nil
	}
}

// queryHandler runs sql through the guarded query service. prefix is
// prepended verbatim, which is how explain_query forces a plan.
func queryHandler(query *service.QueryService, logger *slog.Logger, tool, prefix string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql := request.GetString("sql", "")
		if sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		res, err := query.Execute(service.WithToolName(ctx, tool), prefix+sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, tool)), nil
		}
		return jsonResult(res)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// sanitizeError turns err into what the client may see. Guard rejections,
// timeouts and server-reported SQL errors are useful to the model and pass
// through; anything else is logged and replaced with a generic message.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	if rej, ok := domain.AsRejection(err); ok {
		return fmt.Sprintf("%s rejected: %v", op, rej)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return op + " failed: query timed out"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "57014" {
			return op + " failed: query timed out"
		}
		return fmt.Sprintf("%s failed: %s (SQLSTATE %s)", op, pgErr.Message, pgErr.Code)
	}
	if errors.Is(err, port.ErrTableNotFound) {
		return op + " failed: " + err.Error()
	}
	logger.Error("tool failed", "op", op, "error", err)
	return op + " failed: internal error, check server logs"
}

