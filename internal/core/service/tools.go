package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/port"
)

// Tool names match the SQL toolkit the prompts were written against.
const (
	ToolListTables   = "sql_db_list_tables"
	ToolSchema       = "sql_db_schema"
	ToolQuery        = "sql_db_query"
	ToolQueryChecker = "sql_db_query_checker"
)

// Tool is one action the agent may take. Run receives the raw Action Input.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, input string) (string, error)
}

// Toolset exposes the database to the agent and to MCP clients.
type Toolset struct {
	explorer port.SchemaExplorer
	queries  *QueryService
	checker  port.Generator
	inst     port.Instrumentation
}

// NewToolset builds the toolset. checker may be nil, in which case the
// query checker tool is not offered.
func NewToolset(explorer port.SchemaExplorer, queries *QueryService, checker port.Generator, inst port.Instrumentation) *Toolset {
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &Toolset{explorer: explorer, queries: queries, checker: checker, inst: inst}
}

// TableNames returns the visible tables, schema-qualified outside public.
func (t *Toolset) TableNames(ctx context.Context) ([]string, error) {
	tables, err := t.explorer.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		names = append(names, qualifiedName(tbl.Schema, tbl.Name))
	}
	sort.Strings(names)
	return names, nil
}

func (t *Toolset) ListTables(ctx context.Context) (string, error) {
	names, err := t.TableNames(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "No tables found.", nil
	}
	return strings.Join(names, ", "), nil
}

// TableInfo describes the comma separated tables in input. An unknown name
// fails the whole call so the model can correct itself.
func (t *Toolset) TableInfo(ctx context.Context, input string) (string, error) {
	var blocks []string
	for _, raw := range strings.Split(input, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		schema, table := splitQualified(raw)
		detail, err := t.explorer.DescribeTable(ctx, schema, table)
		if err != nil {
			return "", fmt.Errorf("describing %s: %w", strings.TrimSpace(raw), err)
		}
		blocks = append(blocks, RenderTableDetail(detail))
	}
	if len(blocks) == 0 {
		return "", errors.New("no table names given; pass a comma separated list such as: table1, table2")
	}
	return strings.Join(blocks, "\n\n"), nil
}

// DatabaseInfo is the schema of every visible table, used to seed prompts
// and for the console's schema view.
func (t *Toolset) DatabaseInfo(ctx context.Context) (string, error) {
	names, err := t.TableNames(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "The database has no visible tables.", nil
	}
	return t.TableInfo(ctx, strings.Join(names, ","))
}

func (t *Toolset) Query(ctx context.Context, sql string) (string, error) {
	res, err := t.queries.Execute(ctx, sql)
	if err != nil {
		return "", err
	}
	return FormatResult(res), nil
}

// CheckQuery asks the model to double check sql for common mistakes and
// returns the statement it settles on.
func (t *Toolset) CheckQuery(ctx context.Context, sql string) (string, error) {
	if t.checker == nil {
		return "", errors.New("query checker is not configured")
	}
	prompt, err := renderQueryChecker(sql)
	if err != nil {
		return "", err
	}
	out, err := t.checker.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("checking query: %w", err)
	}
	return stripCodeFence(out), nil
}

// Tools lists the agent actions in prompt order.
func (t *Toolset) Tools() []Tool {
	tools := []Tool{
		{
			Name:        ToolQuery,
			Description: "Input to this tool is a detailed and correct SQL query, output is a result from the database. If the query is not correct, an error message will be returned. If an error is returned, rewrite the query, check the query, and try again. If you encounter an issue with Unknown column 'xxxx' in 'field list', use " + ToolSchema + " to query the correct table fields.",
			Run:         t.Query,
		},
		{
			Name:        ToolSchema,
			Description: "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. Be sure that the tables actually exist by calling " + ToolListTables + " first! Example Input: table1, table2, table3",
			Run:         t.TableInfo,
		},
		{
			Name:        ToolListTables,
			Description: "Input is an empty string, output is a comma-separated list of tables in the database.",
			Run:         func(ctx context.Context, _ string) (string, error) { return t.ListTables(ctx) },
		},
	}
	if t.checker != nil {
		tools = append(tools, Tool{
			Name:        ToolQueryChecker,
			Description: "Use this tool to double check if your query is correct before executing it. Always use this tool before executing a query with " + ToolQuery + "!",
			Run:         t.CheckQuery,
		})
	}

	for i := range tools {
		tools[i].Run = t.instrument(tools[i].Name, tools[i].Run)
	}
	return tools
}

func (t *Toolset) instrument(name string, run func(context.Context, string) (string, error)) func(context.Context, string) (string, error) {
	return func(ctx context.Context, input string) (string, error) {
		start := time.Now()
		out, err := run(WithToolName(ctx, name), input)
		t.inst.RecordToolDuration(ctx, name, float64(time.Since(start).Milliseconds()))
		return out, err
	}
}

// stripCodeFence removes a surrounding ```sql ... ``` block, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
		s = s[nl+1:] // language tag
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
