package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type inflightCall struct {
	tool  string
	start time.Time
	span  trace.Span
}

// callTracker pairs before/after hook invocations by request id.
type callTracker struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	calls  sync.Map // id -> *inflightCall
}

func (t *callTracker) begin(ctx context.Context, id any, tool string) {
	call := &inflightCall{tool: tool, start: time.Now()}
	if t.tracer != nil {
		_, call.span = t.tracer.Start(ctx, "mcp.tool.call",
			trace.WithAttributes(attribute.String("mcp.tool", tool)))
	}
	t.calls.Store(id, call)
}

// finish closes out a call. errMsg is empty on success.
func (t *callTracker) finish(ctx context.Context, id any, tool string, level slog.Level, errMsg string) {
	var duration time.Duration
	var span trace.Span
	if v, ok := t.calls.LoadAndDelete(id); ok {
		call := v.(*inflightCall)
		duration = time.Since(call.start)
		span = call.span
		if tool == "" {
			tool = call.tool
		}
	}

	attrs := []slog.Attr{
		slog.String("rpc.method", string(mcp.MethodToolsCall)),
		slog.String("mcp.tool", tool),
		slog.Duration("duration", duration),
		slog.Bool("error", errMsg != ""),
	}
	if errMsg != "" {
		attrs = append(attrs, slog.String("error.message", errMsg))
	}
	t.logger.LogAttrs(ctx, level, "tool call", attrs...)

	if t.inst != nil && tool != "" {
		t.inst.RecordToolDuration(ctx, tool, float64(duration.Milliseconds()))
	}

	if span != nil {
		if errMsg != "" {
			span.SetStatus(codes.Error, errMsg)
			span.RecordError(errors.New(errMsg))
		}
		span.End()
	}
}

// ToolCallHooks logs every tools/call and, when tracer or inst are set,
// records a span and the per-tool duration.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	tracker := &callTracker{logger: logger, tracer: tracer, inst: inst}
	hooks := &server.Hooks{}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		tracker.begin(ctx, id, req.Params.Name)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
			// Guard rejections come back as tool errors; they are expected traffic.
			tracker.finish(ctx, id, req.Params.Name, slog.LevelWarn, resultText(r))
			return
		}
		tracker.finish(ctx, id, req.Params.Name, slog.LevelInfo, "")
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		if method != mcp.MethodToolsCall {
			return
		}
		tool := ""
		if req, ok := message.(*mcp.CallToolRequest); ok {
			tool = req.Params.Name
		}
		tracker.finish(ctx, id, tool, slog.LevelError, err.Error())
	})

	return hooks
}

func resultText(r *mcp.CallToolResult) string {
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool returned error"
}
