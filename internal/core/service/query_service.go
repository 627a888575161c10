package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/pgchat/internal/core/domain"
	"github.com/guillermoBallester/pgchat/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the calling tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// QueryService guards SQL (domain) and hands allowed statements to the
// executor (infrastructure). Every attempt is audited, rejected ones included.
type QueryService struct {
	guard    port.StatementGuard
	executor port.QueryExecutor
	auditor  port.QueryAuditor
	logger   *slog.Logger
	masks    map[string]domain.MaskType // column name -> mask (nil = no masking)
	tracer   trace.Tracer
	inst     port.Instrumentation
}

func NewQueryService(guard port.StatementGuard, executor port.QueryExecutor, auditor port.QueryAuditor, logger *slog.Logger, masks map[string]domain.MaskType, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		guard:    guard,
		executor: executor,
		auditor:  auditor,
		logger:   logger,
		masks:    masks,
		tracer:   tracer,
		inst:     inst,
	}
}

// Execute checks the statement and, if allowed, delegates to the executor.
// Guard rejections come back wrapped as "validation: ..." and are never retried.
func (s *QueryService) Execute(ctx context.Context, sql string) (*domain.Result, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	if err := s.guard.Check(sql); err != nil {
		tag := "rejected"
		if rej, ok := domain.AsRejection(err); ok {
			tag = rej.Tag()
			s.inst.IncrementGuardRejections(ctx, string(rej.Reason))
		}
		s.logger.WarnContext(ctx, "query rejected by guard",
			slog.String("db.statement", sql),
			slog.String("rejection", tag),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.auditor.Record(ctx, port.AuditEntry{
			Tool:     toolNameFromCtx(ctx),
			SQL:      sql,
			Err:      err,
			Rejected: tag,
		})
		return nil, fmt.Errorf("validation: %w", err)
	}

	start := time.Now()
	result, err := s.executor.Execute(ctx, sql)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	s.auditor.Record(ctx, port.AuditEntry{
		Tool:         toolNameFromCtx(ctx),
		SQL:          sql,
		RowsReturned: result.Len(),
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		s.logger.ErrorContext(ctx, "query failed",
			slog.String("db.statement", sql),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(
		attribute.Int("db.response.rows", result.Len()),
		attribute.Bool("db.response.truncated", result.Truncated),
	)
	domain.MaskResult(result, domain.MasksForQuery(sql, s.masks))

	return result, nil
}
