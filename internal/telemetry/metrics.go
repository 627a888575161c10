package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/pgchat"

// Instruments holds pre-created OTel metric instruments. It satisfies
// port.Instrumentation.
type Instruments struct {
	QueryCount      metric.Int64Counter
	QueryDuration   metric.Float64Histogram
	QueryErrors     metric.Int64Counter
	GuardRejections metric.Int64Counter
	ToolDuration    metric.Float64Histogram
	TurnDuration    metric.Float64Histogram
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return NewInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

// NewInstrumentsFromMeter builds the instrument set on an explicit meter.
func NewInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("pgchat.query.count",
		metric.WithDescription("Total number of SQL queries executed"),
	)
	queryDuration, _ := meter.Float64Histogram("pgchat.query.duration",
		metric.WithDescription("SQL query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("pgchat.query.errors",
		metric.WithDescription("Total number of failed SQL queries"),
	)
	guardRejections, _ := meter.Int64Counter("pgchat.guard.rejections",
		metric.WithDescription("Statements and questions refused by a guard"),
	)
	toolDuration, _ := meter.Float64Histogram("pgchat.tool.duration",
		metric.WithDescription("Agent or MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	turnDuration, _ := meter.Float64Histogram("pgchat.turn.duration",
		metric.WithDescription("Chat turn duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:      queryCount,
		QueryDuration:   queryDuration,
		QueryErrors:     queryErrors,
		GuardRejections: guardRejections,
		ToolDuration:    toolDuration,
		TurnDuration:    turnDuration,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) IncrementGuardRejections(ctx context.Context, reason string) {
	i.GuardRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (i *Instruments) RecordToolDuration(ctx context.Context, tool string, ms float64) {
	i.ToolDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("tool", tool)))
}

func (i *Instruments) RecordTurnDuration(ctx context.Context, ms float64) {
	i.TurnDuration.Record(ctx, ms)
}
