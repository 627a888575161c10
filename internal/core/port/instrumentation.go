package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordQueryDuration(ctx context.Context, ms float64)
	IncrementQueryCount(ctx context.Context)
	IncrementQueryErrors(ctx context.Context)
	IncrementGuardRejections(ctx context.Context, reason string)
	RecordToolDuration(ctx context.Context, tool string, ms float64)
	RecordTurnDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordQueryDuration(context.Context, float64)        {}
func (NoopInstrumentation) IncrementQueryCount(context.Context)                 {}
func (NoopInstrumentation) IncrementQueryErrors(context.Context)                {}
func (NoopInstrumentation) IncrementGuardRejections(context.Context, string)    {}
func (NoopInstrumentation) RecordToolDuration(context.Context, string, float64) {}
func (NoopInstrumentation) RecordTurnDuration(context.Context, float64)         {}
