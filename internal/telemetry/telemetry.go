package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "pgchat"

// Options describes the running process. Every span and metric carries it
// as resource attributes, so dashboards can split by provider or guard mode.
type Options struct {
	Version     string
	LLMProvider string
	GuardMode   string
	ExplainOnly bool

	// Nil exporters mean OTLP gRPC configured from OTEL_EXPORTER_OTLP_*.
	SpanExporter sdktrace.SpanExporter
	MetricReader sdkmetric.Reader
}

// Provider owns the trace and meter providers and the instruments built on
// them. A nil *Provider is valid and records nothing.
type Provider struct {
	tp   *sdktrace.TracerProvider
	mp   *sdkmetric.MeterProvider
	inst *Instruments
}

// Init builds the providers, registers them globally and creates the
// pgchat instruments on the new meter.
func Init(ctx context.Context, opts Options) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(opts.attributes()...))
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	spans := opts.SpanExporter
	if spans == nil {
		if spans, err = otlptracegrpc.New(ctx); err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
	}
	reader := opts.MetricReader
	if reader == nil {
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			_ = spans.Shutdown(ctx)
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	}

	p := &Provider{
		tp: sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans), sdktrace.WithResource(res)),
		mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
	}
	p.inst = NewInstrumentsFromMeter(p.mp.Meter(meterName))

	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return p, nil
}

func (o Options) attributes() []attribute.KeyValue {
	version := o.Version
	if version == "" {
		version = "dev"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
		semconv.DBSystemPostgreSQL,
		attribute.Bool("pgchat.explain_only", o.ExplainOnly),
	}
	if o.LLMProvider != "" {
		attrs = append(attrs, attribute.String("pgchat.llm.provider", o.LLMProvider))
	}
	if o.GuardMode != "" {
		attrs = append(attrs, attribute.String("pgchat.guard.mode", o.GuardMode))
	}
	return attrs
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if err := p.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down tracer: %w", err))
	}
	if err := p.mp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down meter: %w", err))
	}
	return errors.Join(errs...)
}

func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return NoopTracer()
	}
	return p.tp.Tracer(meterName)
}

// Instruments returns the metric set bound to this provider's meter.
func (p *Provider) Instruments() *Instruments {
	if p == nil {
		return NoopInstruments()
	}
	return p.inst
}

// NoopTracer returns a tracer that does nothing (for when OTel is disabled).
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}
