// Package telemetry wires OpenTelemetry tracing and metrics for the
// orchestrator: a resource, a tracer provider, an exporter chosen by
// environment, and a single shutdown-once hook.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the tracer used across the orchestrator and the meter used
// for the tasks-processed counter. Construct one with NewProvider at startup
// and call Shutdown when the service stops.
type Provider struct {
	tracer   trace.Tracer
	meter    metric.Meter
	tp       *sdktrace.TracerProvider
	tasksCtr metric.Int64Counter

	shutdownOnce sync.Once
	mu           sync.RWMutex
	closed       bool
}

// NewProvider builds a Provider for serviceName. If OTEL_EXPORTER_OTLP_ENDPOINT
// is set, spans are exported via OTLP/gRPC; otherwise they are written to
// stdout, which keeps the service observable with zero configuration.
func NewProvider(serviceName string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	res, err := sdkresource.New(context.Background(),
		sdkresource.WithAttributes(
			semconvServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var sp sdktrace.SpanExporter
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		sp, err = otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	} else {
		sp, err = stdouttrace.New(stdouttrace.WithoutTimestamps())
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(sp, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	meter := otel.GetMeterProvider().Meter(serviceName)
	tasksCtr, err := meter.Int64Counter("docling_tasks_total",
		metric.WithDescription("Tasks that reached a terminal status, by status"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build counter: %w", err)
	}

	return &Provider{
		tracer:   tp.Tracer(serviceName),
		meter:    meter,
		tp:       tp,
		tasksCtr: tasksCtr,
	}, nil
}

// StartSpan starts a span named "orchestrator.<op>" and returns the derived
// context and a func to end it. Safe to call on a nil Provider (no-op).
func (p *Provider) StartSpan(ctx context.Context, op string, attrs ...attrKV) (context.Context, func()) {
	if p == nil {
		return ctx, func() {}
	}
	ctx, span := p.tracer.Start(ctx, "orchestrator."+op)
	for _, a := range attrs {
		span.SetAttributes(a.kv)
	}
	return ctx, func() { span.End() }
}

// RecordTerminal increments the tasks-processed counter for a terminal status.
func (p *Provider) RecordTerminal(ctx context.Context, status string) {
	if p == nil {
		return
	}
	p.tasksCtr.Add(ctx, 1, metric.WithAttributes(statusAttr(status)))
}

// Shutdown flushes pending spans and releases the exporter. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var err error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		err = p.tp.Shutdown(ctx)
	})
	return err
}
