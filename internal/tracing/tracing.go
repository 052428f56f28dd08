// File: internal/tracing/tracing.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thin OpenTelemetry wrapper: one tracer provider per runtime, spans around
// submitted tasks and lifecycle steps.

package tracing

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer owns a provider exporting every span synchronously.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New exports spans as JSON lines to w.
func New(serviceName, serviceVersion string, w io.Writer) (*Tracer, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, "tracing: exporter")
	}
	return NewWithExporter(serviceName, serviceVersion, exporter)
}

// NewWithExporter exports spans to any SDK exporter.
func NewWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*Tracer, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "tracing: resource")
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return &Tracer{provider: tp, tracer: tp.Tracer("github.com/momentics/hioload-rt")}, nil
}

// Start opens a span with string attributes.
func (t *Tracer) Start(ctx context.Context, name string, attrs map[string]string) (context.Context, trace.Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(kv...))
}

// Wrap returns fn running inside a span. A panic marks the span as failed
// and keeps propagating.
func (t *Tracer) Wrap(name string, fn func()) func() {
	return func() {
		_, span := t.tracer.Start(context.Background(), name)
		defer func() {
			if r := recover(); r != nil {
				span.SetStatus(codes.Error, fmt.Sprint(r))
				span.End()
				panic(r)
			}
			span.SetStatus(codes.Ok, "")
			span.End()
		}()
		fn()
	}
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
