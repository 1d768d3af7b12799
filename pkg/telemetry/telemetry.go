package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/shoptrace/shoptrace-api/pkg/config"
	"github.com/shoptrace/shoptrace-api/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter modes. The otlp mode covers both direct-to-backend and
// through-collector export: the relay choice is purely the endpoint.
const (
	ModeOTLP   = "otlp"
	ModeStdout = "stdout"
	ModeNone   = "none"
)

// Telemetry owns the tracer provider and the span helpers the services use.
type Telemetry struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Init configures the global tracer provider per the telemetry config and
// returns the handle the rest of the process threads through explicitly.
func Init(ctx context.Context, cfg config.TelemetryConfig, logg *logger.Logger) (*Telemetry, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == ModeNone {
		return Noop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	exporter, err := newSpanExporter(ctx, mode, cfg, logg)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		shutdown: provider.Shutdown,
	}, nil
}

// Noop returns a telemetry handle that records nothing. Used by tests and by
// the none exporter mode.
func Noop() *Telemetry {
	provider := noop.NewTracerProvider()
	return &Telemetry{
		provider: provider,
		tracer:   provider.Tracer("noop"),
		shutdown: func(context.Context) error { return nil },
	}
}

func newSpanExporter(ctx context.Context, mode string, cfg config.TelemetryConfig, logg *logger.Logger) (sdktrace.SpanExporter, error) {
	switch mode {
	case ModeOTLP:
		opts := []otlptracehttp.Option{}
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err == nil {
			return exporter, nil
		}
		if logg != nil {
			logg.Warn(ctx, "otlp exporter init failed, falling back to stdout")
		}
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ModeStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown telemetry mode %q", mode)
	}
}

// Provider exposes the tracer provider for HTTP instrumentation wrappers.
func (t *Telemetry) Provider() trace.TracerProvider {
	if t == nil || t.provider == nil {
		return noop.NewTracerProvider()
	}
	return t.provider
}

// Start opens a child span of whatever span the context carries.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("noop").Start(ctx, name)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddEvent attaches an event to the span carried by the context, if any.
func (t *Telemetry) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError marks the context's span as failed and records the error.
func (t *Telemetry) RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the hex trace id of the context's span, or empty when the
// span is not recording.
func (t *Telemetry) TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Shutdown flushes pending spans. Call on process exit.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}
