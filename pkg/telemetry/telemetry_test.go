package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/shoptrace/shoptrace-api/pkg/config"
)

func TestInitStdoutMode(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, config.TelemetryConfig{Mode: ModeStdout, ServiceName: "test"}, nil)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer tel.Shutdown(ctx)

	spanCtx, span := tel.Start(ctx, "unit.test")
	if got := tel.TraceID(spanCtx); got == "" {
		t.Fatalf("expected a trace id on a recording span")
	}
	tel.AddEvent(spanCtx, "something.happened")
	tel.RecordError(spanCtx, errors.New("boom"))
	span.End()
}

func TestInitNoneMode(t *testing.T) {
	tel, err := Init(context.Background(), config.TelemetryConfig{Mode: ModeNone}, nil)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	ctx, span := tel.Start(context.Background(), "noop.span")
	defer span.End()
	if got := tel.TraceID(ctx); got != "" {
		t.Fatalf("noop span should not carry a trace id, got %s", got)
	}
}

func TestInitUnknownMode(t *testing.T) {
	if _, err := Init(context.Background(), config.TelemetryConfig{Mode: "jaeger"}, nil); err == nil {
		t.Fatal("expected unknown mode to error")
	}
}

func TestNoopHelpersAreSafe(t *testing.T) {
	tel := Noop()
	ctx := context.Background()
	tel.AddEvent(ctx, "ignored")
	tel.RecordError(ctx, errors.New("ignored"))
	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}
