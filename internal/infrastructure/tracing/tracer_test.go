package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("expected tracing to be disabled by default")
	}

	if cfg.ExporterType != ExporterNone {
		t.Errorf("expected exporter type 'none', got %s", cfg.ExporterType)
	}

	if cfg.ServiceName != "projectgate" {
		t.Errorf("expected service name 'projectgate', got %s", cfg.ServiceName)
	}

	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Enabled:      false,
		ExporterType: ExporterNone,
	}

	tracer, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}

	// Starting a span should work even when disabled
	ctx, span := tracer.Start(ctx, "test-span")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()

	_ = ctx // Use ctx to avoid unused variable warning
}

func TestNew_StdoutExporter(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}

	cfg := Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "test-service",
		Environment:  "test",
		SampleRate:   1.0,
		Output:       buf,
	}

	tracer, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tracer.Shutdown(ctx)

	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}

	if tracer.provider == nil {
		t.Error("expected non-nil provider for enabled tracer")
	}
}

func newStdoutTracer(t *testing.T, buf *bytes.Buffer) *Tracer {
	t.Helper()
	tracer, err := New(context.Background(), Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "test-service",
		SampleRate:   1.0,
		Output:       buf,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tracer
}

func TestLoadSpan(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	tracer := newStdoutTracer(t, buf)

	_, ls := tracer.StartLoadSpan(ctx, "p1", "v2")
	ls.SetShared(true)
	ls.End()

	tracer.Shutdown(ctx)

	if !strings.Contains(buf.String(), "workspace.load") {
		t.Errorf("expected workspace.load span in output, got %q", buf.String())
	}
}

func TestCommandSpan_Error(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	tracer := newStdoutTracer(t, buf)

	_, cs := tracer.StartCommandSpan(ctx, "undo", "p1/tab")
	cs.SetKind("translate")
	cs.SetDepths(0, 1)
	cs.EndWithError(errors.New("busy"))

	tracer.Shutdown(ctx)

	out := buf.String()
	if !strings.Contains(out, "command.undo") {
		t.Errorf("expected command.undo span in output")
	}
	if !strings.Contains(out, "busy") {
		t.Errorf("expected recorded error in output")
	}
}

func TestSyncSpan(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	tracer := newStdoutTracer(t, buf)

	_, ss := tracer.StartSyncSpan(ctx, "p1", "auto")
	ss.SetSize(2048)
	ss.AddState("WRITING")
	ss.AddState("UPLOADING")
	ss.EndWithError(nil)

	tracer.Shutdown(ctx)

	if !strings.Contains(buf.String(), "project.sync") {
		t.Errorf("expected project.sync span in output")
	}
}

func TestDefault(t *testing.T) {
	// Reset global for test
	global = nil

	tracer := Default()
	if tracer == nil {
		t.Error("expected non-nil default tracer")
	}

	// Should return a no-op tracer
	ctx := context.Background()
	ctx, span := tracer.Start(ctx, "test")
	span.End()
	_ = ctx

	if OrDefault(nil) == nil {
		t.Error("OrDefault(nil) returned nil")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}

	cfg := Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "test-service",
		SampleRate:   1.0,
		Output:       buf,
	}

	tracer, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tracer.Shutdown(ctx)

	ctx, span := tracer.Start(ctx, "test-span")

	// Test AddEvent
	AddEvent(ctx, "test-event")

	// Test RecordError
	RecordError(ctx, errors.New("test error"))

	// Test SetAttribute with different types
	SetAttribute(ctx, "string-attr", "value")
	SetAttribute(ctx, "int-attr", 42)
	SetAttribute(ctx, "int64-attr", int64(100))
	SetAttribute(ctx, "float-attr", 3.14)
	SetAttribute(ctx, "bool-attr", true)

	span.End()
	tracer.Shutdown(ctx)

	if buf.Len() == 0 {
		t.Error("expected trace output to be written")
	}
}

func TestSamplers(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
	}{
		{"always sample", 1.0},
		{"never sample", 0.0},
		{"ratio sample", 0.5},
		{"above max", 1.5},
		{"below min", -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			buf := &bytes.Buffer{}

			cfg := Config{
				Enabled:      true,
				ExporterType: ExporterStdout,
				ServiceName:  "test-service",
				SampleRate:   tt.sampleRate,
				Output:       buf,
			}

			tracer, err := New(ctx, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tracer.Shutdown(ctx)
		})
	}
}
