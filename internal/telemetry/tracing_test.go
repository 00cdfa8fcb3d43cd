package telemetry

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSetupTracingDisabled(t *testing.T) {
	for _, exporter := range []string{"", "none", " NONE "} {
		shutdown, err := SetupTracing(context.Background(), TraceConfig{ServiceName: "pixeltools-test", Exporter: exporter}, log.New(io.Discard, "", 0))
		if err != nil {
			t.Fatalf("exporter %q: unexpected error %v", exporter, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("exporter %q: shutdown returned %v", exporter, err)
		}
	}
}

func TestSetupTracingErrors(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil)
	if !errors.Is(err, ErrUnsupportedExporter) {
		t.Fatalf("expected ErrUnsupportedExporter, got %v", err)
	}

	_, err = SetupTracing(context.Background(), TraceConfig{Exporter: "otlp", OTLPEndpoint: "  "}, nil)
	if err == nil {
		t.Fatal("expected error for otlp without endpoint")
	}
}

func TestSetupTracingStdout(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName:  "pixeltools-test",
		Exporter:     "stdout",
		SampleRatio:  0.5,
		StdoutWriter: io.Discard,
	}, nil)
	if err != nil {
		t.Fatalf("setup stdout tracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewResourceCarriesAttributes(t *testing.T) {
	res, err := newResource(TraceConfig{
		ServiceName: "pixeltools-worker",
		Attributes:  []attribute.KeyValue{attribute.Bool("pixeltools.webp_encode", true)},
	})
	if err != nil {
		t.Fatalf("new resource: %v", err)
	}

	got := map[attribute.Key]attribute.Value{}
	for _, kv := range res.Attributes() {
		got[kv.Key] = kv.Value
	}
	if got["service.name"].AsString() != "pixeltools-worker" {
		t.Fatalf("expected service.name pixeltools-worker, got %q", got["service.name"].AsString())
	}
	if got["service.version"].AsString() != "dev" {
		t.Fatalf("expected service.version dev, got %q", got["service.version"].AsString())
	}
	if !got["pixeltools.webp_encode"].AsBool() {
		t.Fatal("expected pixeltools.webp_encode attribute")
	}
}

func TestSamplerAndVersion(t *testing.T) {
	if !strings.Contains(sampler(0).Description(), "AlwaysOnSampler") {
		t.Fatalf("expected always-on sampler for ratio 0, got %s", sampler(0).Description())
	}
	if !strings.Contains(sampler(0.25).Description(), "TraceIDRatioBased") {
		t.Fatalf("expected ratio sampler, got %s", sampler(0.25).Description())
	}
	if serviceVersion("") != "dev" || serviceVersion("1.2.0") != "1.2.0" {
		t.Fatal("unexpected service version fallback")
	}
}
