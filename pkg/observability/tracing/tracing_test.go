package tracing

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fluxorio/counterlog/pkg/counter"
)

func TestInitialize_ExportsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Initialize(context.Background(), Config{ServiceName: "counterd-test", Writer: &buf})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	dir := t.TempDir()
	c, err := counter.New(counter.Config{
		Name:          "traced",
		StoreLocation: filepath.Join(dir, "s.db"),
		LogLocation:   filepath.Join(dir, "o.log"),
		Mode:          counter.ModeSync,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"counter.Init", "counter.Close", "counterd-test"} {
		if !strings.Contains(out, want) {
			t.Errorf("exported spans missing %q", want)
		}
	}
}

func TestInitialize_RequiresServiceName(t *testing.T) {
	if _, err := Initialize(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without service name")
	}
}

func TestCounterSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := NewProvider(Config{ServiceName: "test"}, sdktrace.WithSyncer(exp))
	defer tp.Shutdown(context.Background())

	dir := t.TempDir()
	c, err := counter.New(counter.Config{
		Name:          "broken",
		StoreLocation: filepath.Join(dir, "s.db"),
		LogLocation:   filepath.Join(dir, "o.log"),
		Mode:          counter.ModeAsync,
	}, counter.WithTracer(tp.Tracer("test")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Flush(context.Background()); err == nil {
		t.Fatal("Flush before Init should fail")
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "counter.Flush" {
		t.Errorf("span name = %q", s.Name)
	}
	if s.Status.Code.String() != "Error" {
		t.Errorf("span status = %v, want Error", s.Status.Code)
	}
	var name string
	for _, kv := range s.Attributes {
		if kv.Key == "counter.name" {
			name = kv.Value.AsString()
		}
	}
	if name != "broken" {
		t.Errorf("counter.name attribute = %q", name)
	}
}
