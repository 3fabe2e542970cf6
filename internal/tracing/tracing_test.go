package tracing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/estudolab/estudai/internal/mcp"
)

func TestCollector_RingAndStats(t *testing.T) {
	c := NewCollector(3)
	for i := 0; i < 5; i++ {
		c.Observe(mcp.DispatchTrace{MessageID: fmt.Sprintf("m%d", i), Outcome: "ok"})
	}

	recent := c.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("Recent(0) kept %d records, want 3", len(recent))
	}
	if recent[0].MessageID != "m4" || recent[2].MessageID != "m2" {
		t.Errorf("recent order = %s..%s, want m4..m2", recent[0].MessageID, recent[2].MessageID)
	}

	one := c.Recent(1)
	if len(one) != 1 || one[0].MessageID != "m4" {
		t.Errorf("Recent(1) = %+v", one)
	}

	st := c.Stats()
	if st.Total != 5 || st.Outcomes["ok"] != 5 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestCollector_StatsByOutcome(t *testing.T) {
	c := NewCollector(8)
	c.Observe(mcp.DispatchTrace{Outcome: "ok"})
	c.Observe(mcp.DispatchTrace{Outcome: "ok"})
	c.Observe(mcp.DispatchTrace{Outcome: "AGENT_PROCESSING_ERROR"})

	st := c.Stats()
	if st.Total != 3 {
		t.Errorf("Total = %d, want 3", st.Total)
	}
	if st.Outcomes["ok"] != 2 || st.Outcomes["AGENT_PROCESSING_ERROR"] != 1 {
		t.Errorf("Outcomes = %+v", st.Outcomes)
	}
}

func TestCollector_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	c := NewCollector(8)
	c.tracer = tp.Tracer("test")

	c.Observe(mcp.DispatchTrace{
		MessageID: "m1",
		Kind:      mcp.KindCommand,
		Source:    "telegram",
		AgentID:   "estudos",
		Outcome:   "ok",
		Duration:  120 * time.Millisecond,
	})
	c.Observe(mcp.DispatchTrace{
		MessageID: "m2",
		Kind:      mcp.KindCommand,
		Source:    "ws",
		Outcome:   "AGENT_DETERMINATION_ERROR",
	})

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	ok := spans[0]
	if ok.Name() != "mcp.dispatch" {
		t.Errorf("span name = %q", ok.Name())
	}
	if d := ok.EndTime().Sub(ok.StartTime()); d != 120*time.Millisecond {
		t.Errorf("span duration = %v, want 120ms", d)
	}
	if ok.Status().Code == codes.Error {
		t.Error("an ok dispatch should not carry an error status")
	}
	var source string
	for _, attr := range ok.Attributes() {
		if string(attr.Key) == "message.source" {
			source = attr.Value.AsString()
		}
	}
	if source != "telegram" {
		t.Errorf("message.source = %q, want telegram", source)
	}

	failed := spans[1]
	if failed.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", failed.Status().Code)
	}
	if failed.Status().Description != "AGENT_DETERMINATION_ERROR" {
		t.Errorf("status description = %q", failed.Status().Description)
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestSetup_UnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), Options{
		Enabled:  true,
		Endpoint: "localhost:4317",
		Protocol: "udp",
	})
	if err == nil {
		t.Fatal("Setup() = nil error for an unknown protocol")
	}
}
