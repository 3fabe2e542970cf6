// Package tracing observes message dispatches. A fixed ring keeps the most
// recent records for the status surfaces, counters aggregate outcomes, and
// when OTLP export is configured each record also becomes a span.
package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/estudolab/estudai/internal/mcp"
)

const scopeName = "github.com/estudolab/estudai/internal/tracing"

// Record is one observed dispatch.
type Record struct {
	At        time.Time
	MessageID string
	Kind      string
	Source    string
	AgentID   string
	Outcome   string
	Duration  time.Duration
}

// Collector is the router's dispatch hook.
type Collector struct {
	tracer trace.Tracer

	mu     sync.Mutex
	buf    []Record
	next   int
	counts map[string]int64
}

// NewCollector keeps the last size dispatch records.
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = 64
	}
	return &Collector{
		tracer: otel.Tracer(scopeName),
		buf:    make([]Record, 0, size),
		counts: make(map[string]int64),
	}
}

// Observe records one dispatch.
func (c *Collector) Observe(t mcp.DispatchTrace) {
	rec := Record{
		At:        time.Now(),
		MessageID: t.MessageID,
		Kind:      string(t.Kind),
		Source:    t.Source,
		AgentID:   t.AgentID,
		Outcome:   t.Outcome,
		Duration:  t.Duration,
	}

	c.mu.Lock()
	if len(c.buf) < cap(c.buf) {
		c.buf = append(c.buf, rec)
	} else {
		c.buf[c.next] = rec
		c.next = (c.next + 1) % cap(c.buf)
	}
	c.counts[rec.Outcome]++
	c.mu.Unlock()

	c.span(rec)
}

// span emits the record as an already-closed span. With no provider
// registered the global tracer is a no-op.
func (c *Collector) span(rec Record) {
	_, span := c.tracer.Start(context.Background(), "mcp.dispatch",
		trace.WithTimestamp(rec.At.Add(-rec.Duration)),
		trace.WithAttributes(
			attribute.String("message.id", rec.MessageID),
			attribute.String("message.kind", rec.Kind),
			attribute.String("message.source", rec.Source),
			attribute.String("agent.id", rec.AgentID),
			attribute.String("outcome", rec.Outcome),
		))
	if rec.Outcome != "ok" {
		span.SetStatus(codes.Error, rec.Outcome)
	}
	span.End(trace.WithTimestamp(rec.At))
}

// Recent returns up to n records, newest first. n <= 0 means all.
func (c *Collector) Recent(n int) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	ordered := make([]Record, 0, len(c.buf))
	if len(c.buf) < cap(c.buf) {
		ordered = append(ordered, c.buf...)
	} else {
		ordered = append(ordered, c.buf[c.next:]...)
		ordered = append(ordered, c.buf[:c.next]...)
	}

	if n <= 0 || n > len(ordered) {
		n = len(ordered)
	}
	out := make([]Record, 0, n)
	for i := len(ordered) - 1; i >= len(ordered)-n; i-- {
		out = append(out, ordered[i])
	}
	return out
}

// Stats aggregates outcomes since start.
type Stats struct {
	Total    int64
	Outcomes map[string]int64
}

// Stats returns the aggregate dispatch counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Stats{Outcomes: make(map[string]int64, len(c.counts))}
	for k, v := range c.counts {
		out.Outcomes[k] = v
		out.Total += v
	}
	return out
}
