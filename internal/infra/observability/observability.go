// Package observability provides lightweight distributed tracing and
// Prometheus metrics for the SWIM engine and its surrounding services.
//
// This provides:
//   - A Tracer that records spans in an in-memory ring buffer
//   - W3C-style trace/span ID propagation via context
//   - Prometheus metrics for probes, transitions, and the dissemination buffer
//
// The SWIM engine reports through the metrics only; it creates no spans,
// and nothing here writes trace IDs into log lines.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans — Lightweight span tracking without external OTel SDK dependency
// ═══════════════════════════════════════════════════════════════════════════

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
	SpanClient
)

// Span represents a unit of work within a distributed trace.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer provides lightweight distributed tracing, storing spans
// in-memory in a ring buffer for inspection through Spans. The status
// API does not serve spans. In production this would wrap an
// OpenTelemetry SDK exporter.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span with the given operation name.
// Returns the span (caller must call EndSpan when done).
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}

	span := &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}

	return span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	// Return most recent spans
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "floaty-trace-id"
	spanIDKey  contextKey = "floaty-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// generateID creates a span/trace identifier. Random UUIDs (rather than
// a counter) keep ids collision-free across process restarts.
func generateID() string {
	return uuid.NewString()
}

// ═══════════════════════════════════════════════════════════════════════════
// SWIM Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Probe Metrics ──────────────────────────────────────────────────────────

// ProbesSent tracks probes sent by kind (direct, indirect).
var ProbesSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "floaty",
	Subsystem: "probe",
	Name:      "sent_total",
	Help:      "Total probes sent, by kind.",
}, []string{"kind"})

// ProbeOutcomes tracks probe round outcomes (acked, suspected).
var ProbeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "floaty",
	Subsystem: "probe",
	Name:      "outcomes_total",
	Help:      "Total probe round outcomes, by result.",
}, []string{"result"})

// AckLatency tracks round-trip latency from ping to ack.
var AckLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "floaty",
	Subsystem: "probe",
	Name:      "ack_latency_ms",
	Help:      "Latency in milliseconds from sending a ping to receiving its ack.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
})

// ─── Peer Lifecycle Metrics ─────────────────────────────────────────────────

// PeerStatusTransitions tracks status-change events by resulting status.
var PeerStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "floaty",
	Subsystem: "peer",
	Name:      "status_transitions_total",
	Help:      "Total peer status transitions, by resulting status.",
}, []string{"status"})

// PeersByStatus tracks the current count of known peers by status.
var PeersByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "floaty",
	Subsystem: "peer",
	Name:      "count",
	Help:      "Current number of known peers, by status.",
}, []string{"status"})

// ─── Dissemination Buffer Metrics ───────────────────────────────────────────

// BufferDepth tracks the current number of live update records.
var BufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "floaty",
	Subsystem: "buffer",
	Name:      "depth",
	Help:      "Current number of live entries in the dissemination buffer.",
})

// PiggybackedUpdates tracks the number of updates attached per outgoing
// message.
var PiggybackedUpdates = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "floaty",
	Subsystem: "buffer",
	Name:      "piggybacked_updates",
	Help:      "Number of updates piggybacked on each outgoing message.",
	Buckets:   []float64{0, 1, 2, 3, 4, 5, 6},
})

// ─── Protocol-Level Signal Metrics ──────────────────────────────────────────

// RecoverableErrors tracks datagram/transport errors surfaced on the
// engine's error signal.
var RecoverableErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "floaty",
	Subsystem: "engine",
	Name:      "recoverable_errors_total",
	Help:      "Total recoverable errors emitted on the engine error signal, by kind.",
}, []string{"kind"})

// UnrecognizedWireValues tracks unrecognized-command/unrecognized-status
// occurrences.
var UnrecognizedWireValues = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "floaty",
	Subsystem: "engine",
	Name:      "unrecognized_wire_values_total",
	Help:      "Total unrecognized command or status values seen on the wire, by field.",
}, []string{"field", "value"})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "floaty",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "floaty",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
