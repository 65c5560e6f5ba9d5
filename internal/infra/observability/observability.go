// Package observability provides Prometheus metrics and lightweight span
// tracing for the economy engine.
//
// Metrics cover the hot paths (taps, flushes, mining resolutions, daily
// claims) plus gauges mirroring the displayed state. The tracer records
// spans around every remote round trip (flush, mining resolution, claim)
// in an in-memory ring buffer for inspection; in production it would wrap
// the OpenTelemetry SDK.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tap Metrics ────────────────────────────────────────────────────────────

// TapsTotal counts accepted taps.
var TapsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ducktap",
	Subsystem: "engine",
	Name:      "taps_total",
	Help:      "Total taps accepted by the engine.",
})

// TapsRejected counts taps refused for lack of energy.
var TapsRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ducktap",
	Subsystem: "engine",
	Name:      "taps_rejected_total",
	Help:      "Total taps rejected because energy was exhausted.",
})

// EnergyLevel mirrors the current energy of the active player.
var EnergyLevel = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ducktap",
	Subsystem: "engine",
	Name:      "energy_level",
	Help:      "Current energy units of the active player.",
})

// BalanceLocal mirrors the locally displayed (optimistic) balance.
var BalanceLocal = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ducktap",
	Subsystem: "engine",
	Name:      "balance_local",
	Help:      "Locally displayed balance, including unflushed deltas.",
})

// PendingDelta mirrors the unconfirmed local currency delta.
var PendingDelta = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ducktap",
	Subsystem: "engine",
	Name:      "pending_delta",
	Help:      "Currency delta applied locally but not yet confirmed by the ledger.",
})

// PlayerLevel mirrors the cached level index.
var PlayerLevel = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ducktap",
	Subsystem: "engine",
	Name:      "player_level",
	Help:      "Current level index of the active player.",
})

// ─── Reconciliation Metrics ─────────────────────────────────────────────────

// FlushesTotal counts flush attempts by outcome (committed, failed).
var FlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ducktap",
	Subsystem: "reconcile",
	Name:      "flushes_total",
	Help:      "Total tap-batch flushes by outcome.",
}, []string{"outcome"})

// FlushLatency tracks the round-trip latency of tap-batch flushes.
var FlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ducktap",
	Subsystem: "reconcile",
	Name:      "flush_latency_ms",
	Help:      "Tap-batch flush round-trip latency in milliseconds.",
	Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
})

// FlushBatchSize tracks how many taps each flushed batch carried.
var FlushBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ducktap",
	Subsystem: "reconcile",
	Name:      "flush_batch_size",
	Help:      "Taps per flushed batch.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 200},
})

// ─── Mining & Reward Metrics ────────────────────────────────────────────────

// MiningResolutions counts mining payouts by outcome
// (paid, duplicate, failed).
var MiningResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ducktap",
	Subsystem: "mining",
	Name:      "resolutions_total",
	Help:      "Total mining resolution attempts by outcome.",
}, []string{"outcome"})

// DailyClaims counts daily reward claims by outcome
// (claimed, ineligible, failed).
var DailyClaims = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ducktap",
	Subsystem: "rewards",
	Name:      "daily_claims_total",
	Help:      "Total daily reward claim attempts by outcome.",
}, []string{"outcome"})

// LevelUps counts level-ladder advances.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ducktap",
	Subsystem: "engine",
	Name:      "level_ups_total",
	Help:      "Total level-ladder advances.",
})

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans — lightweight span tracking without external OTel SDK dependency
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span represents one remote round trip (flush, resolve, claim).
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer stores recent spans in a ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 1_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{Enabled: true, MaxSpans: 1_000}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = 1_000
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span for the given operation. The caller must call
// EndSpan when the round trip completes.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
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
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
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

const traceIDKey contextKey = "ducktap-trace-id"

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

// generateID creates a short unique ID (not cryptographically secure — fine for tracing).
var spanCounter atomic.Int64

func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}
