// Package metrics accumulates per-request latency and message counts
// for the running session and mirrors them into OpenTelemetry
// instruments.
package metrics

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Accumulator records completed-request latencies and successful
// assistant messages. Samples are append-only; Reset starts a fresh
// window. Safe for concurrent use.
type Accumulator struct {
	mu       sync.Mutex
	samples  []float64
	messages int

	latencyHist  metric.Float64Histogram
	messageCount metric.Int64Counter
}

// New creates an accumulator backed by the given meter. A nil meter
// keeps the local statistics but drops the exported instruments.
func New(meter metric.Meter) *Accumulator {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("metrics")
	}

	hist, err := meter.Float64Histogram(
		"chat.request.duration",
		metric.WithDescription("Chat request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		slog.Warn("failed to create latency histogram", "error", err)
	}

	count, err := meter.Int64Counter(
		"chat.messages.completed",
		metric.WithDescription("Completed assistant messages"),
	)
	if err != nil {
		slog.Warn("failed to create message counter", "error", err)
	}

	return &Accumulator{latencyHist: hist, messageCount: count}
}

// RecordLatency appends one completed-request latency in milliseconds.
// Failed requests must not be recorded.
func (a *Accumulator) RecordLatency(ctx context.Context, ms float64) {
	if ms < 0 {
		ms = 0
	}

	a.mu.Lock()
	a.samples = append(a.samples, ms)
	a.mu.Unlock()

	if a.latencyHist != nil {
		a.latencyHist.Record(ctx, ms)
	}
}

// RecordMessage counts one successfully completed assistant message.
func (a *Accumulator) RecordMessage(ctx context.Context) {
	a.mu.Lock()
	a.messages++
	a.mu.Unlock()

	if a.messageCount != nil {
		a.messageCount.Add(ctx, 1)
	}
}

// MeanLatency returns the arithmetic mean rounded to the nearest
// millisecond. ok is false when no sample has been recorded.
func (a *Accumulator) MeanLatency() (mean int64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.samples) == 0 {
		return 0, false
	}

	var total float64
	for _, s := range a.samples {
		total += s
	}
	return int64(math.Round(total / float64(len(a.samples)))), true
}

// SampleCount returns how many latencies have been recorded.
func (a *Accumulator) SampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// MessageCount returns the number of completed assistant messages.
func (a *Accumulator) MessageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.messages
}

// Reset clears the local window. Only a history reset calls this; the
// exported OpenTelemetry counters keep their cumulative totals.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = nil
	a.messages = 0
}
