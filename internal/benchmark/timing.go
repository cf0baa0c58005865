package benchmark

import (
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// Timer measures one wall-clock span.
type Timer struct {
	start   time.Time
	elapsed time.Duration
}

// StartTimer begins a new measurement.
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop freezes the timer and returns the elapsed span.
func (t *Timer) Stop() time.Duration {
	t.elapsed = time.Since(t.start)
	return t.elapsed
}

// Elapsed returns the frozen span, or the running span if the timer has not
// been stopped yet.
func (t *Timer) Elapsed() time.Duration {
	if t.elapsed > 0 {
		return t.elapsed
	}
	return time.Since(t.start)
}

// TaskTiming holds the per-task timestamps of one run. StartTime and
// CompleteTime stay zero when the framework exposes no per-task
// instrumentation; the executor then fills them with estimates.
type TaskTiming struct {
	TaskID       string
	EnqueueTime  time.Time
	StartTime    time.Time
	CompleteTime time.Time
}

// TotalLatency is complete−enqueue. ok is false when a timestamp is missing.
func (t TaskTiming) TotalLatency() (time.Duration, bool) {
	if t.EnqueueTime.IsZero() || t.CompleteTime.IsZero() {
		return 0, false
	}
	return t.CompleteTime.Sub(t.EnqueueTime), true
}

// WaitTime is start−enqueue, the span spent sitting in the queue.
func (t TaskTiming) WaitTime() (time.Duration, bool) {
	if t.EnqueueTime.IsZero() || t.StartTime.IsZero() {
		return 0, false
	}
	return t.StartTime.Sub(t.EnqueueTime), true
}

// ExecutionTime is complete−start, the span spent inside the worker.
func (t TaskTiming) ExecutionTime() (time.Duration, bool) {
	if t.StartTime.IsZero() || t.CompleteTime.IsZero() {
		return 0, false
	}
	return t.CompleteTime.Sub(t.StartTime), true
}

// LatencySnapshot is a reduced latency distribution. Values are
// milliseconds. Estimated marks distributions derived from the drain window
// rather than true per-task timestamps; treat those as an approximation.
type LatencySnapshot struct {
	Count     int64   `json:"count"`
	Mean      float64 `json:"mean_ms"`
	P50       float64 `json:"p50_ms"`
	P95       float64 `json:"p95_ms"`
	P99       float64 `json:"p99_ms"`
	P999      float64 `json:"p99_9_ms"`
	P9999     float64 `json:"p99_99_ms"`
	Max       float64 `json:"max_ms"`
	Estimated bool    `json:"estimated"`
}

// LatencyRecorder aggregates task latencies into a histogram that resolves
// one microsecond up to ten minutes at three significant figures.
type LatencyRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewLatencyRecorder returns an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{
		hist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// Record adds one latency observation. Negative spans are dropped, spans
// past the trackable range land in the top bucket.
func (r *LatencyRecorder) Record(d time.Duration) {
	if d < 0 {
		return
	}
	us := int64(d / time.Microsecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	if highest := r.hist.HighestTrackableValue(); us > highest {
		us = highest
	}
	_ = r.hist.RecordValue(us)
}

// Snapshot reduces the recorded distribution into milliseconds.
func (r *LatencyRecorder) Snapshot() LatencySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hist.TotalCount() == 0 {
		return LatencySnapshot{}
	}

	usToMs := func(us int64) float64 { return float64(us) / 1000.0 }
	return LatencySnapshot{
		Count: r.hist.TotalCount(),
		Mean:  r.hist.Mean() / 1000.0,
		P50:   usToMs(r.hist.ValueAtQuantile(50)),
		P95:   usToMs(r.hist.ValueAtQuantile(95)),
		P99:   usToMs(r.hist.ValueAtQuantile(99)),
		P999:  usToMs(r.hist.ValueAtQuantile(99.9)),
		P9999: usToMs(r.hist.ValueAtQuantile(99.99)),
		Max:   usToMs(r.hist.Max()),
	}
}
