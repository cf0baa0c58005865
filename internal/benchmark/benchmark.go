package benchmark

import (
	"context"
	"time"
)

// TaskHandle identifies one dispatched task. Handles are informational:
// completion is detected by aggregate backlog polling, never by waiting on
// individual handles.
type TaskHandle struct {
	ID         string
	EnqueuedAt time.Time
}

// Dispatcher enqueues workload tasks into the queue under test, one handle
// per task, fire-and-forget.
type Dispatcher interface {
	Enqueue(ctx context.Context, n int) ([]TaskHandle, error)
}

// StatsProbe reads a framework's aggregate completion counters.
type StatsProbe interface {
	// Counts returns how many tasks the workers have completed and failed
	// since the last reset.
	Counts(ctx context.Context) (completed, failed int, err error)
	// Reset clears the counters so a new phase starts from zero.
	Reset(ctx context.Context) error
}

// ProcessMetrics reads CPU and memory of one observed OS process.
type ProcessMetrics interface {
	CPUPercent() (float64, error)
	MemoryRSSMB() (float64, error)
}
