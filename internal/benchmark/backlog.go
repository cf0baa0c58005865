package benchmark

import (
	"context"
	"fmt"
	"time"
)

// maxProbeRetries bounds how many consecutive probe failures the tracker
// rides out before escalating. Each retry waits one poll interval.
const maxProbeRetries = 3

// confirmationPolls is the number of extra all-accounted polls required
// before declaring a queue drained, guarding against counters that report
// completion the broker has not settled yet.
const confirmationPolls = 1

// BacklogSample is one point of the queue-depth time series.
type BacklogSample struct {
	Timestamp time.Time `json:"timestamp"`
	Pending   int       `json:"pending"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
}

// DrainResult carries the backlog series and final counter state of one
// drain wait. It is populated on failure paths too, so a timed-out run
// still ships its partial series for diagnosis.
type DrainResult struct {
	Samples    []BacklogSample
	Completed  int
	Failed     int
	MaxBacklog int
	// Elapsed is the span from poll start until the queue was first
	// observed empty, excluding the confirmation wait.
	Elapsed time.Duration
}

// BacklogTracker polls a stats probe until a task population is fully
// accounted for. Detection is aggregate on purpose: waiting on dispatched
// items one by one serializes on the slowest result and collapses
// completion-detection latency as counts grow.
type BacklogTracker struct {
	probe         StatsProbe
	taskCount     int
	pollInterval  time.Duration
	timeout       time.Duration
	stagnantLimit int
}

// NewBacklogTracker builds a tracker for cfg.TaskCount tasks.
func NewBacklogTracker(probe StatsProbe, cfg RunConfig) *BacklogTracker {
	cfg = cfg.WithDefaults()
	return &BacklogTracker{
		probe:         probe,
		taskCount:     cfg.TaskCount,
		pollInterval:  cfg.PollInterval,
		timeout:       cfg.Timeout,
		stagnantLimit: cfg.StagnantLimit,
	}
}

// Track polls every poll interval until completed+failed reaches the task
// count and stays there for one confirmation poll. It fails with
// ErrDrainTimeout when the timeout passes or progress stalls for the
// stagnation limit, and escalates persistent probe errors the same way.
// The partial sample series is returned on every path.
func (t *BacklogTracker) Track(ctx context.Context) (*DrainResult, error) {
	res := &DrainResult{}
	start := time.Now()
	deadline := start.Add(t.timeout)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	var drainedAt time.Time
	confirmed := 0
	stagnant := 0
	lastCompleted := -1
	retries := 0

	for {
		select {
		case <-ctx.Done():
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("drain interrupted: %w", ctx.Err())
		case <-ticker.C:
		}

		completed, failed, err := t.probe.Counts(ctx)
		if err != nil {
			retries++
			if retries > maxProbeRetries {
				res.Elapsed = time.Since(start)
				return res, fmt.Errorf("%w: %w exhausted %d retries: %v",
					ErrDrainTimeout, ErrProbeFailure, maxProbeRetries, err)
			}
			continue
		}
		retries = 0

		pending := t.taskCount - (completed + failed)
		if pending < 0 {
			pending = 0
		}

		res.Samples = append(res.Samples, BacklogSample{
			Timestamp: time.Now(),
			Pending:   pending,
			Completed: completed,
			Failed:    failed,
		})
		res.Completed = completed
		res.Failed = failed
		if pending > res.MaxBacklog {
			res.MaxBacklog = pending
		}

		if completed+failed >= t.taskCount {
			if confirmed == 0 {
				drainedAt = time.Now()
			}
			if confirmed >= confirmationPolls {
				res.Elapsed = drainedAt.Sub(start)
				return res, nil
			}
			confirmed++
			continue
		}
		confirmed = 0

		if completed == lastCompleted {
			stagnant++
		} else {
			stagnant = 0
			lastCompleted = completed
		}
		if t.stagnantLimit > 0 && stagnant >= t.stagnantLimit {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("%w: no progress for %d polls (completed=%d failed=%d pending=%d)",
				ErrDrainTimeout, stagnant, completed, failed, pending)
		}

		if time.Now().After(deadline) {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("%w: %d tasks still pending after %s",
				ErrDrainTimeout, pending, t.timeout)
		}
	}
}
