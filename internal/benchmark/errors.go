package benchmark

import (
	"errors"
	"fmt"
)

// Error kinds for run failures. The batch layer records them and moves on;
// none of these abort a multi-run batch.
var (
	// ErrStartupFailure marks a worker process that could not be spawned.
	ErrStartupFailure = errors.New("worker startup failed")

	// ErrNeverReady marks a worker that spawned but missed its readiness
	// deadline.
	ErrNeverReady = errors.New("worker never became ready")

	// ErrWorkerCrashed marks a worker that exited while a run was in flight.
	ErrWorkerCrashed = errors.New("worker crashed during run")

	// ErrDrainTimeout marks a queue that still held a backlog when the run
	// timeout passed.
	ErrDrainTimeout = errors.New("queue drain timed out")

	// ErrProbeFailure marks a stats probe that kept failing past its retry
	// budget.
	ErrProbeFailure = errors.New("stats probe failed")

	// ErrInsufficientData marks statistics requested over fewer than two runs.
	ErrInsufficientData = errors.New("insufficient data")
)

// RunError records one failed run inside a batch.
type RunError struct {
	Framework string
	RunIndex  int
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s run %d: %v", e.Framework, e.RunIndex, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
