package benchmark

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunState names a phase of the run state machine.
type RunState int32

const (
	StateIdle RunState = iota
	StateWarmingUp
	StateMeasuring
	StateDraining
	StateComplete
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWarmingUp:
		return "WarmingUp"
	case StateMeasuring:
		return "Measuring"
	case StateDraining:
		return "Draining"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("RunState(%d)", int32(s))
	}
}

// minSamplesForInterpolation is the backlog series length below which
// completion times fall back to an even spread of the drain window.
const minSamplesForInterpolation = 3

// maxEstimatedWait caps how long before its estimated completion a task is
// assumed to have started executing.
const maxEstimatedWait = 200 * time.Millisecond

// RunExecutor drives one measured run: warm-up, timed enqueue, aggregate
// drain polling with concurrent resource sampling, and assembly of one
// RawRun. One executor performs one run at a time against one queue.
type RunExecutor struct {
	cfg        RunConfig
	dispatcher Dispatcher
	probe      StatsProbe
	metrics    ProcessMetrics
	liveness   func() error

	state atomic.Int32
}

// NewRunExecutor validates cfg and builds an executor around the given
// collaborators.
func NewRunExecutor(cfg RunConfig, dispatcher Dispatcher, probe StatsProbe, metrics ProcessMetrics) (*RunExecutor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	if dispatcher == nil || probe == nil || metrics == nil {
		return nil, fmt.Errorf("run executor needs a dispatcher, a stats probe and a metrics source")
	}
	return &RunExecutor{
		cfg:        cfg,
		dispatcher: dispatcher,
		probe:      probe,
		metrics:    metrics,
	}, nil
}

// WatchLiveness registers a check consulted when a run fails, to tell a
// crashed worker apart from a merely stuck queue.
func (e *RunExecutor) WatchLiveness(check func() error) {
	e.liveness = check
}

// State reports the current phase.
func (e *RunExecutor) State() RunState {
	return RunState(e.state.Load())
}

func (e *RunExecutor) setState(s RunState) {
	e.state.Store(int32(s))
}

// Execute performs one run. The returned RawRun is populated on failure
// paths too, carrying whatever samples were collected before the run died.
func (e *RunExecutor) Execute(ctx context.Context, runIndex int) (RawRun, error) {
	run := RawRun{
		ID:        ulid.Make().String(),
		Framework: e.cfg.Framework,
		Scenario:  e.cfg.Scenario,
		RunIndex:  runIndex,
		TaskCount: e.cfg.TaskCount,
		Workers:   e.cfg.WorkerCount,
		StartedAt: time.Now(),
	}

	e.setState(StateWarmingUp)
	if err := e.warmUp(ctx); err != nil {
		return e.fail(run, err)
	}

	e.setState(StateMeasuring)
	measureStart := time.Now()

	sampler := NewResourceSampler(e.metrics, e.cfg.SampleInterval)
	sampler.Start()

	enqueueTimer := StartTimer()
	handles, err := e.dispatcher.Enqueue(ctx, e.cfg.TaskCount)
	run.EnqueueTime = enqueueTimer.Stop()
	if err != nil {
		run.CPUPercent, run.MemoryMB = sampler.Stop()
		run.Resources = sampler.Samples()
		run.TotalTime = time.Since(measureStart)
		return e.fail(run, fmt.Errorf("enqueue: %w", err))
	}
	if secs := run.EnqueueTime.Seconds(); secs > 0 {
		run.EnqueueRate = float64(len(handles)) / secs
	}
	timings := buildTimings(handles)

	e.setState(StateDraining)
	processingStart := time.Now()
	tracker := NewBacklogTracker(e.probe, e.cfg)
	drain, drainErr := tracker.Track(ctx)

	run.CPUPercent, run.MemoryMB = sampler.Stop()
	run.Resources = sampler.Samples()
	run.Backlog = drain.Samples
	run.MaxBacklog = drain.MaxBacklog
	run.TasksCompleted = drain.Completed
	run.TasksFailed = drain.Failed

	if drainErr != nil {
		run.TotalTime = time.Since(measureStart)
		// Tasks never observed complete go down as failed.
		if left := e.cfg.TaskCount - drain.Completed - drain.Failed; left > 0 {
			run.TasksFailed += left
		}
		if e.liveness != nil {
			if lerr := e.liveness(); lerr != nil {
				drainErr = fmt.Errorf("%w: %v (while draining: %v)", ErrWorkerCrashed, lerr, drainErr)
			}
		}
		return e.fail(run, drainErr)
	}

	processingEnd := processingStart.Add(drain.Elapsed)
	run.ProcessingTime = drain.Elapsed
	run.TotalTime = processingEnd.Sub(measureStart)

	if secs := drain.Elapsed.Seconds(); secs > 0 {
		run.ProcessingRate = float64(drain.Completed) / secs
	}
	if secs := run.TotalTime.Seconds(); secs > 0 {
		run.Throughput = float64(e.cfg.TaskCount) / secs
	}

	run.Latency = reduceLatency(timings, drain.Samples, processingStart, processingEnd)

	e.setState(StateComplete)
	return run, nil
}

// warmUp pushes the warm-up workload through the queue and resets the
// counters so nothing accumulated before the measured phase leaks into it.
func (e *RunExecutor) warmUp(ctx context.Context) error {
	if e.cfg.WarmupTasks > 0 {
		if _, err := e.dispatcher.Enqueue(ctx, e.cfg.WarmupTasks); err != nil {
			return fmt.Errorf("warm-up enqueue: %w", err)
		}
		warmCfg := e.cfg
		warmCfg.TaskCount = e.cfg.WarmupTasks
		if _, err := NewBacklogTracker(e.probe, warmCfg).Track(ctx); err != nil {
			return fmt.Errorf("warm-up drain: %w", err)
		}
	}
	if err := e.probe.Reset(ctx); err != nil {
		return fmt.Errorf("counter reset: %w", err)
	}
	return nil
}

func (e *RunExecutor) fail(run RawRun, err error) (RawRun, error) {
	run.Failed = true
	run.Error = err.Error()
	e.setState(StateFailed)
	return run, err
}

func buildTimings(handles []TaskHandle) []TaskTiming {
	timings := make([]TaskTiming, len(handles))
	for i, h := range handles {
		timings[i] = TaskTiming{TaskID: h.ID, EnqueueTime: h.EnqueuedAt}
	}
	return timings
}

// reduceLatency folds per-task latencies into a snapshot. When no task
// carries a real completion timestamp the latencies are estimated from the
// drain window; the snapshot is then an approximation of the distribution,
// not per-task instrumentation, and is marked as such.
func reduceLatency(timings []TaskTiming, backlog []BacklogSample, processingStart, processingEnd time.Time) LatencySnapshot {
	recorder := NewLatencyRecorder()

	measured := 0
	for _, tt := range timings {
		if d, ok := tt.TotalLatency(); ok {
			recorder.Record(d)
			measured++
		}
	}

	estimated := false
	if measured == 0 && len(timings) > 0 {
		estimated = true
		if len(backlog) >= minSamplesForInterpolation {
			estimateFromBacklog(timings, backlog, processingStart, processingEnd)
		} else {
			estimateEvenSpread(timings, processingStart, processingEnd.Sub(processingStart))
		}
		for _, tt := range timings {
			if d, ok := tt.TotalLatency(); ok {
				recorder.Record(d)
			}
		}
	}

	snap := recorder.Snapshot()
	snap.Estimated = estimated
	return snap
}

// estimateFromBacklog assigns each task the timestamp of the first backlog
// sample at or below the depth that task's completion would leave behind,
// assuming tasks complete in enqueue order.
func estimateFromBacklog(timings []TaskTiming, samples []BacklogSample, processingStart, processingEnd time.Time) {
	n := len(timings)
	j := 0
	for i := range timings {
		targetDepth := n - i - 1
		for j < len(samples) && samples[j].Pending > targetDepth {
			j++
		}
		complete := processingEnd
		if j < len(samples) {
			complete = samples[j].Timestamp
		}
		start := complete.Add(-maxEstimatedWait)
		if start.Before(processingStart) {
			start = processingStart
		}
		timings[i].StartTime = start
		timings[i].CompleteTime = complete
	}
}

// estimateEvenSpread distributes the drain window uniformly across tasks.
func estimateEvenSpread(timings []TaskTiming, processingStart time.Time, processingTime time.Duration) {
	n := len(timings)
	if n == 0 {
		return
	}
	perTask := processingTime / time.Duration(n)
	for i := range timings {
		timings[i].StartTime = processingStart.Add(time.Duration(float64(i) * float64(perTask) * 0.9))
		timings[i].CompleteTime = processingStart.Add(time.Duration(i+1) * perTask)
	}
}
