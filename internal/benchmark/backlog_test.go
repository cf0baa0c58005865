package benchmark

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countStep struct {
	completed int
	failed    int
	err       error
}

// scriptedProbe replays a fixed sequence of counter readings; the last step
// repeats forever.
type scriptedProbe struct {
	mu     sync.Mutex
	steps  []countStep
	idx    int
	resets int
}

func (p *scriptedProbe) Counts(context.Context) (int, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	step := p.steps[len(p.steps)-1]
	if p.idx < len(p.steps) {
		step = p.steps[p.idx]
	}
	p.idx++
	return step.completed, step.failed, step.err
}

func (p *scriptedProbe) Reset(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}

func trackerConfig(taskCount int) RunConfig {
	return RunConfig{
		Framework:     "test",
		TaskCount:     taskCount,
		PollInterval:  5 * time.Millisecond,
		Timeout:       2 * time.Second,
		StagnantLimit: -1,
	}
}

func TestBacklogTrackerCompletes(t *testing.T) {
	probe := &scriptedProbe{steps: []countStep{
		{completed: 4},
		{completed: 8, failed: 1},
		{completed: 9, failed: 1},
	}}
	tracker := NewBacklogTracker(probe, trackerConfig(10))

	res, err := tracker.Track(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 9, res.Completed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 6, res.MaxBacklog)
	// Third poll saw everything accounted for, the fourth confirmed it.
	require.Len(t, res.Samples, 4)
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestBacklogTrackerTimestampsMonotonic(t *testing.T) {
	probe := &scriptedProbe{steps: []countStep{
		{completed: 2}, {completed: 5}, {completed: 10},
	}}
	tracker := NewBacklogTracker(probe, trackerConfig(10))

	res, err := tracker.Track(context.Background())

	require.NoError(t, err)
	for i := 1; i < len(res.Samples); i++ {
		assert.True(t, res.Samples[i].Timestamp.After(res.Samples[i-1].Timestamp))
	}
}

func TestBacklogTrackerConfirmationPoll(t *testing.T) {
	// The counter briefly claims completion, then regresses: a settled
	// drain needs two consecutive all-accounted observations.
	probe := &scriptedProbe{steps: []countStep{
		{completed: 10},
		{completed: 7},
		{completed: 10},
	}}
	tracker := NewBacklogTracker(probe, trackerConfig(10))

	res, err := tracker.Track(context.Background())

	require.NoError(t, err)
	require.Len(t, res.Samples, 4)
	assert.Equal(t, 10, res.Completed)
}

func TestBacklogTrackerTimeout(t *testing.T) {
	probe := &scriptedProbe{steps: []countStep{{completed: 5}}}
	cfg := trackerConfig(10)
	cfg.Timeout = 40 * time.Millisecond
	tracker := NewBacklogTracker(probe, cfg)

	res, err := tracker.Track(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDrainTimeout))
	// Partial samples survive the failure for diagnostics.
	assert.NotEmpty(t, res.Samples)
	assert.Equal(t, 5, res.Completed)
	assert.Equal(t, 5, res.MaxBacklog)
}

func TestBacklogTrackerStagnation(t *testing.T) {
	probe := &scriptedProbe{steps: []countStep{{completed: 5}}}
	cfg := trackerConfig(10)
	cfg.StagnantLimit = 3
	tracker := NewBacklogTracker(probe, cfg)

	start := time.Now()
	_, err := tracker.Track(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDrainTimeout))
	assert.Contains(t, err.Error(), "no progress")
	// Stagnation fires long before the full timeout.
	assert.Less(t, time.Since(start), time.Second)
}

func TestBacklogTrackerRetriesTransientProbeErrors(t *testing.T) {
	probeErr := errors.New("connection reset")
	probe := &scriptedProbe{steps: []countStep{
		{completed: 2},
		{err: probeErr},
		{err: probeErr},
		{completed: 10},
	}}
	tracker := NewBacklogTracker(probe, trackerConfig(10))

	res, err := tracker.Track(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 10, res.Completed)
	// Failed polls contribute no samples.
	require.Len(t, res.Samples, 3)
}

func TestBacklogTrackerEscalatesExhaustedRetries(t *testing.T) {
	probe := &scriptedProbe{steps: []countStep{{err: errors.New("boom")}}}
	tracker := NewBacklogTracker(probe, trackerConfig(10))

	_, err := tracker.Track(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDrainTimeout))
	assert.True(t, errors.Is(err, ErrProbeFailure))
}

func TestBacklogTrackerClampsPending(t *testing.T) {
	// Counters can overshoot the dispatched population (stale warm-up
	// residue); pending must clamp at zero instead of going negative.
	probe := &scriptedProbe{steps: []countStep{{completed: 15}}}
	tracker := NewBacklogTracker(probe, trackerConfig(10))

	res, err := tracker.Track(context.Background())

	require.NoError(t, err)
	for _, s := range res.Samples {
		assert.GreaterOrEqual(t, s.Pending, 0)
	}
	assert.Zero(t, res.MaxBacklog)
}

func TestBacklogTrackerCancellation(t *testing.T) {
	probe := &scriptedProbe{steps: []countStep{{completed: 1}}}
	cfg := trackerConfig(10)
	tracker := NewBacklogTracker(probe, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	res, err := tracker.Track(ctx)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	// The series collected so far is flushed, not discarded.
	assert.NotEmpty(t, res.Samples)
}
