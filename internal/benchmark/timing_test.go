package benchmark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(10 * time.Millisecond)
	elapsed := timer.Stop()

	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	// Stop froze the span.
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, elapsed, timer.Elapsed())
}

func TestTimerElapsedWhileRunning(t *testing.T) {
	timer := StartTimer()
	time.Sleep(5 * time.Millisecond)
	first := timer.Elapsed()
	time.Sleep(5 * time.Millisecond)
	second := timer.Elapsed()

	assert.Greater(t, second, first)
}

func TestTaskTimingDerivedSpans(t *testing.T) {
	base := time.Now()
	timing := TaskTiming{
		TaskID:       "task-1",
		EnqueueTime:  base,
		StartTime:    base.Add(20 * time.Millisecond),
		CompleteTime: base.Add(50 * time.Millisecond),
	}

	total, ok := timing.TotalLatency()
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, total)

	wait, ok := timing.WaitTime()
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, wait)

	exec, ok := timing.ExecutionTime()
	require.True(t, ok)
	assert.Equal(t, 30*time.Millisecond, exec)
}

func TestTaskTimingMissingTimestamps(t *testing.T) {
	timing := TaskTiming{TaskID: "task-2", EnqueueTime: time.Now()}

	_, ok := timing.TotalLatency()
	assert.False(t, ok)
	_, ok = timing.WaitTime()
	assert.False(t, ok)
	_, ok = timing.ExecutionTime()
	assert.False(t, ok)
}

func TestLatencyRecorderSnapshot(t *testing.T) {
	recorder := NewLatencyRecorder()
	for i := 1; i <= 1000; i++ {
		recorder.Record(time.Duration(i) * time.Millisecond)
	}

	snap := recorder.Snapshot()

	assert.Equal(t, int64(1000), snap.Count)
	assert.InDelta(t, 500.0, snap.Mean, 5.0)
	assert.InDelta(t, 500.0, snap.P50, 5.0)
	assert.InDelta(t, 950.0, snap.P95, 5.0)
	assert.InDelta(t, 990.0, snap.P99, 5.0)
	assert.LessOrEqual(t, snap.P50, snap.P95)
	assert.LessOrEqual(t, snap.P95, snap.P99)
	assert.LessOrEqual(t, snap.P99, snap.P999)
	assert.LessOrEqual(t, snap.P999, snap.P9999)
	assert.InDelta(t, 1000.0, snap.Max, 5.0)
}

func TestLatencyRecorderEmpty(t *testing.T) {
	snap := NewLatencyRecorder().Snapshot()
	assert.Zero(t, snap.Count)
	assert.Zero(t, snap.P99)
}

func TestLatencyRecorderClampsExtremes(t *testing.T) {
	recorder := NewLatencyRecorder()
	recorder.Record(-time.Second)
	recorder.Record(time.Hour)

	snap := recorder.Snapshot()
	// The negative span is dropped, the out-of-range one lands in the top
	// bucket instead of vanishing.
	assert.Equal(t, int64(1), snap.Count)
	assert.InDelta(t, float64(10*time.Minute/time.Millisecond), snap.Max,
		float64(time.Minute/time.Millisecond))
}
