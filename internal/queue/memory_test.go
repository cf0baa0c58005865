package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

func TestRunTaskKinds(t *testing.T) {
	assert.NoError(t, runTask(Envelope{ID: "a", Kind: "noop"}))
	assert.NoError(t, runTask(Envelope{ID: "b", Kind: "sleep", Arg: 1}))
	assert.NoError(t, runTask(Envelope{ID: "c", Kind: "hash", Arg: 10}))
	assert.Error(t, runTask(Envelope{ID: "d", Kind: "explode"}))
}

func TestMemoryCountsCompletions(t *testing.T) {
	m := NewMemory(4)
	defer m.Close()

	plan := make([]scenario.TaskSpec, 20)
	for i := range plan {
		plan[i] = scenario.TaskSpec{Kind: scenario.KindNoop}
	}
	_, err := m.Enqueue(context.Background(), plan)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		completed, _, err := m.Counts(context.Background())
		return err == nil && completed == 20
	}, 2*time.Second, time.Millisecond)
}

func TestMemoryCountsFailures(t *testing.T) {
	m := NewMemory(2)
	defer m.Close()

	plan := []scenario.TaskSpec{
		{Kind: scenario.KindNoop},
		{Kind: scenario.Kind("explode")},
		{Kind: scenario.KindNoop},
	}
	_, err := m.Enqueue(context.Background(), plan)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		completed, failed, err := m.Counts(context.Background())
		return err == nil && completed == 2 && failed == 1
	}, 2*time.Second, time.Millisecond)
}

func TestMemoryResetDiscardsQueuedWork(t *testing.T) {
	// No worker pool: queued envelopes stay queued, so the discard is
	// observable.
	m := &Memory{tasks: make(chan Envelope, 16)}

	_, err := m.Enqueue(context.Background(), []scenario.TaskSpec{
		{Kind: scenario.KindNoop}, {Kind: scenario.KindNoop},
	})
	require.NoError(t, err)
	m.completed.Store(7)
	m.failed.Store(3)
	require.Len(t, m.tasks, 2)

	require.NoError(t, m.Reset(context.Background()))

	assert.Empty(t, m.tasks)
	completed, failed, err := m.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Zero(t, failed)
}

func TestMemoryEnqueueAfterClose(t *testing.T) {
	m := NewMemory(1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Enqueue(context.Background(), []scenario.TaskSpec{{Kind: scenario.KindNoop}})
	require.Error(t, err)
}

type stubMetrics struct{}

func (stubMetrics) CPUPercent() (float64, error)  { return 12.5, nil }
func (stubMetrics) MemoryRSSMB() (float64, error) { return 64.0, nil }

func TestMemoryBackendDrivesFullRun(t *testing.T) {
	m := NewMemory(10)
	defer m.Close()

	sc, err := scenario.Lookup("throughput")
	require.NoError(t, err)

	cfg := benchmark.RunConfig{
		Framework:      "asynctasq",
		Scenario:       sc.Name,
		TaskCount:      1000,
		WorkerCount:    10,
		WarmupTasks:    0,
		Timeout:        10 * time.Second,
		PollInterval:   2 * time.Millisecond,
		SampleInterval: 2 * time.Millisecond,
	}

	exec, err := benchmark.NewRunExecutor(cfg, Dispatcher{Backend: m, Scenario: sc}, m, stubMetrics{})
	require.NoError(t, err)

	run, err := exec.Execute(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, benchmark.StateComplete, exec.State())
	assert.False(t, run.Failed)
	assert.Equal(t, 1000, run.TasksCompleted)
	assert.Zero(t, run.TasksFailed)
	assert.Positive(t, run.Throughput)
	assert.LessOrEqual(t, run.MaxBacklog, 1000)
	assert.True(t, run.Latency.Estimated)
	assert.NotEmpty(t, run.Backlog)
}
