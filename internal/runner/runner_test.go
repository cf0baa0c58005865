package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/worker"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/queue"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

// fakeBackend drains instantly: every Counts call completes whatever was
// enqueued since the last one.
type fakeBackend struct {
	mu            sync.Mutex
	pending       int
	completed     int
	resets        int
	enqueues      int
	failEnqueueAt int // 1-based Enqueue call that errors, 0 for never
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Enqueue(ctx context.Context, specs []scenario.TaskSpec) ([]benchmark.TaskHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueues++
	if b.failEnqueueAt > 0 && b.enqueues == b.failEnqueueAt {
		return nil, errors.New("broker gone")
	}
	now := time.Now()
	handles := make([]benchmark.TaskHandle, len(specs))
	for i := range specs {
		handles[i] = benchmark.TaskHandle{ID: fmt.Sprintf("t-%d-%d", b.enqueues, i), EnqueuedAt: now}
	}
	b.pending += len(specs)
	return handles, nil
}

func (b *fakeBackend) Counts(ctx context.Context) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed += b.pending
	b.pending = 0
	return b.completed, 0, nil
}

func (b *fakeBackend) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	b.pending, b.completed = 0, 0
	return nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) stats() (enqueues, resets int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueues, b.resets
}

type stubMetrics struct{}

func (stubMetrics) CPUPercent() (float64, error)  { return 25.0, nil }
func (stubMetrics) MemoryRSSMB() (float64, error) { return 128.0, nil }

func fastOpts(runs int) Options {
	return Options{
		Runs:           runs,
		TaskCount:      40,
		WarmupTasks:    -1,
		Timeout:        5 * time.Second,
		PollInterval:   time.Millisecond,
		SampleInterval: time.Millisecond,
	}
}

func newTestRunner(sup *worker.Supervisor, opts Options) *Runner {
	r := New(sup, opts)
	r.metricsFor = func(int) benchmark.ProcessMetrics { return stubMetrics{} }
	return r
}

func lookup(t *testing.T, name string) scenario.Scenario {
	t.Helper()
	sc, err := scenario.Lookup(name)
	require.NoError(t, err)
	return sc
}

func TestRunScenarioHappyPath(t *testing.T) {
	a := &fakeBackend{}
	b := &fakeBackend{}
	r := newTestRunner(nil, fastOpts(3))

	batch, err := r.RunScenario(context.Background(), lookup(t, "throughput"), []Framework{
		{Name: "asynctasq", Backend: a, WorkerCount: 4},
		{Name: "celery", Backend: b, WorkerCount: 4},
	})
	require.NoError(t, err)

	require.Len(t, batch.Frameworks, 2)
	assert.Equal(t, 40, batch.TaskCount)
	for _, fw := range batch.Frameworks {
		assert.Equal(t, 3, fw.Summary.Runs)
		assert.Zero(t, fw.Summary.FailedRuns)
		assert.Len(t, fw.Runs, 3)
		assert.Empty(t, fw.Errors)
	}

	require.Len(t, batch.Comparisons, 1)
	cmp := batch.Comparisons[0]
	assert.Equal(t, "asynctasq", cmp.Baseline.Framework)
	assert.Equal(t, "celery", cmp.Candidate.Framework)
	assert.False(t, cmp.InsufficientData)

	// One queue purge per run from the runner, one counter reset per run
	// from the executor's warm-up phase.
	enqueues, resets := a.stats()
	assert.Equal(t, 3, enqueues)
	assert.Equal(t, 6, resets)
}

func TestRunScenarioAutoWarmup(t *testing.T) {
	b := &fakeBackend{}
	opts := fastOpts(2)
	opts.WarmupTasks = 0 // auto-size
	r := newTestRunner(nil, opts)

	_, err := r.RunScenario(context.Background(), lookup(t, "throughput"), []Framework{
		{Name: "asynctasq", Backend: b},
	})
	require.NoError(t, err)

	// Warm-up dispatches its own batch before each measured one.
	enqueues, _ := b.stats()
	assert.Equal(t, 4, enqueues)
}

func TestRunScenarioRecordsPerRunFailures(t *testing.T) {
	b := &fakeBackend{failEnqueueAt: 2}
	r := newTestRunner(nil, fastOpts(3))

	batch, err := r.RunScenario(context.Background(), lookup(t, "throughput"), []Framework{
		{Name: "celery", Backend: b},
	})
	require.NoError(t, err)

	fw := batch.Frameworks[0]
	require.Len(t, fw.Runs, 3, "a failed run still yields a record")
	assert.False(t, fw.Runs[0].Failed)
	assert.True(t, fw.Runs[1].Failed)
	assert.False(t, fw.Runs[2].Failed)

	assert.Equal(t, 2, fw.Summary.Runs)
	assert.Equal(t, 1, fw.Summary.FailedRuns)
	assert.InDelta(t, 1.0/3.0, fw.Summary.FailureRate, 0.001)

	require.Len(t, fw.Errors, 1)
	var runErr *benchmark.RunError
	require.ErrorAs(t, fw.Errors[0], &runErr)
	assert.Equal(t, 1, runErr.RunIndex)

	// One failure out of three runs crosses the default 20% limit.
	assert.True(t, batch.Unreliable)
	require.NotEmpty(t, batch.Warnings)
	assert.Contains(t, batch.Warnings[0], "failed 33%")
}

func TestRunScenarioContinuesAfterStartupFailure(t *testing.T) {
	sup := worker.NewSupervisor(failLauncher{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := newTestRunner(sup, fastOpts(2))

	profile := worker.Profile{Framework: "celery", Command: []string{"celery", "worker"}}
	healthy := &fakeBackend{}

	batch, err := r.RunScenario(context.Background(), lookup(t, "throughput"), []Framework{
		{Name: "celery", Backend: &fakeBackend{}, Workers: &profile},
		{Name: "asynctasq", Backend: healthy},
	})
	require.NoError(t, err)

	broken := batch.Frameworks[0]
	assert.Zero(t, broken.Summary.Runs)
	assert.Empty(t, broken.Runs)
	require.NotEmpty(t, broken.Errors)
	assert.ErrorIs(t, broken.Errors[0], benchmark.ErrStartupFailure)

	// The other framework still ran the full batch.
	assert.Equal(t, 2, batch.Frameworks[1].Summary.Runs)

	assert.True(t, batch.Unreliable)
	require.Len(t, batch.Comparisons, 1)
	assert.True(t, batch.Comparisons[0].InsufficientData)
}

func TestRunScenarioStartsAndStopsWorkers(t *testing.T) {
	launcher := &scriptedLauncher{}
	sup := worker.NewSupervisor(launcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := newTestRunner(sup, fastOpts(1))

	profile := worker.Profile{
		Framework:  "celery",
		Command:    []string{"celery", "worker"},
		ReadyCheck: func(ctx context.Context) error { return nil },
	}

	batch, err := r.RunScenario(context.Background(), lookup(t, "throughput"), []Framework{
		{Name: "celery", Backend: &fakeBackend{}, Workers: &profile},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Frameworks[0].Summary.Runs)
	require.Len(t, launcher.procs, 1)
	assert.True(t, launcher.procs[0].terminated(), "workers must be stopped after the batch")
	assert.Equal(t, 0, sup.PID())
}

func TestRunScenarioRejectsSharedQueues(t *testing.T) {
	a, err := queue.NewRedis("redis://localhost:6379/0", "bench")
	require.NoError(t, err)
	defer a.Close()
	b, err := queue.NewRedis("redis://localhost:6379/0", "bench")
	require.NoError(t, err)
	defer b.Close()

	r := newTestRunner(nil, fastOpts(1))
	_, err = r.RunScenario(context.Background(), lookup(t, "throughput"), []Framework{
		{Name: "asynctasq", Backend: a},
		{Name: "celery", Backend: b},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue isolation")
}

func TestRunScenarioHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(nil, fastOpts(5))
	batch, err := r.RunScenario(ctx, lookup(t, "throughput"), []Framework{
		{Name: "celery", Backend: &fakeBackend{}},
	})
	require.NoError(t, err)

	fw := batch.Frameworks[0]
	assert.Empty(t, fw.Runs)
	require.NotEmpty(t, fw.Errors)
	assert.Contains(t, fw.Errors[0].Error(), "interrupted")
	assert.True(t, batch.Unreliable)
}

func TestRunScenarioNeedsFrameworks(t *testing.T) {
	r := newTestRunner(nil, fastOpts(1))
	_, err := r.RunScenario(context.Background(), lookup(t, "throughput"), nil)
	require.Error(t, err)
}

// failLauncher refuses every spawn.
type failLauncher struct{}

func (failLauncher) Spawn(ctx context.Context, p worker.Profile) (worker.Process, error) {
	return nil, errors.New("spawn refused")
}

// scriptedLauncher hands out processes that die on the first signal.
type scriptedLauncher struct {
	mu    sync.Mutex
	procs []*scriptedProc
}

func (l *scriptedLauncher) Spawn(ctx context.Context, p worker.Profile) (worker.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	proc := &scriptedProc{pid: 4000 + len(l.procs), exited: make(chan error, 1)}
	l.procs = append(l.procs, proc)
	return proc, nil
}

type scriptedProc struct {
	pid    int
	exited chan error
	once   sync.Once
	mu     sync.Mutex
	gotSig bool
}

func (p *scriptedProc) PID() int             { return p.pid }
func (p *scriptedProc) Exited() <-chan error { return p.exited }

func (p *scriptedProc) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	p.gotSig = true
	p.mu.Unlock()
	p.once.Do(func() { p.exited <- nil })
	return nil
}

func (p *scriptedProc) Kill() error {
	p.once.Do(func() { p.exited <- errors.New("killed") })
	return nil
}

func (p *scriptedProc) terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gotSig
}
