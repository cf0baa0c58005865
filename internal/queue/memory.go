package queue

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

const (
	defaultMemoryWorkers = 8
	memoryQueueDepth     = 16384
)

// Memory is an in-process backend: a buffered envelope channel consumed by
// its own worker pool. It lets the harness, its tests, and the self-test
// suite run without external infrastructure.
type Memory struct {
	tasks chan Envelope
	wg    sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
	closed    atomic.Bool
}

// NewMemory starts a backend with the given pool size (0 picks the
// default).
func NewMemory(workers int) *Memory {
	if workers <= 0 {
		workers = defaultMemoryWorkers
	}
	m := &Memory{tasks: make(chan Envelope, memoryQueueDepth)}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.work()
	}
	return m
}

func (m *Memory) work() {
	defer m.wg.Done()
	for env := range m.tasks {
		if err := runTask(env); err != nil {
			m.failed.Add(1)
		} else {
			m.completed.Add(1)
		}
	}
}

// runTask interprets one envelope the way the external workers do.
func runTask(env Envelope) error {
	switch scenario.Kind(env.Kind) {
	case scenario.KindNoop:
		return nil
	case scenario.KindSleep:
		time.Sleep(time.Duration(env.Arg) * time.Millisecond)
		return nil
	case scenario.KindHash:
		sum := sha256.Sum256([]byte(env.ID))
		for i := 1; i < env.Arg; i++ {
			sum = sha256.Sum256(sum[:])
		}
		return nil
	default:
		return fmt.Errorf("unknown task kind %q", env.Kind)
	}
}

func (m *Memory) Name() string { return "memory" }

// Enqueue feeds the pool, honoring cancellation when the buffer is full.
func (m *Memory) Enqueue(ctx context.Context, specs []scenario.TaskSpec) ([]benchmark.TaskHandle, error) {
	if m.closed.Load() {
		return nil, fmt.Errorf("memory queue is closed")
	}

	envs, handles := buildEnvelopes(specs)
	for _, env := range envs {
		select {
		case m.tasks <- env:
		case <-ctx.Done():
			return nil, fmt.Errorf("enqueue interrupted: %w", ctx.Err())
		}
	}
	return handles, nil
}

func (m *Memory) Counts(ctx context.Context) (int, int, error) {
	return int(m.completed.Load()), int(m.failed.Load()), nil
}

// Reset discards queued envelopes and zeroes the counters. Callers reset
// only after a drain, so no task is in flight.
func (m *Memory) Reset(ctx context.Context) error {
	for {
		select {
		case <-m.tasks:
		default:
			m.completed.Store(0)
			m.failed.Store(0)
			return nil
		}
	}
}

// Close stops the pool after the queued work finishes.
func (m *Memory) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		close(m.tasks)
		m.wg.Wait()
	}
	return nil
}
