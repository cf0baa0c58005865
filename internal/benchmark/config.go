package benchmark

import (
	"fmt"
	"time"
)

const (
	DefaultTimeout        = 300 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultSampleInterval = 500 * time.Millisecond

	// DefaultStagnantLimit fails a run after this many backlog polls without
	// a single completed task, well before the full timeout burns down.
	DefaultStagnantLimit = 60

	minWarmupTasks = 100
)

// RunConfig describes one measured run. It is fixed at construction and
// threaded explicitly through the executor; there is no ambient
// configuration state.
type RunConfig struct {
	Framework      string
	Scenario       string
	TaskCount      int
	WorkerCount    int
	WarmupTasks    int
	Timeout        time.Duration
	PollInterval   time.Duration
	SampleInterval time.Duration
	StagnantLimit  int
}

// WithDefaults returns a copy with unset intervals and limits filled in.
// WarmupTasks is left alone: zero is a legal explicit choice.
func (c RunConfig) WithDefaults() RunConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.StagnantLimit == 0 {
		c.StagnantLimit = DefaultStagnantLimit
	}
	return c
}

// Validate checks the config invariants.
func (c RunConfig) Validate() error {
	if c.Framework == "" {
		return fmt.Errorf("framework must be set")
	}
	if c.TaskCount <= 0 {
		return fmt.Errorf("task count must be positive, got %d", c.TaskCount)
	}
	if c.WarmupTasks < 0 {
		return fmt.Errorf("warmup tasks must not be negative, got %d", c.WarmupTasks)
	}
	if c.WorkerCount < 0 {
		return fmt.Errorf("worker count must not be negative, got %d", c.WorkerCount)
	}
	return nil
}

// DefaultWarmupTasks suggests a warm-up size for a workload: 5% of the task
// count, at least 100, never more than the workload itself.
func DefaultWarmupTasks(taskCount int) int {
	warmup := taskCount / 20
	if warmup < minWarmupTasks {
		warmup = minWarmupTasks
	}
	if warmup > taskCount {
		warmup = taskCount
	}
	return warmup
}
