// Package runner orchestrates benchmark batches: per framework it brings
// workers up, resets the queue, executes the configured number of measured
// runs, and reduces the results into summaries and pairwise comparisons.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/proc"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/statistics"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/worker"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/queue"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

const (
	DefaultRuns             = 10
	DefaultFailureRateLimit = 0.2
)

// Framework bundles what the runner needs to benchmark one contender.
type Framework struct {
	Name        string
	Backend     queue.Backend
	Workers     *worker.Profile // nil for in-process backends
	WorkerCount int
}

// Options tune one batch.
type Options struct {
	Runs             int
	TaskCount        int           // 0 picks the scenario default
	WarmupTasks      int           // 0 auto-sizes, -1 disables
	Timeout          time.Duration
	PollInterval     time.Duration
	SampleInterval   time.Duration
	FailureRateLimit float64       // 0 picks the default
}

func (o Options) withDefaults() Options {
	if o.Runs <= 0 {
		o.Runs = DefaultRuns
	}
	if o.FailureRateLimit <= 0 {
		o.FailureRateLimit = DefaultFailureRateLimit
	}
	return o
}

// FrameworkResult is one framework's outcome within a batch. Errors holds
// everything that went wrong without aborting the batch: startup failures,
// per-run failures, stop problems.
type FrameworkResult struct {
	Framework string
	Runs      []benchmark.RawRun
	Summary   benchmark.RunSummary
	Errors    []error
}

// BatchResult is one scenario measured across all frameworks.
type BatchResult struct {
	Scenario    string
	TaskCount   int
	Frameworks  []FrameworkResult
	Comparisons []benchmark.ComparisonResult
	Unreliable  bool
	Warnings    []string
}

// Runner drives batches. Frameworks run strictly one after another through
// a shared worker supervisor.
type Runner struct {
	supervisor *worker.Supervisor
	opts       Options

	// metricsFor is swapped out in tests.
	metricsFor func(pid int) benchmark.ProcessMetrics
}

// New builds a runner around a worker supervisor.
func New(supervisor *worker.Supervisor, opts Options) *Runner {
	return &Runner{
		supervisor: supervisor,
		opts:       opts.withDefaults(),
		metricsFor: observedMetrics,
	}
}

// RunScenario benchmarks every framework on one scenario. Per-run failures
// are recorded and never abort the batch; a framework whose workers cannot
// start is recorded with zero runs and the batch continues.
func (r *Runner) RunScenario(ctx context.Context, sc scenario.Scenario, frameworks []Framework) (*BatchResult, error) {
	if len(frameworks) == 0 {
		return nil, fmt.Errorf("no frameworks to benchmark")
	}

	taskCount := r.opts.TaskCount
	if taskCount <= 0 {
		taskCount = sc.TaskCount
	}

	// Frameworks must not observe each other's tasks or counters.
	for i := 0; i < len(frameworks); i++ {
		for j := i + 1; j < len(frameworks); j++ {
			if err := queue.CheckIsolation(frameworks[i].Backend, frameworks[j].Backend); err != nil {
				return nil, err
			}
		}
	}

	fmt.Printf("\n▶ Scenario %s: %d tasks × %d runs\n", sc.Name, taskCount, r.opts.Runs)

	batch := &BatchResult{Scenario: sc.Name, TaskCount: taskCount}
	for _, fw := range frameworks {
		batch.Frameworks = append(batch.Frameworks, r.runFramework(ctx, sc, fw, taskCount))
	}

	// Pairwise comparisons, first framework as baseline.
	baseline := batch.Frameworks[0]
	for _, other := range batch.Frameworks[1:] {
		batch.Comparisons = append(batch.Comparisons,
			benchmark.CompareSummaries(baseline.Summary, other.Summary))
	}

	r.assess(batch)
	return batch, nil
}

func (r *Runner) runFramework(ctx context.Context, sc scenario.Scenario, fw Framework, taskCount int) FrameworkResult {
	result := FrameworkResult{Framework: fw.Name}

	pid := 0
	var liveness func() error
	if fw.Workers != nil {
		set, err := r.supervisor.Start(ctx, *fw.Workers)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("start %s workers: %w", fw.Name, err))
			result.Summary = emptySummary(fw.Name, sc.Name)
			fmt.Printf("✗ %s: workers failed to start: %v\n", fw.Name, err)
			return result
		}
		pid = set.PID()
		liveness = r.supervisor.Liveness()
		defer func() {
			if err := r.supervisor.Stop(); err != nil {
				fmt.Printf("⚠ stopping %s workers: %v\n", fw.Name, err)
			}
		}()
	}

	warmup := r.opts.WarmupTasks
	switch {
	case warmup < 0:
		warmup = 0
	case warmup == 0:
		warmup = benchmark.DefaultWarmupTasks(taskCount)
	}

	cfg := benchmark.RunConfig{
		Framework:      fw.Name,
		Scenario:       sc.Name,
		TaskCount:      taskCount,
		WorkerCount:    fw.WorkerCount,
		WarmupTasks:    warmup,
		Timeout:        r.opts.Timeout,
		PollInterval:   r.opts.PollInterval,
		SampleInterval: r.opts.SampleInterval,
	}

	exec, err := benchmark.NewRunExecutor(cfg, queue.Dispatcher{Backend: fw.Backend, Scenario: sc}, fw.Backend, r.metricsFor(pid))
	if err != nil {
		result.Errors = append(result.Errors, err)
		result.Summary = emptySummary(fw.Name, sc.Name)
		return result
	}
	if liveness != nil {
		exec.WatchLiveness(liveness)
	}

	fmt.Printf("→ %s: warmup %d tasks, then measuring\n", fw.Name, warmup)

	for i := 0; i < r.opts.Runs; i++ {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Errorf("batch interrupted: %w", ctx.Err()))
			break
		}

		// Purge leftovers of the previous run (a timed-out run leaves a
		// backlog behind) so every run starts from a clean queue.
		if err := fw.Backend.Reset(ctx); err != nil {
			run := failedRun(cfg, i, fmt.Errorf("queue reset: %w", err))
			result.Runs = append(result.Runs, run)
			result.Errors = append(result.Errors, &benchmark.RunError{Framework: fw.Name, RunIndex: i, Err: err})
			fmt.Printf("✗ run %d/%d: queue reset failed: %v\n", i+1, r.opts.Runs, err)
			continue
		}

		run, err := exec.Execute(ctx, i)
		result.Runs = append(result.Runs, run)
		if err != nil {
			result.Errors = append(result.Errors, &benchmark.RunError{Framework: fw.Name, RunIndex: i, Err: err})
			fmt.Printf("✗ run %d/%d failed: %v\n", i+1, r.opts.Runs, err)
			continue
		}
		fmt.Printf("✓ run %d/%d: %.1f tasks/s, p95 %.1fms\n",
			i+1, r.opts.Runs, run.Throughput, run.Latency.P95)
	}

	result.Summary = benchmark.Summarize(result.Runs)
	if result.Summary.Framework == "" {
		result.Summary.Framework = fw.Name
		result.Summary.Scenario = sc.Name
	}
	return result
}

// assess flags the batch unreliable and collects the warnings the display
// layer prints.
func (r *Runner) assess(batch *BatchResult) {
	for _, fw := range batch.Frameworks {
		if fw.Summary.Runs == 0 {
			batch.Unreliable = true
			batch.Warnings = append(batch.Warnings,
				fmt.Sprintf("%s produced no successful runs", fw.Framework))
			continue
		}
		if fw.Summary.FailureRate > r.opts.FailureRateLimit {
			batch.Unreliable = true
			batch.Warnings = append(batch.Warnings, fmt.Sprintf(
				"%s failed %.0f%% of runs (limit %.0f%%), results are unreliable",
				fw.Framework, fw.Summary.FailureRate*100, r.opts.FailureRateLimit*100))
		}
		if grade := statistics.CVGrade(fw.Summary.Throughput.CV); grade == "unreliable" {
			batch.Unreliable = true
			batch.Warnings = append(batch.Warnings, fmt.Sprintf(
				"%s throughput varies by %.1f%% across runs, results are unreliable",
				fw.Framework, fw.Summary.Throughput.CV*100))
		}
		if fw.Summary.ThroughputOutliers.Any() {
			batch.Warnings = append(batch.Warnings, fmt.Sprintf(
				"%s has %d throughput outlier runs (kept in the statistics)",
				fw.Framework, fw.Summary.ThroughputOutliers.Count()))
		}
	}
}

func emptySummary(framework, scenarioName string) benchmark.RunSummary {
	s := benchmark.Summarize(nil)
	s.Framework = framework
	s.Scenario = scenarioName
	return s
}

// failedRun records a run that died before the executor could, keeping the
// failure visible in summaries and exports.
func failedRun(cfg benchmark.RunConfig, runIndex int, err error) benchmark.RawRun {
	return benchmark.RawRun{
		ID:        ulid.Make().String(),
		Framework: cfg.Framework,
		Scenario:  cfg.Scenario,
		RunIndex:  runIndex,
		StartedAt: time.Now(),
		TaskCount: cfg.TaskCount,
		Workers:   cfg.WorkerCount,
		Failed:    true,
		Error:     err.Error(),
	}
}

// observedMetrics picks the process the resource sampler watches: the
// supervised worker when there is one, the harness itself otherwise.
func observedMetrics(pid int) benchmark.ProcessMetrics {
	if pid > 0 {
		if m, err := proc.ForPID(int32(pid)); err == nil {
			return m
		}
		fmt.Printf("⚠ cannot observe worker pid %d, sampling the harness instead\n", pid)
	}
	if m, err := proc.Self(); err == nil {
		return m
	}
	return unavailableMetrics{}
}

// unavailableMetrics keeps a run alive when process accounting cannot be
// read; the sampler skips errored readings and reports zero means.
type unavailableMetrics struct{}

func (unavailableMetrics) CPUPercent() (float64, error) {
	return 0, fmt.Errorf("process metrics unavailable")
}

func (unavailableMetrics) MemoryRSSMB() (float64, error) {
	return 0, fmt.Errorf("process metrics unavailable")
}
