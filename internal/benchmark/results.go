package benchmark

import (
	"time"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/statistics"
)

// RawRun is the immutable record of one measured run. Failed runs keep
// their partial series so a timeout can still be diagnosed from the export.
type RawRun struct {
	ID        string    `json:"id"`
	Framework string    `json:"framework"`
	Scenario  string    `json:"scenario"`
	RunIndex  int       `json:"run_index"`
	StartedAt time.Time `json:"started_at"`

	TaskCount int `json:"task_count"`
	Workers   int `json:"workers"`

	TotalTime      time.Duration `json:"total_time"`
	EnqueueTime    time.Duration `json:"enqueue_time"`
	ProcessingTime time.Duration `json:"processing_time"`

	TasksCompleted int `json:"tasks_completed"`
	TasksFailed    int `json:"tasks_failed"`

	Throughput     float64 `json:"throughput_tps"`
	EnqueueRate    float64 `json:"enqueue_rate_tps"`
	ProcessingRate float64 `json:"processing_rate_tps"`

	Latency LatencySnapshot `json:"latency"`

	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	MaxBacklog int     `json:"max_backlog"`

	Resources []ResourceSample `json:"resources,omitempty"`
	Backlog   []BacklogSample  `json:"backlog,omitempty"`

	Failed bool   `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// RunSummary aggregates the runs of one framework on one scenario. It is a
// derived view: recomputed from the raw runs, never mutated in place.
type RunSummary struct {
	Framework string `json:"framework"`
	Scenario  string `json:"scenario"`

	Runs        int     `json:"runs"`
	FailedRuns  int     `json:"failed_runs"`
	FailureRate float64 `json:"failure_rate"`

	Throughput statistics.Stats `json:"throughput_tps"`
	TotalTime  statistics.Stats `json:"total_time_sec"`
	LatencyP50 statistics.Stats `json:"latency_p50_ms"`
	LatencyP95 statistics.Stats `json:"latency_p95_ms"`
	LatencyP99 statistics.Stats `json:"latency_p99_ms"`
	CPUPercent statistics.Stats `json:"cpu_percent"`
	MemoryMB   statistics.Stats `json:"memory_mb"`

	ThroughputOutliers statistics.OutlierReport `json:"throughput_outliers"`

	LatencyEstimated bool `json:"latency_estimated"`
	InsufficientData bool `json:"insufficient_data"`
}

// Summarize folds raw runs into a summary. Failed runs are excluded from
// every metric but counted in the failure rate.
func Summarize(runs []RawRun) RunSummary {
	var s RunSummary
	if len(runs) > 0 {
		s.Framework = runs[0].Framework
		s.Scenario = runs[0].Scenario
	}

	var throughput, totalTime, p50, p95, p99, cpu, mem []float64
	for _, r := range runs {
		if r.Failed {
			s.FailedRuns++
			continue
		}
		s.Runs++
		throughput = append(throughput, r.Throughput)
		totalTime = append(totalTime, r.TotalTime.Seconds())
		p50 = append(p50, r.Latency.P50)
		p95 = append(p95, r.Latency.P95)
		p99 = append(p99, r.Latency.P99)
		cpu = append(cpu, r.CPUPercent)
		mem = append(mem, r.MemoryMB)
		if r.Latency.Estimated {
			s.LatencyEstimated = true
		}
	}

	if total := s.Runs + s.FailedRuns; total > 0 {
		s.FailureRate = float64(s.FailedRuns) / float64(total)
	}

	s.Throughput = statistics.Calculate(throughput)
	s.TotalTime = statistics.Calculate(totalTime)
	s.LatencyP50 = statistics.Calculate(p50)
	s.LatencyP95 = statistics.Calculate(p95)
	s.LatencyP99 = statistics.Calculate(p99)
	s.CPUPercent = statistics.Calculate(cpu)
	s.MemoryMB = statistics.Calculate(mem)
	s.ThroughputOutliers = statistics.Outliers(throughput)
	s.InsufficientData = s.Runs < 2

	return s
}

// ComparisonResult pairs two frameworks' summaries on one scenario with the
// significance test and effect size for the headline metrics. Percentage
// differences are relative to the baseline.
type ComparisonResult struct {
	Scenario  string     `json:"scenario"`
	Baseline  RunSummary `json:"baseline"`
	Candidate RunSummary `json:"candidate"`

	Throughput statistics.Comparison `json:"throughput"`
	LatencyP95 statistics.Comparison `json:"latency_p95"`
	MemoryMB   statistics.Comparison `json:"memory_mb"`

	InsufficientData bool `json:"insufficient_data"`
}

// CompareSummaries compares candidate against baseline metric by metric.
func CompareSummaries(baseline, candidate RunSummary) ComparisonResult {
	return ComparisonResult{
		Scenario:         baseline.Scenario,
		Baseline:         baseline,
		Candidate:        candidate,
		Throughput:       statistics.Compare(baseline.Throughput, candidate.Throughput),
		LatencyP95:       statistics.Compare(baseline.LatencyP95, candidate.LatencyP95),
		MemoryMB:         statistics.Compare(baseline.MemoryMB, candidate.MemoryMB),
		InsufficientData: baseline.InsufficientData || candidate.InsufficientData,
	}
}
