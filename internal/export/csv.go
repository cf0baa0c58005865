// Package export writes benchmark results to files: per-run and summary
// CSVs for plotting, and a full JSON document for later analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/statistics"
)

// RunsToCSV writes one row per raw run, failed runs included, so the file
// carries everything the summary was computed from.
func RunsToCSV(runs []benchmark.RawRun, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"RunID", "Framework", "Scenario", "RunIndex", "Failed",
		"TotalTimeSec", "EnqueueTimeSec", "ProcessingTimeSec",
		"ThroughputTPS", "EnqueueRateTPS", "ProcessingRateTPS",
		"LatencyMeanMs", "LatencyP50Ms", "LatencyP95Ms", "LatencyP99Ms",
		"LatencyP999Ms", "LatencyP9999Ms", "LatencyEstimated",
		"CPUPercent", "MemoryMB", "MaxBacklog",
		"TasksCompleted", "TasksFailed", "Error",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, run := range runs {
		row := []string{
			run.ID,
			run.Framework,
			run.Scenario,
			strconv.Itoa(run.RunIndex),
			strconv.FormatBool(run.Failed),
			fmt.Sprintf("%.3f", run.TotalTime.Seconds()),
			fmt.Sprintf("%.3f", run.EnqueueTime.Seconds()),
			fmt.Sprintf("%.3f", run.ProcessingTime.Seconds()),
			fmt.Sprintf("%.2f", run.Throughput),
			fmt.Sprintf("%.2f", run.EnqueueRate),
			fmt.Sprintf("%.2f", run.ProcessingRate),
			fmt.Sprintf("%.2f", run.Latency.Mean),
			fmt.Sprintf("%.2f", run.Latency.P50),
			fmt.Sprintf("%.2f", run.Latency.P95),
			fmt.Sprintf("%.2f", run.Latency.P99),
			fmt.Sprintf("%.2f", run.Latency.P999),
			fmt.Sprintf("%.2f", run.Latency.P9999),
			strconv.FormatBool(run.Latency.Estimated),
			fmt.Sprintf("%.1f", run.CPUPercent),
			fmt.Sprintf("%.1f", run.MemoryMB),
			strconv.Itoa(run.MaxBacklog),
			strconv.Itoa(run.TasksCompleted),
			strconv.Itoa(run.TasksFailed),
			run.Error,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return nil
}

// summaryMetrics orders the metric rows of the summary CSV.
var summaryMetrics = []struct {
	name  string
	stats func(benchmark.RunSummary) statistics.Stats
}{
	{"throughput_tps", func(s benchmark.RunSummary) statistics.Stats { return s.Throughput }},
	{"total_time_sec", func(s benchmark.RunSummary) statistics.Stats { return s.TotalTime }},
	{"latency_p50_ms", func(s benchmark.RunSummary) statistics.Stats { return s.LatencyP50 }},
	{"latency_p95_ms", func(s benchmark.RunSummary) statistics.Stats { return s.LatencyP95 }},
	{"latency_p99_ms", func(s benchmark.RunSummary) statistics.Stats { return s.LatencyP99 }},
	{"cpu_percent", func(s benchmark.RunSummary) statistics.Stats { return s.CPUPercent }},
	{"memory_mb", func(s benchmark.RunSummary) statistics.Stats { return s.MemoryMB }},
}

// SummariesToCSV writes one row per framework and metric, in the shape
// plotting scripts expect: the distribution measures side by side.
func SummariesToCSV(summaries []benchmark.RunSummary, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Framework", "Scenario", "Metric", "Median", "Mean", "StdDev", "Min", "Max", "CV_Percent"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, summary := range summaries {
		for _, metric := range summaryMetrics {
			stats := metric.stats(summary)
			row := []string{
				summary.Framework,
				summary.Scenario,
				metric.name,
				fmt.Sprintf("%.2f", stats.Median),
				fmt.Sprintf("%.2f", stats.Mean),
				fmt.Sprintf("%.2f", stats.StdDev),
				fmt.Sprintf("%.2f", stats.Min),
				fmt.Sprintf("%.2f", stats.Max),
				fmt.Sprintf("%.2f", stats.CV*100),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	return nil
}
