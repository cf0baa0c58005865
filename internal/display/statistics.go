package display

import (
	"fmt"
	"strings"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/statistics"
)

// Report renders one scenario's statistical summary: a table per metric,
// then the pairwise comparisons and any reliability warnings.
func Report(scenarioName string, taskCount int, summaries []benchmark.RunSummary, comparisons []benchmark.ComparisonResult, warnings []string) {
	runs := 0
	if len(summaries) > 0 {
		runs = summaries[0].Runs + summaries[0].FailedRuns
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("Scenario %s: Statistical Summary (%d tasks, %d runs per framework)\n",
		scenarioName, taskCount, runs)
	fmt.Println(strings.Repeat("=", 100))

	fmt.Println("\nThroughput (tasks/sec)")
	metricTable(summaries, func(s benchmark.RunSummary) statistics.Stats { return s.Throughput }, "%8.0f")

	fmt.Println("\nTotal Time (sec)")
	metricTable(summaries, func(s benchmark.RunSummary) statistics.Stats { return s.TotalTime }, "%8.2f")

	fmt.Println("\nLatency p50 (ms)")
	metricTable(summaries, func(s benchmark.RunSummary) statistics.Stats { return s.LatencyP50 }, "%8.2f")

	fmt.Println("\nLatency p95 (ms)")
	metricTable(summaries, func(s benchmark.RunSummary) statistics.Stats { return s.LatencyP95 }, "%8.2f")

	fmt.Println("\nLatency p99 (ms)")
	metricTable(summaries, func(s benchmark.RunSummary) statistics.Stats { return s.LatencyP99 }, "%8.2f")

	fmt.Println("\nWorker CPU (%)")
	metricTable(summaries, func(s benchmark.RunSummary) statistics.Stats { return s.CPUPercent }, "%8.1f")

	fmt.Println("\nWorker Memory (MB)")
	metricTable(summaries, func(s benchmark.RunSummary) statistics.Stats { return s.MemoryMB }, "%8.1f")

	for _, s := range summaries {
		if s.LatencyEstimated {
			fmt.Println("\n⚠ Latencies are estimated from the backlog drain profile, not per-task timestamps.")
			break
		}
	}

	Comparisons(comparisons)
	Warnings(warnings)
}

func metricTable(summaries []benchmark.RunSummary, metric func(benchmark.RunSummary) statistics.Stats, format string) {
	fmt.Println("┌─────────────┬──────────┬──────────┬──────────┬──────────┬──────────┬───────┐")
	fmt.Println("│ Framework   │ Median   │ Mean     │ StdDev   │ Min      │ Max      │ CV %  │")
	fmt.Println("├─────────────┼──────────┼──────────┼──────────┼──────────┼──────────┼───────┤")

	for _, s := range summaries {
		stats := metric(s)

		fmt.Printf("│ %-11s │ "+format+" │ "+format+" │ "+format+" │ "+format+" │ "+format+" │ %5.1f │\n",
			strings.ToUpper(s.Framework),
			stats.Median,
			stats.Mean,
			stats.StdDev,
			stats.Min,
			stats.Max,
			stats.CV*100,
		)
	}

	fmt.Println("└─────────────┴──────────┴──────────┴──────────┴──────────┴──────────┴───────┘")
}

// Comparisons prints one significance table per framework pair.
func Comparisons(comparisons []benchmark.ComparisonResult) {
	for _, comp := range comparisons {
		fmt.Printf("\nStatistical Comparison (%s vs %s):\n",
			strings.ToUpper(comp.Baseline.Framework), strings.ToUpper(comp.Candidate.Framework))

		if comp.InsufficientData {
			fmt.Println("⚠ Fewer than two successful runs on one side; treat this comparison as indicative only.")
		}

		fmt.Println("┌──────────────┬─────────────┬──────────┬───────────┬──────────────────┬───────────────┐")
		fmt.Println("│ Metric       │ Mean Diff   │ p-value  │ Overlap?  │ Effect Size      │ Significant?  │")
		fmt.Println("├──────────────┼─────────────┼──────────┼───────────┼──────────────────┼───────────────┤")

		comparisonRow("Throughput", comp.Throughput)
		comparisonRow("Latency p95", comp.LatencyP95)
		comparisonRow("Memory", comp.MemoryMB)

		fmt.Println("└──────────────┴─────────────┴──────────┴───────────┴──────────────────┴───────────────┘")
	}
}

func comparisonRow(label string, c statistics.Comparison) {
	overlap := "No"
	if c.HasOverlap {
		overlap = "Yes"
	}

	fmt.Printf("│ %-12s │ %+10.1f%% │ %8.4f │ %-9s │ %-16s │ %-13s │\n",
		label,
		c.MeanDiffPct,
		c.TTest.PValue,
		overlap,
		fmt.Sprintf("%s (d=%.2f)", c.Effect.Label, c.Effect.D),
		significanceMarker(c),
	)
}

func significanceMarker(c statistics.Comparison) string {
	switch {
	case c.TTest.Insufficient:
		return "n/a"
	case !c.TTest.Significant:
		return "n.s."
	case c.TTest.PValue < 0.001:
		return "*** (p<0.001)"
	case c.TTest.PValue < 0.01:
		return "** (p<0.01)"
	default:
		return "* (p<0.05)"
	}
}

// Warnings prints reliability warnings, one marker line each.
func Warnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Println()
	for _, w := range warnings {
		fmt.Printf("⚠ %s\n", w)
	}
}
