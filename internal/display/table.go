package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

// Catalog lists the scenario catalog, for the -list flag.
func Catalog(scenarios []scenario.Scenario) {
	fmt.Println("Available scenarios")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("%-14s%-8s%s\n", "Name", "Tasks", "Description")
	fmt.Println(strings.Repeat("-", 70))
	for _, s := range scenarios {
		fmt.Printf("%-14s%-8d%s\n", s.Name, s.TaskCount, s.Description)
	}
}

// Runs prints the per-run detail table of one framework, failed runs marked.
func Runs(framework string, runs []benchmark.RawRun) {
	if len(runs) == 0 {
		return
	}

	fmt.Println()
	fmt.Printf("RUNS - %s\n", strings.ToUpper(framework))
	fmt.Println(strings.Repeat("=", 96))
	fmt.Printf("%-5s %-9s %10s %12s %10s %8s %9s %9s\n",
		"Run", "Status", "Total", "Throughput", "p95", "CPU %", "Mem MB", "Backlog")
	fmt.Println(strings.Repeat("-", 96))

	for _, run := range runs {
		if run.Failed {
			fmt.Printf("%-5d %-9s %s\n", run.RunIndex+1, "failed", run.Error)
			continue
		}

		p95 := fmt.Sprintf("%.1fms", run.Latency.P95)
		if run.Latency.Estimated {
			p95 += "*"
		}
		fmt.Printf("%-5d %-9s %10s %12s %10s %8.1f %9.1f %9d\n",
			run.RunIndex+1,
			"ok",
			run.TotalTime.Round(time.Millisecond),
			fmt.Sprintf("%.0f t/s", run.Throughput),
			p95,
			run.CPUPercent,
			run.MemoryMB,
			run.MaxBacklog,
		)
	}

	for _, run := range runs {
		if run.Latency.Estimated {
			fmt.Println("* latency estimated from the drain profile")
			break
		}
	}
}
