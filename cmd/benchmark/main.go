package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark/worker"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/config"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/display"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/export"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/queue"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/runner"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

func main() {
	configPath := flag.String("config", "", "Suite config file (YAML); omit for the built-in memory-backend demo suite")
	scenarios := flag.String("scenario", "", "Comma-separated scenario names, overriding the suite config")
	frameworks := flag.String("frameworks", "", "Comma-separated subset of the suite's frameworks to run")
	runs := flag.Int("runs", 0, "Measured runs per framework and scenario (overrides the suite config)")
	tasks := flag.Int("tasks", 0, "Tasks per run (overrides scenario defaults and suite overrides)")
	warmup := flag.Int("warmup", 0, "Warm-up tasks per run (-1 disables, 0 auto-sizes)")
	output := flag.String("output", "", "Output directory for CSV/JSON results (overrides the suite config)")
	list := flag.Bool("list", false, "List the scenario catalog and exit")
	selftest := flag.Bool("selftest", false, "Run a quick suite on the in-process backend and exit")
	strict := flag.Bool("strict", false, "Exit nonzero when any batch is flagged unreliable")
	flag.Parse()

	if *list {
		display.Catalog(scenario.Catalog)
		return
	}

	suite, err := loadSuite(*configPath, *selftest)
	if err != nil {
		log.Fatalf("Failed to load suite: %v", err)
	}
	applyOverrides(suite, *scenarios, *runs, *warmup, *output)

	selected, err := selectFrameworks(suite, *frameworks)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("AsyncTasQ vs Celery - Task Queue Benchmark")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Frameworks:  %s\n", strings.Join(frameworkNames(selected), ", "))
	fmt.Printf("Scenarios:   %s\n", strings.Join(suite.Scenarios, ", "))
	fmt.Printf("Runs:        %d\n", suite.Runs)
	fmt.Printf("Output:      %s\n", suite.OutputDir)

	contenders, cleanup, err := buildContenders(suite, selected)
	if err != nil {
		log.Fatalf("Failed to open queue backends: %v", err)
	}
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	supervisor := worker.NewSupervisor(worker.ExecLauncher{}, logger)
	defer func() {
		if err := supervisor.Stop(); err != nil {
			fmt.Printf("⚠ stopping workers: %v\n", err)
		}
	}()

	var batches []*runner.BatchResult
	for _, name := range suite.Scenarios {
		sc, err := scenario.Lookup(name)
		if err != nil {
			log.Fatalf("%v", err)
		}

		taskCount := *tasks
		if taskCount <= 0 {
			taskCount = suite.TaskCount(name)
		}

		r := runner.New(supervisor, runner.Options{
			Runs:             suite.Runs,
			TaskCount:        taskCount,
			WarmupTasks:      suite.WarmupTasks,
			Timeout:          suite.Timeout.Std(),
			PollInterval:     suite.PollInterval.Std(),
			SampleInterval:   suite.SampleInterval.Std(),
			FailureRateLimit: suite.FailureRateLimit,
		})

		batch, err := r.RunScenario(ctx, sc, contenders)
		if err != nil {
			log.Fatalf("Scenario %s: %v", name, err)
		}
		batches = append(batches, batch)
		report(batch)

		if ctx.Err() != nil {
			fmt.Println("\n⚠ Interrupted, exporting what finished so far")
			break
		}
	}

	if err := exportResults(suite.OutputDir, batches); err != nil {
		log.Fatalf("Failed to export results: %v", err)
	}
	fmt.Printf("\n✓ Results written to %s\n", suite.OutputDir)

	if *strict {
		for _, batch := range batches {
			if batch.Unreliable {
				fmt.Printf("✗ Scenario %s is flagged unreliable\n", batch.Scenario)
				os.Exit(1)
			}
		}
	}
}

func loadSuite(path string, selftest bool) (*config.Suite, error) {
	switch {
	case selftest:
		return config.SelfTest(), nil
	case path != "":
		return config.Load(path)
	default:
		return config.Default(), nil
	}
}

func applyOverrides(suite *config.Suite, scenarios string, runs, warmup int, output string) {
	if scenarios != "" {
		suite.Scenarios = splitList(scenarios)
	}
	if runs > 0 {
		suite.Runs = runs
	}
	if warmup != 0 {
		suite.WarmupTasks = warmup
	}
	if output != "" {
		suite.OutputDir = output
	}
}

func selectFrameworks(suite *config.Suite, filter string) ([]config.Framework, error) {
	if filter == "" {
		return suite.Frameworks, nil
	}

	byName := make(map[string]config.Framework, len(suite.Frameworks))
	for _, fw := range suite.Frameworks {
		byName[fw.Name] = fw
	}

	var selected []config.Framework
	for _, name := range splitList(filter) {
		fw, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown framework %q (suite has: %s)",
				name, strings.Join(frameworkNames(suite.Frameworks), ", "))
		}
		selected = append(selected, fw)
	}
	return selected, nil
}

// buildContenders opens one queue backend per framework and derives the
// worker profile when the suite declares external workers.
func buildContenders(suite *config.Suite, selected []config.Framework) ([]runner.Framework, func(), error) {
	var contenders []runner.Framework
	var backends []queue.Backend
	cleanup := func() {
		for _, b := range backends {
			b.Close()
		}
	}

	for _, fw := range selected {
		backend, err := queue.Open(fw.QueueURL, fw.KeyPrefix)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("framework %s: %w", fw.Name, err)
		}
		backends = append(backends, backend)

		contender := runner.Framework{Name: fw.Name, Backend: backend}
		if fw.Worker != nil {
			contender.WorkerCount = fw.Worker.Concurrency
			contender.Workers = &worker.Profile{
				Framework:    fw.Name,
				Command:      fw.Worker.Command,
				Pool:         worker.PoolKind(fw.Worker.Pool),
				Concurrency:  fw.Worker.Concurrency,
				Env:          fw.Worker.Env,
				WorkDir:      fw.Worker.WorkDir,
				LogDir:       suite.LogDir,
				ReadyTimeout: fw.Worker.ReadyTimeout.Std(),
				// Ready once the framework's counters answer.
				ReadyCheck: func(ctx context.Context) error {
					_, _, err := backend.Counts(ctx)
					return err
				},
			}
		}
		contenders = append(contenders, contender)
	}
	return contenders, cleanup, nil
}

func report(batch *runner.BatchResult) {
	summaries := make([]benchmark.RunSummary, 0, len(batch.Frameworks))
	for _, fw := range batch.Frameworks {
		display.Runs(fw.Framework, fw.Runs)
		summaries = append(summaries, fw.Summary)
	}
	display.Report(batch.Scenario, batch.TaskCount, summaries, batch.Comparisons, batch.Warnings)
}

func exportResults(dir string, batches []*runner.BatchResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := export.NewDocument(batches).ToJSON(filepath.Join(dir, "results.json")); err != nil {
		return err
	}

	var runs []benchmark.RawRun
	var summaries []benchmark.RunSummary
	for _, batch := range batches {
		for _, fw := range batch.Frameworks {
			runs = append(runs, fw.Runs...)
			summaries = append(summaries, fw.Summary)
		}
	}

	if err := export.RunsToCSV(runs, filepath.Join(dir, "runs.csv")); err != nil {
		return err
	}
	return export.SummariesToCSV(summaries, filepath.Join(dir, "summary.csv"))
}

func frameworkNames(frameworks []config.Framework) []string {
	names := make([]string, len(frameworks))
	for i, fw := range frameworks {
		names[i] = fw.Name
	}
	return names
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
