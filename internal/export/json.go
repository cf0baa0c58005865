package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/runner"
)

// Document is the complete result file of one harness invocation.
type Document struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Scenarios   []ScenarioResult `json:"scenarios"`
}

// ScenarioResult flattens one batch into its serializable parts.
type ScenarioResult struct {
	Scenario    string                       `json:"scenario"`
	TaskCount   int                          `json:"task_count"`
	Unreliable  bool                         `json:"unreliable"`
	Warnings    []string                     `json:"warnings,omitempty"`
	Errors      []string                     `json:"errors,omitempty"`
	Summaries   []benchmark.RunSummary       `json:"summaries"`
	Comparisons []benchmark.ComparisonResult `json:"comparisons,omitempty"`
	Runs        []benchmark.RawRun           `json:"runs"`
}

// NewDocument assembles the export document from finished batches.
func NewDocument(batches []*runner.BatchResult) Document {
	doc := Document{GeneratedAt: time.Now()}
	for _, batch := range batches {
		sr := ScenarioResult{
			Scenario:    batch.Scenario,
			TaskCount:   batch.TaskCount,
			Unreliable:  batch.Unreliable,
			Warnings:    batch.Warnings,
			Comparisons: batch.Comparisons,
		}
		for _, fw := range batch.Frameworks {
			sr.Summaries = append(sr.Summaries, fw.Summary)
			sr.Runs = append(sr.Runs, fw.Runs...)
			for _, err := range fw.Errors {
				sr.Errors = append(sr.Errors, err.Error())
			}
		}
		doc.Scenarios = append(doc.Scenarios, sr)
	}
	return doc
}

// ToJSON writes the document, indented so it diffs and reads well.
func (d Document) ToJSON(outputPath string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write results file: %w", err)
	}
	return nil
}
