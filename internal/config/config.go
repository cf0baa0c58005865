// Package config loads the benchmark suite description: which frameworks
// compete, which scenarios run, and the knobs every run shares.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts human-readable YAML scalars ("90s", "500ms") as well as
// bare numbers, which are read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" || value.Tag == "!!float" {
		secs, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return fmt.Errorf("duration %q: %w", value.Value, err)
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Worker declares how a framework's worker processes are launched. A nil
// Worker on a framework means its backend processes tasks in-process.
type Worker struct {
	Command      []string `yaml:"command"`
	Pool         string   `yaml:"pool"` // process | thread | solo
	Concurrency  int      `yaml:"concurrency"`
	Env          []string `yaml:"env"`
	WorkDir      string   `yaml:"work_dir"`
	ReadyTimeout Duration `yaml:"ready_timeout"`
}

// Framework names one contender and where its queue lives.
type Framework struct {
	Name      string  `yaml:"name"`
	QueueURL  string  `yaml:"queue_url"`
	KeyPrefix string  `yaml:"key_prefix"`
	Worker    *Worker `yaml:"worker,omitempty"`
}

// Suite is the whole benchmark invocation.
type Suite struct {
	Frameworks []Framework `yaml:"frameworks"`
	Scenarios  []string    `yaml:"scenarios"`

	Runs        int            `yaml:"runs"`
	TaskCounts  map[string]int `yaml:"task_counts"` // per-scenario override
	WarmupTasks int            `yaml:"warmup_tasks"`

	Timeout        Duration `yaml:"timeout"`
	PollInterval   Duration `yaml:"poll_interval"`
	SampleInterval Duration `yaml:"sample_interval"`

	OutputDir        string  `yaml:"output_dir"`
	LogDir           string  `yaml:"log_dir"`
	FailureRateLimit float64 `yaml:"failure_rate_limit"`
}

// Load reads a suite file and fills in the defaults.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite config: %w", err)
	}
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parse suite config: %w", err)
	}
	suite.applyDefaults()
	if err := suite.Validate(); err != nil {
		return nil, err
	}
	return &suite, nil
}

func (s *Suite) applyDefaults() {
	if s.Runs == 0 {
		s.Runs = 10
	}
	if len(s.Scenarios) == 0 {
		s.Scenarios = []string{"throughput"}
	}
	if s.OutputDir == "" {
		s.OutputDir = "results"
	}
	if s.LogDir == "" {
		s.LogDir = "logs"
	}
	if s.FailureRateLimit == 0 {
		s.FailureRateLimit = 0.2
	}
	for i := range s.Frameworks {
		fw := &s.Frameworks[i]
		if fw.KeyPrefix == "" {
			fw.KeyPrefix = fw.Name
		}
		if fw.Worker != nil && fw.Worker.Concurrency == 0 {
			fw.Worker.Concurrency = 4
		}
	}
}

// Validate rejects suites the runner could not execute.
func (s *Suite) Validate() error {
	if len(s.Frameworks) == 0 {
		return fmt.Errorf("suite config: no frameworks declared")
	}
	seen := make(map[string]bool, len(s.Frameworks))
	for _, fw := range s.Frameworks {
		if fw.Name == "" {
			return fmt.Errorf("suite config: framework without a name")
		}
		if seen[fw.Name] {
			return fmt.Errorf("suite config: framework %q declared twice", fw.Name)
		}
		seen[fw.Name] = true
		if fw.QueueURL == "" {
			return fmt.Errorf("suite config: framework %s has no queue_url", fw.Name)
		}
		if fw.Worker != nil && len(fw.Worker.Command) == 0 {
			return fmt.Errorf("suite config: framework %s declares a worker without a command", fw.Name)
		}
	}
	if s.Runs < 1 {
		return fmt.Errorf("suite config: runs must be at least 1, got %d", s.Runs)
	}
	if s.WarmupTasks < -1 {
		return fmt.Errorf("suite config: warmup_tasks must be -1 (off), 0 (auto) or positive")
	}
	if s.FailureRateLimit < 0 || s.FailureRateLimit > 1 {
		return fmt.Errorf("suite config: failure_rate_limit must be within [0, 1]")
	}
	return nil
}

// Default is a demo suite on in-process backends, so the binary produces a
// full comparison without any external infrastructure.
func Default() *Suite {
	s := &Suite{
		Frameworks: []Framework{
			{Name: "asynctasq", QueueURL: "memory://?workers=8"},
			{Name: "celery", QueueURL: "memory://?workers=8"},
		},
		Scenarios: []string{"throughput", "mixed"},
	}
	s.applyDefaults()
	return s
}

// SelfTest is a shrunken Default for smoke-testing the harness itself.
func SelfTest() *Suite {
	s := Default()
	s.Scenarios = []string{"throughput"}
	s.Runs = 3
	s.TaskCounts = map[string]int{"throughput": 500}
	s.Timeout = Duration(60 * time.Second)
	return s
}

// TaskCount returns the per-scenario override, 0 when none is set.
func (s *Suite) TaskCount(scenarioName string) int {
	return s.TaskCounts[scenarioName]
}
