// Package scenario defines the workload catalog: the named task mixes the
// harness dispatches identically against each framework.
package scenario

import (
	"fmt"
	"math/rand"
	"strings"
)

// Kind names what a worker does with one task.
type Kind string

const (
	KindNoop  Kind = "noop"  // acknowledge and return
	KindSleep Kind = "sleep" // block for Arg milliseconds
	KindHash  Kind = "hash"  // Arg rounds of sha256
)

// TaskSpec is one planned task: what the worker should do and how hard.
type TaskSpec struct {
	Kind Kind
	Arg  int
}

// Scenario is a named workload. Plan expands it into the n task specs a
// dispatcher enqueues for one run.
type Scenario struct {
	Name        string
	Description string
	TaskCount   int // default per-run task count, overridable per suite
	plan        func(n int) []TaskSpec
}

// Plan returns the workload plan for n tasks.
func (s Scenario) Plan(n int) []TaskSpec { return s.plan(n) }

const (
	ioSleepMillis = 10
	cpuHashRounds = 5000

	// Fixed seed so every mixed run dispatches the same task order and
	// framework comparisons see identical workloads.
	mixedShuffleSeed = 42
)

// Catalog lists every scenario, alphabetically by name.
var Catalog = []Scenario{
	{
		Name:        "cpu-heavy",
		Description: fmt.Sprintf("CPU bound tasks hashing %d rounds", cpuHashRounds),
		TaskCount:   500,
		plan:        uniform(KindHash, cpuHashRounds),
	},
	{
		Name:        "io-heavy",
		Description: fmt.Sprintf("I/O bound tasks sleeping %dms", ioSleepMillis),
		TaskCount:   500,
		plan:        uniform(KindSleep, ioSleepMillis),
	},
	{
		Name:        "latency",
		Description: "round-trip latency under a light no-op load",
		TaskCount:   100,
		plan:        uniform(KindNoop, 0),
	},
	{
		Name:        "mixed",
		Description: "60% I/O, 30% CPU, 10% no-op, shuffled",
		TaskCount:   1000,
		plan:        mixedPlan,
	},
	{
		Name:        "throughput",
		Description: "maximum task rate with no-op tasks",
		TaskCount:   1000,
		plan:        uniform(KindNoop, 0),
	},
}

// Lookup returns the named scenario.
func Lookup(name string) (Scenario, error) {
	for _, s := range Catalog {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario %q (have: %s)",
		name, strings.Join(Names(), ", "))
}

// Names lists the catalog names in order.
func Names() []string {
	names := make([]string, len(Catalog))
	for i, s := range Catalog {
		names[i] = s.Name
	}
	return names
}

func uniform(kind Kind, arg int) func(int) []TaskSpec {
	return func(n int) []TaskSpec {
		specs := make([]TaskSpec, n)
		for i := range specs {
			specs[i] = TaskSpec{Kind: kind, Arg: arg}
		}
		return specs
	}
}

// mixedPlan builds the 60/30/10 mix. Integer rounding leftovers go to the
// I/O share.
func mixedPlan(n int) []TaskSpec {
	cpu := n * 30 / 100
	noop := n * 10 / 100
	io := n - cpu - noop

	specs := make([]TaskSpec, 0, n)
	for i := 0; i < io; i++ {
		specs = append(specs, TaskSpec{Kind: KindSleep, Arg: ioSleepMillis})
	}
	for i := 0; i < cpu; i++ {
		specs = append(specs, TaskSpec{Kind: KindHash, Arg: cpuHashRounds})
	}
	for i := 0; i < noop; i++ {
		specs = append(specs, TaskSpec{Kind: KindNoop})
	}

	rng := rand.New(rand.NewSource(mixedShuffleSeed))
	rng.Shuffle(len(specs), func(i, j int) { specs[i], specs[j] = specs[j], specs[i] })
	return specs
}
