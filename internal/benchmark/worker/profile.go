package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PoolKind names the concurrency model the framework's workers run with.
type PoolKind string

const (
	PoolProcess PoolKind = "process" // prefork pool of worker processes
	PoolThread  PoolKind = "thread"  // thread pool inside one process
	PoolSolo    PoolKind = "solo"    // single process, single consumer
)

const (
	defaultReadyTimeout = 30 * time.Second
	defaultConcurrency  = 1
)

// Profile declares how one framework's workers are launched. The command
// line may carry {concurrency} and {pool} placeholders, expanded at spawn
// time, so one profile template serves differently sized runs.
type Profile struct {
	Framework   string
	Command     []string
	Pool        PoolKind
	Concurrency int
	Env         []string // extra KEY=VALUE pairs on top of the parent env
	WorkDir     string
	LogDir      string // when set, worker output lands in worker_<framework>.log

	ReadyTimeout time.Duration
	// ReadyCheck reports nil once the worker can consume tasks. It is
	// polled until ReadyTimeout. Without one, the worker counts as ready
	// when it survives the startup grace period.
	ReadyCheck func(ctx context.Context) error
}

func (p Profile) withDefaults() Profile {
	if p.Concurrency <= 0 {
		p.Concurrency = defaultConcurrency
	}
	if p.Pool == "" {
		p.Pool = PoolProcess
	}
	if p.ReadyTimeout <= 0 {
		p.ReadyTimeout = defaultReadyTimeout
	}
	return p
}

func (p Profile) validate() error {
	if p.Framework == "" {
		return fmt.Errorf("profile needs a framework name")
	}
	if len(p.Command) == 0 {
		return fmt.Errorf("profile %s: empty worker command", p.Framework)
	}
	return nil
}

// expandArgs substitutes the placeholder tokens in the profile's command.
func expandArgs(p Profile) []string {
	repl := strings.NewReplacer(
		"{concurrency}", strconv.Itoa(p.Concurrency),
		"{pool}", string(p.Pool),
	)
	args := make([]string, len(p.Command))
	for i, a := range p.Command {
		args[i] = repl.Replace(a)
	}
	return args
}
