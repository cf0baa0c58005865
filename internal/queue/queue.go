// Package queue adapts the frameworks' queue backends to the benchmark
// collaborator contracts: task dispatch, aggregate counters, reset.
package queue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/scenario"
)

// Envelope is the minimal task blob pushed onto a backend. Workers decode
// it, run the workload, and bump their framework's counters.
type Envelope struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Arg  int    `json:"arg,omitempty"`
}

// Backend is one framework's queue: spec-level dispatch plus the aggregate
// counters the drain tracker polls.
type Backend interface {
	// Name identifies the backend kind for logs and errors.
	Name() string
	// Enqueue pushes one envelope per spec, returning their handles.
	Enqueue(ctx context.Context, specs []scenario.TaskSpec) ([]benchmark.TaskHandle, error)
	// Counts reads the completed/failed counters.
	Counts(ctx context.Context) (completed, failed int, err error)
	// Reset purges queued tasks and zeroes the counters.
	Reset(ctx context.Context) error
	Close() error
}

// Dispatcher binds a backend to one scenario, giving the run executor its
// fixed-count dispatch surface.
type Dispatcher struct {
	Backend  Backend
	Scenario scenario.Scenario
}

// Enqueue dispatches the scenario's plan for n tasks.
func (d Dispatcher) Enqueue(ctx context.Context, n int) ([]benchmark.TaskHandle, error) {
	return d.Backend.Enqueue(ctx, d.Scenario.Plan(n))
}

// Open builds a backend from its URL. Supported schemes: redis://,
// postgres://, and memory:// (optional ?workers=N).
func Open(rawURL, prefix string) (Backend, error) {
	switch {
	case strings.HasPrefix(rawURL, "redis://"), strings.HasPrefix(rawURL, "rediss://"):
		return NewRedis(rawURL, prefix)
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return NewPostgres(rawURL, prefix)
	case strings.HasPrefix(rawURL, "memory://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse queue URL: %w", err)
		}
		workers := 0
		if raw := u.Query().Get("workers"); raw != "" {
			workers, err = strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("memory queue workers %q: %w", raw, err)
			}
		}
		return NewMemory(workers), nil
	default:
		return nil, fmt.Errorf("unsupported queue URL %q", rawURL)
	}
}

// CheckIsolation verifies two frameworks' backends cannot observe each
// other's tasks or counters. Run before any benchmark touches shared
// infrastructure.
func CheckIsolation(a, b Backend) error {
	if ra, ok := a.(*Redis); ok {
		if rb, ok := b.(*Redis); ok {
			return ra.CheckIsolation(rb)
		}
	}
	if pa, ok := a.(*Postgres); ok {
		if pb, ok := b.(*Postgres); ok {
			return pa.CheckIsolation(pb)
		}
	}
	// Distinct kinds, or in-process backends with private state.
	return nil
}

// buildEnvelopes materializes a workload plan: one envelope and one handle
// per spec, stamped with the dispatch time.
func buildEnvelopes(specs []scenario.TaskSpec) ([]Envelope, []benchmark.TaskHandle) {
	now := time.Now()
	envs := make([]Envelope, len(specs))
	handles := make([]benchmark.TaskHandle, len(specs))
	for i, spec := range specs {
		id := uuid.NewString()
		envs[i] = Envelope{ID: id, Kind: string(spec.Kind), Arg: spec.Arg}
		handles[i] = benchmark.TaskHandle{ID: id, EnqueuedAt: now}
	}
	return envs, handles
}
