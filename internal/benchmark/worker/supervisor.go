// Package worker supervises the external worker processes of the framework
// under test: spawn, readiness, liveness, and graceful teardown with a
// force-kill fallback.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/adamrefaey/asynctasq-benchmark-celery/internal/benchmark"
)

const (
	defaultStopGrace  = 5 * time.Second
	defaultStartGrace = 3 * time.Second
	defaultReadyPoll  = 500 * time.Millisecond
)

// workerProc pairs a process with its observed exit state. exitErr is
// written before exited closes, so readers must wait on exited first.
type workerProc struct {
	proc    Process
	exitErr error
	exited  chan struct{}
}

func watch(proc Process) *workerProc {
	w := &workerProc{proc: proc, exited: make(chan struct{})}
	go func() {
		w.exitErr = <-proc.Exited()
		close(w.exited)
	}()
	return w
}

func (w *workerProc) alive() bool {
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

// WorkerSet is the running worker group of one profile.
type WorkerSet struct {
	Profile Profile
	worker  *workerProc
	started time.Time
}

// Alive reports whether the worker process is still running.
func (s *WorkerSet) Alive() bool {
	return s.worker.alive()
}

// PID returns the worker's process ID, for resource sampling.
func (s *WorkerSet) PID() int {
	return s.worker.proc.PID()
}

// Supervisor starts and stops one framework's workers at a time.
type Supervisor struct {
	launcher Launcher
	logger   *slog.Logger

	// timing knobs, shrunk in tests
	stopGrace  time.Duration
	startGrace time.Duration
	readyPoll  time.Duration

	mu      sync.Mutex
	current *WorkerSet
}

// NewSupervisor builds a supervisor spawning through launcher.
func NewSupervisor(launcher Launcher, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		launcher:   launcher,
		logger:     logger,
		stopGrace:  defaultStopGrace,
		startGrace: defaultStartGrace,
		readyPoll:  defaultReadyPoll,
	}
}

// Start launches workers for profile and blocks until they are ready or
// the readiness timeout passes. Starting an already-running profile is a
// no-op returning the existing set.
func (s *Supervisor) Start(ctx context.Context, profile Profile) (*WorkerSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.Alive() {
		if s.current.Profile.Framework == profile.Framework {
			return s.current, nil
		}
		return nil, fmt.Errorf("%s workers still running, stop them before starting %s",
			s.current.Profile.Framework, profile.Framework)
	}

	profile = profile.withDefaults()
	if err := profile.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", benchmark.ErrStartupFailure, err)
	}

	logger := s.logger.With(slog.String("framework", profile.Framework))
	logger.Info("starting workers",
		slog.String("pool", string(profile.Pool)),
		slog.Int("concurrency", profile.Concurrency))

	proc, err := s.launcher.Spawn(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", benchmark.ErrStartupFailure, err)
	}

	set := &WorkerSet{Profile: profile, worker: watch(proc), started: time.Now()}
	if err := s.awaitReady(ctx, set, logger); err != nil {
		s.terminate(set, logger)
		return nil, err
	}

	s.current = set
	logger.Info("workers ready",
		slog.Int("pid", set.PID()),
		slog.Duration("took", time.Since(set.started)))
	return set, nil
}

// awaitReady polls the profile's readiness check until it passes, the
// worker dies, or the deadline expires.
func (s *Supervisor) awaitReady(ctx context.Context, set *WorkerSet, logger *slog.Logger) error {
	profile := set.Profile
	deadline := time.NewTimer(profile.ReadyTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(s.readyPoll)
	defer ticker.Stop()

	grace := time.Now().Add(s.startGrace)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", benchmark.ErrStartupFailure, ctx.Err())
		case <-set.worker.exited:
			return fmt.Errorf("%w: worker exited during startup: %v",
				benchmark.ErrStartupFailure, set.worker.exitErr)
		case <-deadline.C:
			return fmt.Errorf("%w after %s", benchmark.ErrNeverReady, profile.ReadyTimeout)
		case <-ticker.C:
			if profile.ReadyCheck == nil {
				// No probe: surviving the grace period is the signal.
				if time.Now().After(grace) {
					return nil
				}
				continue
			}
			err := profile.ReadyCheck(ctx)
			if err == nil {
				return nil
			}
			logger.Debug("not ready yet", slog.String("reason", err.Error()))
		}
	}
}

// Stop terminates the running workers: SIGTERM to the group, bounded wait,
// SIGKILL fallback. Stopping an idle supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	logger := s.logger.With(slog.String("framework", s.current.Profile.Framework))
	err := s.terminate(s.current, logger)
	s.current = nil
	return err
}

func (s *Supervisor) terminate(set *WorkerSet, logger *slog.Logger) error {
	w := set.worker
	if !w.alive() {
		return nil
	}

	logger.Info("stopping workers", slog.Int("pid", set.PID()))
	if err := w.proc.Signal(syscall.SIGTERM); err != nil {
		logger.Warn("sigterm failed", slog.String("error", err.Error()))
	}

	select {
	case <-w.exited:
		logger.Info("workers stopped")
		return nil
	case <-time.After(s.stopGrace):
	}

	logger.Warn("workers ignored SIGTERM, force killing")
	if err := w.proc.Kill(); err != nil {
		return fmt.Errorf("force kill: %w", err)
	}
	<-w.exited
	return nil
}

// Liveness returns a check for the run executor: nil while the workers
// run, a crash error once they are gone.
func (s *Supervisor) Liveness() func() error {
	return func() error {
		s.mu.Lock()
		var w *workerProc
		if s.current != nil {
			w = s.current.worker
		}
		s.mu.Unlock()

		if w == nil {
			return fmt.Errorf("%w: no workers running", benchmark.ErrWorkerCrashed)
		}
		select {
		case <-w.exited:
			if w.exitErr != nil {
				return fmt.Errorf("%w: %v", benchmark.ErrWorkerCrashed, w.exitErr)
			}
			return fmt.Errorf("%w: worker exited", benchmark.ErrWorkerCrashed)
		default:
			return nil
		}
	}
}

// PID returns the running worker's process ID, 0 when none runs. The batch
// runner points the resource sampler here when workers are supervised.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !s.current.Alive() {
		return 0
	}
	return s.current.PID()
}
