// Package proc reads CPU and memory of a single OS process. It backs the
// resource sampler with gopsutil so the same code path serves the harness
// process and supervised workers alike.
package proc

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// Metrics observes one process. It keeps the CPU accounting window between
// calls, so the first CPUPercent reading of a fresh Metrics is an artifact
// the caller must discard.
type Metrics struct {
	proc *process.Process
}

// Self observes the current process.
func Self() (*Metrics, error) {
	return ForPID(int32(os.Getpid()))
}

// ForPID observes an arbitrary live process.
func ForPID(pid int32) (*Metrics, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	return &Metrics{proc: p}, nil
}

// CPUPercent reports CPU usage over the window since the previous call.
func (m *Metrics) CPUPercent() (float64, error) {
	return m.proc.Percent(0)
}

// MemoryRSSMB reports the resident set size in megabytes.
func (m *Metrics) MemoryRSSMB() (float64, error) {
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / (1024 * 1024), nil
}
