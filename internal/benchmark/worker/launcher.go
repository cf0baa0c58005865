package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// Process is one live worker process group as the supervisor sees it.
type Process interface {
	PID() int
	// Exited yields the exit error exactly once, after the process dies.
	Exited() <-chan error
	// Signal delivers sig to the whole process group.
	Signal(sig syscall.Signal) error
	// Kill force-terminates the process group.
	Kill() error
}

// Launcher spawns worker processes for a profile.
type Launcher interface {
	Spawn(ctx context.Context, profile Profile) (Process, error)
}

// ExecLauncher launches workers as OS processes in their own process
// group, so signals reach the framework's forked pool children too.
type ExecLauncher struct{}

func (ExecLauncher) Spawn(ctx context.Context, profile Profile) (Process, error) {
	args := expandArgs(profile)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = profile.WorkDir
	cmd.Env = append(os.Environ(), profile.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var logFile *os.File
	if profile.LogDir != "" {
		if err := os.MkdirAll(profile.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := filepath.Join(profile.LogDir, fmt.Sprintf("worker_%s.log", profile.Framework))
		f, err := os.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create worker log: %w", err)
		}
		cmd.Stdout = f
		cmd.Stderr = f
		logFile = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("spawn %s worker: %w", profile.Framework, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		if logFile != nil {
			logFile.Close()
		}
		p.done <- err
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan error
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Exited() <-chan error {
	return p.done
}

func (p *execProcess) Signal(sig syscall.Signal) error {
	// Negative PID addresses the process group.
	return syscall.Kill(-p.cmd.Process.Pid, sig)
}

func (p *execProcess) Kill() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
}
