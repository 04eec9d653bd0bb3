//go:build unix

package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a handle on a spawned child offering non-blocking poll and
// signal delivery. Dropping the handle does not affect the child.
type Process struct {
	pid  int
	proc *os.Process

	mu       sync.Mutex
	exited   bool
	exitCode int
}

// start launches cmd detached from the daemon's process group
func start(cmd *exec.Cmd) (*Process, error) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Process{pid: cmd.Process.Pid, proc: cmd.Process}, nil
}

// PID returns the OS process identifier
func (p *Process) PID() int {
	return p.pid
}

// Poll reports whether the child is still running. Once the child has
// exited it is reaped and its exit code kept; signal deaths are reported
// as the negated signal number.
func (p *Process) Poll() (alive bool, exitCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pollLocked()
}

func (p *Process) pollLocked() (bool, int) {
	if p.exited {
		return false, p.exitCode
	}

	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		switch {
		case err != nil:
			// ECHILD: reaped elsewhere, nothing left to observe
			p.markExited(-1)
		case wpid == 0:
			return true, 0
		case ws.Signaled():
			p.markExited(-int(ws.Signal()))
		default:
			p.markExited(ws.ExitStatus())
		}
		return false, p.exitCode
	}
}

func (p *Process) markExited(code int) {
	p.exited = true
	p.exitCode = code
	_ = p.proc.Release()
}

// Signal delivers sig to the child. Signalling an exited child is a no-op.
func (p *Process) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if alive, _ := p.pollLocked(); !alive {
		return nil
	}
	if err := p.proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal pid %d: %w", p.pid, err)
	}
	return nil
}

// ParseSignal maps names like "TERM", "SIGINT" or "9" to a signal
func ParseSignal(name string) (syscall.Signal, error) {
	if name == "" {
		return syscall.SIGTERM, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	if sig := unix.SignalNum(upper); sig != 0 {
		return sig, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(name)); err == nil && n > 0 {
		return syscall.Signal(n), nil
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}
