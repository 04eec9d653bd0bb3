//go:build unix

package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const hookOutputTail = 2048

// runHook executes command through /bin/sh with dir as working directory
// and returns its combined output. A done ctx kills the hook's process group.
func runHook(ctx context.Context, dir, command string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	output := tail(out.String(), hookOutputTail)
	if ctx.Err() != nil {
		return output, fmt.Errorf("post-install hook interrupted: %w", ctx.Err())
	}
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("post-install hook failed: %v: %s", err, output)
		}
		return output, fmt.Errorf("post-install hook failed: %w", err)
	}
	return output, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
