//go:build unix

package osutil

import (
	"os/exec"
	"syscall"
	"time"
)

// GracefulShutdownDelay is how long a canceled process gets to exit on its own
// before the runtime escalates to a hard kill.
const GracefulShutdownDelay = 5 * time.Second

// SetProcessGroup configures the command to run in its own process group.
// This allows killing the entire process tree on timeout.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SetProcessGroupKill sets up a cancel function that kills the entire process group
// immediately. Must be called after SetProcessGroup and before cmd.Start().
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// SetProcessGroupTerm sets up a cancel function that asks the entire process
// group to exit with SIGTERM, with grace as the wait delay before the runtime
// hard-kills the direct child. Callers that need the whole group gone should
// follow cmd.Wait() with KillProcessGroup to sweep stragglers.
// Must be called after SetProcessGroup and before cmd.Start().
func SetProcessGroupTerm(cmd *exec.Cmd, grace time.Duration) {
	if grace <= 0 {
		grace = GracefulShutdownDelay
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = grace
}

// KillProcessGroup force-kills the process group rooted at pid.
// A missing group is not an error.
func KillProcessGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
