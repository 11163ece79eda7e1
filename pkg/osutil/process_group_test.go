//go:build unix

package osutil

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetProcessGroup(t *testing.T) {
	cmd := exec.Command("echo", "test")
	SetProcessGroup(cmd)

	require.NotNil(t, cmd.SysProcAttr)
	assert.True(t, cmd.SysProcAttr.Setpgid, "Setpgid should be true")
}

func TestSetProcessGroupTerm_GracefulShutdown(t *testing.T) {
	// A process that handles SIGTERM exits cleanly before the wait delay.
	script := `trap 'exit 0' TERM; while true; do sleep 0.1; done`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", script)
	SetProcessGroup(cmd)
	SetProcessGroupTerm(cmd, 3*time.Second)

	require.NoError(t, cmd.Start())

	// Give the process time to set up its trap handler
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	cancel()

	err := cmd.Wait()
	elapsed := time.Since(start)

	assert.Error(t, err, "wait reports the cancellation")
	assert.Less(t, elapsed, 2*time.Second, "SIGTERM handler should beat the wait delay")
}

func TestSetProcessGroupTerm_EscalatesToKill(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test in short mode (waits out the grace period)")
	}

	// A process that ignores SIGTERM gets hard-killed after the wait delay.
	script := `trap '' TERM; while true; do sleep 0.1; done`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", script)
	SetProcessGroup(cmd)
	SetProcessGroupTerm(cmd, 1*time.Second)

	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, syscall.Kill(pid, 0), "process should be running")

	start := time.Now()
	cancel()
	_ = cmd.Wait()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond, "should have waited out the grace period")
	assertProcessGone(t, pid)
}

func TestSetProcessGroupKill_KillsEntireProcessGroup(t *testing.T) {
	// The child ignores SIGTERM too; only a group-wide SIGKILL reaps both.
	script := `
		(trap '' TERM; while true; do sleep 0.1; done) &
		echo "CHILD:$!"
		trap '' TERM
		while true; do sleep 0.1; done
	`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", script)
	SetProcessGroup(cmd)
	SetProcessGroupKill(cmd)

	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	parentPid := cmd.Process.Pid

	buf := make([]byte, 100)
	n, err := stdout.Read(buf)
	require.NoError(t, err)
	childPid := parseChildPid(t, string(buf[:n]))

	require.NoError(t, syscall.Kill(childPid, 0), "child should be running")

	cancel()
	_ = cmd.Wait()

	assertProcessGone(t, parentPid)
	assertProcessGone(t, childPid)
}

func TestKillProcessGroup(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	SetProcessGroup(cmd)
	require.NoError(t, cmd.Start())

	pid := cmd.Process.Pid

	require.NoError(t, KillProcessGroup(pid))
	_ = cmd.Wait()
	assertProcessGone(t, pid)

	// Repeated kills of a dead group are not errors.
	assert.NoError(t, KillProcessGroup(pid))
}

func parseChildPid(t *testing.T, out string) int {
	t.Helper()
	line := strings.TrimSpace(out)
	rest, ok := strings.CutPrefix(line, "CHILD:")
	require.True(t, ok, "expected CHILD:<pid> line, got %q", line)
	pid, err := strconv.Atoi(strings.TrimSpace(rest))
	require.NoError(t, err)
	return pid
}

func assertProcessGone(t *testing.T, pid int) {
	t.Helper()
	// Zombies linger until reaped; poll briefly before declaring failure.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); err != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("process %d still alive", pid)
}
