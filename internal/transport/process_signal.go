package transport

import (
	"os/exec"
	"syscall"
	"time"
)

// terminationGracePeriod is how long terminateGracefully waits after SIGTERM before
// escalating to SIGKILL.
const terminationGracePeriod = 3 * time.Second

// terminateGracefully sends SIGTERM to the child and escalates to SIGKILL if exited has not
// flipped to true within the grace period. The actual reaping happens in the transport's own
// waitForExit goroutine (which calls cmd.Wait()); this function only requests the shutdown
// and must never call Wait itself, or it would race the reaper for the same child.
func terminateGracefully(cmd *exec.Cmd, exited func() bool) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(terminationGracePeriod)
	for time.Now().Before(deadline) {
		if exited() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !exited() {
		_ = cmd.Process.Kill()
	}
}
