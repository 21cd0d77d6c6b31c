package localcheck

import (
	"os/exec"
	"syscall"
	"time"
)

// killGracePeriod bounds how long Wait may block on inherited pipes once
// the process group has been killed.
const killGracePeriod = 500 * time.Millisecond

// killProcessGroup runs cmd in its own process group and makes context
// cancellation kill the whole group, so shells, npx wrappers and test
// workers die with the command instead of holding its output pipe open.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// A negative pid signals every process in the group.
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = killGracePeriod
}
