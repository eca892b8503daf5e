//go:build linux

// Package procgroup places spawned agent processes in their own process
// group so the whole tree can be signalled at teardown, and arranges for
// the children to die with the parent.
package procgroup

import (
	"os/exec"
	"syscall"
)

// Configure sets the spawn attributes on cmd before it is started. On
// Linux the child additionally receives SIGTERM if this process dies
// without running its own teardown (OOM kill, SIGKILL).
func Configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
