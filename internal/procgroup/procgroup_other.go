//go:build !linux

// Package procgroup places spawned agent processes in their own process
// group so the whole tree can be signalled at teardown.
package procgroup

import (
	"os/exec"
	"syscall"
)

// Configure sets the spawn attributes on cmd before it is started.
// Pdeathsig does not exist off Linux; the process group alone still lets
// teardown reach grandchildren.
func Configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
