package procgroup

import (
	"os"
	"syscall"
)

// Terminate delivers SIGTERM to p's entire process group. The negative
// PID form addresses the group rather than the single child, so helpers
// the agent spawned are asked to exit too.
func Terminate(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

// Kill delivers SIGKILL to p's entire process group.
func Kill(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, sig)
}
