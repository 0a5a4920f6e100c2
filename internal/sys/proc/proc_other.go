//go:build !unix

package proc

import (
	"os"
	"os/exec"
)

// Prepare is a no-op where process groups are unavailable.
func Prepare(cmd *exec.Cmd) {}

// Interrupt kills p; there is no graceful signal to send on this platform.
func Interrupt(p *os.Process) error {
	return p.Kill()
}

// Kill kills p.
func Kill(p *os.Process) error {
	return p.Kill()
}
