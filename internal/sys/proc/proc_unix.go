//go:build unix

package proc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Prepare places cmd in its own process group so the whole group can be
// signalled. Call it before cmd.Start.
func Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// SignalGroup sends sig to the process group led by pid.
func SignalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return errors.New("invalid pid")
	}
	return unix.Kill(-pid, sig)
}

// Interrupt sends SIGTERM to p's process group, or to p alone when it does not
// lead a group.
func Interrupt(p *os.Process) error {
	if err := SignalGroup(p.Pid, unix.SIGTERM); err == nil {
		return nil
	}
	return p.Signal(unix.SIGTERM)
}

// Kill sends SIGKILL to p's process group, falling back to p alone.
func Kill(p *os.Process) error {
	if err := SignalGroup(p.Pid, unix.SIGKILL); err == nil {
		return nil
	}
	return p.Kill()
}
