//go:build unix

package encode

import (
	"os/exec"
	"syscall"
)

// detach moves the encoder into its own process group so a terminal
// interrupt reaches only this process, which lets encodes in flight finish.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
