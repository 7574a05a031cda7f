//go:build !unix

package encode

import "os/exec"

func detach(cmd *exec.Cmd) {}
