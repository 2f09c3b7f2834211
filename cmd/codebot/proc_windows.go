//go:build windows

package main

import (
	"os/exec"
)

func configureServerProc(cmd *exec.Cmd) {
	// Windows doesn't use Setsid. Started processes are independent enough
	// for this use case.
}
