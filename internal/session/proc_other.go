//go:build !unix

package session

import (
	"os"
	"syscall"
)

func newProcAttr() *syscall.SysProcAttr { return nil }

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func exitSignal(*os.ProcessState) syscall.Signal { return 0 }
