//go:build unix

package cli

import (
	"os"
	"syscall"
)

// statusSignals trigger a status report instead of cancelling the run.
var statusSignals = []os.Signal{syscall.SIGUSR1}

func isStatusSignal(sig os.Signal) bool {
	return sig == syscall.SIGUSR1
}
