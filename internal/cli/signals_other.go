//go:build !unix

package cli

import "os"

var statusSignals []os.Signal

func isStatusSignal(os.Signal) bool { return false }
