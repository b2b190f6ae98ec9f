//go:build !windows

package encoder

import (
	"os"
	"syscall"
)

// terminateSignal is the graceful-shutdown signal sent to the child before
// the drain timeout elapses.
var terminateSignal os.Signal = syscall.SIGTERM
