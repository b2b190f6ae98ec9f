//go:build windows

package encoder

import "os"

// terminateSignal is the graceful-shutdown signal sent to the child before
// the drain timeout elapses. Windows has no SIGTERM equivalent reachable
// through os.Process.Signal; os.Interrupt is the closest analogue FFmpeg
// honors as a clean-shutdown request.
var terminateSignal os.Signal = os.Interrupt
