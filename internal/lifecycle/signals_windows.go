//go:build windows

package lifecycle

import "os"

// Windows has no SIGQUIT; the stack dump handler is not installed.
var diagnosticSignal os.Signal
