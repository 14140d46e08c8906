//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

var diagnosticSignal os.Signal = syscall.SIGQUIT
