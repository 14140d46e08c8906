package lifecycle

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// TerminationSignals request a graceful shutdown; the second one forces exit.
var TerminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SignalOptions configures a SignalController.
type SignalOptions struct {
	// Exit terminates the process on the forced path (default: DefaultExit)
	Exit ExitFunc

	// Stderr receives the forced shutdown notice (default: os.Stderr)
	Stderr io.Writer

	// Diagnostic installs the stack dump handler where the platform supports it
	Diagnostic bool

	// Dump runs on the diagnostic signal
	Dump func()
}

// SignalController translates process signals into lifecycle state changes.
type SignalController struct {
	state  *State
	exit   ExitFunc
	stderr io.Writer
	diag   bool
	dump   func()

	dumpMu sync.Mutex

	mu      sync.Mutex
	sigCh   chan os.Signal
	stopped chan struct{}
	done    chan struct{}
}

// NewSignalController creates a controller for state. Install must be called
// to start receiving signals.
func NewSignalController(state *State, opts SignalOptions) *SignalController {
	if opts.Exit == nil {
		opts.Exit = DefaultExit
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Dump == nil {
		opts.Dump = func() {}
	}
	return &SignalController{
		state:  state,
		exit:   opts.Exit,
		stderr: opts.Stderr,
		diag:   opts.Diagnostic && diagnosticSignal != nil,
		dump:   opts.Dump,
	}
}

// Install registers the handlers and starts dispatching. Calling Install on
// an installed controller is a no-op.
func (c *SignalController) Install() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sigCh != nil {
		return
	}

	sigs := append([]os.Signal{}, TerminationSignals...)
	if c.diag {
		sigs = append(sigs, diagnosticSignal)
	}

	c.sigCh = make(chan os.Signal, 4)
	c.stopped = make(chan struct{})
	c.done = make(chan struct{})
	signal.Notify(c.sigCh, sigs...)

	go c.dispatch(c.sigCh, c.stopped, c.done)
}

// Uninstall restores default signal behavior and stops dispatching.
func (c *SignalController) Uninstall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sigCh == nil {
		return
	}
	signal.Stop(c.sigCh)
	close(c.stopped)
	<-c.done
	c.sigCh = nil
}

func (c *SignalController) dispatch(sigCh <-chan os.Signal, stopped <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case sig := <-sigCh:
			c.Handle(sig)
		case <-stopped:
			return
		}
	}
}

// Handle applies one received signal. A termination signal increments the
// request counter; when the counter exceeds one the process is terminated
// immediately with no cleanup. The diagnostic signal dumps stacks on its own
// goroutine so termination signals are never queued behind a dump.
func (c *SignalController) Handle(sig os.Signal) {
	if c.diag && sig == diagnosticSignal {
		go func() {
			c.dumpMu.Lock()
			defer c.dumpMu.Unlock()
			c.dump()
		}()
		return
	}
	if !isTermination(sig) {
		return
	}

	n := c.state.RequestShutdown()
	if n > 1 {
		fmt.Fprintln(c.stderr, "Forced shutdown.")
		c.exit(0)
		return
	}
	slog.Debug("termination signal received", "signal", sig.String())
}

// DiagnosticSupported reports whether the platform has a diagnostic signal.
func DiagnosticSupported() bool {
	return diagnosticSignal != nil
}

func isTermination(sig os.Signal) bool {
	for _, s := range TerminationSignals {
		if s == sig {
			return true
		}
	}
	return false
}
