package lifecycle

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestState_RequestShutdown(t *testing.T) {
	s := NewState()
	if !s.Running() {
		t.Error("new state should be running")
	}
	if got := s.ShutdownRequests(); got != 0 {
		t.Fatalf("ShutdownRequests() = %d, want 0", got)
	}

	select {
	case <-s.Requested():
		t.Fatal("Requested() closed before any request")
	default:
	}

	if n := s.RequestShutdown(); n != 1 {
		t.Errorf("first RequestShutdown() = %d, want 1", n)
	}
	select {
	case <-s.Requested():
	default:
		t.Fatal("Requested() not closed after first request")
	}

	if n := s.RequestShutdown(); n != 2 {
		t.Errorf("second RequestShutdown() = %d, want 2", n)
	}
}

func TestSignalController_CountsAndForcesExit(t *testing.T) {
	tests := []struct {
		name    string
		signals []os.Signal
		want    int64
		exits   int
	}{
		{"none", nil, 0, 0},
		{"single interrupt", []os.Signal{os.Interrupt}, 1, 0},
		{"single terminate", []os.Signal{syscall.SIGTERM}, 1, 0},
		{"interrupt then terminate", []os.Signal{os.Interrupt, syscall.SIGTERM}, 2, 1},
		{"three terminates", []os.Signal{syscall.SIGTERM, syscall.SIGTERM, syscall.SIGTERM}, 3, 2},
		{"ignored signal", []os.Signal{syscall.SIGHUP}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState()
			rec := newExitRecorder()
			stderr := &syncBuffer{}
			c := NewSignalController(state, SignalOptions{Exit: rec.exit, Stderr: stderr})

			for _, sig := range tt.signals {
				c.Handle(sig)
			}

			if got := state.ShutdownRequests(); got != tt.want {
				t.Errorf("ShutdownRequests() = %d, want %d", got, tt.want)
			}
			calls := rec.calls()
			if len(calls) != tt.exits {
				t.Fatalf("exit called %d times, want %d", len(calls), tt.exits)
			}
			for _, code := range calls {
				if code != 0 {
					t.Errorf("forced exit code = %d, want 0", code)
				}
			}
			if tt.exits > 0 && !strings.Contains(stderr.String(), "Forced shutdown.") {
				t.Errorf("stderr = %q, want forced shutdown notice", stderr.String())
			}
		})
	}
}

func TestSignalController_DiagnosticDoesNotCount(t *testing.T) {
	if !DiagnosticSupported() {
		t.Skip("no diagnostic signal on this platform")
	}

	state := NewState()
	dumped := make(chan struct{}, 2)
	c := NewSignalController(state, SignalOptions{
		Exit:       newExitRecorder().exit,
		Diagnostic: true,
		Dump:       func() { dumped <- struct{}{} },
	})

	c.Handle(diagnosticSignal)
	c.Handle(diagnosticSignal)

	for i := 0; i < 2; i++ {
		select {
		case <-dumped:
		case <-time.After(2 * time.Second):
			t.Fatalf("dump %d never ran", i+1)
		}
	}
	if got := state.ShutdownRequests(); got != 0 {
		t.Errorf("ShutdownRequests() = %d, want 0", got)
	}
	if !state.Running() {
		t.Error("diagnostic signal must not change running state")
	}
}

func TestSignalController_SlowDumpDoesNotDelayForcedExit(t *testing.T) {
	if !DiagnosticSupported() {
		t.Skip("no diagnostic signal on this platform")
	}

	release := make(chan struct{})
	defer close(release)
	rec := newExitRecorder()
	c := NewSignalController(NewState(), SignalOptions{
		Exit:       rec.exit,
		Stderr:     &syncBuffer{},
		Diagnostic: true,
		Dump:       func() { <-release },
	})

	done := make(chan struct{})
	go func() {
		c.Handle(diagnosticSignal)
		c.Handle(syscall.SIGTERM)
		c.Handle(syscall.SIGTERM)
		close(done)
	}()

	if code := rec.wait(t, 2*time.Second); code != 0 {
		t.Errorf("forced exit code = %d, want 0", code)
	}
	<-done
}

func TestSignalController_DiagnosticDisabled(t *testing.T) {
	if !DiagnosticSupported() {
		t.Skip("no diagnostic signal on this platform")
	}

	dumps := 0
	c := NewSignalController(NewState(), SignalOptions{
		Exit: newExitRecorder().exit,
		Dump: func() { dumps++ },
	})
	c.Handle(diagnosticSignal)

	if dumps != 0 {
		t.Errorf("dump called %d times with diagnostics disabled", dumps)
	}
}

func TestSignalController_InstallUninstall(t *testing.T) {
	c := NewSignalController(NewState(), SignalOptions{Exit: newExitRecorder().exit})
	c.Install()
	c.Install()

	done := make(chan struct{})
	go func() {
		c.Uninstall()
		c.Uninstall()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Uninstall did not return")
	}
}
