//go:build !windows

package lifecycle

import (
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestSignalController_RealSignals(t *testing.T) {
	state := NewState()
	rec := newExitRecorder()
	dumped := make(chan struct{}, 1)
	c := NewSignalController(state, SignalOptions{
		Exit:       rec.exit,
		Stderr:     &syncBuffer{},
		Diagnostic: true,
		Dump:       func() { dumped <- struct{}{} },
	})
	c.Install()
	defer c.Uninstall()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGQUIT); err != nil {
		t.Fatal(err)
	}
	select {
	case <-dumped:
	case <-time.After(2 * time.Second):
		t.Fatal("diagnostic signal not dispatched")
	}

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	select {
	case <-state.Requested():
	case <-time.After(2 * time.Second):
		t.Fatal("termination signal not observed")
	}
	if len(rec.calls()) != 0 {
		t.Fatal("first signal must not exit")
	}

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
		t.Fatal(err)
	}
	if code := rec.wait(t, 2*time.Second); code != 0 {
		t.Errorf("forced exit code = %d, want 0", code)
	}
}

func TestDumpStacks_IncludesWorkerName(t *testing.T) {
	workers := NewWorkerSet()
	release := make(chan struct{})
	started := make(chan struct{})
	workers.Go("cron-prod", false, func() {
		close(started)
		<-release
	})
	defer close(release)
	<-started

	// wait for the worker to record its goroutine id
	deadline := time.Now().Add(time.Second)
	for {
		if len(workers.names()) == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	buf := &syncBuffer{}
	DumpStacks(newTextLogger(buf), workers)

	out := buf.String()
	if !strings.Contains(out, "# Thread: cron-prod(") {
		t.Errorf("dump missing worker name:\n%s", out)
	}
	if !strings.Contains(out, "# Thread: main(1)") {
		t.Errorf("dump missing main goroutine:\n%s", out)
	}
}
