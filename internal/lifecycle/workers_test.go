package lifecycle

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerSet_DrainJoinsNonDaemon(t *testing.T) {
	workers := NewWorkerSet()

	var finished atomic.Int32
	for i := 0; i < 3; i++ {
		workers.Go("job", false, func() {
			time.Sleep(30 * time.Millisecond)
			finished.Add(1)
		})
	}

	daemonRelease := make(chan struct{})
	defer close(daemonRelease)
	workers.Go("listener", true, func() { <-daemonRelease })

	daemon, nonDaemon := workers.Counts()
	if daemon != 1 || nonDaemon != 3 {
		t.Fatalf("Counts() = %d, %d, want 1, 3", daemon, nonDaemon)
	}

	done := make(chan int)
	go func() { done <- workers.Drain(5 * time.Millisecond) }()

	select {
	case joined := <-done:
		if joined != 3 {
			t.Errorf("Drain() joined %d, want 3", joined)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain blocked on a daemon worker")
	}

	if got := finished.Load(); got != 3 {
		t.Errorf("finished = %d, want 3", got)
	}
	if _, nonDaemon := workers.Counts(); nonDaemon != 0 {
		t.Errorf("non-daemon workers left after drain: %d", nonDaemon)
	}
}

func TestWorkerSet_DrainPicksUpLateWorkers(t *testing.T) {
	workers := NewWorkerSet()
	var late atomic.Bool

	workers.Go("spawner", false, func() {
		time.Sleep(10 * time.Millisecond)
		workers.Go("late", false, func() {
			time.Sleep(20 * time.Millisecond)
			late.Store(true)
		})
	})

	joined := workers.Drain(time.Millisecond)
	if !late.Load() {
		t.Error("Drain returned before the late worker finished")
	}
	if joined != 2 {
		t.Errorf("Drain() joined %d, want 2", joined)
	}
}

func TestWorkerSet_EmptyDrainReturnsImmediately(t *testing.T) {
	workers := NewWorkerSet()
	start := time.Now()
	if joined := workers.Drain(time.Second); joined != 0 {
		t.Errorf("Drain() joined %d, want 0", joined)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("empty drain should not wait a poll interval")
	}
}

func TestWorkerSet_PanicEndsOnlyThatWorker(t *testing.T) {
	workers := NewWorkerSet()
	w := workers.Go("broken", false, func() { panic("boom") })

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("panicking worker never finished")
	}
	if w.Alive() {
		t.Error("Alive() = true after panic")
	}
	if n := len(workers.Live()); n != 0 {
		t.Errorf("Live() has %d workers, want 0", n)
	}
}

func TestWorkerSet_LiveOrder(t *testing.T) {
	workers := NewWorkerSet()
	release := make(chan struct{})
	defer close(release)

	for _, name := range []string{"a", "b", "c"} {
		workers.Go(name, name == "b", func() { <-release })
	}

	live := workers.Live()
	if len(live) != 3 {
		t.Fatalf("Live() len = %d, want 3", len(live))
	}
	for i, name := range []string{"a", "b", "c"} {
		if live[i].Name != name {
			t.Errorf("Live()[%d].Name = %q, want %q", i, live[i].Name, name)
		}
	}
	if !live[1].Daemon || live[0].Daemon {
		t.Error("daemon flags not preserved")
	}
}

func TestCurrentGoroutineID(t *testing.T) {
	if id := currentGoroutineID(); id <= 0 {
		t.Errorf("currentGoroutineID() = %d, want > 0", id)
	}
}
