package lifecycle

import (
	"os"
	"sync"
	"sync/atomic"
)

// ExitFunc terminates the process with the given status.
type ExitFunc func(code int)

// DefaultExit terminates the process immediately. Deferred functions do not run.
var DefaultExit ExitFunc = os.Exit

// State is the process lifecycle state: how many termination requests have
// been received and whether the server is still running.
//
// Signal handling is the only writer of the counter; the main loop and the
// shutdown sequencer only read it.
type State struct {
	requests atomic.Int64
	running  atomic.Bool

	first     chan struct{}
	firstOnce sync.Once
}

// NewState returns a running state with no shutdown requests.
func NewState() *State {
	s := &State{first: make(chan struct{})}
	s.running.Store(true)
	return s
}

// RequestShutdown records one termination request and returns the count
// after the increment.
func (s *State) RequestShutdown() int64 {
	n := s.requests.Add(1)
	if n == 1 {
		s.firstOnce.Do(func() { close(s.first) })
	}
	return n
}

// ShutdownRequests returns the number of termination requests received.
func (s *State) ShutdownRequests() int64 {
	return s.requests.Load()
}

// Requested is closed when the first termination request arrives.
func (s *State) Requested() <-chan struct{} {
	return s.first
}

// Running reports whether the shutdown sequence has not started yet.
func (s *State) Running() bool {
	return s.running.Load()
}

func (s *State) markStopped() {
	s.running.Store(false)
}
