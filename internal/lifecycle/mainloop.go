package lifecycle

import "time"

// MainLoop blocks until the first termination request. It wakes on the
// request itself and also polls the counter every poll interval.
func MainLoop(state *State, poll time.Duration) {
	if poll <= 0 {
		poll = time.Minute
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for state.ShutdownRequests() == 0 {
		select {
		case <-state.Requested():
		case <-ticker.C:
		}
	}
}

// Run idles in MainLoop and then hands off to the sequencer exactly once.
func Run(state *State, poll time.Duration, seq *Sequencer) {
	MainLoop(state, poll)
	seq.Shutdown()
}
