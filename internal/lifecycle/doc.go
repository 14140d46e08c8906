// Package lifecycle owns the process-wide shutdown machinery.
//
// The pieces fit together like this:
//
//   - [State] counts termination requests. The first request closes the
//     channel returned by [State.Requested]; the count is atomic.
//   - [SignalController] turns SIGINT/SIGTERM into [State.RequestShutdown].
//     A second request terminates the process immediately without cleanup.
//     SIGQUIT (where available) dumps every goroutine stack to the
//     "dumpstacks" logger and changes nothing else.
//   - [MainLoop] idles until the first request arrives.
//   - [Sequencer] runs exactly once: stop the agent, stop every service,
//     remove the pid file, drain non-daemon workers in short polling
//     intervals, exit with status 0.
//   - [WorkerSet] tracks goroutines spawned by subsystems so the drain knows
//     what to join. Daemon workers are never waited on.
//
// Termination goes through an [ExitFunc] so tests can observe both the clean
// and the forced path without ending the test binary.
package lifecycle
