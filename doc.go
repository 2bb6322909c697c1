// Package wspool runs a supervised pool of WebSocket client connections.
//
// The pool:
//   - Launches one Connection Task per endpoint, each with its own receive loop
//   - Dispatches inbound messages to a per-task handler, strictly in order
//   - Isolates failures: one task failing never aborts its siblings
//   - Converts every failure into a per-task Outcome (connect, timeout,
//     transport, or cancellation) instead of a pool-level error
//   - Shuts down all tasks on context cancellation, allowing a bounded grace
//     period for the close handshake before forcing termination
//
// RunPool is the entry point: it returns one Outcome per task, in completion
// order, and always returns normally.
package wspool
