// Package screen runs one poster board view: it mounts the view, loads the
// poster catalog in the background and serializes every board operation on a
// single event loop.
//
// # Lifecycle
//
//	Idle --Mount--> Loading --fetch ok--> Loaded
//	                        --fetch/metadata error--> LoadFailed
//
// Loading is entered at most once per Screen. LoadFailed is terminal: the
// error is shown and nothing is retried.
//
// # Concurrency
//
// [Screen.Run] owns the [board.Engine]. Callers on other goroutines (HTTP
// handlers, the TUI) submit work with [Screen.Do] and [Screen.Snapshot] and
// block until the loop has executed it. The catalog fetch runs on its own
// goroutine and hands its result back to the loop, so the engine sees exactly
// one writer.
//
// After [Screen.Unmount] a fetch that resolves late is dropped.
package screen
