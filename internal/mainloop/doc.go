// Package mainloop implements the main scheduling context.
//
// ARCHITECTURE:
//
// Single-Writer Task Loop:
// A Loop executes tasks in one goroutine, in FIFO order. Everything that
// changes externally visible reactor state runs as a loop task. This ensures:
// - Observers are always called from the same goroutine
// - Commits are delivered in the order they were folded
// - No observer ever sees a torn or interleaved state value
//
// Task Submission:
// 1. Post enqueues a task and returns immediately (asynchronous delivery)
// 2. Do enqueues a task and blocks until the loop has executed it
// 3. Do called from the loop goroutine runs the task inline (no deadlock)
// 4. Await blocks on a channel; on the loop goroutine it keeps pumping tasks
//
// Goroutine identity is tracked with github.com/petermattis/goid, so OnLoop
// answers "am I the main context?" without threading a context through every
// observer callback.
//
// Thread-safety model:
//   - Post(), Do(), OnLoop(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
package mainloop
