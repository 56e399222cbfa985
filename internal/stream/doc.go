// Package stream provides the push sequences that connect a reactor's
// action, mutation and state pipelines.
//
// A Seq is a function that pushes values into a yield callback until the
// source is exhausted, the callback returns false, or its context ends:
//
//	type Seq[T any] func(ctx context.Context, yield func(T) bool)
//
// Sequences are cold: nothing happens until one is started. Operators
// (Map, Filter, Scan, Prepend, Merge, Dedupe) wrap a Seq and return a new one,
// so whole pipelines can be handed to a transform hook and returned
// with extra values spliced in.
//
// # Concurrency
//
// After Merge, yield may be invoked from several goroutines at once.
// Consumers must be safe for concurrent calls. Scan and Dedupe restore a
// single order: values leave them in the order they were processed, one
// at a time, though not necessarily on the goroutine that produced them.
//
// # Hot sources
//
// Subject is a multicast broadcaster. Send delivers a value synchronously,
// on the sender's goroutine, to every subscriber registered at that moment.
// Subscribers that attach later receive nothing that was sent before.
//
// # Priming
//
// Start runs a Seq on its own goroutine and reports, through the Primed
// channel of the returned Run, when every goroutine of that run has either
// finished or parked waiting for external input. Sources that block call
// Park(ctx) right before they do. After Primed closes, every Subject
// subscription of the pipeline is registered and every value that was
// available without waiting (such as a Prepend) has been yielded.
//
// Sequences written outside this package that block without calling Park
// delay priming; callers bound the wait with a timeout.
package stream
