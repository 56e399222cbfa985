// Package reactor implements a unidirectional state container.
//
// Callers send Actions. The Logic turns each Action into a Batch of
// Mutations, and every Mutation is folded into the State with Reduce.
// Each folded State is committed on the main loop and published to
// observers.
//
// ARCHITECTURE:
//
// Pipelines (built once, inside New):
//
//	Action ──▶ TransformAction ──▶ Mutate ──▶ Batch
//	                                           │
//	              sync mutations ◀─────────────┤
//	              (one loop task per batch)    │ async sequence
//	                     │                     ▼
//	                     │        async subject ──▶ TransformMutation ─┐
//	                     │                                              ├─▶ fold (loop task)
//	                     │        direct Mutate() subject ─────────────┘
//	                     ▼
//	               fold ──▶ state subject ──▶ TransformState ──▶ commit (loop)
//
// Single-Writer Fold:
// There is one accumulator per reactor and it is only touched on the
// main loop. Sync and async mutations reduce the same accumulator, so no
// path can drop what another path applied. The sync mutations of one
// batch are folded inside one loop task, so they are applied in list order
// and never interleave with another batch.
//
// Thread-safety model:
//   - Action(), Mutate(), Read(), Subscribe(): safe from any goroutine
//   - Logic.Mutate: runs on the goroutine that sent the action
//   - Logic.Reduce: always runs on the main loop
//   - observer callbacks: always run on the main loop, in commit order
//
// Teardown:
// Dispose is the only cancellation unit. It stops every pipeline, cancels
// every subscription registered in the reactor's Bag and makes later
// Action and Mutate calls silent no-ops.
package reactor
