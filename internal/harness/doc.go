// Package harness runs scenario files against registered reactors.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: counter_basic
//	description: "Sync and async counter updates"
//	reactor: counter
//	initial: { value: 1 }
//	steps:
//	  - action: increment
//	    args: { by: 2 }
//	  - action: add_later
//	    args: { by: 3, delay: 5ms }
//	    until: { pending: 0 }
//	  - mutate: { add: -1 }
//	  - wait: { value: 5 }
//	    timeout: 1s
//	assertions:
//	  - type: final_state
//	    expect: { value: 5 }
//	  - type: commit_count
//	    count: 5
//	  - type: commit_order
//	    kinds: [initial, sync, async]
//	  - type: commit_contains
//	    kind: async
//	    state: { value: 6 }
//
// A step is exactly one of action, mutate or wait. An action step with
// until blocks until the state matches; a wait step blocks without sending
// anything. State matching is a subset match: only the listed fields are
// compared, recursively through nested objects.
//
// # Assertion Types
//
//   - final_state: the state after the last step matches expect
//   - commit_count: exactly count commits, including the initial one
//   - commit_order: kinds appear in this relative order
//   - commit_contains: some commit, optionally of kind, matches state
//
// # Deterministic Testing
//
// Every scenario runs on its own main loop with fixed reactor IDs (r1, r2,
// ...). Trace sequence numbers come from the reactor's logical clock, so a
// scenario whose commits are all synchronous produces the same trace on
// every run and can be compared against a golden file with RunWithGolden.
package harness
