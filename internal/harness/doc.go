// Package harness provides scenario-based conformance testing for the
// summary synchronization engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	fixtures:
//	  settings: { max_points: 20 }
//	  levels:
//	    - { key: fail, min_points: 0 }
//	    - { key: pass, min_points: 10 }
//	  summary: { text: "initial", points: 0 }
//	steps:
//	  - edit: { text: "abc", points: 5 }
//	  - advance: 1500
//	  - check: {}
//	  - send: { backend: ok }
//	  - authorize: {}
//
// # Steps
//
//   - edit: update the live content and/or points bindings
//   - advance: move the scenario clock forward by N milliseconds
//   - check: run one dirty-check pass (force: true skips the rate limit)
//   - send: run one send attempt; backend is "ok" or "fail"
//   - authorize: finalize the correction
//
// # Deterministic Testing
//
// Scenarios run against an in-memory SQLite store with a fixed start time
// and a manually advanced clock. Sends are executed synchronously with a
// scripted backend, so every run produces an identical trace. The trace
// records the engine state after every step and is compared against a
// golden file.
package harness
