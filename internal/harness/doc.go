// Package harness runs hunt scenarios: executable checks of progression
// behavior against a compiled CUE hunt definition.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	hunt: ../hunts/linear.cue   # relative to the scenario file
//	run: run-1                  # optional, defaults to "run-1"
//	teams: [t1, t2]
//	steps:
//	  - action: start
//	  - action: submit
//	    team: t1
//	    puzzle: p1
//	  - action: set
//	    team: t1
//	    puzzle: p2
//	    status: SOLVED
//	    expect: unchanged
//	  - action: advance
//	    duration: 2h
//	  - action: tick
//	assertions:
//	  - type: status
//	    team: t1
//	    puzzle: p1
//	    status: SOLVED
//	  - type: trace_count
//	    event: { kind: visibility_changed, puzzle: p2, status: UNLOCKED }
//	    count: 1
//
// # Step Actions
//
//   - start: marks the run started (expect: changed on the first call)
//   - submit: a judged submission, correct unless correct: false
//   - release: force release of puzzle for team, or for every team
//   - set: an external visibility change; parallel: N issues N identical
//     calls at once and expect: changed then means exactly one succeeded
//   - hint: a resolved hint costing cost tokens
//   - advance: moves the scenario clock forward by duration
//   - tick: a timer tick for the whole run
//   - propagate: recomputes derived state for team
//   - reset: clears all progress of the run
//
// Any step may set expect_error to a substring of the error it must fail
// with. A step failing unexpectedly stops the scenario.
//
// # Assertion Types
//
//   - status: puzzle has status for team
//   - property: team property key equals value
//   - history: the statuses a puzzle moved through, in order
//   - trace_contains: an event matching the pattern was dispatched
//   - trace_count: exactly count matching events were dispatched
//   - trace_order: matching events were dispatched in the given order
//
// # Deterministic Testing
//
// Every scenario runs against:
//   - a fresh in-memory SQLite database
//   - a manual clock starting at testutil.Epoch, moved only by advance
//   - sequential event ids
//
// The trace is recorded by an engine observer in dispatch order and holds
// no ids or timestamps, so identical scenarios produce identical traces
// for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/linear_chain.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
