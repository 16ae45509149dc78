// Package engine implements hunt progression: the propagation of derived
// state to a fixed point after every event, behind a small facade.
//
// ARCHITECTURE:
//
// Synchronous Dispatch:
// Every inbound event is dispatched on the caller's goroutine to the
// plugin's processors, in registration order, and finally to the
// propagator. Store writes made by processors emit further events that
// recurse depth-first through the same dispatcher.
//
// Event Processing Flow:
// 1. Caller submits an event (Process) or a direct transition (SetVisibility)
// 2. Plugin processors apply domain rules through the progress store
// 3. Each successful change emits VisibilityChanged or PropertyChanged
// 4. The propagator snapshots the team, asks the calculator for updates
// 5. Updates are applied as ordinary conditional writes; repeat until stable
//
// The engine has no built-in knowledge of any hunt. The plugin supplies the
// status policy, processors and the calculator.
//
// CRITICAL PATTERNS:
//
// Bounded Propagation:
// The recompute loop is an explicit worklist with a pass cap. Exceeding
// the cap returns NotConvergedError, a defect signal for cyclic rule sets.
//
// Deterministic Application:
// Property updates are applied in key order and visibility updates in hunt
// puzzle order, so identical state and events give identical histories.
//
// Concurrency:
// Transitions of one (team, puzzle) are serialized by the backend's
// conditional update. Propagations for the same team triggered from
// different goroutines may interleave; each write stays atomic, so the
// worst case is an extra pass.
package engine
