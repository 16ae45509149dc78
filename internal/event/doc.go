// Package event implements the hunt's event model and synchronous dispatch.
//
// Events are immutable facts: a hunt started, a submission was judged, a
// puzzle was force-released, a timer ticked, a visibility or property
// changed, a hint was resolved. Built-in kinds form a closed set of typed
// structs; hunt-specific kinds travel as Custom events tagged "custom:<name>".
//
// Dispatch Model:
//
// The Dispatcher is a composite processor. Processors are registered once at
// startup, optionally filtered by kind, and run in registration order on the
// calling goroutine. There is no isolation between processors: the first
// error aborts the remaining processors for that event and is returned to the
// caller. Processors may dispatch further events; nested dispatch runs
// depth-first before the outer loop continues.
//
// Registration order matters. Hunt plugins register their domain handlers
// first so that the propagation handler, registered last, observes the
// visibilities those handlers set for the same event.
package event
