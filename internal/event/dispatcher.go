package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/hunt/internal/hunt"
)

// Processor consumes events. It may dispatch further events by calling back
// into the Dispatcher.
type Processor interface {
	Process(ctx context.Context, e Event) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, e Event) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// registration is one entry in the ordered processor list.
type registration struct {
	name  string
	kinds map[Kind]bool // nil matches every kind
	proc  Processor
}

func (r registration) matches(k Kind) bool {
	return r.kinds == nil || r.kinds[k]
}

// Dispatcher fans a single event out to every registered processor in
// registration order.
//
// Thread-safety model:
//   - Register/On: safe from any goroutine, normally called once at startup
//   - Process: safe from any goroutine; processors run on the caller's goroutine
//
// INVARIANTS:
//   - registration order never changes after Register returns
//   - the first processor error aborts dispatch of that event
type Dispatcher struct {
	mu     sync.RWMutex
	regs   []registration
	ids    IDGenerator
	clock  hunt.Clock
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIDGenerator sets the generator used to stamp event ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Dispatcher) {
		d.ids = g
	}
}

// WithClock sets the clock used to stamp event times.
// Default: hunt.SystemClock.
func WithClock(c hunt.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithLogger sets the dispatch logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ids:    UUIDv7Generator{},
		clock:  hunt.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register appends a processor. With no kinds it receives every event;
// otherwise only events whose kind is listed.
func (d *Dispatcher) Register(name string, p Processor, kinds ...Kind) {
	reg := registration{name: name, proc: p}
	if len(kinds) > 0 {
		reg.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			reg.kinds[k] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs = append(d.regs, reg)
}

// On registers a typed handler for a built-in event type. The kind is taken
// from the type parameter, so E must be one of the built-in pointer types.
// Use OnCustom for hunt-specific kinds.
//
// Example:
//
//	event.On(d, "mark-solved", func(ctx context.Context, e *event.SubmissionJudged) error { ... })
func On[E Event](d *Dispatcher, name string, fn func(ctx context.Context, e E) error) {
	var zero E
	d.Register(name, ProcessorFunc(func(ctx context.Context, e Event) error {
		typed, ok := e.(E)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	}), zero.Kind())
}

// OnCustom registers a handler for Custom events with the given name.
func OnCustom(d *Dispatcher, name, eventName string, fn func(ctx context.Context, e *Custom) error) {
	d.Register(name, ProcessorFunc(func(ctx context.Context, e Event) error {
		c, ok := e.(*Custom)
		if !ok {
			return nil
		}
		return fn(ctx, c)
	}), CustomKind(eventName))
}

// Process stamps the event's metadata if unset and runs every matching
// processor in registration order. The first error aborts dispatch.
func (d *Dispatcher) Process(ctx context.Context, e Event) error {
	h := e.Header()
	if h.ID == "" {
		h.ID = d.ids.Generate()
	}
	if h.At.IsZero() {
		h.At = d.clock.Now()
	}

	d.mu.RLock()
	regs := d.regs
	d.mu.RUnlock()

	d.logger.Debug("dispatching event",
		"id", h.ID,
		"kind", e.Kind(),
		"team", TeamOf(e),
	)

	for _, reg := range regs {
		if !reg.matches(e.Kind()) {
			continue
		}
		if err := reg.proc.Process(ctx, e); err != nil {
			d.logger.Error("event processor failed",
				"id", h.ID,
				"kind", e.Kind(),
				"processor", reg.name,
				"error", err,
			)
			return fmt.Errorf("process %s (processor %s): %w", e.Kind(), reg.name, err)
		}
	}

	return nil
}

// Len returns the number of registered processors.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.regs)
}

// Recorder is a Processor that keeps every event it sees, in order.
// Used by the harness for traces and by tests as an observer.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Process implements Processor.
func (r *Recorder) Process(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns recorded events with the given kind.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
