package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/hunt/internal/compiler"
	"github.com/roach88/hunt/internal/engine"
	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/store"
	"github.com/roach88/hunt/internal/testutil"
)

// Harness executes one scenario against a private engine.
type Harness struct {
	engine *engine.Engine
	clock  *testutil.ManualClock
	rec    *event.Recorder
	run    hunt.RunID
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the hunt definition into a plugin
// 2. Create the engine with a manual clock and sequential ids
// 3. Register the run and its teams
// 4. Execute steps, stopping at the first unexpected failure
// 5. Evaluate assertions against the final state and the trace
//
// The returned error covers setup failures only. Step and assertion
// failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	def, err := compiler.CompileFile(scenario.Hunt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile hunt: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plugin, err := compiler.NewPlugin(def, compiler.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build plugin: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	h := &Harness{
		clock: testutil.NewManualClock(testutil.Epoch),
		rec:   &event.Recorder{},
		run:   hunt.RunID(scenario.Run),
	}
	if h.run == "" {
		h.run = DefaultRun
	}

	h.engine, err = engine.New(engine.Config{
		Clock:     h.clock,
		IDs:       event.NewSequenceGenerator("evt"),
		Logger:    logger,
		Observers: []event.Processor{h.rec},
	}, st, plugin)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer h.engine.Close()

	teams := make([]hunt.TeamID, 0, len(scenario.Teams))
	for _, t := range scenario.Teams {
		teams = append(teams, hunt.TeamID(t))
	}
	if err := h.engine.Bootstrap(ctx, h.run, teams...); err != nil {
		return nil, fmt.Errorf("failed to bootstrap run: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Action, err))
			break
		}
	}

	for i, e := range h.rec.Events() {
		result.Trace = append(result.Trace, traceEventOf(i+1, e))
	}

	if err := h.captureState(ctx, teams, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}

	actx := &AssertionContext{Engine: h.engine, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeStep runs one step and checks its error against ExpectError.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	err := h.apply(ctx, step)
	switch {
	case step.ExpectError == "" && err != nil:
		return err
	case step.ExpectError != "" && err == nil:
		return fmt.Errorf("expected error containing %q, got none", step.ExpectError)
	case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
		return fmt.Errorf("expected error containing %q, got %v", step.ExpectError, err)
	}
	return nil
}

func (h *Harness) apply(ctx context.Context, step Step) error {
	team := hunt.TeamID(step.Team)
	puzzle := hunt.PuzzleID(step.Puzzle)

	switch step.Action {
	case ActionStart:
		changed, err := h.engine.StartRun(ctx, h.run)
		if err != nil {
			return err
		}
		return checkChanged(step.Expect, changed)

	case ActionSubmit:
		correct := step.Correct == nil || *step.Correct
		return h.engine.Process(ctx, &event.SubmissionJudged{
			Team:    team,
			Puzzle:  puzzle,
			Answer:  step.Answer,
			Correct: correct,
		})

	case ActionRelease:
		ev := &event.PuzzleReleased{Team: team, Puzzle: puzzle}
		if team == "" {
			ev.Run = h.run
		}
		return h.engine.Process(ctx, ev)

	case ActionSet:
		return h.set(ctx, step, team, puzzle)

	case ActionHint:
		return h.engine.Process(ctx, &event.HintResolved{
			Team:   team,
			Puzzle: puzzle,
			HintID: fmt.Sprintf("hint-%s-%d", puzzle, len(h.rec.OfKind(event.KindHintResolved))+1),
			Cost:   step.Cost,
		})

	case ActionAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil

	case ActionTick:
		return h.engine.NewTicker(h.run, time.Minute).Tick(ctx)

	case ActionPropagate:
		return h.engine.Propagate(ctx, team)

	case ActionReset:
		return h.engine.ResetHunt(ctx, h.run)

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// set applies an external transition, Parallel times at once if asked.
// With more than one call, "changed" means exactly one call succeeded.
func (h *Harness) set(ctx context.Context, step Step, team hunt.TeamID, puzzle hunt.PuzzleID) error {
	n := max(step.Parallel, 1)
	target := hunt.Status(step.Status)

	var (
		wg       sync.WaitGroup
		changed  atomic.Int64
		firstErr error
		errOnce  sync.Once
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := h.engine.SetVisibility(ctx, team, puzzle, target)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
			}
			if ok {
				changed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if c := changed.Load(); c > 1 {
		return fmt.Errorf("%d of %d identical transitions succeeded", c, n)
	}
	return checkChanged(step.Expect, changed.Load() == 1)
}

func checkChanged(expect string, changed bool) error {
	switch {
	case expect == ExpectChanged && !changed:
		return fmt.Errorf("expected a change, state was unchanged")
	case expect == ExpectUnchanged && changed:
		return fmt.Errorf("expected no change, state changed")
	}
	return nil
}

// captureState fills result.State with every team's board.
func (h *Harness) captureState(ctx context.Context, teams []hunt.TeamID, result *Result) error {
	for _, team := range teams {
		board, err := h.engine.Board(ctx, team)
		if err != nil {
			return err
		}
		row := make(map[string]string, len(board))
		for _, v := range board {
			row[string(v.Puzzle)] = string(v.Status)
		}
		result.State[string(team)] = row
	}
	return nil
}
