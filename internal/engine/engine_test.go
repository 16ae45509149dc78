package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/progress"
	"github.com/roach88/hunt/internal/status"
	"github.com/roach88/hunt/internal/testutil"
)

// chainPlugin is a linear hunt: p1 unlocks at start, each solved puzzle
// unlocks the next. A correct submission solves the puzzle. The "solved"
// property counts solved puzzles.
type chainPlugin struct {
	puzzles []hunt.PuzzleID
	calc    Calculator
	calls   atomic.Int64

	// inFlight records, per internal VisibilityChanged, whether the team was
	// propagating on that call chain.
	mu       sync.Mutex
	inFlight []bool
}

func newChainPlugin(puzzles ...hunt.PuzzleID) *chainPlugin {
	p := &chainPlugin{puzzles: puzzles}
	p.calc = CalculatorFunc(p.compute)
	return p
}

func (p *chainPlugin) Policy() status.Policy { return status.Standard() }

func (p *chainPlugin) Puzzles() []hunt.PuzzleID { return p.puzzles }

func (p *chainPlugin) Calculator() Calculator { return p.calc }

func (p *chainPlugin) PropertyKeys() []string { return []string{"solved"} }

func (p *chainPlugin) Calls() int { return int(p.calls.Load()) }

func (p *chainPlugin) setCalculator(c Calculator) { p.calc = c }

func (p *chainPlugin) Register(d *event.Dispatcher, s *progress.Store) error {
	event.On(d, "judge", func(ctx context.Context, e *event.SubmissionJudged) error {
		if !e.Correct {
			return nil
		}
		_, err := s.SetVisibility(ctx, e.Team, e.Puzzle, status.Solved, false)
		return err
	})
	event.On(d, "observe", func(ctx context.Context, e *event.VisibilityChanged) error {
		if e.External {
			return nil
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		p.inFlight = append(p.inFlight, inFlight(ctx, e.Team))
		return nil
	})
	return nil
}

func (p *chainPlugin) compute(_ context.Context, snap Snapshot) (Updates, error) {
	p.calls.Add(1)

	u := Updates{Visibilities: map[hunt.PuzzleID]hunt.Status{}}
	if !snap.Run.Started(snap.Now) {
		return u, nil
	}

	solved := 0
	prevSolved := true
	for _, puzzle := range p.puzzles {
		st := snap.Status(puzzle)
		if st == status.Solved {
			solved++
		}
		if prevSolved && st != status.Solved && st != status.Unlocked {
			u.Visibilities[puzzle] = status.Unlocked
		}
		prevSolved = st == status.Solved
	}
	u.Properties = map[string]hunt.Value{"solved": hunt.Int(solved)}
	return u, nil
}

type engineFixture struct {
	engine *Engine
	plugin *chainPlugin
	rec    *event.Recorder
	clock  *testutil.ManualClock
}

func newEngineFixture(t *testing.T, cfg Config, teams ...hunt.TeamID) *engineFixture {
	t.Helper()
	return newEngineFixtureWith(t, cfg, newChainPlugin("p1", "p2", "p3"), teams...)
}

func newEngineFixtureWith(t *testing.T, cfg Config, plugin *chainPlugin, teams ...hunt.TeamID) *engineFixture {
	t.Helper()
	clock := testutil.NewSteppingClock(time.Second)
	cfg.Clock = clock
	cfg.IDs = event.NewSequenceGenerator("evt")

	e, err := New(cfg, testutil.OpenStore(t), plugin)
	require.NoError(t, err)

	rec := &event.Recorder{}
	e.Dispatcher().Register("recorder", rec)

	if len(teams) == 0 {
		teams = []hunt.TeamID{"t1"}
	}
	require.NoError(t, e.Bootstrap(context.Background(), "run-1", teams...))

	return &engineFixture{engine: e, plugin: plugin, rec: rec, clock: clock}
}

func (f *engineFixture) board(t *testing.T, team hunt.TeamID) map[hunt.PuzzleID]hunt.Status {
	t.Helper()
	vs, err := f.engine.Board(context.Background(), team)
	require.NoError(t, err)
	out := make(map[hunt.PuzzleID]hunt.Status, len(vs))
	for _, v := range vs {
		out[v.Puzzle] = v.Status
	}
	return out
}

func (f *engineFixture) solve(t *testing.T, team hunt.TeamID, puzzle hunt.PuzzleID) {
	t.Helper()
	require.NoError(t, f.engine.Process(context.Background(), &event.SubmissionJudged{
		Team: team, Puzzle: puzzle, Answer: "ANSWER", Correct: true,
	}))
}

func TestNew_RejectsIncompletePlugin(t *testing.T) {
	_, err := New(Config{}, testutil.OpenStore(t), nil)
	require.Error(t, err)

	p := newChainPlugin("p1")
	p.setCalculator(nil)
	_, err = New(Config{}, testutil.OpenStore(t), p)
	require.Error(t, err)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidPlugin, re.Code)
}

func TestNew_DefaultPassLimit(t *testing.T) {
	f := newEngineFixture(t, Config{})
	assert.Equal(t, DefaultPassLimit(3, 4, 1), f.engine.MaxPasses())

	f = newEngineFixture(t, Config{MaxPasses: 7})
	assert.Equal(t, 7, f.engine.MaxPasses())
}

func TestEngine_NothingUnlocksBeforeStart(t *testing.T) {
	f := newEngineFixture(t, Config{})

	require.NoError(t, f.engine.Propagate(context.Background(), "t1"))

	for puzzle, st := range f.board(t, "t1") {
		assert.Equal(t, status.Invisible, st, puzzle)
	}
	assert.Empty(t, f.rec.OfKind(event.KindVisibilityChanged))
}

func TestEngine_LinearChain(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	started, err := f.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, started)

	assert.Equal(t, map[hunt.PuzzleID]hunt.Status{
		"p1": status.Unlocked,
		"p2": status.Invisible,
		"p3": status.Invisible,
	}, f.board(t, "t1"))

	f.solve(t, "t1", "p1")
	assert.Equal(t, map[hunt.PuzzleID]hunt.Status{
		"p1": status.Solved,
		"p2": status.Unlocked,
		"p3": status.Invisible,
	}, f.board(t, "t1"))

	f.solve(t, "t1", "p2")
	f.solve(t, "t1", "p3")
	for puzzle, st := range f.board(t, "t1") {
		assert.Equal(t, status.Solved, st, puzzle)
	}

	props, err := f.engine.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, hunt.Int(3), props["solved"])

	hist, err := f.engine.VisibilityHistory(ctx, "t1", "p2")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, status.Unlocked, hist[0].Status)
	assert.Equal(t, status.Solved, hist[1].Status)
	assert.True(t, hist[0].At.Before(hist[1].At))
}

func TestEngine_StartRunIsOnce(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	started, err := f.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, started)

	started, err = f.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Len(t, f.rec.OfKind(event.KindHuntStarted), 1)
}

func TestEngine_StartPropagatesEveryTeam(t *testing.T) {
	f := newEngineFixture(t, Config{}, "t1", "t2", "t3")

	_, err := f.engine.StartRun(context.Background(), "run-1")
	require.NoError(t, err)

	for _, team := range []hunt.TeamID{"t1", "t2", "t3"} {
		assert.Equal(t, status.Unlocked, f.board(t, team)["p1"], team)
	}
}

func TestEngine_TeamsAreIsolated(t *testing.T) {
	f := newEngineFixture(t, Config{}, "t1", "t2")

	_, err := f.engine.StartRun(context.Background(), "run-1")
	require.NoError(t, err)
	f.solve(t, "t1", "p1")

	assert.Equal(t, status.Unlocked, f.board(t, "t1")["p2"])
	assert.Equal(t, status.Invisible, f.board(t, "t2")["p2"])
	assert.Equal(t, status.Unlocked, f.board(t, "t2")["p1"])
}

func TestEngine_NoReentrantPropagation(t *testing.T) {
	f := newEngineFixture(t, Config{})

	_, err := f.engine.StartRun(context.Background(), "run-1")
	require.NoError(t, err)

	// Pass one writes solved=0, pass two unlocks p1, pass three is stable.
	assert.Equal(t, 3, f.plugin.Calls())

	f.plugin.mu.Lock()
	defer f.plugin.mu.Unlock()
	require.NotEmpty(t, f.plugin.inFlight)
	for i, nested := range f.plugin.inFlight {
		assert.True(t, nested, "internal change %d was not made by propagation", i)
	}
}

// After any event completes, recomputing from a fresh snapshot changes
// nothing.
func TestEngine_ConvergedAfterEveryEvent(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	steps := []func(){
		func() { _, err := f.engine.StartRun(ctx, "run-1"); require.NoError(t, err) },
		func() { f.solve(t, "t1", "p1") },
		func() {
			require.NoError(t, f.engine.Process(ctx, &event.SubmissionJudged{Team: "t1", Puzzle: "p2", Correct: false}))
		},
		func() { f.solve(t, "t1", "p2") },
	}

	for i, step := range steps {
		step()
		before := len(f.rec.Events())
		calls := f.plugin.Calls()

		require.NoError(t, f.engine.Propagate(ctx, "t1"))

		assert.Equal(t, calls+1, f.plugin.Calls(), "step %d needed more than one pass", i)
		assert.Len(t, f.rec.Events(), before, "step %d was not at a fixed point", i)
	}
}

func TestEngine_PropertyNoopDoesNotRecurse(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	_, err := f.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)

	// solved=0 was written once; every later pass proposes the same value.
	changes := f.rec.OfKind(event.KindPropertyChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, hunt.Int(0), changes[0].(*event.PropertyChanged).Value)

	f.rec.Reset()
	require.NoError(t, f.engine.Propagate(ctx, "t1"))
	assert.Empty(t, f.rec.OfKind(event.KindPropertyChanged))
}

func TestEngine_ExternalTransitionPropagates(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	_, err := f.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)

	changed, err := f.engine.SetVisibility(ctx, "t1", "p1", status.Solved)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, status.Unlocked, f.board(t, "t1")["p2"])

	var external int
	for _, e := range f.rec.OfKind(event.KindVisibilityChanged) {
		if e.(*event.VisibilityChanged).External {
			external++
		}
	}
	assert.Equal(t, 1, external)
}

func TestEngine_IllegalExternalTransition(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	changed, err := f.engine.SetVisibility(ctx, "t1", "p3", status.Solved)
	require.NoError(t, err)
	assert.False(t, changed)

	st, err := f.engine.Visibility(ctx, "t1", "p3")
	require.NoError(t, err)
	assert.Equal(t, status.Invisible, st)
	assert.Empty(t, f.rec.OfKind(event.KindVisibilityChanged))
}

func TestEngine_NotConverged(t *testing.T) {
	ctx := context.Background()
	plugin := newChainPlugin("p1")
	plugin.setCalculator(CalculatorFunc(func(_ context.Context, snap Snapshot) (Updates, error) {
		n := hunt.Int(0)
		if v, ok := snap.Property("counter"); ok {
			n = v.(hunt.Int)
		}
		return Updates{Properties: map[string]hunt.Value{"counter": n + 1}}, nil
	}))
	f := newEngineFixtureWith(t, Config{MaxPasses: 5}, plugin)

	err := f.engine.Propagate(ctx, "t1")
	require.Error(t, err)
	assert.True(t, IsNotConverged(err))

	var nc *NotConvergedError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, "t1", nc.Team)
	assert.Equal(t, 5, nc.Limit)

	// Every completed pass was applied.
	props, err := f.engine.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, hunt.Int(5), props["counter"])

	// Through an event the error surfaces after the start marker committed.
	started, err := f.engine.StartRun(ctx, "run-1")
	assert.True(t, started)
	assert.True(t, IsNotConverged(err))
}

// bareChain hides the PropertyKeyer of a chainPlugin.
type bareChain struct{ p *chainPlugin }

func (b bareChain) Policy() status.Policy { return b.p.Policy() }

func (b bareChain) Puzzles() []hunt.PuzzleID { return b.p.Puzzles() }

func (b bareChain) Calculator() Calculator { return b.p.Calculator() }

func (b bareChain) Register(d *event.Dispatcher, s *progress.Store) error {
	return b.p.Register(d, s)
}

// countTo proposes "counter" one higher per pass until it reaches limit.
func countTo(limit hunt.Int) Calculator {
	return CalculatorFunc(func(_ context.Context, snap Snapshot) (Updates, error) {
		n := hunt.Int(0)
		if v, ok := snap.Property("counter"); ok {
			n = v.(hunt.Int)
		}
		return Updates{Properties: map[string]hunt.Value{"counter": min(n+1, limit)}}, nil
	})
}

func TestEngine_UndeclaredPropertyKeysWidenDerivedCap(t *testing.T) {
	ctx := context.Background()
	plugin := newChainPlugin("p1")
	plugin.setCalculator(countTo(8))

	e, err := New(Config{Clock: testutil.NewSteppingClock(time.Second)}, testutil.OpenStore(t), bareChain{plugin})
	require.NoError(t, err)
	require.Equal(t, DefaultPassLimit(1, 4, 0), e.MaxPasses(), "nothing declared")
	require.NoError(t, e.Bootstrap(ctx, "run-1", "t1"))

	require.NoError(t, e.Propagate(ctx, "t1"), "nine passes fit once the key is seen")

	props, err := e.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, hunt.Int(8), props["counter"])
}

func TestEngine_InventedKeysStillDiverge(t *testing.T) {
	plugin := newChainPlugin("p1")
	plugin.setCalculator(CalculatorFunc(func(_ context.Context, snap Snapshot) (Updates, error) {
		key := fmt.Sprintf("k%d", len(snap.Properties))
		return Updates{Properties: map[string]hunt.Value{key: hunt.Bool(true)}}, nil
	}))

	e, err := New(Config{Clock: testutil.NewSteppingClock(time.Second)}, testutil.OpenStore(t), bareChain{plugin})
	require.NoError(t, err)
	require.NoError(t, e.Bootstrap(context.Background(), "run-1", "t1"))

	err = e.Propagate(context.Background(), "t1")
	require.True(t, IsNotConverged(err))

	var nc *NotConvergedError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, DefaultPassLimit(1, 4, maxDerivedKeys), nc.Limit)
}

func TestEngine_ExplicitCapIsNotWidened(t *testing.T) {
	plugin := newChainPlugin("p1")
	plugin.setCalculator(countTo(8))

	e, err := New(Config{MaxPasses: 5, Clock: testutil.NewSteppingClock(time.Second)}, testutil.OpenStore(t), bareChain{plugin})
	require.NoError(t, err)
	require.NoError(t, e.Bootstrap(context.Background(), "run-1", "t1"))

	assert.True(t, IsNotConverged(e.Propagate(context.Background(), "t1")))
}

func TestEngine_CalculatorFailure(t *testing.T) {
	boom := errors.New("boom")
	plugin := newChainPlugin("p1")
	plugin.setCalculator(CalculatorFunc(func(context.Context, Snapshot) (Updates, error) {
		return Updates{}, boom
	}))
	f := newEngineFixtureWith(t, Config{}, plugin)

	err := f.engine.Propagate(context.Background(), "t1")
	assert.True(t, IsCalculatorError(err))
	assert.ErrorIs(t, err, boom)
}

func TestEngine_UnknownTeam(t *testing.T) {
	f := newEngineFixture(t, Config{})

	err := f.engine.Propagate(context.Background(), "ghost")
	assert.True(t, hunt.IsNotFound(err))

	_, err = f.engine.Board(context.Background(), "ghost")
	assert.True(t, hunt.IsNotFound(err))
}

func TestEngine_BoardOrder(t *testing.T) {
	f := newEngineFixture(t, Config{})

	vs, err := f.engine.Board(context.Background(), "t1")
	require.NoError(t, err)

	var got []hunt.PuzzleID
	for _, v := range vs {
		got = append(got, v.Puzzle)
	}
	assert.Equal(t, []hunt.PuzzleID{"p1", "p2", "p3"}, got)
	assert.Equal(t, f.engine.Puzzles(), got)
}

func TestEngine_ResetHunt(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, Config{})

	_, err := f.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)
	f.solve(t, "t1", "p1")

	require.NoError(t, f.engine.ResetHunt(ctx, "run-1"))

	run, err := f.engine.RunInfo(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, run.StartedAt)

	explicit, err := f.engine.ExplicitVisibilities(ctx, hunt.VisibilityFilter{Team: "t1"})
	require.NoError(t, err)
	assert.Empty(t, explicit)

	teams, err := f.engine.Teams(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []hunt.TeamID{"t1"}, teams)

	// The run can be started again from scratch.
	started, err := f.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, status.Unlocked, f.board(t, "t1")["p1"])
}

func TestEngine_IndependentInstances(t *testing.T) {
	ctx := context.Background()
	a := newEngineFixture(t, Config{})
	b := newEngineFixture(t, Config{})

	_, err := a.engine.StartRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, status.Unlocked, a.board(t, "t1")["p1"])
	assert.Equal(t, status.Invisible, b.board(t, "t1")["p1"])
}

func TestEngine_ObserversSeeDispatchOrder(t *testing.T) {
	obs := &event.Recorder{}
	f := newEngineFixture(t, Config{Observers: []event.Processor{obs}})

	_, err := f.engine.StartRun(context.Background(), "run-1")
	require.NoError(t, err)

	kinds := func(events []event.Event) []event.Kind {
		out := make([]event.Kind, 0, len(events))
		for _, e := range events {
			out = append(out, e.Kind())
		}
		return out
	}

	// Observers run before the propagator; a late recorder sees nested
	// events first.
	assert.Equal(t, []event.Kind{
		event.KindHuntStarted,
		event.KindPropertyChanged,
		event.KindVisibilityChanged,
	}, kinds(obs.Events()))
	assert.Equal(t, []event.Kind{
		event.KindPropertyChanged,
		event.KindVisibilityChanged,
		event.KindHuntStarted,
	}, kinds(f.rec.Events()))
}
