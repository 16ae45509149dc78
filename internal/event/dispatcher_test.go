package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(
		WithIDGenerator(NewSequenceGenerator("test")),
		WithClock(fixedClock{t: time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)}),
	)
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := newTestDispatcher()
	var order []string

	for _, name := range []string{"first", "second", "third"} {
		name := name
		d.Register(name, ProcessorFunc(func(ctx context.Context, e Event) error {
			order = append(order, name)
			return nil
		}))
	}

	require.NoError(t, d.Process(context.Background(), &HuntStarted{Run: "run-1"}))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestDispatcher_KindFilter(t *testing.T) {
	d := newTestDispatcher()
	var seen []Kind

	d.Register("ticks", ProcessorFunc(func(ctx context.Context, e Event) error {
		seen = append(seen, e.Kind())
		return nil
	}), KindTimerTick)

	ctx := context.Background()
	require.NoError(t, d.Process(ctx, &HuntStarted{Run: "run-1"}))
	require.NoError(t, d.Process(ctx, &TimerTick{Run: "run-1"}))

	assert.Equal(t, []Kind{KindTimerTick}, seen)
}

func TestDispatcher_FailFast(t *testing.T) {
	d := newTestDispatcher()
	boom := errors.New("boom")
	ranAfter := false

	d.Register("fails", ProcessorFunc(func(ctx context.Context, e Event) error {
		return boom
	}))
	d.Register("after", ProcessorFunc(func(ctx context.Context, e Event) error {
		ranAfter = true
		return nil
	}))

	err := d.Process(context.Background(), &TimerTick{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fails")
	assert.False(t, ranAfter, "processors after a failure must not run")
}

func TestDispatcher_StampsMeta(t *testing.T) {
	d := newTestDispatcher()
	ev := &SubmissionJudged{Team: "t1", Puzzle: "p1", Correct: true}

	require.NoError(t, d.Process(context.Background(), ev))

	assert.Equal(t, "test-1", ev.ID)
	assert.Equal(t, time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC), ev.At)
}

func TestDispatcher_KeepsExistingMeta(t *testing.T) {
	d := newTestDispatcher()
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	ev := &TimerTick{Meta: Meta{ID: "given", At: at}}

	require.NoError(t, d.Process(context.Background(), ev))

	assert.Equal(t, "given", ev.ID)
	assert.Equal(t, at, ev.At)
}

func TestOn_TypedHandler(t *testing.T) {
	d := newTestDispatcher()
	var got *SubmissionJudged

	On(d, "judge", func(ctx context.Context, e *SubmissionJudged) error {
		got = e
		return nil
	})

	ctx := context.Background()
	require.NoError(t, d.Process(ctx, &TimerTick{}))
	assert.Nil(t, got)

	require.NoError(t, d.Process(ctx, &SubmissionJudged{Team: "t1", Puzzle: "p1", Correct: true}))
	require.NotNil(t, got)
	assert.Equal(t, "p1", string(got.Puzzle))
}

func TestOnCustom(t *testing.T) {
	d := newTestDispatcher()
	calls := 0

	OnCustom(d, "bonus", "bonus_round", func(ctx context.Context, e *Custom) error {
		calls++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, d.Process(ctx, &Custom{Name: "other"}))
	require.NoError(t, d.Process(ctx, &Custom{Name: "bonus_round", Team: "t1"}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, Kind("custom:bonus_round"), (&Custom{Name: "bonus_round"}).Kind())
}

func TestDispatcher_NestedDispatchIsDepthFirst(t *testing.T) {
	d := newTestDispatcher()
	rec := &Recorder{}

	On(d, "cascade", func(ctx context.Context, e *SubmissionJudged) error {
		return d.Process(ctx, &VisibilityChanged{Team: e.Team, Puzzle: e.Puzzle, Status: "SOLVED"})
	})
	d.Register("recorder", rec)

	require.NoError(t, d.Process(context.Background(), &SubmissionJudged{Team: "t1", Puzzle: "p1", Correct: true}))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, KindVisibilityChanged, events[0].Kind(), "nested event is recorded before the outer one")
	assert.Equal(t, KindSubmissionJudged, events[1].Kind())
}

func TestRecorder_OfKind(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	_ = rec.Process(ctx, &TimerTick{})
	_ = rec.Process(ctx, &HuntStarted{})
	_ = rec.Process(ctx, &TimerTick{})

	assert.Len(t, rec.OfKind(KindTimerTick), 2)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestTeamOf(t *testing.T) {
	assert.Equal(t, "t1", string(TeamOf(&HintResolved{Team: "t1"})))
	assert.Equal(t, "", string(TeamOf(&HuntStarted{Run: "r"})))
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "evt-1", g.Generate())
	assert.Equal(t, "evt-2", g.Generate())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
