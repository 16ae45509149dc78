package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
)

func TestSetTeamProperty_ChangeDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	changed, err := f.progress.SetTeamProperty(ctx, "t1", "tokens", hunt.Int(2))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.progress.SetTeamProperty(ctx, "t1", "tokens", hunt.Int(2))
	require.NoError(t, err)
	assert.False(t, changed, "equal value is a no-op")

	changed, err = f.progress.SetTeamProperty(ctx, "t1", "tokens", hunt.Int(3))
	require.NoError(t, err)
	assert.True(t, changed)

	events := f.rec.OfKind(event.KindPropertyChanged)
	require.Len(t, events, 2, "no event for the no-op write")
	assert.Equal(t, hunt.Int(3), events[1].(*event.PropertyChanged).Value)
}

func TestSetTeamProperty_MapKeyOrderIsIrrelevant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.progress.SetTeamProperty(ctx, "t1", "meta", hunt.Map{"a": hunt.Int(1), "b": hunt.Bool(true)})
	require.NoError(t, err)

	changed, err := f.progress.SetTeamProperty(ctx, "t1", "meta", hunt.Map{"b": hunt.Bool(true), "a": hunt.Int(1)})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSetTeamProperty_NormalizesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.progress.SetTeamProperty(ctx, "t1", "cafe\u0301", hunt.String("x"))
	require.NoError(t, err)
	changed, err := f.progress.SetTeamProperty(ctx, "t1", "caf\u00e9", hunt.String("x"))
	require.NoError(t, err)
	assert.False(t, changed, "NFC-equal keys address one property")

	props, err := f.progress.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]hunt.Value{"caf\u00e9": hunt.String("x")}, props)
}

func TestSetTeamProperty_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.progress.SetTeamProperty(ctx, "t1", "", hunt.Int(1))
	assert.Error(t, err)

	_, err = f.progress.SetTeamProperty(ctx, "t1", "k", nil)
	assert.Error(t, err)

	_, err = f.progress.SetTeamProperty(ctx, "ghost", "k", hunt.Int(1))
	assert.True(t, hunt.IsNotFound(err))
}

func TestCompareAndSetTeamProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	changed, err := f.progress.CompareAndSetTeamProperty(ctx, "t1", "tokens", nil, hunt.Int(2))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.progress.CompareAndSetTeamProperty(ctx, "t1", "tokens", hunt.Int(5), hunt.Int(1))
	require.NoError(t, err)
	assert.False(t, changed, "stale expected value")

	changed, err = f.progress.CompareAndSetTeamProperty(ctx, "t1", "tokens", hunt.Int(2), hunt.Int(2))
	require.NoError(t, err)
	assert.False(t, changed, "equal value is a no-op")

	changed, err = f.progress.CompareAndSetTeamProperty(ctx, "t1", "tokens", hunt.Int(2), hunt.Int(1))
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Len(t, f.rec.OfKind(event.KindPropertyChanged), 2)
}

func TestUpdateTeamProperty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inc := func(cur hunt.Value) (hunt.Value, error) {
		n, _ := cur.(hunt.Int)
		return n + 1, nil
	}

	changed, err := f.progress.UpdateTeamProperty(ctx, "t1", "solves", inc)
	require.NoError(t, err)
	assert.True(t, changed, "unset key starts from nil")

	changed, err = f.progress.UpdateTeamProperty(ctx, "t1", "solves", func(cur hunt.Value) (hunt.Value, error) {
		return cur, nil
	})
	require.NoError(t, err)
	assert.False(t, changed, "unchanged result writes nothing")

	boom := errors.New("boom")
	_, err = f.progress.UpdateTeamProperty(ctx, "t1", "solves", func(hunt.Value) (hunt.Value, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = f.progress.UpdateTeamProperty(ctx, "ghost", "solves", inc)
	assert.True(t, hunt.IsNotFound(err))

	props, err := f.progress.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, hunt.Int(1), props["solves"])
}

func TestUpdateTeamProperty_ConcurrentDecrements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.progress.SetTeamProperty(ctx, "t1", "tokens", hunt.Int(20))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := f.progress.UpdateTeamProperty(ctx, "t1", "tokens", func(cur hunt.Value) (hunt.Value, error) {
				return cur.(hunt.Int) - 1, nil
			})
			assert.NoError(t, err)
			assert.True(t, changed)
		}()
	}
	wg.Wait()

	props, err := f.progress.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, hunt.Int(20-workers), props["tokens"], "every decrement lands")
	assert.Len(t, f.rec.OfKind(event.KindPropertyChanged), 1+workers)
}

func TestTeamProperties_Decodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	props, err := f.progress.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.NotNil(t, props)
	assert.Empty(t, props)

	_, err = f.progress.SetTeamProperty(ctx, "t1", "solved", hunt.List{hunt.String("p1")})
	require.NoError(t, err)

	props, err = f.progress.TeamProperties(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, hunt.List{hunt.String("p1")}, props["solved"])
}
