package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hunt/internal/hunt"
)

func TestAnalyzeCycles_NoRules(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(&Definition{}))
}

func TestAnalyzeCycles_Linear(t *testing.T) {
	def, err := CompileFile("testdata/linear.cue")
	require.NoError(t, err)

	assert.Empty(t, AnalyzeCycles(def))
}

func TestAnalyzeCycles_Cyclic(t *testing.T) {
	def, err := CompileFile("testdata/cyclic.cue")
	require.NoError(t, err)

	warnings := AnalyzeCycles(def)
	require.Len(t, warnings, 2)

	assert.Equal(t, []string{"a", "b", "a"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "a → b → a")

	assert.Equal(t, []string{"c", "c"}, warnings[1].Path)
	assert.Contains(t, warnings[1].Message, "waits on itself")
}

func TestAnalyzeCycles_ThreeWay(t *testing.T) {
	solved := func(p hunt.PuzzleID) Condition { return Condition{Solved: []hunt.PuzzleID{p}} }
	def := &Definition{Rules: []RuleSpec{
		{Puzzle: "x", Status: "OPEN", When: solved("z")},
		{Puzzle: "y", Status: "OPEN", When: solved("x")},
		{Puzzle: "z", Status: "OPEN", When: Condition{Any: []Condition{solved("y"), {HuntStarted: true}}}},
		{Puzzle: "w", Status: "OPEN", When: solved("x")},
	}}

	warnings := AnalyzeCycles(def)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"x", "y", "z", "x"}, warnings[0].Path)
}

func TestWaitGraph_ComponentsDeterministic(t *testing.T) {
	solved := func(p hunt.PuzzleID) Condition { return Condition{Solved: []hunt.PuzzleID{p}} }
	rules := []RuleSpec{
		{Puzzle: "b", Status: "OPEN", When: solved("a")},
		{Puzzle: "a", Status: "OPEN", When: solved("b")},
		{Puzzle: "c", Status: "OPEN", When: Condition{HuntStarted: true}},
	}
	for i := 0; i < 10; i++ {
		g := newWaitGraph(rules)
		assert.Equal(t, [][]hunt.PuzzleID{{"a", "b"}, {"c"}}, g.components())
		assert.True(t, g.waitsOn("b", "a"))
		assert.False(t, g.waitsOn("c", "c"))
	}
}
