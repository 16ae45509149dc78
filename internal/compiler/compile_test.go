package compiler

import (
	"testing"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hunt/internal/hunt"
)

const minimalHunt = `
hunt: {
	statuses: ["LOCKED", "OPEN", "DONE"]
	default: "LOCKED"
	submittable: ["OPEN"]
	antecedents: { OPEN: ["LOCKED"], DONE: ["OPEN"] }
	puzzles: ["a"]
	solved_status: "DONE"
}
`

func TestCompileFile_Linear(t *testing.T) {
	def, err := CompileFile("testdata/linear.cue")
	require.NoError(t, err)

	assert.Equal(t, "linear", def.Name)
	assert.Equal(t, []hunt.Status{"INVISIBLE", "VISIBLE", "UNLOCKED", "SOLVED"}, def.Statuses)
	assert.Equal(t, hunt.Status("INVISIBLE"), def.Default)
	assert.Equal(t, []hunt.Status{"UNLOCKED"}, def.Submittable)
	assert.Equal(t, []hunt.Status{"INVISIBLE", "VISIBLE"}, def.Antecedents["UNLOCKED"])
	assert.Equal(t, []hunt.PuzzleID{"p1", "p2", "p3", "meta"}, def.Puzzles)
	assert.Equal(t, hunt.Status("SOLVED"), def.SolvedStatus)
	assert.Equal(t, hunt.Status("UNLOCKED"), def.ReleaseStatus)

	require.Len(t, def.Rules, 5)
	assert.Equal(t, RuleSpec{Puzzle: "p1", Status: "UNLOCKED", When: Condition{HuntStarted: true}}, def.Rules[0])
	assert.Equal(t, []hunt.PuzzleID{"p1"}, def.Rules[1].When.Solved)

	p3 := def.Rules[3].When
	require.Len(t, p3.Any, 2)
	assert.Equal(t, []hunt.PuzzleID{"p2"}, p3.Any[0].Solved)
	assert.Equal(t, 2*time.Hour, p3.Any[1].AfterStart)

	assert.Equal(t, map[string]int64{"solves": 3}, def.Rules[4].When.PropertyAtLeast)

	require.Len(t, def.Properties, 1)
	assert.Equal(t, PropertySpec{Key: "solves", CountStatus: "SOLVED"}, def.Properties[0])
	assert.Equal(t, &HintSpec{Property: "hint_tokens", Initial: 2}, def.Hints)
}

func TestCompileString_Minimal(t *testing.T) {
	def, err := CompileString("minimal.cue", minimalHunt)
	require.NoError(t, err)

	assert.Empty(t, def.Name)
	assert.Empty(t, def.ReleaseStatus)
	assert.Empty(t, def.Rules)
	assert.Empty(t, def.Properties)
	assert.Nil(t, def.Hints)
}

func TestCompileHunt_Value(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(minimalHunt)
	require.NoError(t, v.Err())

	def, err := CompileHunt(v.LookupPath(cue.ParsePath("hunt")))
	require.NoError(t, err)
	assert.Equal(t, []hunt.PuzzleID{"a"}, def.Puzzles)
}

func TestCompileString_Conditions(t *testing.T) {
	src := `
hunt: {
	statuses: ["LOCKED", "OPEN", "DONE"]
	default: "LOCKED"
	submittable: ["OPEN"]
	antecedents: { OPEN: ["LOCKED"], DONE: ["OPEN"] }
	puzzles: ["a", "b", "c"]
	solved_status: "DONE"
	rules: [{
		puzzle: "c"
		status: "OPEN"
		when: {
			unlocked: ["a"]
			status: { b: "OPEN" }
			solved_count: 1
			all: [{ hunt_started: true }]
			not: { solved: ["b"] }
		}
	}]
	properties: [{ key: "track", initial: "blue" }]
}
`
	def, err := CompileString("conditions.cue", src)
	require.NoError(t, err)

	when := def.Rules[0].When
	assert.Equal(t, []hunt.PuzzleID{"a"}, when.Unlocked)
	assert.Equal(t, map[hunt.PuzzleID]hunt.Status{"b": "OPEN"}, when.Status)
	assert.Equal(t, 1, when.SolvedCount)
	require.Len(t, when.All, 1)
	assert.True(t, when.All[0].HuntStarted)
	require.NotNil(t, when.Not)
	assert.Equal(t, []hunt.PuzzleID{"b"}, when.Not.Solved)

	assert.Equal(t, []hunt.PuzzleID{"a", "b"}, when.References())
	assert.Equal(t, hunt.String("blue"), def.Properties[0].Initial)
}

func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "no hunt",
			src:   `other: 1`,
			field: "hunt",
		},
		{
			name:  "missing statuses",
			src:   `hunt: { default: "A", puzzles: ["a"], solved_status: "A" }`,
			field: "statuses",
		},
		{
			name:  "missing puzzles",
			src:   `hunt: { statuses: ["A"], default: "A", solved_status: "A" }`,
			field: "puzzles",
		},
		{
			name:  "rule without status",
			src:   `hunt: { statuses: ["A"], default: "A", puzzles: ["a"], solved_status: "A", rules: [{ puzzle: "a" }] }`,
			field: "rules[0].status",
		},
		{
			name:  "unknown condition",
			src:   `hunt: { statuses: ["A"], default: "A", puzzles: ["a"], solved_status: "A", rules: [{ puzzle: "a", status: "A", when: { sometimes: true } }] }`,
			field: "rules[0].when.sometimes",
		},
		{
			name:  "bad duration",
			src:   `hunt: { statuses: ["A"], default: "A", puzzles: ["a"], solved_status: "A", rules: [{ puzzle: "a", status: "A", when: { after_start: "soon" } }] }`,
			field: "rules[0].when.after_start",
		},
		{
			name:  "property without value",
			src:   `hunt: { statuses: ["A"], default: "A", puzzles: ["a"], solved_status: "A", properties: [{ key: "k" }] }`,
			field: "properties[0]",
		},
		{
			name:  "float initial",
			src:   `hunt: { statuses: ["A"], default: "A", puzzles: ["a"], solved_status: "A", properties: [{ key: "k", initial: 1.5 }] }`,
			field: "properties[0].initial",
		},
		{
			name:  "hints without property",
			src:   `hunt: { statuses: ["A"], default: "A", puzzles: ["a"], solved_status: "A", hints: { initial: 1 } }`,
			field: "hints.property",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString("bad.cue", tt.src)
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileString_SyntaxError(t *testing.T) {
	_, err := CompileString("broken.cue", `hunt: {`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompileFile_Missing(t *testing.T) {
	_, err := CompileFile("testdata/nope.cue")
	assert.Error(t, err)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "puzzles", Message: "puzzles is required"}
	assert.Equal(t, "puzzles: puzzles is required", err.Error())
}
