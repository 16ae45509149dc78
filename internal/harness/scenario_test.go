package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeHunt creates an empty hunt file; loading only checks it exists.
func writeHunt(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "hunt.cue")
	require.NoError(t, os.WriteFile(path, []byte("hunt: {}"), 0644))
	return path
}

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	writeHunt(t, dir)

	path := writeScenario(t, dir, "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
hunt: hunt.cue
run: spring
teams: [t1, t2]
steps:
  - action: start
    expect: changed
  - action: submit
    team: t1
    puzzle: p1
    correct: false
assertions:
  - type: status
    team: t1
    puzzle: p1
    status: UNLOCKED
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "hunt.cue"), scenario.Hunt)
	assert.Equal(t, "spring", scenario.Run)
	assert.Equal(t, []string{"t1", "t2"}, scenario.Teams)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, ExpectChanged, scenario.Steps[0].Expect)
	require.NotNil(t, scenario.Steps[1].Correct)
	assert.False(t, *scenario.Steps[1].Correct)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "bad.yaml", "name: [unclosed")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeHunt(t, dir)

	const assertions = `
assertions:
  - type: trace_count
    event: { kind: hunt_started }
    count: 0
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing name", "description: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: start}]" + assertions, "name is required"},
		{"missing description", "name: n\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: start}]" + assertions, "description is required"},
		{"missing hunt", "name: n\ndescription: d\nteams: [t1]\nsteps: [{action: start}]" + assertions, "hunt is required"},
		{"hunt not found", "name: n\ndescription: d\nhunt: gone.cue\nteams: [t1]\nsteps: [{action: start}]" + assertions, "hunt file not found"},
		{"missing teams", "name: n\ndescription: d\nhunt: hunt.cue\nsteps: [{action: start}]" + assertions, "teams list is required"},
		{"missing steps", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]" + assertions, "steps list is required"},
		{"missing assertions", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: start}]\n", "assertions list is required"},
		{"unknown action", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: fly}]" + assertions, `unknown action "fly"`},
		{"submit without puzzle", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: submit, team: t1}]" + assertions, "puzzle is required for submit"},
		{"set without status", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: set, team: t1, puzzle: p1}]" + assertions, "status is required for set"},
		{"bad duration", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: advance, duration: soon}]" + assertions, `invalid duration "soon"`},
		{"bad expect", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: start, expect: maybe}]" + assertions, "expect must be"},
		{"expect on submit", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: submit, team: t1, puzzle: p1, expect: changed}]" + assertions, "expect is only supported"},
		{"parallel on submit", "name: n\ndescription: d\nhunt: hunt.cue\nteams: [t1]\nsteps: [{action: submit, team: t1, puzzle: p1, parallel: 2}]" + assertions, "parallel is only supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, dir, "scenario.yaml", tt.yaml)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_AssertionValidation(t *testing.T) {
	dir := t.TempDir()
	writeHunt(t, dir)

	tests := []struct {
		name      string
		assertion string
		wantErr   string
	}{
		{"status without puzzle", "{type: status, team: t1, status: SOLVED}", "puzzle required for status"},
		{"property without value", "{type: property, team: t1, key: solves}", "value required for property"},
		{"history without team", "{type: history, puzzle: p1}", "team required for history"},
		{"contains without event", "{type: trace_contains}", "event.kind required"},
		{"negative count", "{type: trace_count, event: {kind: hunt_started}, count: -1}", "count must be non-negative"},
		{"order with one event", "{type: trace_order, events: [{kind: hunt_started}]}", "at least two events"},
		{"unknown type", "{type: final_state}", `unknown assertion type "final_state"`},
		{"missing type", "{team: t1}", "type is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, dir, "scenario.yaml", fmt.Sprintf(`
name: n
description: d
hunt: hunt.cue
teams: [t1]
steps: [{action: start}]
assertions:
  - %s
`, tt.assertion))
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	// YAML files with typos (unknown fields) should be rejected
	dir := t.TempDir()
	writeHunt(t, dir)

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "typo_assertion_singular",
			yaml: `
name: test
description: Test typo
hunt: hunt.cue
teams: [t1]
steps: [{action: start}]
assertion:
  - {type: trace_count, event: {kind: hunt_started}, count: 1}
`,
			wantErr: "field assertion not found",
		},
		{
			name: "typo_in_step",
			yaml: `
name: test
description: Test typo
hunt: hunt.cue
teams: [t1]
steps:
  - actoin: start
assertions:
  - {type: trace_count, event: {kind: hunt_started}, count: 1}
`,
			wantErr: "field actoin not found",
		},
		{
			name: "typo_in_event_match",
			yaml: `
name: test
description: Test typo
hunt: hunt.cue
teams: [t1]
steps: [{action: start}]
assertions:
  - {type: trace_count, event: {knd: hunt_started}, count: 1}
`,
			wantErr: "field knd not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, dir, tt.name+".yaml", tt.yaml)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_AbsoluteHuntPath(t *testing.T) {
	huntDir := t.TempDir()
	huntPath := writeHunt(t, huntDir)

	path := writeScenario(t, t.TempDir(), "abs.yaml", fmt.Sprintf(`
name: abs
description: Absolute hunt path
hunt: %s
teams: [t1]
steps: [{action: start}]
assertions:
  - {type: trace_count, event: {kind: hunt_started}, count: 1}
`, huntPath))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, huntPath, scenario.Hunt)
}

// TestLoadExampleScenarios validates the scenario files in testdata/scenarios.
// These serve as documentation and regression tests.
func TestLoadExampleScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"double_unlock", "illegal_transition", "linear_chain", "timed_release"}, names)
}

func TestLoadScenarios_EmptyDir(t *testing.T) {
	scenarios, err := LoadScenarios(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, scenarios)
}
