package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hunt/internal/hunt"
)

// TestRunWithGolden_Scenarios compares every example scenario's trace with
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -run TestRunWithGolden_Scenarios -update
func TestRunWithGolden_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/linear_chain.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, "linear_chain", result))
}

func TestMarshalTrace(t *testing.T) {
	trace := []TraceEvent{
		{Seq: 1, Kind: "hunt_started", Run: "run-1"},
		{Seq: 2, Kind: "property_changed", Team: "t1", Key: "solves", Value: hunt.Int(0)},
		{Seq: 3, Kind: "visibility_changed", Team: "t1", Puzzle: "p1", Status: "UNLOCKED", Previous: "INVISIBLE", External: true},
	}

	data, err := MarshalTrace(trace)
	require.NoError(t, err)

	assert.Equal(t,
		`{"kind":"hunt_started","run":"run-1","seq":1}`+"\n"+
			`{"key":"solves","kind":"property_changed","seq":2,"team":"t1","value":0}`+"\n"+
			`{"external":true,"kind":"visibility_changed","previous":"INVISIBLE","puzzle":"p1","seq":3,"status":"UNLOCKED","team":"t1"}`+"\n",
		string(data))
}

func TestMarshalTrace_Empty(t *testing.T) {
	data, err := MarshalTrace(nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}
