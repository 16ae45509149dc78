package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hunt/internal/hunt"
)

func TestStandard_Antecedents(t *testing.T) {
	p := Standard()

	assert.Empty(t, p.Antecedents(Invisible))
	assert.Equal(t, []hunt.Status{Invisible}, p.Antecedents(Visible))
	assert.Equal(t, []hunt.Status{Invisible, Visible}, p.Antecedents(Unlocked))
	assert.Equal(t, []hunt.Status{Unlocked}, p.Antecedents(Solved))
}

func TestStandard_Successors(t *testing.T) {
	p := Standard()

	assert.Equal(t, []hunt.Status{Visible, Unlocked}, p.Successors(Invisible))
	assert.Equal(t, []hunt.Status{Unlocked}, p.Successors(Visible))
	assert.Equal(t, []hunt.Status{Solved}, p.Successors(Unlocked))
	assert.Empty(t, p.Successors(Solved))
}

func TestStandard_Submission(t *testing.T) {
	p := Standard()

	assert.True(t, p.AllowsSubmission(Unlocked))
	assert.False(t, p.AllowsSubmission(Visible))
	assert.False(t, p.AllowsSubmission(Solved))
	assert.Equal(t, Invisible, p.Default())
}

func TestTable_UnknownStatusProbesEmpty(t *testing.T) {
	p := Standard()

	assert.False(t, p.IsAllowed("BOGUS"))
	assert.False(t, p.AllowsSubmission("BOGUS"))
	assert.Empty(t, p.Antecedents("BOGUS"))
	assert.Empty(t, p.Successors("BOGUS"))
}

func TestTable_StatusesAreCopies(t *testing.T) {
	p := Standard()

	got := p.Statuses()
	got[0] = "MUTATED"

	assert.Equal(t, Invisible, p.Statuses()[0])
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{
			name:    "empty",
			spec:    Spec{},
			wantErr: "at least one status",
		},
		{
			name:    "duplicate",
			spec:    Spec{Statuses: []hunt.Status{"A", "A"}, Default: "A"},
			wantErr: "duplicate",
		},
		{
			name:    "bad default",
			spec:    Spec{Statuses: []hunt.Status{"A"}, Default: "B"},
			wantErr: "default",
		},
		{
			name:    "bad submittable",
			spec:    Spec{Statuses: []hunt.Status{"A"}, Default: "A", Submittable: []hunt.Status{"B"}},
			wantErr: "submittable",
		},
		{
			name: "unknown antecedent",
			spec: Spec{
				Statuses:    []hunt.Status{"A", "B"},
				Default:     "A",
				Antecedents: map[hunt.Status][]hunt.Status{"B": {"C"}},
			},
			wantErr: "unknown antecedent",
		},
		{
			name: "unknown target",
			spec: Spec{
				Statuses:    []hunt.Status{"A"},
				Default:     "A",
				Antecedents: map[hunt.Status][]hunt.Status{"Z": {"A"}},
			},
			wantErr: "unknown status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsAntecedent(t *testing.T) {
	p := Standard()

	assert.True(t, IsAntecedent(p, Unlocked, Solved))
	assert.False(t, IsAntecedent(p, Invisible, Solved))
}
