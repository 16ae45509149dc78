package hunt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalValue_Canonical(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"string", String("hi"), `"hi"`},
		{"int", Int(-42), `-42`},
		{"bool", Bool(true), `true`},
		{"empty list", List{}, `[]`},
		{"list", List{Int(1), String("a")}, `[1,"a"]`},
		{"map sorted", Map{"b": Int(2), "a": Int(1)}, `{"a":1,"b":2}`},
		{"no html escaping", String("<a&b>"), `"<a&b>"`},
		{"control escaped", String("a\nb\x01"), `"a\nb\u0001"`},
		{"nested", Map{"x": List{Map{"z": Bool(false)}}}, `{"x":[{"z":false}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalValue(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalValue_NFC(t *testing.T) {
	// e + combining acute vs precomposed e-acute.
	decomposed, err := MarshalValue(String("e\u0301"))
	require.NoError(t, err)
	composed, err := MarshalValue(String("\u00e9"))
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestMarshalValue_Nil(t *testing.T) {
	_, err := MarshalValue(nil)
	assert.Error(t, err)
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before
	// U+FF21 (0xFF21) in UTF-16, although its UTF-8 bytes sort after.
	m := Map{"Ａ": Int(1), "\U0001F600": Int(2), "a": Int(3)}

	assert.Equal(t, []string{"a", "\U0001F600", "Ａ"}, m.SortedKeys())
}

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"n": 3, "tags": ["a", true]}`))
	require.NoError(t, err)

	assert.Equal(t, Map{"n": Int(3), "tags": List{String("a"), Bool(true)}}, v)
}

func TestUnmarshalValue_Rejects(t *testing.T) {
	for _, input := range []string{`1.5`, `null`, `[1, null]`, `{`} {
		_, err := UnmarshalValue([]byte(input))
		assert.Error(t, err, "input %s", input)
	}
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(map[string]any{"a": []any{1, int64(2), json.Number("3")}})
	require.NoError(t, err)
	assert.Equal(t, Map{"a": List{Int(1), Int(2), Int(3)}}, v)

	_, err = ValueOf(2.5)
	assert.Error(t, err)

	_, err = ValueOf(struct{}{})
	assert.Error(t, err)
}

func TestNative_RoundTrip(t *testing.T) {
	in := Map{"s": String("x"), "l": List{Int(1), Bool(false)}}

	back, err := ValueOf(Native(in))
	require.NoError(t, err)
	assert.True(t, Equal(in, back))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Map{"a": Int(1), "b": Int(2)}, Map{"b": Int(2), "a": Int(1)}))
	assert.False(t, Equal(Int(1), String("1")))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(Int(1), nil))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "caf\u00e9", NormalizeKey("cafe\u0301"))
}
