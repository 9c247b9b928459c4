package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValueByType(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		raw  string
		want Value
	}{
		{
			name: "preference",
			typ:  TypePreference,
			raw:  `{"style":"short_bullet_points"}`,
			want: PreferenceValue{Style: "short_bullet_points"},
		},
		{
			name: "rule",
			typ:  TypeRule,
			raw:  `{"allowed_metrics":["DAU","WAU"]}`,
			want: RuleValue{AllowedMetrics: []string{"DAU", "WAU"}},
		},
		{
			name: "correction",
			typ:  TypeCorrection,
			raw:  `{"old_value":"26","new_value":"27"}`,
			want: CorrectionValue{OldValue: "26", NewValue: "27"},
		},
		{
			name: "ban",
			typ:  TypeBan,
			raw:  `{"banned_item":"MongoDB"}`,
			want: BanValue{BannedItem: "MongoDB"},
		},
		{
			name: "unknown type falls back to raw map",
			typ:  Type("hunch"),
			raw:  `{"anything":"goes"}`,
			want: RawValue{"anything": "goes"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeValue(tt.typ, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := CorrectionValue{OldValue: "26", NewValue: "27"}

	raw, err := EncodeValue(orig)
	require.NoError(t, err)

	got, err := DecodeValue(TypeCorrection, raw)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestEncodeValueNil(t *testing.T) {
	_, err := EncodeValue(nil)
	assert.Error(t, err)
}

func TestCandidateEquivalent(t *testing.T) {
	a := Candidate{Type: TypeCorrection, Key: KeyNumericFact, Value: CorrectionValue{OldValue: "26", NewValue: "27"}}
	b := a
	assert.True(t, a.Equivalent(b))

	b.Value = CorrectionValue{OldValue: "26", NewValue: "28"}
	assert.False(t, a.Equivalent(b))

	// Turn number does not affect equivalence.
	c := a
	c.TurnNumber = 40
	assert.True(t, a.Equivalent(c))
}

func TestCandidateSupersedes(t *testing.T) {
	assert.True(t, Candidate{Type: TypeCorrection}.Supersedes())
	assert.False(t, Candidate{Type: TypePreference}.Supersedes())
	assert.False(t, Candidate{Type: TypeBan}.Supersedes())
}
