package constraint

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoctx/convoctx/types"
)

func TestExtractCorrection(t *testing.T) {
	convID := uuid.New()
	e := NewExtractor()

	candidates := e.Extract(convID, nil, "Actually I'm 27, not 26", 3)

	require.Len(t, candidates, 1)
	cand := candidates[0]
	assert.Equal(t, TypeCorrection, cand.Type)
	assert.Equal(t, KeyNumericFact, cand.Key)
	assert.Equal(t, convID, cand.ConversationID)
	assert.Equal(t, 3, cand.TurnNumber)

	v, ok := cand.Value.(CorrectionValue)
	require.True(t, ok)
	// "I'm 27, not 26" reads as 27 replacing 26.
	assert.Equal(t, "26", v.OldValue)
	assert.Equal(t, "27", v.NewValue)
}

func TestExtractCorrectionOldToNew(t *testing.T) {
	e := NewExtractor()

	candidates := e.Extract(uuid.New(), nil, "I said 26 but actually 27", 2)

	require.Len(t, candidates, 1)
	v, ok := candidates[0].Value.(CorrectionValue)
	require.True(t, ok)
	assert.Equal(t, "26", v.OldValue)
	assert.Equal(t, "27", v.NewValue)
}

func TestExtractIdempotentWithinCall(t *testing.T) {
	// Both correction patterns match the same pair; only one candidate
	// may come out.
	e := NewExtractor()

	candidates := e.Extract(uuid.New(), nil, "it is 26 but really it is 27, not 26", 4)

	var corrections []Candidate
	for _, c := range candidates {
		if c.Type == TypeCorrection {
			corrections = append(corrections, c)
		}
	}
	seen := map[CorrectionValue]int{}
	for _, c := range corrections {
		seen[c.Value.(CorrectionValue)]++
	}
	for pair, n := range seen {
		assert.Equalf(t, 1, n, "pair %v emitted %d times", pair, n)
	}
}

func TestExtractSameValueNoCorrection(t *testing.T) {
	e := NewExtractor()
	candidates := e.Extract(uuid.New(), nil, "it is 26, not 26", 1)
	for _, c := range candidates {
		assert.NotEqual(t, TypeCorrection, c.Type)
	}
}

func TestExtractPreference(t *testing.T) {
	e := NewExtractor()

	candidates := e.Extract(uuid.New(), nil, "I prefer short bullet answers please", 1)

	require.Len(t, candidates, 1)
	assert.Equal(t, TypePreference, candidates[0].Type)
	assert.Equal(t, KeyAnswerStyle, candidates[0].Key)
	assert.Equal(t, PreferenceValue{Style: "short_bullet_points"}, candidates[0].Value)
}

func TestExtractTechnicalDepth(t *testing.T) {
	e := NewExtractor()

	candidates := e.Extract(uuid.New(), nil, "I don't really like technical detail", 1)

	require.Len(t, candidates, 1)
	assert.Equal(t, KeyTechnicalDepth, candidates[0].Key)
	assert.Equal(t, PreferenceValue{Depth: "minimal_unless_asked"}, candidates[0].Value)
}

func TestExtractMetricsRule(t *testing.T) {
	e := NewExtractor()

	candidates := e.Extract(uuid.New(), nil, `When I say "metrics" I mean DAU, WAU, MAU`, 2)

	require.Len(t, candidates, 1)
	cand := candidates[0]
	assert.Equal(t, TypeRule, cand.Type)
	assert.Equal(t, KeyMetricsDefinition, cand.Key)
	v, ok := cand.Value.(RuleValue)
	require.True(t, ok)
	assert.Equal(t, []string{"DAU", "WAU", "MAU"}, v.AllowedMetrics)
}

func TestExtractDashboardRule(t *testing.T) {
	e := NewExtractor()

	candidates := e.Extract(uuid.New(), nil, "when I say dashboard I always mean the web one", 2)

	require.Len(t, candidates, 1)
	assert.Equal(t, KeyDashboardDefinition, candidates[0].Key)
	assert.Equal(t, RuleValue{DashboardType: "web"}, candidates[0].Value)
}

func TestExtractBan(t *testing.T) {
	e := NewExtractor()

	candidates := e.Extract(uuid.New(), nil, "Please never suggest MongoDB again", 6)

	require.Len(t, candidates, 1)
	assert.Equal(t, TypeBan, candidates[0].Type)
	assert.Equal(t, KeyTechBan, candidates[0].Key)
	assert.Equal(t, BanValue{BannedItem: "MongoDB"}, candidates[0].Value)
}

func TestExtractNothing(t *testing.T) {
	e := NewExtractor()
	candidates := e.Extract(uuid.New(), nil, "hello, how are you today?", 1)
	assert.Empty(t, candidates)
}

func TestExtractUsesTrailingWindow(t *testing.T) {
	e := NewExtractor()

	// The preference sits in a recent message, not the incoming one.
	recent := []types.Message{
		types.User("let's talk about databases"),
		types.Assistant("sure, what would you like to know?"),
		types.User("I prefer concise answers by the way"),
	}
	candidates := e.Extract(uuid.New(), recent, "tell me about indexes", 5)

	require.Len(t, candidates, 1)
	assert.Equal(t, KeyAnswerStyle, candidates[0].Key)
}

func TestExtractRerunIsDeterministic(t *testing.T) {
	e := NewExtractor()
	text := "Actually I'm 27, not 26, and I prefer brief answers"

	first := e.Extract(uuid.Nil, nil, text, 2)
	second := e.Extract(uuid.Nil, nil, text, 2)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Equivalent(second[i]))
	}
}

// customDetector exercises registry extension without touching call
// sites.
type customDetector struct{}

func (customDetector) Name() string { return "custom" }

func (customDetector) Detect(text string, turnNumber int) []Candidate {
	return []Candidate{{
		Type:       TypeFact,
		Key:        "always",
		Value:      FactValue{Fields: map[string]any{"seen": true}},
		TurnNumber: turnNumber,
	}}
}

func TestExtractorCustomRegistry(t *testing.T) {
	e := NewExtractor(customDetector{})
	candidates := e.Extract(uuid.New(), nil, "anything at all", 9)

	require.Len(t, candidates, 1)
	assert.Equal(t, TypeFact, candidates[0].Type)
	assert.Equal(t, 9, candidates[0].TurnNumber)
}
