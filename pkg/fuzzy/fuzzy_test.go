package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSetRatioOrderInvariant(t *testing.T) {
	assert.Equal(t, 100, TokenSetRatio("John Smith", "Smith John"))
	assert.Equal(t, 100, TokenSetRatio("john smith", "John Smith"))
	assert.GreaterOrEqual(t, TokenSetRatio("Chinedu Okafor Emeka", "Emeka Chinedu Okafor"), 95)
}

func TestTokenSetRatioSubsetHighNotPerfect(t *testing.T) {
	score := TokenSetRatio("John Smith Jr", "John Smith")
	assert.GreaterOrEqual(t, score, 80)
	assert.Less(t, score, 100)
}

func TestTokenSetRatioMonotonicity(t *testing.T) {
	base := TokenSetRatio("John Smith", "John Smith")
	extended := TokenSetRatio("John Smith Xyzzy", "John Smith")
	assert.LessOrEqual(t, extended, base)

	near := TokenSetRatio("Jon Smith", "John Smith")
	nearExtended := TokenSetRatio("Jon Smith Xyzzy", "John Smith")
	assert.LessOrEqual(t, nearExtended, near)
}

func TestTokenSetRatioDissimilar(t *testing.T) {
	assert.Less(t, TokenSetRatio("Amaka Obi", "Tunde Bakare"), 50)
	assert.Equal(t, 0, TokenSetRatio("John", ""))
	assert.Equal(t, 100, TokenSetRatio("", ""))
}

func TestBestMatch(t *testing.T) {
	roster := []string{"John Smith", "Jane Doe", "Amaka Obi"}

	match, ok := BestMatch("Jon Smith", roster)
	require.True(t, ok)
	assert.Equal(t, "John Smith", match.Candidate)
	assert.GreaterOrEqual(t, match.Score, 85)

	_, ok = BestMatch("anything", nil)
	assert.False(t, ok)
}

func TestTopKOrderingDeterministic(t *testing.T) {
	roster := []string{"Amaka Obi-Eze", "Amaka Obi", "Jane Doe"}

	top := TopK("Amaka Obi", roster, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "Amaka Obi", top[0].Candidate)
	assert.Equal(t, 100, top[0].Score)
	assert.Equal(t, "Amaka Obi-Eze", top[1].Candidate)
	assert.True(t, top[0].Score >= top[1].Score && top[1].Score >= top[2].Score)

	again := TopK("Amaka Obi", roster, 3)
	assert.Equal(t, top, again)
}

func TestTopKLimitsResults(t *testing.T) {
	roster := []string{"A B", "B C", "C D", "D E"}
	assert.Len(t, TopK("A B", roster, 2), 2)
	assert.Nil(t, TopK("A B", roster, 0))
	assert.Nil(t, TopK("A B", nil, 3))
}
