package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClass(t *testing.T) {
	cases := map[string]string{
		"ss1q":      "SS 1Q",
		"SS1q":      "SS 1Q",
		"SS 1Q":     "SS 1Q",
		"jss-1 (a)": "JSS 1A",
		"General":   "GENERAL",
		"":          "",
		"  ss2  ":   "SS 2",
	}
	for raw, want := range cases {
		assert.Equal(t, want, Class(raw), "input %q", raw)
	}
}

func TestClassIdempotent(t *testing.T) {
	for _, raw := range []string{"ss1q", "JSS 3B", "General", "grade5", "12B"} {
		once := Class(raw)
		assert.Equal(t, once, Class(once), "input %q", raw)
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "John Doe", TitleCase("john doe"))
	assert.Equal(t, "John Doe", TitleCase("JOHN   DOE"))
	assert.Equal(t, "Amaka Obi-eze", TitleCase("AMAKA OBI-EZE"))
	assert.Equal(t, "", TitleCase("   "))
}

func TestScore(t *testing.T) {
	assert.Equal(t, "8", Score("8/10"))
	assert.Equal(t, "8", Score(Score("8/10")))
	assert.Equal(t, "8", Score("8"))
	assert.Equal(t, "8", Score(" 8 / 10 "))
	assert.Equal(t, "", Score("   "))
	assert.Equal(t, "ab", Score("ab"))
}
