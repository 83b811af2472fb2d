package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHammingDistanceBoundary(t *testing.T) {
	a := Simhash("the quick brown fox jumps over the lazy dog")
	b := Simhash("the quick brown fox jumped over the lazy dog")

	dist := HammingDistance(a, a)
	assert.Equal(t, 0, dist)

	// Flipping exactly 3 bits must read as a duplicate; 4 must not.
	flipped3 := a ^ 0b111
	assert.LessOrEqual(t, HammingDistance(a, flipped3), 3)

	flipped4 := a ^ 0b1111
	assert.Equal(t, 4, HammingDistance(a, flipped4))

	_ = b
}

func TestExtractConceptsDedupAndCap(t *testing.T) {
	content := "Use `getUserById` in src/handlers/user.go, it calls fetch_user_data and fetch_user_data again."
	concepts := ExtractConcepts(content)

	assert.Contains(t, concepts, "getUserById")
	assert.Contains(t, concepts, "src/handlers/user.go")
	assert.Contains(t, concepts, "fetch_user_data")

	seen := map[string]int{}
	for _, c := range concepts {
		seen[c]++
	}
	for c, n := range seen {
		assert.Equal(t, 1, n, "concept %q must appear once", c)
	}
}

func TestExtractConceptsCapAtMax(t *testing.T) {
	content := ""
	for i := 0; i < 30; i++ {
		content += "`concept" + string(rune('a'+i)) + "` "
	}
	concepts := ExtractConcepts(content)
	assert.LessOrEqual(t, len(concepts), MaxConcepts)
}

func TestContentHashStable(t *testing.T) {
	h1 := ContentHash("hello world")
	h2 := ContentHash("hello world")
	h3 := ContentHash("hello world!")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
