package llmgateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeStripsFencedBlockAndControlChars(t *testing.T) {
	raw := "Here you go:\n```json\n{\"a\": 1}\n```\n"
	got := canonicalize(raw)
	assert.Equal(t, `{"a": 1}`, got)
}

func TestParseJSONObjectExtractsFromSurroundingProse(t *testing.T) {
	raw := "Sure thing! ```json\n{\"answer\": \"Paris\", \"confidence\": 0.9}\n``` Hope that helps."
	obj, err := parseJSONObject(raw)
	require.NoError(t, err)
	assert.Equal(t, "Paris", obj["answer"])
}

func TestParseJSONObjectRejectsNonJSON(t *testing.T) {
	_, err := parseJSONObject("not json at all")
	assert.Error(t, err)
}
