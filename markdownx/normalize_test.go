package markdownx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmptyInput(t *testing.T) {
	text, err := Normalize([]byte("   \n\n  "))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestNormalizeInvalidUTF8(t *testing.T) {
	_, err := Normalize([]byte{0xff, 0xfe, 0xfd})
	assert.Error(t, err)
}

func TestNormalizePreservesParagraphBoundaries(t *testing.T) {
	input := []byte("# Title\n\nFirst paragraph text.\n\nSecond paragraph text.\n")
	text, err := Normalize(input)
	require.NoError(t, err)

	parts := strings.Split(text, "\n\n")
	require.Len(t, parts, 3)
	assert.Equal(t, "Title", parts[0])
	assert.Equal(t, "First paragraph text.", parts[1])
	assert.Equal(t, "Second paragraph text.", parts[2])
}

func TestNormalizeStripsEmbeddedScript(t *testing.T) {
	input := []byte("Some text.\n\n<script>alert('x')</script>\n\nMore text.")
	text, err := Normalize(input)
	require.NoError(t, err)
	assert.NotContains(t, text, "alert")
	assert.Contains(t, text, "Some text.")
	assert.Contains(t, text, "More text.")
}

func TestNormalizeListItemsBecomeSeparateParagraphs(t *testing.T) {
	input := []byte("- item one\n- item two\n")
	text, err := Normalize(input)
	require.NoError(t, err)

	parts := strings.Split(text, "\n\n")
	require.Len(t, parts, 2)
	assert.Equal(t, "item one", parts[0])
	assert.Equal(t, "item two", parts[1])
}
