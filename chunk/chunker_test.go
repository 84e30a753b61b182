package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huytu0702/graphtog/config"
)

func TestChunkerEmptyText(t *testing.T) {
	c := New(config.NewChunkerConfig())
	units, err := c.Split("")
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestChunkerInvalidUTF8(t *testing.T) {
	c := New(config.NewChunkerConfig())
	_, err := c.Split(string([]byte{0xff, 0xfe, 0xfd}))
	assert.Error(t, err)
}

func TestChunkerCoversWholeDocument(t *testing.T) {
	c := New(config.NewChunkerConfig(config.WithTargetTokens(20), config.WithOverlapTokens(5), config.WithMinTokens(2)))
	text := strings.Repeat("word ", 200)
	units, err := c.Split(text)
	require.NoError(t, err)
	require.NotEmpty(t, units)

	assert.Equal(t, 0, units[0].StartChar)
	assert.Equal(t, len(text), units[len(units)-1].EndChar)
}

func TestChunkerSingleSmallParagraph(t *testing.T) {
	c := New(config.NewChunkerConfig())
	text := "Alice works at Acme Corp."
	units, err := c.Split(text)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, text, units[0].Text)
}
