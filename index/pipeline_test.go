package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/huytu0702/graphtog/chunk"
	"github.com/huytu0702/graphtog/community"
	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/extract"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/resolve"
	"github.com/huytu0702/graphtog/result"
	"github.com/huytu0702/graphtog/summarize"
)

// scriptedModel replays one response per call, in order, cycling the last
// entry once exhausted. Mirrors the fakeModel pattern used throughout this
// module's other LLM-backed packages.
type scriptedModel struct {
	responses []string
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.responses[i]}}}, nil
}

const extractionResponse = `{
  "entities": [
    {"name": "Alice", "type": "PERSON", "description": "a researcher"},
    {"name": "Acme Corp", "type": "ORGANIZATION", "description": "a technology company"}
  ],
  "relationships": [
    {"source_name": "Alice", "target_name": "Acme Corp", "description": "works at", "strength": 9}
  ],
  "continue": false
}`

func newPipeline(t *testing.T, responses []string) (*Pipeline, graphstore.Store) {
	t.Helper()
	store := graphstore.NewMemoryStore()
	gw := llmgateway.New(&scriptedModel{responses: responses}, nil, config.NewLLMConfig(config.WithMaxRetries(1)), nil)

	chunker := chunk.New(config.NewChunkerConfig(config.WithTargetTokens(200), config.WithOverlapTokens(0), config.WithMinTokens(10)))
	extractor := extract.New(gw, store, config.NewExtractorConfig(config.WithBatchParallelism(2), config.WithTwoPassMaxIterations(1)), nil)
	resolver := resolve.New(store, gw, config.NewEntityResolutionConfig(config.WithResolutionEnabled(false)), nil)
	detector := community.New(store, config.NewCommunityConfig(), nil)
	summarizer := summarize.New(store, gw, config.NewSummarizerConfig(), nil)

	p := New(store, chunker, extractor, resolver, detector, summarizer, config.NewEntityResolutionConfig(config.WithResolutionEnabled(false)), nil)
	return p, store
}

func TestIndexDocumentExtractsEntitiesAndRelations(t *testing.T) {
	p, store := newPipeline(t, []string{extractionResponse})

	env := p.IndexDocument(context.Background(), Document{
		Name:     "notes.md",
		FilePath: "docs/notes.md",
		Content:  []byte("# Notes\n\nAlice works at Acme Corp as a lead researcher.\n"),
	})

	require.Equal(t, result.Success, env.Status)
	assert.Equal(t, 1, env.Data.TextUnitCount)
	assert.GreaterOrEqual(t, env.Data.EntityCount, 2)
	assert.GreaterOrEqual(t, env.Data.RelationCount, 1)
	assert.Empty(t, env.Data.ChunkFailures)

	alice, ok, err := store.FindEntityByName(context.Background(), "Alice", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, alice.MentionCount)
}

func TestIndexDocumentRejectsInvalidUTF8(t *testing.T) {
	p, _ := newPipeline(t, nil)

	env := p.IndexDocument(context.Background(), Document{
		Name:     "bad.md",
		FilePath: "docs/bad.md",
		Content:  []byte{0xff, 0xfe, 0xfd},
	})

	require.Equal(t, result.Error, env.Status)
	require.NotNil(t, env.Error)
}

func TestIndexDocumentReingestingSameFileRebuildsSubgraph(t *testing.T) {
	p, store := newPipeline(t, []string{extractionResponse, extractionResponse})

	doc := Document{Name: "notes.md", FilePath: "docs/notes.md", Content: []byte("Alice works at Acme Corp.\n")}
	first := p.IndexDocument(context.Background(), doc)
	require.Equal(t, result.Success, first.Status)

	second := p.IndexDocument(context.Background(), doc)
	require.Equal(t, result.Success, second.Status)
	assert.Equal(t, first.Data.DocumentID, second.Data.DocumentID)

	stats, err := store.GraphStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TextUnits)
}
