package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
)

// fakeModel returns a canned response for every call, mimicking llms.Model.
type fakeModel struct {
	responses []string
	calls     int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: resp}}}, nil
}

// chunkAwareModel returns bad for any prompt containing marker and good
// otherwise, so one chunk of a batch can be made to fail on its own.
type chunkAwareModel struct {
	marker, good, bad string
}

func (m *chunkAwareModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	resp := m.good
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok && strings.Contains(tc.Text, m.marker) {
				resp = m.bad
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: resp}}}, nil
}

func newTestExtractor(t *testing.T, responses []string) (*Extractor, graphstore.Store) {
	t.Helper()
	model := &fakeModel{responses: responses}
	gw := llmgateway.New(model, nil, config.NewLLMConfig(), nil)
	store := graphstore.NewMemoryStore()
	cfg := config.NewExtractorConfig()
	return New(gw, store, cfg, nil), store
}

func TestExtractorPersistsEntitiesAndRelations(t *testing.T) {
	resp := `{
		"entities": [
			{"name": "Alice", "type": "PERSON", "description": "a scientist"},
			{"name": "Acme", "type": "ORGANIZATION", "description": "a company"}
		],
		"relationships": [
			{"source_name": "Alice", "target_name": "Acme", "description": "works at", "strength": 9}
		],
		"continue": false
	}`
	x, store := newTestExtractor(t, []string{resp})

	chunks := []Chunk{{TextUnitID: "tu1", DocumentID: "doc1", Text: "Alice works at Acme."}}
	result, err := x.Run(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, graphmodel.DocumentCompleted, result.Status)
	require.Len(t, result.ChunkResults, 1)
	assert.Equal(t, 2, result.ChunkResults[0].EntityCount)
	assert.Equal(t, 1, result.ChunkResults[0].RelationCount)

	rels, err := store.AllSemanticRelations(context.Background())
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.9, rels[0].Confidence)
}

func TestExtractorDropsRelationWithUnknownEndpoint(t *testing.T) {
	resp := `{
		"entities": [{"name": "Alice", "type": "PERSON", "description": "a scientist"}],
		"relationships": [{"source_name": "Alice", "target_name": "Ghost", "description": "knows", "strength": 5}],
		"continue": false
	}`
	x, store := newTestExtractor(t, []string{resp})

	chunks := []Chunk{{TextUnitID: "tu1", DocumentID: "doc1", Text: "Alice knows someone."}}
	result, err := x.Run(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, graphmodel.DocumentCompleted, result.Status)
	assert.Equal(t, 0, result.ChunkResults[0].RelationCount)

	rels, err := store.AllSemanticRelations(context.Background())
	require.NoError(t, err)
	assert.Len(t, rels, 0)
}

func TestExtractorFailsDocumentWhenNoEntitiesFound(t *testing.T) {
	resp := `{"entities": [], "relationships": [], "continue": false}`
	x, _ := newTestExtractor(t, []string{resp})

	chunks := []Chunk{{TextUnitID: "tu1", DocumentID: "doc1", Text: "nothing interesting here"}}
	result, err := x.Run(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, graphmodel.DocumentFailed, result.Status)
}

func TestExtractorTwoPassContinuation(t *testing.T) {
	first := `{"entities": [{"name": "Alice", "type": "PERSON", "description": "a"}], "relationships": [], "continue": true}`
	second := `{"entities": [{"name": "Bob", "type": "PERSON", "description": "b"}], "relationships": [], "continue": false}`
	x, _ := newTestExtractor(t, []string{first, second})

	chunks := []Chunk{{TextUnitID: "tu1", DocumentID: "doc1", Text: "Alice and Bob talked."}}
	result, err := x.Run(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunkResults[0].EntityCount)
}

func TestExtractorIsolatesPerChunkFailure(t *testing.T) {
	good := `{"entities": [{"name": "Alice", "type": "PERSON", "description": "a"}], "relationships": [], "continue": false}`
	model := &chunkAwareModel{marker: "UNPARSEABLE", good: good, bad: "not json at all"}
	gw := llmgateway.New(model, nil, config.NewLLMConfig(), nil)
	x := New(gw, graphstore.NewMemoryStore(), config.NewExtractorConfig(), nil)

	chunks := []Chunk{
		{TextUnitID: "tu1", DocumentID: "doc1", Text: "Alice is here."},
		{TextUnitID: "tu2", DocumentID: "doc1", Text: "UNPARSEABLE chunk."},
	}
	result, err := x.Run(context.Background(), chunks)
	require.NoError(t, err)
	assert.Len(t, result.ChunkResults, 2)
	assert.NoError(t, result.ChunkResults[0].Err)
	assert.Equal(t, 1, result.ChunkResults[0].EntityCount)
	assert.Error(t, result.ChunkResults[1].Err)
	assert.Equal(t, graphmodel.DocumentCompleted, result.Status)
}
