package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
)

type fakeModel struct {
	response string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.response}}}, nil
}

func newTestResolver(t *testing.T, response string) (*Resolver, graphstore.Store) {
	t.Helper()
	store := graphstore.NewMemoryStore()
	gw := llmgateway.New(&fakeModel{response: response}, nil, config.NewLLMConfig(), nil)
	return New(store, gw, config.NewEntityResolutionConfig(), nil), store
}

func TestFindSimilarMatchesCloseNames(t *testing.T) {
	r, store := newTestResolver(t, "")
	ctx := context.Background()
	_, err := store.UpsertEntity(ctx, "Jonathan Smith", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, "Completely Different", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)

	results, err := r.FindSimilar(ctx, "Jon Smith", graphmodel.EntityPerson, 0.6)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "Jonathan Smith", results[0].Entity.Name)
}

func TestFindDuplicatePairsOrdersByIDAndScore(t *testing.T) {
	r, store := newTestResolver(t, "")
	ctx := context.Background()
	idA, _ := store.UpsertEntity(ctx, "Robert Johnson", graphmodel.EntityPerson, "", 0.8)
	idB, _ := store.UpsertEntity(ctx, "Rob Johnson", graphmodel.EntityPerson, "", 0.8)

	pairs, err := r.FindDuplicatePairs(ctx, []graphmodel.EntityType{graphmodel.EntityPerson}, 0.7)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	if idA < idB {
		assert.Equal(t, idA, pairs[0].A.ID)
	} else {
		assert.Equal(t, idB, pairs[0].A.ID)
	}
}

func TestResolveWithLLMParsesArbitration(t *testing.T) {
	resp := `{"are_same": true, "confidence": 0.92, "canonical_name": "Robert Johnson", "reasoning": "same person, nickname variant"}`
	r, _ := newTestResolver(t, resp)

	arb, err := r.ResolveWithLLM(context.Background(), graphmodel.Entity{Name: "Robert Johnson"}, graphmodel.Entity{Name: "Rob Johnson"})
	require.NoError(t, err)
	assert.True(t, arb.AreSame)
	assert.InDelta(t, 0.92, arb.Confidence, 0.001)
	assert.Equal(t, "Robert Johnson", arb.CanonicalName)
}

func TestMergeUnionsMentionsAliasesAndRelations(t *testing.T) {
	r, store := newTestResolver(t, "")
	ctx := context.Background()

	primaryID, _ := store.UpsertEntity(ctx, "Robert Johnson", graphmodel.EntityPerson, "", 0.8)
	dupID, _ := store.UpsertEntity(ctx, "Rob Johnson", graphmodel.EntityPerson, "", 0.6)
	otherID, _ := store.UpsertEntity(ctx, "Acme Corp", graphmodel.EntityOrganization, "", 0.8)

	require.NoError(t, store.UpsertRelation(ctx, dupID, otherID, "WORKS_AT", "", 0.7))

	result, err := r.Merge(ctx, primaryID, []string{dupID}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.MergedCount)
	assert.Contains(t, result.Aliases, "Rob Johnson")

	_, found, err := store.GetEntity(ctx, dupID)
	require.NoError(t, err)
	assert.False(t, found, "duplicate must be detach-deleted")

	rels, err := store.AllSemanticRelations(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, primaryID, rels[0].SourceID)
	assert.Equal(t, otherID, rels[0].TargetID)
}

func TestMergeIsIdempotent(t *testing.T) {
	r, store := newTestResolver(t, "")
	ctx := context.Background()

	primaryID, _ := store.UpsertEntity(ctx, "Robert Johnson", graphmodel.EntityPerson, "", 0.8)
	dupID, _ := store.UpsertEntity(ctx, "Rob Johnson", graphmodel.EntityPerson, "", 0.6)

	_, err := r.Merge(ctx, primaryID, []string{dupID}, "")
	require.NoError(t, err)

	result, err := r.Merge(ctx, primaryID, []string{dupID}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.MergedCount, "repeated merge of an already-absorbed id must be a no-op")
}

func TestShouldAutoMergeRespectsThreshold(t *testing.T) {
	store := graphstore.NewMemoryStore()
	gw := llmgateway.New(&fakeModel{}, nil, config.NewLLMConfig(), nil)
	cfg := config.NewEntityResolutionConfig(config.WithAutoMergeConfidenceThreshold(0.9))
	r := New(store, gw, cfg, nil)

	assert.True(t, r.ShouldAutoMerge(Arbitration{AreSame: true, Confidence: 0.95}))
	assert.False(t, r.ShouldAutoMerge(Arbitration{AreSame: true, Confidence: 0.5}))
	assert.False(t, r.ShouldAutoMerge(Arbitration{AreSame: false, Confidence: 0.99}))
}
