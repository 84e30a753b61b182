package summarize

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
	err      error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.response}}}, nil
}

func newTestSummarizer(t *testing.T, response string) (*Summarizer, graphstore.Store) {
	t.Helper()
	store := graphstore.NewMemoryStore()
	gw := llmgateway.New(&fakeModel{response: response}, nil, config.NewLLMConfig(), nil)
	return New(store, gw, config.NewSummarizerConfig(), nil), store
}

func seedCommunity(t *testing.T, store graphstore.Store) graphmodel.Community {
	t.Helper()
	ctx := context.Background()
	a, err := store.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "a researcher", 0.9)
	require.NoError(t, err)
	b, err := store.UpsertEntity(ctx, "Acme Corp", graphmodel.EntityOrganization, "a company", 0.9)
	require.NoError(t, err)
	require.NoError(t, store.UpsertRelation(ctx, a, b, "WORKS_AT", "employment", 0.8))
	require.NoError(t, store.UpsertCommunityMembership(ctx, a, 1, 0))
	require.NoError(t, store.UpsertCommunityMembership(ctx, b, 1, 0))
	return graphmodel.Community{ID: 1, Level: 0, EntityIDs: []string{a, b}}
}

func TestSummarizeOnePersistsResult(t *testing.T) {
	resp := `{"summary": "Alice works at Acme Corp.", "themes": ["employment", "research"], "significance": "medium"}`
	s, store := newTestSummarizer(t, resp)
	c := seedCommunity(t, store)

	err := s.SummarizeOne(context.Background(), c)
	require.NoError(t, err)

	all, err := store.AllCommunities(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Alice works at Acme Corp.", all[0].Summary)
	assert.Equal(t, []string{"employment", "research"}, all[0].Themes)
	assert.Equal(t, graphmodel.SignificanceMedium, all[0].Significance)
	assert.False(t, all[0].SummaryTimestamp.IsZero())
}

func TestSummarizeBatchIsolatesPerCommunityFailure(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	gw := llmgateway.New(&fakeModel{err: assert.AnError}, nil, config.NewLLMConfig(), nil)
	s := New(store, gw, config.NewSummarizerConfig(), nil)

	a, err := store.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "", 0.9)
	require.NoError(t, err)
	require.NoError(t, store.UpsertCommunityMembership(ctx, a, 1, 0))

	b, err := store.UpsertEntity(ctx, "Bob", graphmodel.EntityPerson, "", 0.9)
	require.NoError(t, err)
	require.NoError(t, store.UpsertCommunityMembership(ctx, b, 2, 0))

	outcomes, err := s.Summarize(ctx, []graphmodel.Community{
		{ID: 1, Level: 0, EntityIDs: []string{a}},
		{ID: 2, Level: 0, EntityIDs: []string{b}},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Error(t, o.Err)
	}
}

func TestSummarizeSkipsCommunityWithNoKnownMembers(t *testing.T) {
	s, _ := newTestSummarizer(t, `{"summary":"x","themes":["a","b","c"],"significance":"high"}`)
	outcomes, err := s.Summarize(context.Background(), []graphmodel.Community{
		{ID: 99, Level: 0, EntityIDs: []string{"does-not-exist"}},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
}

func TestSelectMembersOrdersByMentionCountThenCaps(t *testing.T) {
	byID := map[string]graphmodel.Entity{
		"a": {ID: "a", MentionCount: 1},
		"b": {ID: "b", MentionCount: 5},
		"c": {ID: "c", MentionCount: 3},
	}
	members := selectMembers([]string{"a", "b", "c"}, byID, 2)
	require.Len(t, members, 2)
	assert.Equal(t, "b", members[0].ID)
	assert.Equal(t, "c", members[1].ID)
}

func TestSelectRelationsKeepsOnlyInternalEdgesCappedAndOrdered(t *testing.T) {
	rels := []graphmodel.Relation{
		{SourceID: "a", TargetID: "b", Confidence: 0.5},
		{SourceID: "a", TargetID: "x", Confidence: 0.9},
		{SourceID: "b", TargetID: "a", Confidence: 0.8},
	}
	memberSet := map[string]bool{"a": true, "b": true}
	out := selectRelations(rels, memberSet, 1)
	require.Len(t, out, 1)
	assert.Equal(t, 0.8, out[0].Confidence)
}
