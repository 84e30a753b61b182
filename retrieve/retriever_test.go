package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
)

func seedGraph(t *testing.T) graphstore.Store {
	t.Helper()
	store := graphstore.NewMemoryStore()
	ctx := context.Background()

	_, err := store.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "a researcher", 0.9)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, "Acme Corp", graphmodel.EntityOrganization, "a technology company", 0.8)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, "Bob", graphmodel.EntityPerson, "an engineer", 0.7)
	require.NoError(t, err)

	alice, _, _ := store.FindEntityByName(ctx, "Alice", "")
	acme, _, _ := store.FindEntityByName(ctx, "Acme Corp", "")
	bob, _, _ := store.FindEntityByName(ctx, "Bob", "")

	require.NoError(t, store.UpsertRelation(ctx, alice.ID, acme.ID, "WORKS_AT", "employment", 0.9))
	require.NoError(t, store.UpsertRelation(ctx, bob.ID, acme.ID, "WORKS_AT", "employment", 0.8))

	require.NoError(t, store.UpsertCommunityMembership(ctx, alice.ID, 1, 0))
	require.NoError(t, store.UpsertCommunityMembership(ctx, acme.ID, 1, 0))
	require.NoError(t, store.UpsertCommunityMembership(ctx, bob.ID, 1, 0))
	require.NoError(t, store.UpsertCommunitySummary(ctx, 1, 0, "a tech company and its staff", []string{"employment"}, graphmodel.SignificanceMedium, time.Now()))

	return store
}

func TestLocalReturnsNeighborsAndPaths(t *testing.T) {
	store := seedGraph(t)
	r := New(store, nil, config.NewRetrieverConfig(), nil)

	env := r.Local(context.Background(), "Alice")
	require.Equal(t, "success", string(env.Status))
	data, ok := env.Data.(LocalData)
	require.True(t, ok)
	assert.Equal(t, "Alice", data.Seed.Name)
	assert.NotEmpty(t, data.Neighbors)
	assert.NotEmpty(t, data.Paths)
}

func TestLocalReturnsNotFoundForUnknownEntity(t *testing.T) {
	store := seedGraph(t)
	r := New(store, nil, config.NewRetrieverConfig(), nil)

	env := r.Local(context.Background(), "Nobody")
	assert.Equal(t, "not_found", string(env.Status))
	require.NotNil(t, env.Error)
}

func TestCommunityReturnsMembershipAndCoMembers(t *testing.T) {
	store := seedGraph(t)
	r := New(store, nil, config.NewRetrieverConfig(), nil)

	env := r.Community(context.Background(), "Alice")
	require.Equal(t, "success", string(env.Status))
	data, ok := env.Data.(CommunityData)
	require.True(t, ok)
	assert.Equal(t, 1, data.Community.ID)
	assert.Equal(t, "a tech company and its staff", data.Community.Summary)
	assert.Len(t, data.CoMembers, 2)
}

func TestGlobalReportsSummariesAvailable(t *testing.T) {
	store := seedGraph(t)
	r := New(store, nil, config.NewRetrieverConfig(), nil)

	env := r.Global(context.Background())
	require.Equal(t, "success", string(env.Status))
	data, ok := env.Data.(GlobalData)
	require.True(t, ok)
	require.Len(t, data.Communities, 1)
	assert.True(t, data.SummariesAvailable)
	assert.Equal(t, 3, data.Communities[0].EntityCount)
}

func TestHierarchicalFallsBackToTopEntitiesWithoutGateway(t *testing.T) {
	store := seedGraph(t)
	r := New(store, nil, config.NewRetrieverConfig(config.WithHierarchicalTopK(2)), nil)

	env := r.Hierarchical(context.Background(), "who works at Acme Corp?")
	require.Equal(t, "success", string(env.Status))
	data, ok := env.Data.(CombinedData)
	require.True(t, ok)
	assert.NotEmpty(t, data.Entities)
	assert.NotEmpty(t, data.Communities)
}

func TestAdaptiveMapsSpecificToLocalOnly(t *testing.T) {
	store := seedGraph(t)
	r := New(store, nil, config.NewRetrieverConfig(), nil)

	env := r.Adaptive(context.Background(), "Alice", QuerySpecific)
	require.Equal(t, "success", string(env.Status))
	data, ok := env.Data.(CombinedData)
	require.True(t, ok)
	assert.NotEmpty(t, data.Entities)
	assert.Empty(t, data.Communities)
}

func TestAdaptiveMapsExploratoryToAllLevels(t *testing.T) {
	store := seedGraph(t)
	r := New(store, nil, config.NewRetrieverConfig(), nil)

	env := r.Adaptive(context.Background(), "Alice", QueryExploratory)
	data, ok := env.Data.(CombinedData)
	require.True(t, ok)
	assert.NotEmpty(t, data.Entities)
	assert.NotEmpty(t, data.Communities)
}

func TestAdaptiveLevelsMapping(t *testing.T) {
	assert.Equal(t, []RetrievalType{RetrievalLocal}, adaptiveLevels(QuerySpecific))
	assert.Equal(t, []RetrievalType{RetrievalLocal, RetrievalCommunity}, adaptiveLevels(QueryComparative))
	assert.Equal(t, []RetrievalType{RetrievalLocal, RetrievalCommunity, RetrievalGlobal}, adaptiveLevels(QueryExploratory))
}
