package community

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
)

func levelsOf(t *testing.T, result Result) map[int][]graphmodel.Community {
	t.Helper()
	out := map[int][]graphmodel.Community{}
	for _, c := range result.Communities {
		out[c.Level] = append(out[c.Level], c)
	}
	return out
}

func TestDetectReturnsNothingForEmptyGraph(t *testing.T) {
	store := graphstore.NewMemoryStore()
	d := New(store, config.NewCommunityConfig(), nil)

	result, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Communities)
}

func TestDetectReturnsTrivialCommunityForSingleEntity(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	id, err := store.UpsertEntity(ctx, "Solo", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)

	d := New(store, config.NewCommunityConfig(), nil)
	result, err := d.Detect(ctx)
	require.NoError(t, err)
	require.Len(t, result.Communities, 1)
	assert.Equal(t, 0, result.Communities[0].Level)
	assert.Equal(t, []string{id}, result.Communities[0].EntityIDs)
}

func TestDetectSeparatesDisconnectedComponents(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	a, err := store.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)
	b, err := store.UpsertEntity(ctx, "Acme", graphmodel.EntityOrganization, "", 0.8)
	require.NoError(t, err)

	d := New(store, config.NewCommunityConfig(), nil)
	result, err := d.Detect(ctx)
	require.NoError(t, err)

	byLevel := levelsOf(t, result)
	require.Len(t, byLevel[0], 2, "each isolated entity is its own level-0 community")

	var allIDs []string
	for _, c := range byLevel[0] {
		allIDs = append(allIDs, c.EntityIDs...)
	}
	sort.Strings(allIDs)
	expected := []string{a, b}
	sort.Strings(expected)
	assert.Equal(t, expected, allIDs)
}

// buildBridgedGraph seeds two internally-dense triangles joined by one weak
// bridge edge, a minimal case large enough (6 nodes) to trigger splitting.
func buildBridgedGraph(t *testing.T, store graphstore.Store) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 6)
	for i := range ids {
		id, err := store.UpsertEntity(ctx, string(rune('A'+i)), graphmodel.EntityConcept, "", 0.8)
		require.NoError(t, err)
		ids[i] = id
	}
	dense := func(x, y int) {
		require.NoError(t, store.UpsertRelation(ctx, ids[x], ids[y], "RELATED_TO", "", 0.9))
	}
	dense(0, 1)
	dense(1, 2)
	dense(0, 2)
	dense(3, 4)
	dense(4, 5)
	dense(3, 5)
	require.NoError(t, store.UpsertRelation(ctx, ids[2], ids[3], "RELATED_TO", "", 0.05))
	return ids
}

func TestDetectKeepsSingleLevelWhenIntermediateLevelsDisabled(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	buildBridgedGraph(t, store)

	d := New(store, config.NewCommunityConfig(), nil)
	result, err := d.Detect(ctx)
	require.NoError(t, err)

	byLevel := levelsOf(t, result)
	assert.Len(t, byLevel, 1, "only level 0 is emitted when include_intermediate_levels is false")
}

func TestDetectSplitsDenseComponentWhenIntermediateLevelsEnabled(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	ids := buildBridgedGraph(t, store)

	cfg := config.NewCommunityConfig(config.WithIncludeIntermediateLevels(true))
	d := New(store, cfg, nil)
	result, err := d.Detect(ctx)
	require.NoError(t, err)

	byLevel := levelsOf(t, result)
	require.GreaterOrEqual(t, len(byLevel), 2, "a bridged pair of triangles should yield finer and coarser levels")

	finest := byLevel[0]
	assert.Len(t, finest, 2, "level 0 should be finest: the two triangles split apart")

	coarsestLevel := 0
	for lvl := range byLevel {
		if lvl > coarsestLevel {
			coarsestLevel = lvl
		}
	}
	coarsest := byLevel[coarsestLevel]
	require.Len(t, coarsest, 1, "the top level re-merges the component into one community")
	assert.ElementsMatch(t, ids, coarsest[0].EntityIDs)
}

func TestDetectIsDeterministicAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	buildBridgedGraph(t, store)

	cfg := config.NewCommunityConfig(config.WithIncludeIntermediateLevels(true))
	d := New(store, cfg, nil)

	first, err := d.Detect(ctx)
	require.NoError(t, err)
	second, err := d.Detect(ctx)
	require.NoError(t, err)

	idsOf := func(r Result) []int {
		var ids []int
		for _, c := range r.Communities {
			ids = append(ids, c.ID)
		}
		sort.Ints(ids)
		return ids
	}
	assert.Equal(t, idsOf(first), idsOf(second), "unchanged membership must reproduce the same community ids")
}

func TestDetectIncrementallyOnlyTouchesAffectedComponent(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()

	a1, err := store.UpsertEntity(ctx, "A1", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)
	a2, err := store.UpsertEntity(ctx, "A2", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)
	require.NoError(t, store.UpsertRelation(ctx, a1, a2, "KNOWS", "", 0.8))

	b1, err := store.UpsertEntity(ctx, "B1", graphmodel.EntityOrganization, "", 0.8)
	require.NoError(t, err)
	b2, err := store.UpsertEntity(ctx, "B2", graphmodel.EntityOrganization, "", 0.8)
	require.NoError(t, err)
	require.NoError(t, store.UpsertRelation(ctx, b1, b2, "PARTNERS_WITH", "", 0.8))

	d := New(store, config.NewCommunityConfig(), nil)
	_, err = d.Detect(ctx)
	require.NoError(t, err)

	a3, err := store.UpsertEntity(ctx, "A3", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)
	require.NoError(t, store.UpsertRelation(ctx, a1, a3, "KNOWS", "", 0.8))

	result, err := d.DetectIncrementally(ctx, []string{a1})
	require.NoError(t, err)

	var touchedIDs []string
	for _, c := range result.Communities {
		touchedIDs = append(touchedIDs, c.EntityIDs...)
	}
	sort.Strings(touchedIDs)
	expected := []string{a1, a2, a3}
	sort.Strings(expected)
	assert.Equal(t, expected, touchedIDs, "only entities reachable from the affected id are recomputed")
	assert.NotContains(t, touchedIDs, b1)
	assert.NotContains(t, touchedIDs, b2)
}

func TestDetectIncrementallyIsNoOpForUnknownEntity(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryStore()
	_, err := store.UpsertEntity(ctx, "Solo", graphmodel.EntityPerson, "", 0.8)
	require.NoError(t, err)

	d := New(store, config.NewCommunityConfig(), nil)
	result, err := d.DetectIncrementally(ctx, []string{"does-not-exist"})
	require.NoError(t, err)
	assert.Empty(t, result.Communities)
}
