package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huytu0702/graphtog/graphmodel"
)

func TestUpsertThenFindEntity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "a person", 0.8)
	require.NoError(t, err)

	found, ok, err := s.FindEntityByName(ctx, "Alice", graphmodel.EntityPerson)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, 1, found.MentionCount)
}

func TestUpsertEntityTakesMaxConfidenceAndIncrementsMentionCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id1, err := s.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "desc", 0.5)
	require.NoError(t, err)
	id2, err := s.UpsertEntity(ctx, "alice", graphmodel.EntityPerson, "desc2", 0.9)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "same (normalized name, type) must resolve to the same entity")

	e, ok, err := s.GetEntity(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, e.MentionCount)
	assert.Equal(t, 0.9, e.Confidence)
}

func TestCreateTextUnitFailsOnDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tu := graphmodel.TextUnit{ID: "tu1", DocumentID: "doc1", Text: "hello"}
	require.NoError(t, s.CreateTextUnit(ctx, tu))
	err := s.CreateTextUnit(ctx, tu)
	assert.Error(t, err)
}

func TestUpsertRelationAtMostOneEdgePerTriple(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertRelation(ctx, "a", "b", "WORKS_AT", "d1", 0.5))
	require.NoError(t, s.UpsertRelation(ctx, "a", "b", "works_at", "d2", 0.9))

	rels, err := s.AllSemanticRelations(ctx)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 0.9, rels[0].Confidence)
}

func TestDeleteDocumentSubgraphReducesStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertDocument(ctx, graphmodel.Document{ID: "doc1", Name: "doc1"}))
	require.NoError(t, s.CreateTextUnit(ctx, graphmodel.TextUnit{ID: "tu1", DocumentID: "doc1", Text: "Alice"}))
	entID, err := s.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "", 0.5)
	require.NoError(t, err)
	require.NoError(t, s.LinkMention(ctx, entID, "tu1"))

	before, err := s.GraphStatistics(ctx)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocumentSubgraph(ctx, "doc1"))

	after, err := s.GraphStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TextUnits-1, after.TextUnits)
	assert.Equal(t, before.Entities-1, after.Entities, "entity with mention_count reaching 0 must be removed")
}

func TestEntityContextBFS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, _ := s.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "", 0.5)
	acme, _ := s.UpsertEntity(ctx, "Acme", graphmodel.EntityOrganization, "", 0.5)
	paris, _ := s.UpsertEntity(ctx, "Paris", graphmodel.EntityGeo, "", 0.5)
	require.NoError(t, s.UpsertRelation(ctx, alice, acme, "WORKS_AT", "", 0.9))
	require.NoError(t, s.UpsertRelation(ctx, acme, paris, "LOCATED_IN", "", 0.9))

	ectx, err := s.EntityContext(ctx, alice, 2, false)
	require.NoError(t, err)
	require.Len(t, ectx.RelatedEntities, 2)
	assert.Equal(t, 1, ectx.RelatedEntities[0].Distance)
	assert.Equal(t, 2, ectx.RelatedEntities[1].Distance)
}
