package graphstore

import (
	"context"
	"time"

	"github.com/huytu0702/graphtog/graphmodel"
)

// RelatedEntity is one hop of an entity_context BFS result.
type RelatedEntity struct {
	Entity       graphmodel.Entity
	RelationType string
	Distance     int
}

// EntityContext is the result of GraphStore.EntityContext (spec §4.3).
type EntityContext struct {
	RelatedEntities []RelatedEntity
	TextUnits       []graphmodel.TextUnit
}

// AffectedCommunities is the result of GraphStore.ListAffectedCommunities.
type AffectedCommunities struct {
	CommunityIDs []int
	EntityIDs    []string
}

// Statistics is the result of GraphStore.GraphStatistics.
type Statistics struct {
	Documents int
	TextUnits int
	Entities  int
	Relations int
}

// Store is the GraphStore operation set (spec §4.3). All operations are
// idempotent unless noted otherwise on the method.
type Store interface {
	// UpsertDocument creates or updates document metadata.
	UpsertDocument(ctx context.Context, doc graphmodel.Document) error

	// CreateTextUnit fails if id already exists.
	CreateTextUnit(ctx context.Context, tu graphmodel.TextUnit) error

	// UpsertEntity takes the max confidence and increments mention_count,
	// returning the entity's id.
	UpsertEntity(ctx context.Context, name string, typ graphmodel.EntityType, description string, confidence float64) (string, error)

	// LinkMention records a MENTIONED_IN edge from entityID to textUnitID.
	LinkMention(ctx context.Context, entityID, textUnitID string) error

	// UpsertRelation takes the max confidence on re-observation.
	UpsertRelation(ctx context.Context, sourceID, targetID, relType, description string, confidence float64) error

	// FindEntityByName returns (entity, true, nil) if found, (zero, false, nil) if not.
	// typ may be empty to match across types.
	FindEntityByName(ctx context.Context, name string, typ graphmodel.EntityType) (graphmodel.Entity, bool, error)

	// TopEntities orders by (mention_count desc, confidence desc). documentID
	// may be empty to scope across all documents.
	TopEntities(ctx context.Context, limit int, documentID string) ([]graphmodel.Entity, error)

	// EntityContext runs a BFS up to hopLimit hops, excluding IN_COMMUNITY/
	// PART_OF edges from semantic traversal.
	EntityContext(ctx context.Context, entityID string, hopLimit int, includeText bool) (EntityContext, error)

	// DeleteDocumentSubgraph removes the document's TextUnits, any entities
	// whose mention_count drops to 0, and their incident relations.
	DeleteDocumentSubgraph(ctx context.Context, docID string) error

	// ListAffectedCommunities reports communities/entities touched by docID,
	// for incremental community-detection invalidation.
	ListAffectedCommunities(ctx context.Context, docID string) (AffectedCommunities, error)

	// GraphStatistics returns aggregate counts.
	GraphStatistics(ctx context.Context) (Statistics, error)

	// GetEntity fetches a single entity by id.
	GetEntity(ctx context.Context, id string) (graphmodel.Entity, bool, error)

	// UpsertCommunityMembership replaces an entity's community tag at level
	// with an IN_COMMUNITY edge, annotated with community_level.
	UpsertCommunityMembership(ctx context.Context, entityID string, communityID, level int) error

	// RelationTypesFor returns distinct types of relations outgoing from
	// entityIDs with confidence above minConfidence. Types already explored
	// are not filtered out, and documentIDs does not narrow the result.
	RelationTypesFor(ctx context.Context, entityIDs []string, minConfidence float64, documentIDs []string) ([]string, error)

	// ExpandByRelationType returns candidate (relation, targetEntity) pairs
	// reachable from sourceIDs via relType, ordered by relation confidence
	// desc then target mention_count desc, capped at limit.
	ExpandByRelationType(ctx context.Context, sourceIDs []string, relType string, limit int) ([]Expansion, error)

	// AllEntities returns every entity in the graph, optionally scoped to
	// documentIDs (via MENTIONED_IN -> TextUnit -> PART_OF -> Document).
	AllEntities(ctx context.Context, documentIDs []string) ([]graphmodel.Entity, error)

	// AllSemanticRelations returns every Relation edge (excluding
	// MENTIONED_IN/PART_OF) for community detection's modularity graph.
	AllSemanticRelations(ctx context.Context) ([]graphmodel.Relation, error)

	// MergeEntities absorbs duplicateIDs into primaryID per spec §4.5's merge
	// algorithm: union mention counts and aliases, transfer MENTIONED_IN
	// edges, transfer incoming/outgoing relations keeping the max-confidence
	// variant of each (source, type, target) triple, then detach-delete the
	// duplicates. Idempotent: merging an already-absorbed id is a no-op.
	MergeEntities(ctx context.Context, primaryID string, duplicateIDs []string) (mergedCount int, err error)

	// RenameEntity changes an entity's canonical name, failing with
	// errs.GraphConstraint if another entity of the same type already owns
	// newName.
	RenameEntity(ctx context.Context, entityID, newName string) error

	// UpsertCommunitySummary stores a generated summary on the Community
	// node identified by (communityID, level), per spec §4.7 step 3.
	UpsertCommunitySummary(ctx context.Context, communityID, level int, summary string, themes []string, significance graphmodel.Significance, timestamp time.Time) error

	// AllCommunities returns every known community with its current
	// membership and summary fields (zero-value Summary/Themes/Significance
	// if it hasn't been summarized yet).
	AllCommunities(ctx context.Context) ([]graphmodel.Community, error)

	Close() error
}

// Expansion is one candidate produced by ExpandByRelationType.
type Expansion struct {
	Relation graphmodel.Relation
	Target   graphmodel.Entity
}
