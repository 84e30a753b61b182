// memory.go is an in-process Store used by tests and by callers without a
// FalkorDB deployment, grounded on rag/store/knowledge_graph.go's MemoryGraph
// (maps keyed by id, plus a type index), generalized to the full GraphStore
// operation set of spec §4.3 rather than the teacher's generic Query().
package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/graphmodel"
)

type memRelation struct {
	graphmodel.Relation
}

// MemoryStore is a thread-safe in-memory Store implementation.
type MemoryStore struct {
	mu sync.RWMutex

	documents map[string]graphmodel.Document
	textUnits map[string]graphmodel.TextUnit
	entities  map[string]graphmodel.Entity
	// nameType indexes entity id by normalized(name)+type for UNIQUE(name, type).
	nameType map[string]string
	// mentions[entityID] = set of textUnitID
	mentions map[string]map[string]bool
	// relations keyed by id; relIndex keyed by (source,type,target) for the
	// at-most-one-edge invariant.
	relations map[string]memRelation
	relIndex  map[string]string
	// communities[entityID][level] = communityID
	communities map[string]map[int]int
	// communitySummaries[communityID] holds the summary fields for a
	// community, keyed independently of any one member entity so a summary
	// survives membership being re-read from the communities map.
	communitySummaries map[int]graphmodel.Community
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:   make(map[string]graphmodel.Document),
		textUnits:   make(map[string]graphmodel.TextUnit),
		entities:    make(map[string]graphmodel.Entity),
		nameType:    make(map[string]string),
		mentions:    make(map[string]map[string]bool),
		relations:          make(map[string]memRelation),
		relIndex:           make(map[string]string),
		communities:        make(map[string]map[int]int),
		communitySummaries: make(map[int]graphmodel.Community),
	}
}

func (m *MemoryStore) Close() error { return nil }

func identityKey(name string, typ graphmodel.EntityType) string {
	return graphmodel.NormalizeName(name) + "\x00" + string(typ)
}

func (m *MemoryStore) UpsertDocument(ctx context.Context, doc graphmodel.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.documents[doc.ID]; ok {
		doc.Version = existing.Version
		if doc.ContentHash != existing.ContentHash {
			doc.Version++
		}
	} else if doc.Version == 0 {
		doc.Version = 1
	}
	m.documents[doc.ID] = doc
	return nil
}

func (m *MemoryStore) CreateTextUnit(ctx context.Context, tu graphmodel.TextUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.textUnits[tu.ID]; exists {
		return errs.New(errs.GraphConstraint, "graphstore: text unit id already exists")
	}
	m.textUnits[tu.ID] = tu
	return nil
}

func (m *MemoryStore) UpsertEntity(ctx context.Context, name string, typ graphmodel.EntityType, description string, confidence float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identityKey(name, typ)
	if id, ok := m.nameType[key]; ok {
		e := m.entities[id]
		if confidence > e.Confidence {
			e.Confidence = confidence
		}
		e.MentionCount++
		if strings.TrimSpace(description) != "" {
			e.Description = description
		}
		e.UpdatedAt = time.Now().UTC()
		m.entities[id] = e
		return id, nil
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	m.entities[id] = graphmodel.Entity{
		ID:           id,
		Name:         name,
		Type:         typ,
		Description:  description,
		Confidence:   confidence,
		MentionCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.nameType[key] = id
	return id, nil
}

func (m *MemoryStore) LinkMention(ctx context.Context, entityID, textUnitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mentions[entityID]; !ok {
		m.mentions[entityID] = make(map[string]bool)
	}
	m.mentions[entityID][textUnitID] = true
	return nil
}

func relKey(sourceID, relType, targetID string) string {
	return sourceID + "\x00" + strings.ToUpper(relType) + "\x00" + targetID
}

func (m *MemoryStore) UpsertRelation(ctx context.Context, sourceID, targetID, relType, description string, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	relType = strings.ToUpper(relType)
	key := relKey(sourceID, relType, targetID)
	if id, ok := m.relIndex[key]; ok {
		r := m.relations[id]
		if confidence > r.Confidence {
			r.Confidence = confidence
		}
		m.relations[id] = r
		return nil
	}
	id := uuid.New().String()
	m.relations[id] = memRelation{graphmodel.Relation{
		ID:          id,
		SourceID:    sourceID,
		TargetID:    targetID,
		Type:        relType,
		Description: description,
		Confidence:  confidence,
	}}
	m.relIndex[key] = id
	return nil
}

func (m *MemoryStore) FindEntityByName(ctx context.Context, name string, typ graphmodel.EntityType) (graphmodel.Entity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if typ != "" {
		id, ok := m.nameType[identityKey(name, typ)]
		if !ok {
			return graphmodel.Entity{}, false, nil
		}
		return m.entities[id], true, nil
	}
	norm := graphmodel.NormalizeName(name)
	for key, id := range m.nameType {
		if strings.HasPrefix(key, norm+"\x00") {
			return m.entities[id], true, nil
		}
	}
	return graphmodel.Entity{}, false, nil
}

func (m *MemoryStore) GetEntity(ctx context.Context, id string) (graphmodel.Entity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e, ok, nil
}

func (m *MemoryStore) TopEntities(ctx context.Context, limit int, documentID string) ([]graphmodel.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pool []graphmodel.Entity
	if documentID == "" {
		for _, e := range m.entities {
			pool = append(pool, e)
		}
	} else {
		docTextUnits := map[string]bool{}
		for id, tu := range m.textUnits {
			if tu.DocumentID == documentID {
				docTextUnits[id] = true
			}
		}
		for eid, tus := range m.mentions {
			for tu := range tus {
				if docTextUnits[tu] {
					pool = append(pool, m.entities[eid])
					break
				}
			}
		}
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].MentionCount != pool[j].MentionCount {
			return pool[i].MentionCount > pool[j].MentionCount
		}
		return pool[i].Confidence > pool[j].Confidence
	})
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func (m *MemoryStore) EntityContext(ctx context.Context, entityID string, hopLimit int, includeText bool) (EntityContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := EntityContext{}
	if hopLimit < 1 {
		hopLimit = 1
	}
	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}

	for depth := 1; depth <= hopLimit; depth++ {
		var next []string
		for _, r := range m.relations {
			for _, src := range frontier {
				if r.SourceID != src || visited[r.TargetID] {
					continue
				}
				tgt, ok := m.entities[r.TargetID]
				if !ok {
					continue
				}
				visited[r.TargetID] = true
				next = append(next, r.TargetID)
				out.RelatedEntities = append(out.RelatedEntities, RelatedEntity{
					Entity: tgt, RelationType: r.Type, Distance: depth,
				})
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	if includeText {
		for tuID := range m.mentions[entityID] {
			if tu, ok := m.textUnits[tuID]; ok {
				out.TextUnits = append(out.TextUnits, tu)
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteDocumentSubgraph(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docTUs []string
	for id, tu := range m.textUnits {
		if tu.DocumentID == docID {
			docTUs = append(docTUs, id)
		}
	}
	docTUSet := map[string]bool{}
	for _, id := range docTUs {
		docTUSet[id] = true
	}

	for eid, tus := range m.mentions {
		for tuID := range tus {
			if docTUSet[tuID] {
				delete(tus, tuID)
				if e, ok := m.entities[eid]; ok {
					e.MentionCount--
					m.entities[eid] = e
				}
			}
		}
	}

	for _, id := range docTUs {
		delete(m.textUnits, id)
	}

	for eid, e := range m.entities {
		if e.MentionCount <= 0 {
			delete(m.entities, eid)
			delete(m.nameType, identityKey(e.Name, e.Type))
			delete(m.mentions, eid)
			for key, rid := range m.relIndex {
				r := m.relations[rid]
				if r.SourceID == eid || r.TargetID == eid {
					delete(m.relations, rid)
					delete(m.relIndex, key)
				}
			}
		}
	}
	return nil
}

func (m *MemoryStore) ListAffectedCommunities(ctx context.Context, docID string) (AffectedCommunities, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := AffectedCommunities{}
	docTUSet := map[string]bool{}
	for id, tu := range m.textUnits {
		if tu.DocumentID == docID {
			docTUSet[id] = true
		}
	}
	seenE := map[string]bool{}
	seenC := map[int]bool{}
	for eid, tus := range m.mentions {
		touched := false
		for tuID := range tus {
			if docTUSet[tuID] {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		if !seenE[eid] {
			seenE[eid] = true
			out.EntityIDs = append(out.EntityIDs, eid)
		}
		for _, cid := range m.communities[eid] {
			if !seenC[cid] {
				seenC[cid] = true
				out.CommunityIDs = append(out.CommunityIDs, cid)
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) GraphStatistics(ctx context.Context) (Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Statistics{
		Documents: len(m.documents),
		TextUnits: len(m.textUnits),
		Entities:  len(m.entities),
		Relations: len(m.relations),
	}, nil
}

func (m *MemoryStore) UpsertCommunityMembership(ctx context.Context, entityID string, communityID, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.communities[entityID]; !ok {
		m.communities[entityID] = make(map[int]int)
	}
	m.communities[entityID][level] = communityID
	return nil
}

func (m *MemoryStore) UpsertCommunitySummary(ctx context.Context, communityID, level int, summary string, themes []string, significance graphmodel.Significance, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.communitySummaries[communityID] = graphmodel.Community{
		ID:               communityID,
		Level:            level,
		Summary:          summary,
		Themes:           themes,
		Significance:     significance,
		SummaryTimestamp: timestamp,
	}
	return nil
}

func (m *MemoryStore) AllCommunities(ctx context.Context) ([]graphmodel.Community, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := make(map[int]*graphmodel.Community)
	for eid, levels := range m.communities {
		for level, cid := range levels {
			c, ok := byID[cid]
			if !ok {
				c = &graphmodel.Community{ID: cid, Level: level}
				byID[cid] = c
			}
			c.EntityIDs = append(c.EntityIDs, eid)
		}
	}
	for cid, summary := range m.communitySummaries {
		c, ok := byID[cid]
		if !ok {
			sc := summary
			byID[cid] = &sc
			continue
		}
		c.Summary = summary.Summary
		c.Themes = summary.Themes
		c.Significance = summary.Significance
		c.SummaryTimestamp = summary.SummaryTimestamp
	}

	out := make([]graphmodel.Community, 0, len(byID))
	for _, c := range byID {
		sort.Strings(c.EntityIDs)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) RelationTypesFor(ctx context.Context, entityIDs []string, minConfidence float64, documentIDs []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idSet := map[string]bool{}
	for _, id := range entityIDs {
		idSet[id] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range m.relations {
		if idSet[r.SourceID] && r.Confidence > minConfidence && !seen[r.Type] {
			seen[r.Type] = true
			out = append(out, r.Type)
		}
	}
	return out, nil
}

func (m *MemoryStore) ExpandByRelationType(ctx context.Context, sourceIDs []string, relType string, limit int) ([]Expansion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idSet := map[string]bool{}
	for _, id := range sourceIDs {
		idSet[id] = true
	}
	var out []Expansion
	relType = strings.ToUpper(relType)
	for _, r := range m.relations {
		if idSet[r.SourceID] && r.Type == relType {
			tgt, ok := m.entities[r.TargetID]
			if !ok {
				continue
			}
			out = append(out, Expansion{Relation: r.Relation, Target: tgt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Relation.Confidence != out[j].Relation.Confidence {
			return out[i].Relation.Confidence > out[j].Relation.Confidence
		}
		return out[i].Target.MentionCount > out[j].Target.MentionCount
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AllEntities(ctx context.Context, documentIDs []string) ([]graphmodel.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(documentIDs) == 0 {
		out := make([]graphmodel.Entity, 0, len(m.entities))
		for _, e := range m.entities {
			out = append(out, e)
		}
		return out, nil
	}
	docSet := map[string]bool{}
	for _, d := range documentIDs {
		docSet[d] = true
	}
	docTUSet := map[string]bool{}
	for id, tu := range m.textUnits {
		if docSet[tu.DocumentID] {
			docTUSet[id] = true
		}
	}
	var out []graphmodel.Entity
	for eid, tus := range m.mentions {
		for tuID := range tus {
			if docTUSet[tuID] {
				out = append(out, m.entities[eid])
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) AllSemanticRelations(ctx context.Context) ([]graphmodel.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]graphmodel.Relation, 0, len(m.relations))
	for _, r := range m.relations {
		out = append(out, r.Relation)
	}
	return out, nil
}

// MergeEntities implements the spec §4.5 merge algorithm over the in-memory
// maps directly, under a single lock so the transfer is atomic.
func (m *MemoryStore) MergeEntities(ctx context.Context, primaryID string, duplicateIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	primary, ok := m.entities[primaryID]
	if !ok {
		return 0, errs.New(errs.NotFound, "graphstore: merge primary entity not found")
	}

	merged := 0
	for _, dupID := range duplicateIDs {
		if dupID == primaryID {
			continue
		}
		dup, ok := m.entities[dupID]
		if !ok {
			// Already absorbed by a prior merge: idempotent no-op.
			continue
		}

		// 1. Union mention counts.
		primary.MentionCount += dup.MentionCount
		// 2. Union aliases.
		primary.AddAlias(dup.Name)
		for _, a := range dup.Aliases {
			primary.AddAlias(a)
		}

		// 3. Transfer MENTIONED_IN edges, deduplicated.
		if tus, ok := m.mentions[dupID]; ok {
			if _, ok := m.mentions[primaryID]; !ok {
				m.mentions[primaryID] = make(map[string]bool)
			}
			for tuID := range tus {
				m.mentions[primaryID][tuID] = true
			}
			delete(m.mentions, dupID)
		}

		// 4. Transfer outgoing/incoming relations, taking max confidence per
		// (source, type, target) triple after substituting dupID -> primaryID.
		for key, rid := range m.relIndex {
			r, ok := m.relations[rid]
			if !ok {
				continue
			}
			src, tgt := r.SourceID, r.TargetID
			touched := false
			if src == dupID {
				src = primaryID
				touched = true
			}
			if tgt == dupID {
				tgt = primaryID
				touched = true
			}
			if !touched {
				continue
			}
			delete(m.relIndex, key)
			delete(m.relations, rid)
			if src == tgt {
				// Merge produced a self-loop; drop it.
				continue
			}
			newKey := relKey(src, r.Type, tgt)
			if existingID, ok := m.relIndex[newKey]; ok {
				existing := m.relations[existingID]
				if r.Confidence > existing.Confidence {
					existing.Confidence = r.Confidence
					m.relations[existingID] = existing
				}
				continue
			}
			r.SourceID, r.TargetID = src, tgt
			m.relations[rid] = r
			m.relIndex[newKey] = rid
		}

		// 5. Detach-delete the duplicate.
		delete(m.entities, dupID)
		delete(m.nameType, identityKey(dup.Name, dup.Type))
		delete(m.communities, dupID)
		merged++
	}

	primary.UpdatedAt = time.Now().UTC()
	m.entities[primaryID] = primary
	return merged, nil
}

// RenameEntity implements spec §4.5 step 6: rename primary unless another
// entity of the same type already owns newName.
func (m *MemoryStore) RenameEntity(ctx context.Context, entityID, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entities[entityID]
	if !ok {
		return errs.New(errs.NotFound, "graphstore: rename target entity not found")
	}
	newKey := identityKey(newName, e.Type)
	if ownerID, ok := m.nameType[newKey]; ok && ownerID != entityID {
		return errs.New(errs.GraphConstraint, "graphstore: another entity already owns that (name, type)")
	}

	oldKey := identityKey(e.Name, e.Type)
	delete(m.nameType, oldKey)
	e.AddAlias(e.Name)
	e.Name = newName
	e.UpdatedAt = time.Now().UTC()
	m.entities[entityID] = e
	m.nameType[newKey] = entityID
	return nil
}
