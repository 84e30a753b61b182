// falkordb.go adapts rag/store/falkordb.go's Cypher-over-Redis operations
// (AddEntity/AddRelationship/GetEntity/GetRelatedEntities/DeleteEntity via
// MERGE/MATCH/DETACH DELETE) into the concrete GraphStore operation set
// required by spec §4.3, replacing the teacher's generic entity/relationship
// CRUD with the spec's richer upsert-with-take-max-confidence semantics,
// BFS entity_context, and document-subgraph deletion.
package graphstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/graphmodel"
)

// FalkorDBStore is a Store backed by a FalkorDB (RedisGraph) instance.
type FalkorDBStore struct {
	g *cypherGraph
}

// NewFalkorDBStore opens a Store against the named graph over client.
func NewFalkorDBStore(client redis.UniversalClient, graphName string) *FalkorDBStore {
	return &FalkorDBStore{g: newCypherGraph(graphName, client)}
}

func (s *FalkorDBStore) Close() error {
	return nil
}

var labelRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func sanitizeLabel(l string) string {
	clean := labelRegex.ReplaceAllString(string(l), "_")
	if clean == "" {
		return "Entity"
	}
	return clean
}

// quoteCypherString escapes backslashes and single quotes so a Go string can
// be embedded as a Cypher string literal without allowing query injection.
func quoteCypherString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func cypherValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return quoteCypherString(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return quoteCypherString(fmt.Sprint(x))
	}
}

// cypherStringList renders items as a Cypher list literal of quoted strings.
func cypherStringList(items []string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = quoteCypherString(it)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func propsToCypherMap(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, cypherValue(m[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *FalkorDBStore) UpsertDocument(ctx context.Context, doc graphmodel.Document) error {
	props := map[string]interface{}{
		"id":                doc.ID,
		"name":              doc.Name,
		"file_path":         doc.FilePath,
		"content_hash":      doc.ContentHash,
		"last_processed_at": doc.LastProcessedAt.Format(time.RFC3339),
		"status":            string(doc.Status),
	}
	version := doc.Version
	if version < 1 {
		version = 1
	}
	q := fmt.Sprintf(
		`MERGE (d:Document {id: %s})
ON CREATE SET d.version = %d
ON MATCH SET d.version = CASE WHEN d.content_hash <> %s THEN d.version + 1 ELSE d.version END
SET d += %s`,
		quoteCypherString(doc.ID), version, quoteCypherString(doc.ContentHash), propsToCypherMap(props),
	)
	_, err := s.g.query(ctx, q)
	if err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: upsert_document failed")
	}
	return nil
}

func (s *FalkorDBStore) CreateTextUnit(ctx context.Context, tu graphmodel.TextUnit) error {
	existing, err := s.g.query(ctx, fmt.Sprintf("MATCH (t:TextUnit {id: %s}) RETURN t", quoteCypherString(tu.ID)))
	if err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: create_text_unit lookup failed")
	}
	if len(existing.Results) > 0 {
		return errs.New(errs.GraphConstraint, "graphstore: text unit id already exists")
	}

	props := map[string]interface{}{
		"id":          tu.ID,
		"document_id": tu.DocumentID,
		"text":        tu.Text,
		"start_char":  tu.StartChar,
		"end_char":    tu.EndChar,
		"created_at":  tu.CreatedAt.Format(time.RFC3339),
	}
	q := fmt.Sprintf(
		"MATCH (d:Document {id: %s}) CREATE (t:TextUnit %s)-[:PART_OF]->(d)",
		quoteCypherString(tu.DocumentID), propsToCypherMap(props),
	)
	if _, err := s.g.query(ctx, q); err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: create_text_unit failed")
	}
	return nil
}

func (s *FalkorDBStore) UpsertEntity(ctx context.Context, name string, typ graphmodel.EntityType, description string, confidence float64) (string, error) {
	existing, found, err := s.FindEntityByName(ctx, name, typ)
	if err != nil {
		return "", err
	}

	if found {
		newConf := existing.Confidence
		if confidence > newConf {
			newConf = confidence
		}
		q := fmt.Sprintf(
			"MATCH (e:%s {id: %s}) SET e.confidence = %s, e.mention_count = e.mention_count + 1, e.description = %s, e.updated_at = %s",
			sanitizeLabel(string(typ)), quoteCypherString(existing.ID),
			cypherValue(newConf), quoteCypherString(pickDescription(existing.Description, description)),
			quoteCypherString(time.Now().UTC().Format(time.RFC3339)),
		)
		if _, err := s.g.query(ctx, q); err != nil {
			return "", errs.Wrap(errs.GraphUnavailable, err, "graphstore: upsert_entity update failed")
		}
		return existing.ID, nil
	}

	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	props := map[string]interface{}{
		"id":            id,
		"name":          name,
		"confidence":    confidence,
		"description":   description,
		"mention_count": 1,
		"created_at":    now,
		"updated_at":    now,
	}
	q := fmt.Sprintf("CREATE (e:%s %s)", sanitizeLabel(string(typ)), propsToCypherMap(props))
	if _, err := s.g.query(ctx, q); err != nil {
		return "", errs.Wrap(errs.GraphUnavailable, err, "graphstore: upsert_entity create failed")
	}
	return id, nil
}

func pickDescription(existing, incoming string) string {
	if strings.TrimSpace(incoming) == "" {
		return existing
	}
	return incoming
}

func (s *FalkorDBStore) LinkMention(ctx context.Context, entityID, textUnitID string) error {
	q := fmt.Sprintf(
		"MATCH (e {id: %s}), (t:TextUnit {id: %s}) MERGE (e)-[:MENTIONED_IN]->(t)",
		quoteCypherString(entityID), quoteCypherString(textUnitID),
	)
	if _, err := s.g.query(ctx, q); err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: link_mention failed")
	}
	return nil
}

func (s *FalkorDBStore) UpsertRelation(ctx context.Context, sourceID, targetID, relType, description string, confidence float64) error {
	label := sanitizeLabel(relType)
	q := fmt.Sprintf(
		`MATCH (a {id: %s}), (b {id: %s})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.id = %s, r.type = %s, r.description = %s, r.confidence = %s
ON MATCH SET r.confidence = CASE WHEN r.confidence < %s THEN %s ELSE r.confidence END`,
		quoteCypherString(sourceID), quoteCypherString(targetID), label,
		quoteCypherString(uuid.New().String()), quoteCypherString(relType),
		quoteCypherString(description), cypherValue(confidence),
		cypherValue(confidence), cypherValue(confidence),
	)
	if _, err := s.g.query(ctx, q); err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: upsert_relation failed")
	}
	return nil
}

func (s *FalkorDBStore) FindEntityByName(ctx context.Context, name string, typ graphmodel.EntityType) (graphmodel.Entity, bool, error) {
	var q string
	if typ != "" {
		q = fmt.Sprintf("MATCH (e:%s {name: %s}) RETURN e", sanitizeLabel(string(typ)), quoteCypherString(name))
	} else {
		q = fmt.Sprintf("MATCH (e {name: %s}) RETURN e", quoteCypherString(name))
	}
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return graphmodel.Entity{}, false, errs.Wrap(errs.GraphUnavailable, err, "graphstore: find_entity_by_name failed")
	}
	if len(qr.Results) == 0 || len(qr.Results[0]) == 0 {
		return graphmodel.Entity{}, false, nil
	}
	ent, ok := entityFromRow(qr.Results[0][0])
	if !ok {
		return graphmodel.Entity{}, false, nil
	}
	return ent, true, nil
}

func (s *FalkorDBStore) GetEntity(ctx context.Context, id string) (graphmodel.Entity, bool, error) {
	q := fmt.Sprintf("MATCH (e {id: %s}) RETURN e", quoteCypherString(id))
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return graphmodel.Entity{}, false, errs.Wrap(errs.GraphUnavailable, err, "graphstore: get_entity failed")
	}
	if len(qr.Results) == 0 {
		return graphmodel.Entity{}, false, nil
	}
	ent, ok := entityFromRow(qr.Results[0][0])
	return ent, ok, nil
}

func (s *FalkorDBStore) TopEntities(ctx context.Context, limit int, documentID string) ([]graphmodel.Entity, error) {
	var q string
	if documentID != "" {
		q = fmt.Sprintf(
			`MATCH (e)-[:MENTIONED_IN]->(:TextUnit)-[:PART_OF]->(d:Document {id: %s})
RETURN DISTINCT e ORDER BY e.mention_count DESC, e.confidence DESC LIMIT %d`,
			quoteCypherString(documentID), limit,
		)
	} else {
		q = fmt.Sprintf("MATCH (e) WHERE e.mention_count IS NOT NULL RETURN e ORDER BY e.mention_count DESC, e.confidence DESC LIMIT %d", limit)
	}
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.GraphUnavailable, err, "graphstore: top_entities failed")
	}
	var out []graphmodel.Entity
	for _, row := range qr.Results {
		if len(row) == 0 {
			continue
		}
		if ent, ok := entityFromRow(row[0]); ok {
			out = append(out, ent)
		}
	}
	return out, nil
}

// EntityContext performs a bounded BFS over semantic relations (excluding
// MENTIONED_IN/PART_OF), collecting related entities by hop distance and,
// if requested, the entity's own text units.
func (s *FalkorDBStore) EntityContext(ctx context.Context, entityID string, hopLimit int, includeText bool) (EntityContext, error) {
	if hopLimit < 1 {
		hopLimit = 1
	}
	out := EntityContext{}

	frontier := []string{entityID}
	visited := map[string]bool{entityID: true}

	for depth := 1; depth <= hopLimit; depth++ {
		if len(frontier) == 0 {
			break
		}
		idList := make([]string, len(frontier))
		for i, id := range frontier {
			idList[i] = quoteCypherString(id)
		}
		q := fmt.Sprintf(
			`MATCH (a)-[r]->(b) WHERE a.id IN [%s] AND NOT type(r) IN ['MENTIONED_IN','PART_OF','IN_COMMUNITY']
RETURN b, type(r)`,
			strings.Join(idList, ", "),
		)
		qr, err := s.g.query(ctx, q)
		if err != nil {
			return out, errs.Wrap(errs.GraphUnavailable, err, "graphstore: entity_context failed")
		}
		var next []string
		for _, row := range qr.Results {
			if len(row) < 2 {
				continue
			}
			ent, ok := entityFromRow(row[0])
			if !ok || visited[ent.ID] {
				continue
			}
			visited[ent.ID] = true
			next = append(next, ent.ID)
			out.RelatedEntities = append(out.RelatedEntities, RelatedEntity{
				Entity:       ent,
				RelationType: asString(row[1]),
				Distance:     depth,
			})
		}
		frontier = next
	}

	if includeText {
		q := fmt.Sprintf("MATCH (e {id: %s})-[:MENTIONED_IN]->(t:TextUnit) RETURN t", quoteCypherString(entityID))
		qr, err := s.g.query(ctx, q)
		if err != nil {
			return out, errs.Wrap(errs.GraphUnavailable, err, "graphstore: entity_context text lookup failed")
		}
		for _, row := range qr.Results {
			if len(row) == 0 {
				continue
			}
			if tu, ok := textUnitFromRow(row[0]); ok {
				out.TextUnits = append(out.TextUnits, tu)
			}
		}
	}

	return out, nil
}

func (s *FalkorDBStore) DeleteDocumentSubgraph(ctx context.Context, docID string) error {
	// Decrement mention_count once per MENTIONED_IN edge into this
	// document's text units, then delete the text units, then delete any
	// entity whose mention_count reached zero along with incident relations.
	// Each step is its own query, so text units are removed even when no
	// entity mentions them.
	id := quoteCypherString(docID)
	queries := []string{
		fmt.Sprintf("MATCH (e)-[:MENTIONED_IN]->(t:TextUnit)-[:PART_OF]->(:Document {id: %s}) SET e.mention_count = e.mention_count - 1", id),
		fmt.Sprintf("MATCH (t:TextUnit)-[:PART_OF]->(:Document {id: %s}) DETACH DELETE t", id),
		"MATCH (e) WHERE e.mention_count IS NOT NULL AND e.mention_count <= 0 DETACH DELETE e",
	}
	for _, q := range queries {
		if _, err := s.g.query(ctx, q); err != nil {
			return errs.Wrap(errs.GraphUnavailable, err, "graphstore: delete_document_subgraph failed")
		}
	}
	return nil
}

func (s *FalkorDBStore) ListAffectedCommunities(ctx context.Context, docID string) (AffectedCommunities, error) {
	out := AffectedCommunities{}
	q := fmt.Sprintf(
		`MATCH (e)-[:MENTIONED_IN]->(:TextUnit)-[:PART_OF]->(:Document {id: %s})
OPTIONAL MATCH (e)-[ic:IN_COMMUNITY]->(c)
RETURN DISTINCT e.id, c.id`, quoteCypherString(docID),
	)
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return out, errs.Wrap(errs.GraphUnavailable, err, "graphstore: list_affected_communities failed")
	}
	seenE := map[string]bool{}
	seenC := map[int]bool{}
	for _, row := range qr.Results {
		if len(row) < 2 {
			continue
		}
		eid := asString(row[0])
		if eid != "" && !seenE[eid] {
			seenE[eid] = true
			out.EntityIDs = append(out.EntityIDs, eid)
		}
		if row[1] != nil {
			if cid, err := strconv.Atoi(asString(row[1])); err == nil && !seenC[cid] {
				seenC[cid] = true
				out.CommunityIDs = append(out.CommunityIDs, cid)
			}
		}
	}
	return out, nil
}

func (s *FalkorDBStore) GraphStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{}
	counts := []struct {
		q   string
		dst *int
	}{
		{"MATCH (d:Document) RETURN count(d)", &stats.Documents},
		{"MATCH (t:TextUnit) RETURN count(t)", &stats.TextUnits},
		{"MATCH (e) WHERE e.mention_count IS NOT NULL RETURN count(e)", &stats.Entities},
		{"MATCH ()-[r]->() WHERE r.type IS NOT NULL RETURN count(r)", &stats.Relations},
	}
	for _, c := range counts {
		qr, err := s.g.query(ctx, c.q)
		if err != nil {
			return stats, errs.Wrap(errs.GraphUnavailable, err, "graphstore: graph_statistics failed")
		}
		if len(qr.Results) > 0 && len(qr.Results[0]) > 0 {
			if n, err := strconv.Atoi(asString(qr.Results[0][0])); err == nil {
				*c.dst = n
			}
		}
	}
	return stats, nil
}

func (s *FalkorDBStore) UpsertCommunityMembership(ctx context.Context, entityID string, communityID, level int) error {
	q := fmt.Sprintf(
		`MATCH (e {id: %s})
MERGE (c:Community {id: %d, level: %d})
MERGE (e)-[ic:IN_COMMUNITY]->(c)
SET ic.community_level = %d`,
		quoteCypherString(entityID), communityID, level, level,
	)
	if _, err := s.g.query(ctx, q); err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: upsert_community_membership failed")
	}
	return nil
}

// UpsertCommunitySummary writes the generated summary fields onto the
// Community node created by UpsertCommunityMembership (spec §4.7 step 3).
func (s *FalkorDBStore) UpsertCommunitySummary(ctx context.Context, communityID, level int, summary string, themes []string, significance graphmodel.Significance, timestamp time.Time) error {
	q := fmt.Sprintf(
		`MERGE (c:Community {id: %d, level: %d})
SET c.summary = %s, c.themes = %s, c.significance = %s, c.summary_timestamp = %s`,
		communityID, level,
		quoteCypherString(summary), cypherStringList(themes),
		quoteCypherString(string(significance)), quoteCypherString(timestamp.UTC().Format(time.RFC3339)),
	)
	if _, err := s.g.query(ctx, q); err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: upsert_community_summary failed")
	}
	return nil
}

// AllCommunities returns every Community node along with its current
// membership (via IN_COMMUNITY edges) and summary fields.
func (s *FalkorDBStore) AllCommunities(ctx context.Context) ([]graphmodel.Community, error) {
	q := `MATCH (c:Community) OPTIONAL MATCH (e)-[:IN_COMMUNITY]->(c) RETURN c, e.id`
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.GraphUnavailable, err, "graphstore: all_communities failed")
	}

	byID := make(map[int]*graphmodel.Community)
	for _, row := range qr.Results {
		if len(row) < 1 {
			continue
		}
		c, ok := communityFromRow(row[0])
		if !ok {
			continue
		}
		existing, ok := byID[c.ID]
		if !ok {
			cc := c
			existing = &cc
			byID[c.ID] = existing
		}
		if len(row) > 1 {
			if eid := asString(row[1]); eid != "" {
				existing.EntityIDs = append(existing.EntityIDs, eid)
			}
		}
	}

	out := make([]graphmodel.Community, 0, len(byID))
	for _, c := range byID {
		sort.Strings(c.EntityIDs)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func communityFromRow(obj interface{}) (graphmodel.Community, bool) {
	_, props, ok := parseNodeProps(obj)
	if !ok {
		return graphmodel.Community{}, false
	}
	c := graphmodel.Community{}
	idSet := false
	for k, v := range props {
		switch k {
		case "id":
			c.ID = int(toFloat(v))
			idSet = true
		case "level":
			c.Level = int(toFloat(v))
		case "summary":
			c.Summary = asString(v)
		case "significance":
			c.Significance = graphmodel.Significance(asString(v))
		case "summary_timestamp":
			if t, err := time.Parse(time.RFC3339, asString(v)); err == nil {
				c.SummaryTimestamp = t
			}
		case "themes":
			if list, ok := v.([]interface{}); ok {
				for _, th := range list {
					c.Themes = append(c.Themes, asString(th))
				}
			}
		}
	}
	if !idSet {
		return graphmodel.Community{}, false
	}
	return c, true
}

func (s *FalkorDBStore) RelationTypesFor(ctx context.Context, entityIDs []string, minConfidence float64, documentIDs []string) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	idList := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		idList[i] = quoteCypherString(id)
	}
	q := fmt.Sprintf(
		`MATCH (a)-[r]->() WHERE a.id IN [%s] AND r.confidence > %s AND NOT type(r) IN ['MENTIONED_IN','PART_OF','IN_COMMUNITY']
RETURN DISTINCT type(r)`,
		strings.Join(idList, ", "), cypherValue(minConfidence),
	)
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.GraphUnavailable, err, "graphstore: relation_types_for failed")
	}
	var out []string
	for _, row := range qr.Results {
		if len(row) > 0 {
			out = append(out, asString(row[0]))
		}
	}
	return out, nil
}

func (s *FalkorDBStore) ExpandByRelationType(ctx context.Context, sourceIDs []string, relType string, limit int) ([]Expansion, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	idList := make([]string, len(sourceIDs))
	for i, id := range sourceIDs {
		idList[i] = quoteCypherString(id)
	}
	q := fmt.Sprintf(
		`MATCH (a)-[r:%s]->(b) WHERE a.id IN [%s]
RETURN r, b ORDER BY r.confidence DESC, b.mention_count DESC LIMIT %d`,
		sanitizeLabel(relType), strings.Join(idList, ", "), limit,
	)
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.GraphUnavailable, err, "graphstore: expand_by_relation_type failed")
	}
	var out []Expansion
	for _, row := range qr.Results {
		if len(row) < 2 {
			continue
		}
		rel, ok := relationFromRow(row[0])
		if !ok {
			continue
		}
		tgt, ok := entityFromRow(row[1])
		if !ok {
			continue
		}
		rel.TargetID = tgt.ID
		out = append(out, Expansion{Relation: rel, Target: tgt})
	}
	return out, nil
}

func (s *FalkorDBStore) AllEntities(ctx context.Context, documentIDs []string) ([]graphmodel.Entity, error) {
	var q string
	if len(documentIDs) > 0 {
		idList := make([]string, len(documentIDs))
		for i, id := range documentIDs {
			idList[i] = quoteCypherString(id)
		}
		q = fmt.Sprintf(
			`MATCH (e)-[:MENTIONED_IN]->(:TextUnit)-[:PART_OF]->(d:Document) WHERE d.id IN [%s]
RETURN DISTINCT e`, strings.Join(idList, ", "),
		)
	} else {
		q = "MATCH (e) WHERE e.mention_count IS NOT NULL RETURN e"
	}
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.GraphUnavailable, err, "graphstore: all_entities failed")
	}
	var out []graphmodel.Entity
	for _, row := range qr.Results {
		if len(row) == 0 {
			continue
		}
		if ent, ok := entityFromRow(row[0]); ok {
			out = append(out, ent)
		}
	}
	return out, nil
}

func (s *FalkorDBStore) AllSemanticRelations(ctx context.Context) ([]graphmodel.Relation, error) {
	q := `MATCH (a)-[r]->(b) WHERE NOT type(r) IN ['MENTIONED_IN','PART_OF','IN_COMMUNITY']
RETURN a.id, r, b.id`
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.GraphUnavailable, err, "graphstore: all_semantic_relations failed")
	}
	var out []graphmodel.Relation
	for _, row := range qr.Results {
		if len(row) < 3 {
			continue
		}
		rel, ok := relationFromRow(row[1])
		if !ok {
			continue
		}
		rel.SourceID = asString(row[0])
		rel.TargetID = asString(row[2])
		out = append(out, rel)
	}
	return out, nil
}

// MergeEntities implements spec §4.5's merge algorithm by reading each
// duplicate's incident relations and text-unit mentions in Go, replaying
// them against primaryID through the existing upsert primitives (which
// already enforce take-max-confidence and at-most-one-edge), then
// detach-deleting the duplicate node. FalkorDB's Cypher dialect has no
// dynamic relationship-type creation, so redirecting an edge cannot be
// expressed as a single query the way the teacher's MERGE-based upserts
// can.
func (s *FalkorDBStore) MergeEntities(ctx context.Context, primaryID string, duplicateIDs []string) (int, error) {
	primary, ok, err := s.GetEntity(ctx, primaryID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.New(errs.NotFound, "graphstore: merge primary entity not found")
	}

	merged := 0
	for _, dupID := range duplicateIDs {
		if dupID == primaryID {
			continue
		}
		dup, ok, err := s.GetEntity(ctx, dupID)
		if err != nil {
			return merged, err
		}
		if !ok {
			continue // already absorbed by a prior merge: idempotent no-op
		}

		if err := s.transferMentions(ctx, dupID, primaryID); err != nil {
			return merged, err
		}
		if err := s.transferRelations(ctx, dupID, primaryID); err != nil {
			return merged, err
		}

		aliases := cypherStringList(append([]string{dup.Name}, dup.Aliases...))
		q := fmt.Sprintf(
			`MATCH (e {id: %s})
SET e.mention_count = e.mention_count + %d,
    e.aliases = CASE WHEN e.aliases IS NULL THEN %s ELSE e.aliases + %s END,
    e.updated_at = %s`,
			quoteCypherString(primaryID), dup.MentionCount,
			aliases, aliases,
			quoteCypherString(time.Now().UTC().Format(time.RFC3339)),
		)
		if _, err := s.g.query(ctx, q); err != nil {
			return merged, errs.Wrap(errs.GraphUnavailable, err, "graphstore: merge_entities alias/mention update failed")
		}

		del := fmt.Sprintf("MATCH (e {id: %s}) DETACH DELETE e", quoteCypherString(dupID))
		if _, err := s.g.query(ctx, del); err != nil {
			return merged, errs.Wrap(errs.GraphUnavailable, err, "graphstore: merge_entities detach delete failed")
		}
		merged++
	}

	_ = primary
	return merged, nil
}

func (s *FalkorDBStore) transferMentions(ctx context.Context, fromID, toID string) error {
	q := fmt.Sprintf("MATCH (e {id: %s})-[:MENTIONED_IN]->(t:TextUnit) RETURN t.id", quoteCypherString(fromID))
	qr, err := s.g.query(ctx, q)
	if err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: merge_entities mention lookup failed")
	}
	for _, row := range qr.Results {
		if len(row) == 0 {
			continue
		}
		if err := s.LinkMention(ctx, toID, asString(row[0])); err != nil {
			return err
		}
	}
	return nil
}

func (s *FalkorDBStore) transferRelations(ctx context.Context, fromID, toID string) error {
	outQ := fmt.Sprintf("MATCH (e {id: %s})-[r]->(b) WHERE NOT type(r) IN ['MENTIONED_IN','PART_OF','IN_COMMUNITY'] RETURN r, b.id", quoteCypherString(fromID))
	qr, err := s.g.query(ctx, outQ)
	if err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: merge_entities outgoing relation lookup failed")
	}
	for _, row := range qr.Results {
		if len(row) < 2 {
			continue
		}
		rel, ok := relationFromRow(row[0])
		if !ok {
			continue
		}
		target := asString(row[1])
		if target == toID {
			continue // would become a self-loop
		}
		if err := s.UpsertRelation(ctx, toID, target, rel.Type, rel.Description, rel.Confidence); err != nil {
			return err
		}
	}

	inQ := fmt.Sprintf("MATCH (a)-[r]->(e {id: %s}) WHERE NOT type(r) IN ['MENTIONED_IN','PART_OF','IN_COMMUNITY'] RETURN a.id, r", quoteCypherString(fromID))
	qr, err = s.g.query(ctx, inQ)
	if err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: merge_entities incoming relation lookup failed")
	}
	for _, row := range qr.Results {
		if len(row) < 2 {
			continue
		}
		source := asString(row[0])
		if source == toID {
			continue
		}
		rel, ok := relationFromRow(row[1])
		if !ok {
			continue
		}
		if err := s.UpsertRelation(ctx, source, toID, rel.Type, rel.Description, rel.Confidence); err != nil {
			return err
		}
	}
	return nil
}

// RenameEntity implements spec §4.5 step 6: rename primary unless another
// entity of the same type already owns newName.
func (s *FalkorDBStore) RenameEntity(ctx context.Context, entityID, newName string) error {
	e, ok, err := s.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.NotFound, "graphstore: rename target entity not found")
	}
	owner, found, err := s.FindEntityByName(ctx, newName, e.Type)
	if err != nil {
		return err
	}
	if found && owner.ID != entityID {
		return errs.New(errs.GraphConstraint, "graphstore: another entity already owns that (name, type)")
	}

	q := fmt.Sprintf(
		`MATCH (e {id: %s})
SET e.aliases = CASE WHEN e.aliases IS NULL THEN [%s] ELSE e.aliases + [%s] END,
    e.name = %s,
    e.updated_at = %s`,
		quoteCypherString(entityID),
		quoteCypherString(e.Name), quoteCypherString(e.Name),
		quoteCypherString(newName),
		quoteCypherString(time.Now().UTC().Format(time.RFC3339)),
	)
	if _, err := s.g.query(ctx, q); err != nil {
		return errs.Wrap(errs.GraphUnavailable, err, "graphstore: rename_entity failed")
	}
	return nil
}

func entityFromRow(obj interface{}) (graphmodel.Entity, bool) {
	label, props, ok := parseNodeProps(obj)
	if !ok {
		return graphmodel.Entity{}, false
	}
	e := graphmodel.Entity{Type: graphmodel.EntityType(label)}
	for k, v := range props {
		switch k {
		case "id":
			e.ID = asString(v)
		case "name":
			e.Name = asString(v)
		case "description":
			e.Description = asString(v)
		case "confidence":
			e.Confidence = toFloat(v)
		case "mention_count":
			e.MentionCount = int(toFloat(v))
		case "aliases":
			if list, ok := v.([]interface{}); ok {
				for _, a := range list {
					e.Aliases = append(e.Aliases, asString(a))
				}
			}
		}
	}
	if e.ID == "" {
		return graphmodel.Entity{}, false
	}
	return e, true
}

func textUnitFromRow(obj interface{}) (graphmodel.TextUnit, bool) {
	_, props, ok := parseNodeProps(obj)
	if !ok {
		return graphmodel.TextUnit{}, false
	}
	tu := graphmodel.TextUnit{}
	for k, v := range props {
		switch k {
		case "id":
			tu.ID = asString(v)
		case "document_id":
			tu.DocumentID = asString(v)
		case "text":
			tu.Text = asString(v)
		case "start_char":
			tu.StartChar = int(toFloat(v))
		case "end_char":
			tu.EndChar = int(toFloat(v))
		}
	}
	return tu, tu.ID != ""
}

func relationFromRow(obj interface{}) (graphmodel.Relation, bool) {
	relType, props, ok := parseEdgeProps(obj)
	if !ok {
		return graphmodel.Relation{}, false
	}
	r := graphmodel.Relation{Type: relType}
	for k, v := range props {
		switch k {
		case "id":
			r.ID = asString(v)
		case "description":
			r.Description = asString(v)
		case "confidence":
			r.Confidence = toFloat(v)
		case "strength":
			r.Strength = int(toFloat(v))
		}
	}
	return r, true
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}
