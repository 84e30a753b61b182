// Package extract implements the Extractor (spec §4.4): joint entity and
// relation extraction from text units via a single LLM prompt, two-pass
// continuation, bounded-parallelism batching, and per-chunk failure
// isolation.
package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
)

// AllowedEntityTypes enumerates the allowed-type list given in the
// extraction prompt (spec §4.4: "enumerated allowed-type list").
var AllowedEntityTypes = []string{
	string(graphmodel.EntityPerson),
	string(graphmodel.EntityOrganization),
	string(graphmodel.EntityGeo),
	string(graphmodel.EntityEvent),
	string(graphmodel.EntityProduct),
	string(graphmodel.EntityFacility),
	string(graphmodel.EntityWorkOfArt),
	string(graphmodel.EntityLaw),
	string(graphmodel.EntityConcept),
	string(graphmodel.EntityOther),
}

// Chunk is one unit of work for the Extractor: a text unit already
// persisted by the caller, plus the document it belongs to.
type Chunk struct {
	TextUnitID string
	DocumentID string
	Text       string
}

// ChunkResult reports the outcome of extracting from a single Chunk.
type ChunkResult struct {
	TextUnitID  string
	EntityCount int
	RelationCount int
	Err         error
}

// Result is the outcome of a Extractor.Run batch.
type Result struct {
	ChunkResults []ChunkResult
	Status       graphmodel.DocumentStatus
}

// Extractor runs the joint entity/relation extraction prompt over chunks
// and persists the results to a graphstore.Store.
type Extractor struct {
	gateway *llmgateway.Gateway
	store   graphstore.Store
	cfg     config.ExtractorConfig
	logger  log.Logger
}

// New builds an Extractor.
func New(gateway *llmgateway.Gateway, store graphstore.Store, cfg config.ExtractorConfig, logger log.Logger) *Extractor {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Extractor{gateway: gateway, store: store, cfg: cfg, logger: logger}
}

// extractedEntity and extractedRelation mirror the JSON record shapes the
// joint extraction prompt is instructed to emit.
type extractedEntity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type extractedRelation struct {
	SourceName  string `json:"source_name"`
	TargetName  string `json:"target_name"`
	Description string `json:"description"`
	Strength    int    `json:"strength"`
}

type extractionPage struct {
	Entities  []extractedEntity   `json:"entities"`
	Relations []extractedRelation `json:"relationships"`
	Continue  bool                `json:"continue"`
}

// Run processes chunks with bounded parallelism K (cfg.BatchParallelism)
// and returns a ChunkResult per chunk plus the aggregate document status,
// per spec §4.4's failure-isolation rule: the document-level status is
// completed if at least one chunk produced any entity and no fatal fault
// occurred; otherwise failed.
func (x *Extractor) Run(ctx context.Context, chunks []Chunk) (Result, error) {
	if len(chunks) == 0 {
		return Result{Status: graphmodel.DocumentFailed}, nil
	}

	limit := x.cfg.BatchParallelism
	if limit < 1 {
		limit = 1
	}

	results := make([]ChunkResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	anyEntities := false
	fatal := false

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = ChunkResult{TextUnitID: c.TextUnitID, Err: err}
				return nil
			}
			nEnt, nRel, err := x.extractOne(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				x.logger.Warn("extract: chunk %s failed: %v", c.TextUnitID, err)
				results[i] = ChunkResult{TextUnitID: c.TextUnitID, Err: err}
				if errs.Is(err, errs.Cancelled) || errs.Is(err, errs.GraphUnavailable) {
					fatal = true
				}
				return nil
			}
			results[i] = ChunkResult{TextUnitID: c.TextUnitID, EntityCount: nEnt, RelationCount: nRel}
			if nEnt > 0 {
				anyEntities = true
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{ChunkResults: results}, err
	}

	status := graphmodel.DocumentFailed
	if anyEntities && !fatal {
		status = graphmodel.DocumentCompleted
	}
	return Result{ChunkResults: results, Status: status}, nil
}

// extractOne runs the joint extraction prompt for a single chunk, re-prompting
// while the model signals more remain, for at most cfg.TwoPassMaxIterations
// passes in total (the first prompt included), then persists
// entities/relations to the store.
func (x *Extractor) extractOne(ctx context.Context, c Chunk) (entityCount, relationCount int, err error) {
	maxIterations := x.cfg.TwoPassMaxIterations
	if maxIterations < 1 {
		maxIterations = 1
	}

	byName := map[string]string{} // normalized "name\x00type" -> entity id
	var allRelations []extractedRelation

	priorEntities := ""
	for iteration := 0; iteration < maxIterations; iteration++ {
		prompt := buildExtractionPrompt(c.Text, priorEntities)
		obj, gerr := x.gateway.GenerateJSON(ctx, prompt, 0.0)
		if gerr != nil {
			return 0, 0, gerr
		}
		page := parsePage(obj)

		for _, e := range page.Entities {
			if strings.TrimSpace(e.Name) == "" {
				continue
			}
			typ := normalizeType(e.Type)
			id, uerr := x.store.UpsertEntity(ctx, e.Name, typ, e.Description, 0.8)
			if uerr != nil {
				return 0, 0, errs.Wrap(errs.GraphUnavailable, uerr, "extract: upsert entity failed")
			}
			if lerr := x.store.LinkMention(ctx, id, c.TextUnitID); lerr != nil {
				return 0, 0, errs.Wrap(errs.GraphUnavailable, lerr, "extract: link mention failed")
			}
			byName[identityKey(e.Name, typ)] = id
		}
		allRelations = append(allRelations, page.Relations...)

		if !page.Continue {
			break
		}
		priorEntities = summarizeKnownEntities(byName)
	}

	relDropped := 0
	for _, r := range allRelations {
		srcID, srcOK := resolveEndpoint(ctx, x.store, byName, r.SourceName)
		tgtID, tgtOK := resolveEndpoint(ctx, x.store, byName, r.TargetName)
		if !srcOK || !tgtOK {
			relDropped++
			x.logger.Debug("extract: dropping relation %s->%s, endpoint not found", r.SourceName, r.TargetName)
			continue
		}
		confidence := float64(r.Strength) / 10.0
		if confidence <= 0 {
			confidence = 0.5
		}
		relType := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(r.Description), " ", "_"))
		if relType == "" {
			relType = "RELATED_TO"
		}
		if err := x.store.UpsertRelation(ctx, srcID, tgtID, relType, r.Description, confidence); err != nil {
			return 0, 0, errs.Wrap(errs.GraphUnavailable, err, "extract: upsert relation failed")
		}
	}

	return len(byName), len(allRelations) - relDropped, nil
}

// resolveEndpoint looks up name first among this chunk's freshly extracted
// entities, then falls back to a store lookup across known types (the
// relation's endpoint may have been extracted in an earlier chunk).
func resolveEndpoint(ctx context.Context, store graphstore.Store, byName map[string]string, name string) (string, bool) {
	for _, typ := range AllowedEntityTypes {
		if id, ok := byName[identityKey(name, graphmodel.EntityType(typ))]; ok {
			return id, true
		}
	}
	for _, typ := range AllowedEntityTypes {
		if e, ok, err := store.FindEntityByName(ctx, name, graphmodel.EntityType(typ)); err == nil && ok {
			return e.ID, true
		}
	}
	return "", false
}

func identityKey(name string, typ graphmodel.EntityType) string {
	return graphmodel.NormalizeName(name) + "\x00" + string(typ)
}

func normalizeType(raw string) graphmodel.EntityType {
	u := strings.ToUpper(strings.TrimSpace(raw))
	for _, t := range AllowedEntityTypes {
		if t == u {
			return graphmodel.EntityType(t)
		}
	}
	return graphmodel.EntityOther
}

func summarizeKnownEntities(byName map[string]string) string {
	var sb strings.Builder
	for key := range byName {
		parts := strings.SplitN(key, "\x00", 2)
		if len(parts) == 2 {
			sb.WriteString(fmt.Sprintf("%s (%s); ", parts[0], parts[1]))
		}
	}
	return sb.String()
}

func parsePage(obj map[string]any) extractionPage {
	var page extractionPage
	if raw, ok := obj["entities"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			page.Entities = append(page.Entities, extractedEntity{
				Name:        asString(m["name"]),
				Type:        asString(m["type"]),
				Description: asString(m["description"]),
			})
		}
	}
	if raw, ok := obj["relationships"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			page.Relations = append(page.Relations, extractedRelation{
				SourceName:  asString(m["source_name"]),
				TargetName:  asString(m["target_name"]),
				Description: asString(m["description"]),
				Strength:    asInt(m["strength"]),
			})
		}
	}
	if v, ok := obj["continue"].(bool); ok {
		page.Continue = v
	}
	return page
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

const extractionPromptTemplate = `You are extracting a knowledge graph from text.

Identify all named entities and the relationships between them.
Allowed entity types: %s.

For each entity emit: name, type (one of the allowed types; use OTHER if none fit), description.
For each relationship emit: source_name, target_name, description (a short verb phrase), strength (integer 1-10).

%s

Return a single JSON object of this shape:
{
  "entities": [{"name": "...", "type": "...", "description": "..."}],
  "relationships": [{"source_name": "...", "target_name": "...", "description": "...", "strength": 7}],
  "continue": false
}

Set "continue" to true only if the text contains more entities or relationships you were unable to fit in this response.

Text:
%s
`

func buildExtractionPrompt(text, priorEntities string) string {
	note := ""
	if priorEntities != "" {
		note = fmt.Sprintf("Entities already found in a previous pass over this same text (do not repeat them, focus on what remains): %s", priorEntities)
	}
	return fmt.Sprintf(extractionPromptTemplate, strings.Join(AllowedEntityTypes, ", "), note, text)
}
