// Package retrieve implements Retriever (spec §4.8): five retrieval modes —
// local, community, global, hierarchical, and adaptive — each returning the
// uniform {status, retrieval_type, data} envelope QueryService consumes.
// Grounded on rag/retriever/graph.go's entity-driven retrieval shape,
// generalized from the teacher's single graph-query mode to the spec's
// explicit mode set and backed by graphstore.Store instead of rag.KnowledgeGraph.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
	"github.com/huytu0702/graphtog/result"
)

// RetrievalType labels which retrieval mode produced an Envelope.
type RetrievalType string

const (
	RetrievalLocal        RetrievalType = "local"
	RetrievalCommunity    RetrievalType = "community"
	RetrievalGlobal       RetrievalType = "global"
	RetrievalHierarchical RetrievalType = "hierarchical"
	RetrievalAdaptive     RetrievalType = "adaptive"
)

// QueryType is the classified query shape Adaptive uses to pick retrieval
// levels (spec §4.8's specific/comparative/exploratory mapping). It is a
// subset of QueryService's broader classify vocabulary (spec §4.9), which
// also includes local/global/hybrid/tog.
type QueryType string

const (
	QuerySpecific    QueryType = "specific"
	QueryComparative QueryType = "comparative"
	QueryExploratory QueryType = "exploratory"
)

// Envelope is the uniform result shape every Retriever method returns.
type Envelope struct {
	Status        result.Status      `json:"status"`
	RetrievalType RetrievalType      `json:"retrieval_type"`
	Data          any                `json:"data,omitempty"`
	Error         *result.ErrorInfo  `json:"error,omitempty"`
}

func ok(rt RetrievalType, data any) Envelope {
	return Envelope{Status: result.Success, RetrievalType: rt, Data: data}
}

func fail(rt RetrievalType, err error) Envelope {
	return Envelope{Status: result.Error, RetrievalType: rt, Error: &result.ErrorInfo{Kind: errs.KindOf(err), Message: err.Error()}}
}

func notFound(rt RetrievalType, message string) Envelope {
	return Envelope{Status: result.NotFound, RetrievalType: rt, Error: &result.ErrorInfo{Kind: errs.NotFound, Message: message}}
}

// PathStep is one hop in a Local-mode path: the entity reached and the
// relation type that led to it (empty for the seed, which has no incoming step).
type PathStep struct {
	EntityName   string `json:"entity_name"`
	RelationType string `json:"relation_type,omitempty"`
}

// Path is a sequence of steps from the seed entity to a related entity.
// The underlying BFS (graphstore.Store.EntityContext) retains only the
// final incident relation and hop distance per related entity, not the
// full intermediate chain, so a Path beyond distance 1 shows only its
// final hop, annotated with the distance it was found at.
type Path struct {
	Steps    []PathStep `json:"steps"`
	Distance int        `json:"distance"`
}

// LocalData is Local mode's payload.
type LocalData struct {
	Seed      graphmodel.Entity             `json:"seed"`
	Neighbors []graphstore.RelatedEntity     `json:"neighbors"`
	Paths     []Path                         `json:"paths"`
	TextUnits []graphmodel.TextUnit          `json:"text_units"`
}

// CommunityData is Community mode's payload.
type CommunityData struct {
	Seed      graphmodel.Entity   `json:"seed"`
	Community graphmodel.Community `json:"community"`
	CoMembers []graphmodel.Entity `json:"co_members"`
}

// GlobalCommunityInfo is one row of Global mode's community listing.
type GlobalCommunityInfo struct {
	ID           int                     `json:"id"`
	Level        int                     `json:"level"`
	Size         int                     `json:"size"`
	Summary      string                  `json:"summary"`
	Themes       []string                `json:"themes"`
	Significance graphmodel.Significance `json:"significance"`
	EntityCount  int                     `json:"entity_count"`
}

// GlobalData is Global mode's payload.
type GlobalData struct {
	Communities        []GlobalCommunityInfo `json:"communities"`
	SummariesAvailable bool                  `json:"summaries_available"`
}

// CombinedData is the deduplicated union Hierarchical and Adaptive modes
// build from the individual modes they compose.
type CombinedData struct {
	Entities     []graphmodel.Entity     `json:"entities"`
	Communities  []graphmodel.Community  `json:"communities"`
	TextSnippets []string                `json:"text_snippets"`
}

// Retriever implements the five retrieval modes over a graphstore.Store.
type Retriever struct {
	store   graphstore.Store
	gateway *llmgateway.Gateway
	cfg     config.RetrieverConfig
	logger  log.Logger
}

// New builds a Retriever. gateway may be nil: Hierarchical then falls back
// to GraphStore.TopEntities instead of LLM-classified query entities.
func New(store graphstore.Store, gateway *llmgateway.Gateway, cfg config.RetrieverConfig, logger log.Logger) *Retriever {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Retriever{store: store, gateway: gateway, cfg: cfg, logger: logger}
}

// Local returns all neighbors of seedEntityName within cfg.HopLimit hops,
// plus the (capped, possibly partial) paths taken.
func (r *Retriever) Local(ctx context.Context, seedEntityName string) Envelope {
	seed, found, err := r.store.FindEntityByName(ctx, seedEntityName, "")
	if err != nil {
		return fail(RetrievalLocal, err)
	}
	if !found {
		return notFound(RetrievalLocal, "entity not found: "+seedEntityName)
	}
	return r.localFromEntity(ctx, seed)
}

func (r *Retriever) localFromEntity(ctx context.Context, seed graphmodel.Entity) Envelope {
	ec, err := r.store.EntityContext(ctx, seed.ID, r.cfg.HopLimit, true)
	if err != nil {
		return fail(RetrievalLocal, err)
	}
	data := LocalData{
		Seed:      seed,
		Neighbors: ec.RelatedEntities,
		Paths:     buildPaths(seed, ec.RelatedEntities, r.cfg.MaxPaths),
		TextUnits: ec.TextUnits,
	}
	return ok(RetrievalLocal, data)
}

func buildPaths(seed graphmodel.Entity, neighbors []graphstore.RelatedEntity, maxPaths int) []Path {
	if maxPaths <= 0 {
		maxPaths = 10
	}
	n := len(neighbors)
	if n > maxPaths {
		n = maxPaths
	}
	paths := make([]Path, n)
	for i := 0; i < n; i++ {
		re := neighbors[i]
		paths[i] = Path{
			Steps: []PathStep{
				{EntityName: seed.Name},
				{EntityName: re.Entity.Name, RelationType: re.RelationType},
			},
			Distance: re.Distance,
		}
	}
	return paths
}

// Community returns seedEntityName's finest-level community, its summary/
// themes, and up to cfg.MaxCoMembers co-members.
func (r *Retriever) Community(ctx context.Context, seedEntityName string) Envelope {
	seed, found, err := r.store.FindEntityByName(ctx, seedEntityName, "")
	if err != nil {
		return fail(RetrievalCommunity, err)
	}
	if !found {
		return notFound(RetrievalCommunity, "entity not found: "+seedEntityName)
	}
	return r.communityFromEntity(ctx, seed)
}

func (r *Retriever) communityFromEntity(ctx context.Context, seed graphmodel.Entity) Envelope {
	memberships, err := r.communitiesContaining(ctx, seed.ID)
	if err != nil {
		return fail(RetrievalCommunity, err)
	}
	if len(memberships) == 0 {
		return notFound(RetrievalCommunity, "entity belongs to no detected community: "+seed.Name)
	}

	finest := memberships[0]
	for _, c := range memberships[1:] {
		if c.Level < finest.Level {
			finest = c
		}
	}

	maxCo := r.cfg.MaxCoMembers
	if maxCo <= 0 {
		maxCo = 20
	}
	coMembers := make([]graphmodel.Entity, 0, maxCo)
	for _, id := range finest.EntityIDs {
		if id == seed.ID || len(coMembers) >= maxCo {
			continue
		}
		e, found, err := r.store.GetEntity(ctx, id)
		if err != nil {
			return fail(RetrievalCommunity, err)
		}
		if found {
			coMembers = append(coMembers, e)
		}
	}

	return ok(RetrievalCommunity, CommunityData{Seed: seed, Community: finest, CoMembers: coMembers})
}

func (r *Retriever) communitiesContaining(ctx context.Context, entityID string) ([]graphmodel.Community, error) {
	all, err := r.store.AllCommunities(ctx)
	if err != nil {
		return nil, err
	}
	var out []graphmodel.Community
	for _, c := range all {
		for _, id := range c.EntityIDs {
			if id == entityID {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// Global returns every known community with its summary fields, and whether
// any community has been summarized at all (needed for meaningful global
// answering per spec §4.8).
func (r *Retriever) Global(ctx context.Context) Envelope {
	all, err := r.store.AllCommunities(ctx)
	if err != nil {
		return fail(RetrievalGlobal, err)
	}
	items := make([]GlobalCommunityInfo, len(all))
	summarized := false
	for i, c := range all {
		items[i] = GlobalCommunityInfo{
			ID:           c.ID,
			Level:        c.Level,
			Size:         len(c.EntityIDs),
			Summary:      c.Summary,
			Themes:       c.Themes,
			Significance: c.Significance,
			EntityCount:  len(c.EntityIDs),
		}
		if c.Summary != "" {
			summarized = true
		}
	}
	return ok(RetrievalGlobal, GlobalData{Communities: items, SummariesAvailable: summarized})
}

const topEntityExtractPrompt = `Question: %s

List up to %d distinct named entities (people, organizations, places, concepts) that this question is centrally about.
Respond as a JSON object: {"entities": ["name1", "name2", ...]}
`

// Hierarchical classifies up to cfg.HierarchicalTopK key entities in
// question via the LLM gateway, runs Local and Community for each, runs
// Global once, and returns the deduplicated union.
func (r *Retriever) Hierarchical(ctx context.Context, question string) Envelope {
	topK := r.cfg.HierarchicalTopK
	if topK <= 0 {
		topK = 3
	}

	names := r.extractTopEntityNames(ctx, question, topK)
	if len(names) == 0 {
		top, err := r.store.TopEntities(ctx, topK, "")
		if err != nil {
			return fail(RetrievalHierarchical, err)
		}
		for _, e := range top {
			names = append(names, e.Name)
		}
	}

	acc := newAccumulator()
	for _, name := range names {
		acc.mergeLocal(r.Local(ctx, name))
		acc.mergeCommunity(r.Community(ctx, name))
	}
	acc.mergeGlobal(r.Global(ctx))

	return ok(RetrievalHierarchical, acc.result())
}

func (r *Retriever) extractTopEntityNames(ctx context.Context, question string, topK int) []string {
	if r.gateway == nil {
		return nil
	}
	prompt := fmt.Sprintf(topEntityExtractPrompt, question, topK)
	obj, err := r.gateway.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		r.logger.Warn("retrieve: top-entity extraction failed, falling back to TopEntities: %v", err)
		return nil
	}
	raw, ok := obj["entities"].([]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			names = append(names, s)
		}
		if len(names) >= topK {
			break
		}
	}
	return names
}

// Adaptive runs the retrieval levels spec §4.8 maps to queryType
// (specific → local; comparative → local+community; exploratory →
// local+community+global) seeded from seedEntityName, and returns the
// deduplicated union, same shape as Hierarchical.
func (r *Retriever) Adaptive(ctx context.Context, seedEntityName string, queryType QueryType) Envelope {
	acc := newAccumulator()
	for _, lvl := range adaptiveLevels(queryType) {
		switch lvl {
		case RetrievalLocal:
			acc.mergeLocal(r.Local(ctx, seedEntityName))
		case RetrievalCommunity:
			acc.mergeCommunity(r.Community(ctx, seedEntityName))
		case RetrievalGlobal:
			acc.mergeGlobal(r.Global(ctx))
		}
	}
	return ok(RetrievalAdaptive, acc.result())
}

func adaptiveLevels(qt QueryType) []RetrievalType {
	switch qt {
	case QueryComparative:
		return []RetrievalType{RetrievalLocal, RetrievalCommunity}
	case QueryExploratory:
		return []RetrievalType{RetrievalLocal, RetrievalCommunity, RetrievalGlobal}
	default:
		return []RetrievalType{RetrievalLocal}
	}
}

// accumulator builds a deduplicated CombinedData across repeated merges.
type accumulator struct {
	entities    map[string]graphmodel.Entity
	entityOrder []string
	communities map[int]graphmodel.Community
	commOrder   []int
	snippets    map[string]bool
	snippetList []string
}

func newAccumulator() *accumulator {
	return &accumulator{
		entities:    map[string]graphmodel.Entity{},
		communities: map[int]graphmodel.Community{},
		snippets:    map[string]bool{},
	}
}

func (a *accumulator) addEntity(e graphmodel.Entity) {
	if _, seen := a.entities[e.ID]; seen {
		return
	}
	a.entities[e.ID] = e
	a.entityOrder = append(a.entityOrder, e.ID)
}

func (a *accumulator) addCommunity(c graphmodel.Community) {
	if _, seen := a.communities[c.ID]; seen {
		return
	}
	a.communities[c.ID] = c
	a.commOrder = append(a.commOrder, c.ID)
}

func (a *accumulator) addSnippet(text string) {
	text = strings.TrimSpace(text)
	if text == "" || a.snippets[text] {
		return
	}
	a.snippets[text] = true
	a.snippetList = append(a.snippetList, text)
}

func (a *accumulator) mergeLocal(env Envelope) {
	if env.Status != result.Success {
		return
	}
	data, ok := env.Data.(LocalData)
	if !ok {
		return
	}
	a.addEntity(data.Seed)
	for _, re := range data.Neighbors {
		a.addEntity(re.Entity)
	}
	for _, tu := range data.TextUnits {
		a.addSnippet(tu.Text)
	}
}

func (a *accumulator) mergeCommunity(env Envelope) {
	if env.Status != result.Success {
		return
	}
	data, ok := env.Data.(CommunityData)
	if !ok {
		return
	}
	a.addEntity(data.Seed)
	a.addCommunity(data.Community)
	for _, e := range data.CoMembers {
		a.addEntity(e)
	}
}

func (a *accumulator) mergeGlobal(env Envelope) {
	if env.Status != result.Success {
		return
	}
	data, ok := env.Data.(GlobalData)
	if !ok {
		return
	}
	for _, c := range data.Communities {
		a.addCommunity(graphmodel.Community{
			ID: c.ID, Level: c.Level, Summary: c.Summary, Themes: c.Themes, Significance: c.Significance,
		})
	}
}

func (a *accumulator) result() CombinedData {
	entities := make([]graphmodel.Entity, 0, len(a.entityOrder))
	for _, id := range a.entityOrder {
		entities = append(entities, a.entities[id])
	}
	communities := make([]graphmodel.Community, 0, len(a.commOrder))
	for _, id := range a.commOrder {
		communities = append(communities, a.communities[id])
	}
	sort.Slice(communities, func(i, j int) bool { return communities[i].ID < communities[j].ID })
	return CombinedData{Entities: entities, Communities: communities, TextSnippets: a.snippetList}
}
