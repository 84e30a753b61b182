// Package summarize implements CommunitySummarizer (spec §4.7): for each
// community, retrieve a bounded sample of members and internal relations,
// ask the LLMGateway for a structured {summary, themes, significance}, and
// persist the result on the Community node with a timestamp.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
)

// Outcome is the per-community result of a Summarize batch call.
type Outcome struct {
	CommunityID int
	Err         error
}

// Summarizer is CommunitySummarizer, backed by a graphstore.Store for
// member/relation lookups and persistence, and an llmgateway.Gateway for
// the structured summary itself.
type Summarizer struct {
	store   graphstore.Store
	gateway *llmgateway.Gateway
	cfg     config.SummarizerConfig
	logger  log.Logger
}

// New builds a Summarizer.
func New(store graphstore.Store, gateway *llmgateway.Gateway, cfg config.SummarizerConfig, logger log.Logger) *Summarizer {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Summarizer{store: store, gateway: gateway, cfg: cfg, logger: logger}
}

const summaryPromptTemplate = `Summarize the following community of related entities from a knowledge graph.

Entities (most-mentioned first):
%s

Internal relations:
%s

Respond as a JSON object:
{
  "summary": a 2-4 sentence summary of what connects these entities and why the group matters,
  "themes": an array of 3 to 5 short theme strings,
  "significance": one of "low", "medium", "high"
}
`

// Summarize generates and persists a summary for each of communities,
// running up to cfg.Concurrency at a time. Per-community failures are
// isolated (spec §4.7): one Outcome is returned per input community, in the
// same order, and a failing community does not prevent the others from
// completing.
func (s *Summarizer) Summarize(ctx context.Context, communities []graphmodel.Community) ([]Outcome, error) {
	if len(communities) == 0 {
		return nil, nil
	}

	allEntities, err := s.store.AllEntities(ctx, nil)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]graphmodel.Entity, len(allEntities))
	for _, e := range allEntities {
		byID[e.ID] = e
	}

	allRelations, err := s.store.AllSemanticRelations(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(communities))
	g, gctx := errgroup.WithContext(ctx)
	concurrency := s.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	g.SetLimit(concurrency)

	for i, c := range communities {
		i, c := i, c
		g.Go(func() error {
			err := s.summarizeOne(gctx, c, byID, allRelations)
			if err != nil {
				s.logger.Warn("summarize: community %d failed: %v", c.ID, err)
			}
			outcomes[i] = Outcome{CommunityID: c.ID, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// SummarizeOne generates and persists a summary for a single community.
func (s *Summarizer) SummarizeOne(ctx context.Context, c graphmodel.Community) error {
	allEntities, err := s.store.AllEntities(ctx, nil)
	if err != nil {
		return err
	}
	byID := make(map[string]graphmodel.Entity, len(allEntities))
	for _, e := range allEntities {
		byID[e.ID] = e
	}
	allRelations, err := s.store.AllSemanticRelations(ctx)
	if err != nil {
		return err
	}
	return s.summarizeOne(ctx, c, byID, allRelations)
}

func (s *Summarizer) summarizeOne(ctx context.Context, c graphmodel.Community, byID map[string]graphmodel.Entity, allRelations []graphmodel.Relation) error {
	members := selectMembers(c.EntityIDs, byID, s.cfg.MaxMembers)
	if len(members) == 0 {
		return nil
	}
	memberSet := make(map[string]bool, len(members))
	for _, e := range members {
		memberSet[e.ID] = true
	}

	relations := selectRelations(allRelations, memberSet, s.cfg.MaxRelations)

	prompt := fmt.Sprintf(summaryPromptTemplate, describeEntities(members), describeRelations(relations, byID))
	obj, err := s.gateway.GenerateJSON(ctx, prompt, 0.3)
	if err != nil {
		return err
	}

	summary, _ := obj["summary"].(string)
	significance := graphmodel.SignificanceMedium
	if v, ok := obj["significance"].(string); ok {
		switch graphmodel.Significance(strings.ToLower(strings.TrimSpace(v))) {
		case graphmodel.SignificanceLow:
			significance = graphmodel.SignificanceLow
		case graphmodel.SignificanceMedium:
			significance = graphmodel.SignificanceMedium
		case graphmodel.SignificanceHigh:
			significance = graphmodel.SignificanceHigh
		}
	}
	var themes []string
	if raw, ok := obj["themes"].([]interface{}); ok {
		for _, t := range raw {
			if str, ok := t.(string); ok && strings.TrimSpace(str) != "" {
				themes = append(themes, str)
			}
			if len(themes) == 5 {
				break
			}
		}
	}
	if len(themes) == 0 {
		themes = []string{"general"}
	}

	return s.store.UpsertCommunitySummary(ctx, c.ID, c.Level, strings.TrimSpace(summary), themes, significance, time.Now().UTC())
}

// selectMembers orders a community's members by mention_count desc (ties
// broken by id for determinism) and caps the result at maxMembers.
func selectMembers(entityIDs []string, byID map[string]graphmodel.Entity, maxMembers int) []graphmodel.Entity {
	members := make([]graphmodel.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		if e, ok := byID[id]; ok {
			members = append(members, e)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].MentionCount != members[j].MentionCount {
			return members[i].MentionCount > members[j].MentionCount
		}
		return members[i].ID < members[j].ID
	})
	if maxMembers <= 0 {
		maxMembers = 20
	}
	if len(members) > maxMembers {
		members = members[:maxMembers]
	}
	return members
}

// selectRelations keeps only relations whose endpoints are both in
// memberSet, ordered by confidence desc and capped at maxRelations.
func selectRelations(all []graphmodel.Relation, memberSet map[string]bool, maxRelations int) []graphmodel.Relation {
	var internal []graphmodel.Relation
	for _, r := range all {
		if memberSet[r.SourceID] && memberSet[r.TargetID] {
			internal = append(internal, r)
		}
	}
	sort.Slice(internal, func(i, j int) bool { return internal[i].Confidence > internal[j].Confidence })
	if maxRelations <= 0 {
		maxRelations = 15
	}
	if len(internal) > maxRelations {
		internal = internal[:maxRelations]
	}
	return internal
}

func describeEntities(members []graphmodel.Entity) string {
	lines := make([]string, 0, len(members))
	for _, e := range members {
		if e.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s (%s): %s", e.Name, e.Type, e.Description))
		} else {
			lines = append(lines, fmt.Sprintf("- %s (%s)", e.Name, e.Type))
		}
	}
	return strings.Join(lines, "\n")
}

func describeRelations(relations []graphmodel.Relation, byID map[string]graphmodel.Entity) string {
	if len(relations) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(relations))
	for _, r := range relations {
		src := byID[r.SourceID].Name
		dst := byID[r.TargetID].Name
		if r.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s -[%s]-> %s: %s", src, r.Type, dst, r.Description))
		} else {
			lines = append(lines, fmt.Sprintf("- %s -[%s]-> %s", src, r.Type, dst))
		}
	}
	return strings.Join(lines, "\n")
}
