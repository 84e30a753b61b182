package tog

import (
	"context"

	"github.com/huytu0702/graphtog/graphmodel"
)

const relationMinConfidence = 0.3

// nodeExploreRelations implements EXPLORE_RELATIONS (spec §4.10): fetch
// distinct relation types outgoing from the current entity set above
// relationMinConfidence, drop already-explored types, score the rest with
// the configured PruningStrategy, and keep the top search_width.
func (r *Reasoner) nodeExploreRelations(ctx context.Context, state any) (any, error) {
	s := state.(*togState)

	ids := make([]string, len(s.currentEntities))
	for i, e := range s.currentEntities {
		ids[i] = e.ID
	}

	types, err := r.store.RelationTypesFor(ctx, ids, relationMinConfidence, r.cfg.DocumentIDs)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, t := range types {
		if !s.exploredRelations[t] {
			candidates = append(candidates, t)
		}
	}

	if len(candidates) == 0 {
		s.selectedRels = nil
		return s, nil
	}

	// PruningStrategy.ScoreRelations scores graphmodel.Relation objects, not
	// raw type strings; EXPLORE_RELATIONS only has type strings at this
	// point, so each is wrapped in a synthetic Relation carrying just its
	// Type, the minimal value ScoreRelations's prompt/BM25/embedding text
	// needs to rank it.
	synthetic := make([]graphmodel.Relation, len(candidates))
	for i, t := range candidates {
		synthetic[i] = graphmodel.Relation{Type: t}
	}

	contextText := joinOrNone(entityNames(s.currentEntities))
	scored := r.pruner.ScoreRelations(ctx, s.question, synthetic, contextText)

	width := r.cfg.SearchWidth
	if width <= 0 || width > len(scored) {
		width = len(scored)
	}
	s.selectedRels = scored[:width]
	for _, sr := range s.selectedRels {
		s.exploredRelations[sr.Relation.Type] = true
	}
	return s, nil
}
