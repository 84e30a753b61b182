package tog

import (
	"context"

	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/prune"
)

const expandCandidateCap = 20

// nodeExpandEntities implements EXPAND_ENTITIES (spec §4.10): for each
// relation selected by explore_relations, fetch candidate target entities
// (already ordered by relation confidence desc, then target mention_count
// desc, capped at expandCandidateCap), score them with PruningStrategy, and
// keep the single top-scoring candidate per relation. Selected targets not
// already explored become next_entities, truncated to num_retain_entity;
// every kept candidate is recorded as a triplet regardless of whether it
// survives the retain-top-N cut, since retrieved_triplets only grows.
func (r *Reasoner) nodeExpandEntities(ctx context.Context, state any) (any, error) {
	s := state.(*togState)

	sourceIDs := make([]string, len(s.currentEntities))
	byID := make(map[string]graphmodel.Entity, len(s.currentEntities))
	for i, e := range s.currentEntities {
		sourceIDs[i] = e.ID
		byID[e.ID] = e
	}

	var nextEntities []graphmodel.Entity
	var relationNames []string

	for _, sr := range s.selectedRels {
		relationNames = append(relationNames, sr.Relation.Type)

		expansions, err := r.store.ExpandByRelationType(ctx, sourceIDs, sr.Relation.Type, expandCandidateCap)
		if err != nil {
			return nil, err
		}
		if len(expansions) == 0 {
			continue
		}

		candidates := make([]prune.Candidate, len(expansions))
		for i, ex := range expansions {
			candidates[i] = prune.Candidate{
				ID:          ex.Target.ID,
				Name:        ex.Target.Name,
				Description: ex.Target.Description,
				Type:        ex.Target.Type,
				Confidence:  ex.Target.Confidence,
			}
		}
		contextText := joinOrNone(entityNames(s.currentEntities))
		scored := r.pruner.ScoreEntities(ctx, s.question, candidates, contextText)
		if len(scored) == 0 {
			continue
		}
		top := scored[0]

		sourceName := sourceNameFor(expansions, top.ID, byID)

		s.triplets = append(s.triplets, graphmodel.Triplet{
			Subject:    sourceName,
			Relation:   sr.Relation.Type,
			Object:     top.Name,
			Confidence: top.Score,
			SourceStep: s.depth,
		})

		if !s.exploredEntities[top.ID] {
			target, found, err := r.store.GetEntity(ctx, top.ID)
			if err != nil {
				return nil, err
			}
			if found {
				nextEntities = append(nextEntities, target)
			}
		}
	}

	if r.cfg.NumRetainEntity > 0 && len(nextEntities) > r.cfg.NumRetainEntity {
		nextEntities = nextEntities[:r.cfg.NumRetainEntity]
	}

	s.curDepthNames = map[string]bool{}
	for _, e := range nextEntities {
		s.curDepthNames[e.Name] = true
		s.exploredEntities[e.ID] = true
	}

	step := Step{
		Depth:             s.depth,
		EntitiesExplored:  entityNames(s.currentEntities),
		RelationsSelected: relationNames,
	}
	s.reasoningPath = append(s.reasoningPath, step)

	s.currentEntities = nextEntities
	return s, nil
}

// sourceNameFor recovers the name of the current entity that produced
// targetID via this relation type, falling back to the first current
// entity if the expansion's own relation source isn't among them (e.g. a
// store implementation that doesn't echo SourceID per-candidate).
func sourceNameFor(expansions []graphstore.Expansion, targetID string, byID map[string]graphmodel.Entity) string {
	for _, ex := range expansions {
		if ex.Target.ID == targetID {
			if e, ok := byID[ex.Relation.SourceID]; ok {
				return e.Name
			}
		}
	}
	for _, e := range byID {
		return e.Name
	}
	return ""
}
