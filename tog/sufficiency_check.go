package tog

import (
	"context"
	"fmt"
)

const sufficiencyPromptTemplate = `Question: %s

Relations explored at this step: %s
Entities now known: %s

Decide whether the evidence gathered so far is sufficient to answer the
question. Respond as a JSON object:
{"sufficient": true|false, "confidence_score": 0.0, "reasoning": "..."}
`

// nodeSufficiencyCheck implements SUFFICIENCY_CHECK (spec §4.10). Only
// reached when EnableSufficiencyCheck is true (the conditional edge out of
// expand_entities routes straight to cycle_check otherwise).
func (r *Reasoner) nodeSufficiencyCheck(ctx context.Context, state any) (any, error) {
	s := state.(*togState)

	if r.gateway == nil {
		s.sufficient = false
		return s, nil
	}

	var lastRels []string
	if n := len(s.reasoningPath); n > 0 {
		lastRels = s.reasoningPath[n-1].RelationsSelected
	}
	prompt := fmt.Sprintf(sufficiencyPromptTemplate, s.question, joinOrNone(lastRels), joinOrNone(keys(s.curDepthNames)))

	obj, err := r.gateway.GenerateJSON(ctx, prompt, r.cfg.ExplorationTemp)
	if err != nil {
		r.logger.Warn("tog: sufficiency_check LLM call failed, treating as insufficient: %v", err)
		s.sufficient = false
		return s, nil
	}

	sufficient, _ := obj["sufficient"].(bool)
	confidence, _ := obj["confidence_score"].(float64)
	reasoning, _ := obj["reasoning"].(string)

	s.sufficient = sufficient
	s.sufficiencyNote = reasoning
	if n := len(s.reasoningPath); n > 0 {
		s.reasoningPath[n-1].SufficiencyScore = &confidence
		s.reasoningPath[n-1].Notes = reasoning
	}
	return s, nil
}
