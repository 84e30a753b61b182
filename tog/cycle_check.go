package tog

import "context"

const cycleOverlapThreshold = 0.8

// nodeCycleCheck implements CYCLE_CHECK (spec §4.10): if >=80% of the
// current depth's entity names overlap with the immediately preceding
// step's, exploration stops and the cycle_check edge routes to
// generate_answer, which still composes an answer from the evidence so far;
// no INSUFFICIENT status is reported, and the cause is recorded only in
// sufficiencyNote, which generate_answer copies into the reasoning path. This node
// repurposes togState.sufficient as "stop now" for the cycle_check ->
// {generate_answer, explore_relations} conditional edge only; true here
// does not mean SUFFICIENCY_CHECK found the evidence sufficient, so
// generate_answer checks s.sufficiencyNote/overlap explicitly when
// composing its own reasoning summary.
func (r *Reasoner) nodeCycleCheck(ctx context.Context, state any) (any, error) {
	s := state.(*togState)

	if len(s.currentEntities) == 0 {
		s.sufficient = true
		s.sufficiencyNote = "no further entities to explore"
		return s, nil
	}

	if s.prevDepthNames != nil && len(s.curDepthNames) > 0 {
		overlap := 0
		for name := range s.curDepthNames {
			if s.prevDepthNames[name] {
				overlap++
			}
		}
		ratio := float64(overlap) / float64(len(s.curDepthNames))
		if ratio >= cycleOverlapThreshold {
			s.sufficient = true
			s.sufficiencyNote = "cycle detected: repeated entity set across hops"
			return s, nil
		}
	}

	s.prevDepthNames = s.curDepthNames
	s.depth++
	s.sufficient = false
	return s, nil
}
