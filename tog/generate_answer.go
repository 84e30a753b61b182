package tog

import (
	"context"
	"fmt"
	"strings"

	"github.com/huytu0702/graphtog/query"
)

const generateAnswerPromptTemplate = `Question: %s

Reasoning path:
%s

Retrieved triplets:
%s

Using only the above evidence, answer the question. If the evidence is
incomplete, say so explicitly in the reasoning_summary.
Respond as a JSON object:
{"answer": "...", "confidence": 0.0, "reasoning_summary": "..."}
`

// nodeGenerateAnswer implements GENERATE_ANSWER (spec §4.10): summarize the
// reasoning path and call the LLM for a final answer over the retrieved
// triplets. Reached both when SUFFICIENCY_CHECK judged the evidence
// sufficient and when exploration terminated via the cycle check or the
// depth bound — in the latter two cases a "terminated: ..." entry naming the
// reason is appended to the reasoning path, while the confidence is the
// value the LLM reports, not adjusted for early termination (spec §4.10 draws
// these as direct END(INSUFFICIENT) transitions in its diagram; routing
// them through GENERATE_ANSWER as well means ToGReasoner always returns a
// usable answer rather than an empty result on early termination, matching
// the graceful-degradation pattern used by the Fallback path and by Global
// Map-Reduce's partial-failure note).
func (r *Reasoner) nodeGenerateAnswer(ctx context.Context, state any) (any, error) {
	s := state.(*togState)

	if s.noStartingEntities {
		s.fallback = true
		s.fallbackErr = errNoStartingEntities
		return s, nil
	}

	pathLines := make([]string, len(s.reasoningPath))
	for i, step := range s.reasoningPath {
		line := fmt.Sprintf("depth %d: entities=[%s] relations=[%s]", step.Depth, joinOrNone(step.EntitiesExplored), joinOrNone(step.RelationsSelected))
		if step.Notes != "" {
			line += " note=" + step.Notes
		}
		pathLines[i] = line
	}

	tripletLines := make([]string, len(s.triplets))
	for i, t := range s.triplets {
		tripletLines[i] = fmt.Sprintf("(%s, %s, %s)", t.Subject, t.Relation, t.Object)
	}

	if r.gateway == nil {
		s.fallback = true
		s.fallbackErr = fmt.Errorf("no LLM gateway configured for answer generation")
		return s, nil
	}

	prompt := fmt.Sprintf(generateAnswerPromptTemplate, s.question, joinOrNone(pathLines), joinOrNone(tripletLines))
	obj, err := r.gateway.GenerateJSON(ctx, prompt, r.cfg.ReasoningTemp)
	if err != nil {
		s.fallback = true
		s.fallbackErr = err
		return s, nil
	}

	answer, _ := obj["answer"].(string)
	confidence, _ := obj["confidence"].(float64)
	reasoningSummary, _ := obj["reasoning_summary"].(string)

	steps := make([]string, 0, len(pathLines)+1)
	steps = append(steps, pathLines...)
	if reasoningSummary != "" {
		steps = append(steps, "summary: "+reasoningSummary)
	}
	if s.sufficiencyNote != "" && strings.Contains(s.sufficiencyNote, "cycle") {
		steps = append(steps, "terminated: "+s.sufficiencyNote)
	} else if !s.sufficient {
		// Only cycle_check's depth-bound branch reaches here with
		// sufficient still false.
		steps = append(steps, "terminated: search depth reached")
	}

	s.result = query.ToGResult{
		Answer:        answer,
		Confidence:    confidence,
		ReasoningPath: steps,
		Triplets:      s.triplets,
	}
	return s, nil
}
