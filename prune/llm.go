package prune

import (
	"context"
	"fmt"
	"strings"

	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
)

// LLMStrategy scores via a single structured-JSON prompt, grounded on the
// same GenerateJSON convention extract and resolve already use. Highest
// quality and slowest: each scoring call is one GenerateJSON request for the
// whole candidate list. (The embedding variant also calls the gateway, once
// per embedded text; BM25 makes no network call.)
type LLMStrategy struct {
	gateway *llmgateway.Gateway
	logger  log.Logger
}

const relationScorePromptTemplate = `Question: %s

Context so far:
%s

Candidate relations (by index):
%s

Score each relation's usefulness for answering the question, 0 (useless) to 1 (essential).
Respond as a JSON object: {"scores": [{"index": 0, "score": 0.8, "reasoning": "..."}, ...]}
One entry per candidate index, in any order.
`

const entityScorePromptTemplate = `Question: %s

Context so far:
%s

Candidate entities (by index):
%s

Score each candidate's relevance to the question, 0 (irrelevant) to 1 (highly relevant).
Respond as a JSON object: {"scores": [{"index": 0, "score": 0.8, "reasoning": "..."}, ...]}
One entry per candidate index, in any order.
`

func (s *LLMStrategy) ScoreRelations(ctx context.Context, question string, relations []graphmodel.Relation, contextText string) []ScoredRelation {
	if len(relations) == 0 {
		return nil
	}
	if s.gateway == nil {
		return uniformRelations(relations)
	}

	lines := make([]string, len(relations))
	for i, r := range relations {
		lines[i] = fmt.Sprintf("%d. %s (%s): %s", i, r.Type, r.Description, r.SourceID+" -> "+r.TargetID)
	}
	prompt := fmt.Sprintf(relationScorePromptTemplate, question, contextText, strings.Join(lines, "\n"))

	obj, err := s.gateway.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		s.logger.Warn("prune: LLM relation scoring failed, falling back to uniform: %v", err)
		return uniformRelations(relations)
	}

	out := uniformRelations(relations)
	applyScores(obj, len(relations), func(idx int, score float64, reasoning string) {
		out[idx] = ScoredRelation{Relation: relations[idx], Score: score, Reasoning: reasoning}
	})
	sortRelationsDesc(out)
	return out
}

func (s *LLMStrategy) ScoreEntities(ctx context.Context, question string, candidates []Candidate, contextText string) []ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}
	if s.gateway == nil {
		return uniformCandidates(candidates)
	}

	lines := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = fmt.Sprintf("%d. %s (%s): %s", i, c.Name, c.Type, c.Description)
	}
	prompt := fmt.Sprintf(entityScorePromptTemplate, question, contextText, strings.Join(lines, "\n"))

	obj, err := s.gateway.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		s.logger.Warn("prune: LLM entity scoring failed, falling back to uniform: %v", err)
		return uniformCandidates(candidates)
	}

	out := uniformCandidates(candidates)
	applyScores(obj, len(candidates), func(idx int, score float64, reasoning string) {
		out[idx] = ScoredCandidate{Candidate: candidates[idx], Score: score, Reasoning: reasoning}
	})
	sortCandidatesDesc(out)
	return out
}

// applyScores walks obj["scores"] (a list of {index, score, reasoning})
// and invokes set for every entry whose index is in range.
func applyScores(obj map[string]any, n int, set func(idx int, score float64, reasoning string)) {
	raw, ok := obj["scores"].([]interface{})
	if !ok {
		return
	}
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		idxF, ok := m["index"].(float64)
		if !ok {
			continue
		}
		idx := int(idxF)
		if idx < 0 || idx >= n {
			continue
		}
		score, _ := m["score"].(float64)
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		reasoning, _ := m["reasoning"].(string)
		set(idx, score, reasoning)
	}
}
