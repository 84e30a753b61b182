package tog

import (
	"context"
	"fmt"
	"strings"
)

const extractTopicPromptTemplate = `Question: %s

Candidate entities in the knowledge graph:
%s

Select up to 5 entities from the candidate list that this question is most
likely about. Only choose names that appear verbatim in the candidate list.
Respond as a JSON object: {"entities": ["..."]}
`

// nodeExtractTopic implements EXTRACT_TOPIC + the embedded FALLBACK_FUZZY
// step (spec §4.10): ask the LLM to pick up to 5 starting entities from the
// graph's (optionally document-scoped) entity list, validate each pick
// against the graph, fuzzy-match misses at similarity >=0.8, and if nothing
// at all matched, fuzzy-match meaningful question tokens at similarity
// >=0.6.
func (r *Reasoner) nodeExtractTopic(ctx context.Context, state any) (any, error) {
	s := state.(*togState)

	all, err := r.store.AllEntities(ctx, r.cfg.DocumentIDs)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		s.noStartingEntities = true
		return s, nil
	}

	names := entityNames(all)
	byName := make(map[string]int, len(all))
	for i, e := range all {
		byName[strings.ToLower(e.Name)] = i
	}

	var picked []string
	if r.gateway != nil {
		listing := strings.Join(names, "\n")
		prompt := fmt.Sprintf(extractTopicPromptTemplate, s.question, listing)
		obj, err := r.gateway.GenerateJSON(ctx, prompt, r.cfg.ExplorationTemp)
		if err == nil {
			if arr, ok := obj["entities"].([]interface{}); ok {
				for _, v := range arr {
					if name, ok := v.(string); ok && strings.TrimSpace(name) != "" {
						picked = append(picked, name)
					}
				}
			}
		} else {
			r.logger.Warn("tog: extract_topic LLM call failed, falling back to fuzzy match: %v", err)
		}
	}

	var starting []string
	seen := map[string]bool{}
	for _, p := range picked {
		if len(starting) >= 5 {
			break
		}
		if idx, ok := byName[strings.ToLower(p)]; ok {
			if !seen[all[idx].Name] {
				seen[all[idx].Name] = true
				starting = append(starting, all[idx].Name)
			}
			continue
		}
		if match, score, ok := bestFuzzyMatch(p, names, 0.8); ok && !seen[match] {
			seen[match] = true
			starting = append(starting, match)
			s.reasoningPath = append(s.reasoningPath, Step{Notes: fmt.Sprintf("fuzzy-matched %q to %q (score %.2f)", p, match, score)})
		}
	}

	if len(starting) == 0 {
		for _, tok := range meaningfulTokens(s.question) {
			if match, score, ok := bestFuzzyMatch(tok, names, 0.6); ok && !seen[match] {
				seen[match] = true
				starting = append(starting, match)
				s.reasoningPath = append(s.reasoningPath, Step{Notes: fmt.Sprintf("token-fuzzy-matched %q to %q (score %.2f)", tok, match, score)})
			}
			if len(starting) >= 5 {
				break
			}
		}
	}

	if len(starting) == 0 {
		s.noStartingEntities = true
		return s, nil
	}

	for _, name := range starting {
		idx := byName[strings.ToLower(name)]
		s.currentEntities = append(s.currentEntities, all[idx])
		s.exploredEntities[all[idx].ID] = true
	}
	return s, nil
}
