package tog

import (
	"context"
	"fmt"

	"github.com/huytu0702/graphtog/query"
)

// fallbackResult implements the Fallback path (spec §4.10): any uncaught
// error degrades to extracting up to 2 fuzzy-matched entities, a one-step
// reasoning path, and a diagnostic answer at confidence 0.1.
func (r *Reasoner) fallbackResult(ctx context.Context, question string, cause error) query.ToGResult {
	all, err := r.store.AllEntities(ctx, nil)
	var matched []string
	if err == nil {
		names := entityNames(all)
		for _, tok := range meaningfulTokens(question) {
			if match, _, ok := bestFuzzyMatch(tok, names, 0.6); ok {
				already := false
				for _, m := range matched {
					if m == match {
						already = true
						break
					}
				}
				if !already {
					matched = append(matched, match)
				}
			}
			if len(matched) >= 2 {
				break
			}
		}
	}

	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}

	return query.ToGResult{
		Answer:     fmt.Sprintf("Unable to complete multi-hop reasoning (%s). Matched entities: %s.", reason, joinOrNone(matched)),
		Confidence: 0.1,
		ReasoningPath: []string{
			fmt.Sprintf("fallback: reasoning failed (%s), degraded to fuzzy entity match", reason),
		},
	}
}
