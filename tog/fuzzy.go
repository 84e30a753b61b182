package tog

import "strings"

// similarity scores how closely a candidate entity/token name matches a
// query term, in [0,1]. No edit-distance or fuzzy-matching library appears
// anywhere in the reference pack; the closest precedent is a SQL
// substring-LIKE entity search, which only returns a boolean hit, not a
// graded score the spec's similarity thresholds (>=0.8, >=0.6) need. This
// generalizes that substring-match idea into a normalized token-overlap
// score using only the standard library, the same "no library in pack, small
// formula, stdlib is the only option" reasoning already used for BM25.
func similarity(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		longer, shorter := a, b
		if len(b) > len(a) {
			longer, shorter = b, a
		}
		return 0.8 + 0.2*(float64(len(shorter))/float64(len(longer)))
	}

	at := strings.Fields(a)
	bt := strings.Fields(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	bset := make(map[string]bool, len(bt))
	for _, t := range bt {
		bset[t] = true
	}
	matches := 0
	for _, t := range at {
		if bset[t] {
			matches++
		}
	}
	union := len(bset)
	for _, t := range at {
		if !bset[t] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(matches) / float64(union)
}

// bestFuzzyMatch returns the candidate in names with the highest similarity
// to query, and whether that similarity clears minScore.
func bestFuzzyMatch(query string, names []string, minScore float64) (string, float64, bool) {
	best := ""
	bestScore := 0.0
	for _, n := range names {
		s := similarity(query, n)
		if s > bestScore {
			bestScore = s
			best = n
		}
	}
	return best, bestScore, bestScore >= minScore
}

// meaningfulTokens splits a question into lowercase word tokens, dropping
// tokens shorter than 4 characters and the words listed in stopWords.
func meaningfulTokens(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 4 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "whose": true,
	"does": true, "have": true, "with": true, "this": true, "that": true,
	"about": true, "their": true, "there": true, "from": true,
}
