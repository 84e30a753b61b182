package prune

import (
	"context"
	"math"

	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/log"
)

// bm25K1 and bm25B are the standard Okapi BM25 tunables.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25Strategy scores by tokenizing the question and each candidate's
// description/label, keyword-based and entirely offline. Grounded on
// rag/retriever/reranker.go's SimpleReranker term-counting idiom,
// generalized from raw term-count-over-length to the standard Okapi BM25
// formula (term-frequency saturation via k1, length normalization via b,
// inverse document frequency over the candidate set).
type BM25Strategy struct {
	logger log.Logger
}

func (s *BM25Strategy) ScoreRelations(_ context.Context, question string, relations []graphmodel.Relation, contextText string) []ScoredRelation {
	if len(relations) == 0 {
		return nil
	}
	docs := make([][]string, len(relations))
	for i, r := range relations {
		docs[i] = tokenize(r.Type + " " + r.Description)
	}
	scores := bm25Scores(tokenize(question), docs)

	out := make([]ScoredRelation, len(relations))
	for i, r := range relations {
		out[i] = ScoredRelation{Relation: r, Score: scores[i], Reasoning: "bm25 keyword match"}
	}
	sortRelationsDesc(out)
	return out
}

func (s *BM25Strategy) ScoreEntities(_ context.Context, question string, candidates []Candidate, contextText string) []ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}
	docs := make([][]string, len(candidates))
	for i, c := range candidates {
		docs[i] = tokenize(c.Name + " " + c.Description)
	}
	scores := bm25Scores(tokenize(question), docs)

	out := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = ScoredCandidate{Candidate: c, Score: scores[i], Reasoning: "bm25 keyword match"}
	}
	sortCandidatesDesc(out)
	return out
}

// bm25Scores computes Okapi BM25 scores for query against each doc, using
// the doc set itself as the reference corpus for document frequency, then
// normalizes by the maximum score into [0,1] per spec §4.11 ("normalize by
// max score"). If every doc scores 0 (no term overlap, or no documents),
// returns the deterministic uniform-0.5 fallback.
func bm25Scores(query []string, docs [][]string) []float64 {
	n := len(docs)
	scores := make([]float64, n)
	if n == 0 || len(query) == 0 {
		for i := range scores {
			scores[i] = 0.5
		}
		return scores
	}

	avgdl := 0.0
	df := map[string]int{}
	tf := make([]map[string]int, n)
	for i, doc := range docs {
		tf[i] = map[string]int{}
		for _, term := range doc {
			tf[i][term]++
		}
		avgdl += float64(len(doc))
		seen := map[string]bool{}
		for _, term := range doc {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}
	avgdl /= float64(n)
	if avgdl == 0 {
		avgdl = 1
	}

	maxScore := 0.0
	for i, doc := range docs {
		score := 0.0
		dl := float64(len(doc))
		for _, term := range query {
			f := float64(tf[i][term])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (float64(n)-float64(df[term])+0.5)/(float64(df[term])+0.5))
			score += idf * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*dl/avgdl))
		}
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore <= 0 {
		for i := range scores {
			scores[i] = 0.5
		}
		return scores
	}
	for i := range scores {
		scores[i] /= maxScore
	}
	return scores
}
