// Package prune implements PruningStrategy (spec §4.11): scoring and
// selecting a small top-k subset of relations or entities at each ToG step.
// Three variants are provided — LLM, BM25, and sentence-embedding — each
// falling back to a deterministic uniform 0.5 score when its backing
// mechanism is unavailable, so the reasoner can always proceed.
package prune

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
)

// Candidate is one entity up for scoring by ScoreEntities.
type Candidate struct {
	ID          string
	Name        string
	Description string
	Type        graphmodel.EntityType
	Confidence  float64
}

// ScoredRelation is one result of ScoreRelations, sorted desc by Score.
type ScoredRelation struct {
	Relation  graphmodel.Relation
	Score     float64
	Reasoning string
}

// ScoredCandidate is one result of ScoreEntities: the candidate plus its
// added {score, reasoning}.
type ScoredCandidate struct {
	Candidate
	Score     float64
	Reasoning string
}

// Strategy is PruningStrategy. Implementations never return an error from
// these two methods: a scoring failure degrades to the deterministic
// uniform-0.5 fallback rather than propagating, so the reasoner always has
// something to rank against.
type Strategy interface {
	ScoreRelations(ctx context.Context, question string, relations []graphmodel.Relation, contextText string) []ScoredRelation
	ScoreEntities(ctx context.Context, question string, candidates []Candidate, contextText string) []ScoredCandidate
}

// New builds the Strategy named by method, defaulting to LLM for an unknown
// or empty method.
func New(method config.PruningMethod, gateway *llmgateway.Gateway, logger log.Logger) Strategy {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	switch method {
	case config.PruningBM25:
		return &BM25Strategy{logger: logger}
	case config.PruningSentenceBERT:
		return &SentenceEmbeddingStrategy{gateway: gateway, logger: logger}
	default:
		return &LLMStrategy{gateway: gateway, logger: logger}
	}
}

// uniformRelations returns the deterministic uniform-0.5 fallback for
// ScoreRelations.
func uniformRelations(relations []graphmodel.Relation) []ScoredRelation {
	out := make([]ScoredRelation, len(relations))
	for i, r := range relations {
		out[i] = ScoredRelation{Relation: r, Score: 0.5, Reasoning: "fallback: uniform score"}
	}
	return out
}

// uniformCandidates returns the deterministic uniform-0.5 fallback for
// ScoreEntities.
func uniformCandidates(candidates []Candidate) []ScoredCandidate {
	out := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = ScoredCandidate{Candidate: c, Score: 0.5, Reasoning: "fallback: uniform score"}
	}
	return out
}

func sortRelationsDesc(s []ScoredRelation) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}

func sortCandidatesDesc(s []ScoredCandidate) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}

// tokenize lowercases and splits on non-letter/digit runs, the
// normalization the BM25 variant builds its query and candidate terms from;
// the embedding variant embeds the raw text instead.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
