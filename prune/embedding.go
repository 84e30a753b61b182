package prune

import (
	"context"
	"math"

	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
)

// SentenceEmbeddingStrategy scores by cosine similarity between the
// question's embedding and each candidate's embedding, both produced via
// LLMGateway.Embed. Grounded on rag/retriever/vector.go's
// calculateSimilarity/cosineSimilarity, fixing a bug in the teacher's
// formula: it divides the dot product by (sum-of-squares_a *
// sum-of-squares_b) instead of by the product of the two vector norms
// (sqrt of each sum-of-squares), which is not a valid cosine similarity.
type SentenceEmbeddingStrategy struct {
	gateway *llmgateway.Gateway
	logger  log.Logger
}

func (s *SentenceEmbeddingStrategy) ScoreRelations(ctx context.Context, question string, relations []graphmodel.Relation, contextText string) []ScoredRelation {
	if len(relations) == 0 {
		return nil
	}
	if s.gateway == nil {
		return uniformRelations(relations)
	}

	qVec, err := s.gateway.Embed(ctx, question)
	if err != nil {
		s.logger.Warn("prune: question embedding failed, falling back to uniform: %v", err)
		return uniformRelations(relations)
	}

	out := make([]ScoredRelation, len(relations))
	for i, r := range relations {
		text := r.Type + ": " + r.Description
		vec, err := s.gateway.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("prune: candidate embedding failed, falling back to uniform for this item: %v", err)
			out[i] = ScoredRelation{Relation: r, Score: 0.5, Reasoning: "fallback: uniform score"}
			continue
		}
		out[i] = ScoredRelation{Relation: r, Score: normalizedCosine(qVec, vec), Reasoning: "embedding cosine similarity"}
	}
	sortRelationsDesc(out)
	return out
}

func (s *SentenceEmbeddingStrategy) ScoreEntities(ctx context.Context, question string, candidates []Candidate, contextText string) []ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}
	if s.gateway == nil {
		return uniformCandidates(candidates)
	}

	qVec, err := s.gateway.Embed(ctx, question)
	if err != nil {
		s.logger.Warn("prune: question embedding failed, falling back to uniform: %v", err)
		return uniformCandidates(candidates)
	}

	out := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		text := c.Name + ": " + c.Description
		vec, err := s.gateway.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("prune: candidate embedding failed, falling back to uniform for this item: %v", err)
			out[i] = ScoredCandidate{Candidate: c, Score: 0.5, Reasoning: "fallback: uniform score"}
			continue
		}
		out[i] = ScoredCandidate{Candidate: c, Score: normalizedCosine(qVec, vec), Reasoning: "embedding cosine similarity"}
	}
	sortCandidatesDesc(out)
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// if either is a zero vector or they differ in length.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalizedCosine maps cosine similarity from [-1,1] into [0,1], matching
// the [0,1] score range ScoreRelations/ScoreEntities promise.
func normalizedCosine(a, b []float32) float64 {
	return (cosineSimilarity(a, b) + 1) / 2
}
