package prune

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/llmgateway"
)

type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.response}}}, nil
}

func relations() []graphmodel.Relation {
	return []graphmodel.Relation{
		{SourceID: "a", TargetID: "b", Type: "WORKS_AT", Description: "employment record"},
		{SourceID: "b", TargetID: "c", Type: "LOCATED_IN", Description: "headquarters location"},
	}
}

func candidates() []Candidate {
	return []Candidate{
		{Name: "Acme Corp", Description: "a technology company", Type: graphmodel.EntityOrganization},
		{Name: "Paris", Description: "a city in France", Type: graphmodel.EntityGeo},
	}
}

func TestLLMStrategyParsesScoresAndSorts(t *testing.T) {
	resp := `{"scores": [{"index": 0, "score": 0.3, "reasoning": "weak"}, {"index": 1, "score": 0.9, "reasoning": "strong"}]}`
	gw := llmgateway.New(&fakeModel{response: resp}, nil, config.NewLLMConfig(), nil)
	s := New(config.PruningLLM, gw, nil)

	out := s.ScoreRelations(context.Background(), "where is it located", relations(), "")
	require.Len(t, out, 2)
	assert.Equal(t, "LOCATED_IN", out[0].Relation.Type)
	assert.InDelta(t, 0.9, out[0].Score, 0.001)
}

func TestLLMStrategyFallsBackOnError(t *testing.T) {
	gw := llmgateway.New(&fakeModel{err: assert.AnError}, nil, config.NewLLMConfig(config.WithMaxRetries(1)), nil)
	s := New(config.PruningLLM, gw, nil)

	out := s.ScoreRelations(context.Background(), "question", relations(), "")
	require.Len(t, out, 2)
	for _, sr := range out {
		assert.Equal(t, 0.5, sr.Score)
	}
}

func TestLLMStrategyEmptyInputReturnsNil(t *testing.T) {
	gw := llmgateway.New(&fakeModel{}, nil, config.NewLLMConfig(), nil)
	s := New(config.PruningLLM, gw, nil)
	assert.Empty(t, s.ScoreRelations(context.Background(), "q", nil, ""))
	assert.Empty(t, s.ScoreEntities(context.Background(), "q", nil, ""))
}

func TestBM25StrategyRanksKeywordOverlapHigher(t *testing.T) {
	s := New(config.PruningBM25, nil, nil)
	out := s.ScoreEntities(context.Background(), "which city is the headquarters located in", candidates(), "")
	require.Len(t, out, 2)
	assert.Equal(t, "Paris", out[0].Name)
	assert.GreaterOrEqual(t, out[0].Score, out[1].Score)
}

func TestBM25StrategyFallsBackWhenNoOverlap(t *testing.T) {
	s := New(config.PruningBM25, nil, nil)
	out := s.ScoreEntities(context.Background(), "zzz qqq yyy", candidates(), "")
	require.Len(t, out, 2)
	for _, sc := range out {
		assert.Equal(t, 0.5, sc.Score)
	}
}

func TestBM25ScoresAreNormalizedToUnitMax(t *testing.T) {
	s := &BM25Strategy{}
	out := s.ScoreEntities(context.Background(), "technology company", candidates(), "")
	require.Len(t, out, 2)
	maxScore := 0.0
	for _, sc := range out {
		if sc.Score > maxScore {
			maxScore = sc.Score
		}
	}
	assert.InDelta(t, 1.0, maxScore, 0.001)
}

func TestCosineSimilarityOfIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOfOrthogonalVectorsIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-9)
}

func TestNewDefaultsToLLMStrategy(t *testing.T) {
	gw := llmgateway.New(&fakeModel{}, nil, config.NewLLMConfig(), nil)
	s := New(config.PruningMethod("unknown"), gw, nil)
	_, ok := s.(*LLMStrategy)
	assert.True(t, ok)
}
