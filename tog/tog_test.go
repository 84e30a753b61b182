package tog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
)

// scriptedModel replays one response per call, in order, cycling the last
// entry once exhausted. Mirrors the fakeModel pattern used throughout this
// module's other LLM-backed packages.
type scriptedModel struct {
	responses []string
	err       error
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, assert.AnError
	}
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.responses[i]}}}, nil
}

func seedHopGraph(t *testing.T) graphstore.Store {
	t.Helper()
	store := graphstore.NewMemoryStore()
	ctx := context.Background()

	_, err := store.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "a researcher", 0.9)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, "Acme Corp", graphmodel.EntityOrganization, "a technology company", 0.8)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, "Paris", graphmodel.EntityGeo, "a city in France", 0.8)
	require.NoError(t, err)

	alice, _, _ := store.FindEntityByName(ctx, "Alice", "")
	acme, _, _ := store.FindEntityByName(ctx, "Acme Corp", "")
	paris, _, _ := store.FindEntityByName(ctx, "Paris", "")

	require.NoError(t, store.UpsertRelation(ctx, alice.ID, acme.ID, "WORKS_AT", "employment record", 0.9))
	require.NoError(t, store.UpsertRelation(ctx, acme.ID, paris.ID, "LOCATED_IN", "headquarters location", 0.85))

	return store
}

func newReasoner(t *testing.T, store graphstore.Store, responses []string, opts ...config.ToGOption) *Reasoner {
	t.Helper()
	var gw *llmgateway.Gateway
	if responses != nil {
		gw = llmgateway.New(&scriptedModel{responses: responses}, nil, config.NewLLMConfig(config.WithMaxRetries(1)), nil)
	}
	cfg := config.NewToGConfig(opts...)
	r, err := New(store, gw, cfg, nil)
	require.NoError(t, err)
	return r
}

func TestReasonFollowsMultiHopPathToSufficiency(t *testing.T) {
	store := seedHopGraph(t)
	r := newReasoner(t, store, []string{
		`{"entities": ["Alice"]}`,
		`{"sufficient": false, "confidence_score": 0.4, "reasoning": "need location"}`,
		`{"sufficient": true, "confidence_score": 0.9, "reasoning": "headquarters found"}`,
		`{"answer": "Acme Corp is headquartered in Paris.", "confidence": 0.9, "reasoning_summary": "traced Alice -> Acme Corp -> Paris"}`,
	}, config.WithPruningMethod(config.PruningBM25), config.WithSearchDepth(3))

	result, err := r.Reason(context.Background(), "where is the company Alice works for located?")
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "Paris")
	assert.InDelta(t, 0.9, result.Confidence, 0.001)
	assert.NotEmpty(t, result.ReasoningPath)
}

func TestReasonFallsBackWhenNoStartingEntitiesFound(t *testing.T) {
	store := graphstore.NewMemoryStore()
	r := newReasoner(t, store, []string{`{"entities": []}`})

	result, err := r.Reason(context.Background(), "what is the capital of an empty graph?")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, result.Confidence, 0.001)
	assert.NotEmpty(t, result.ReasoningPath)
}

func TestReasonStreamEmitsHopByHopSteps(t *testing.T) {
	store := seedHopGraph(t)
	r := newReasoner(t, store, []string{
		`{"entities": ["Alice"]}`,
		`{"sufficient": false, "confidence_score": 0.4, "reasoning": "need location"}`,
		`{"sufficient": true, "confidence_score": 0.9, "reasoning": "headquarters found"}`,
		`{"answer": "Acme Corp is headquartered in Paris.", "confidence": 0.9, "reasoning_summary": "traced Alice -> Acme Corp -> Paris"}`,
	}, config.WithPruningMethod(config.PruningBM25), config.WithSearchDepth(3))

	var steps []Step
	result, err := r.ReasonStream(context.Background(), "where is the company Alice works for located?", func(s Step) {
		steps = append(steps, s)
	})
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "Paris")
	assert.NotEmpty(t, steps)
}

func TestReasonFallsBackOnGatewayError(t *testing.T) {
	store := seedHopGraph(t)
	gw := llmgateway.New(&scriptedModel{responses: nil}, nil, config.NewLLMConfig(config.WithMaxRetries(1)), nil)
	r, err := New(store, gw, config.NewToGConfig(config.WithPruningMethod(config.PruningBM25)), nil)
	require.NoError(t, err)

	result, rerr := r.Reason(context.Background(), "where does Alice work?")
	require.NoError(t, rerr)
	assert.InDelta(t, 0.1, result.Confidence, 0.001)
}

func TestReasonTerminatesOnCycleWithoutInfiniteLoop(t *testing.T) {
	store := graphstore.NewMemoryStore()
	ctx := context.Background()
	_, err := store.UpsertEntity(ctx, "Alice", graphmodel.EntityPerson, "a researcher", 0.9)
	require.NoError(t, err)
	_, err = store.UpsertEntity(ctx, "Bob", graphmodel.EntityPerson, "a colleague", 0.9)
	require.NoError(t, err)
	alice, _, _ := store.FindEntityByName(ctx, "Alice", "")
	bob, _, _ := store.FindEntityByName(ctx, "Bob", "")
	require.NoError(t, store.UpsertRelation(ctx, alice.ID, bob.ID, "KNOWS", "colleague", 0.9))
	require.NoError(t, store.UpsertRelation(ctx, bob.ID, alice.ID, "KNOWS", "colleague", 0.9))

	r := newReasoner(t, store, []string{
		`{"entities": ["Alice"]}`,
	}, config.WithPruningMethod(config.PruningBM25), config.WithSufficiencyCheck(false), config.WithSearchDepth(5))

	result, err := r.Reason(context.Background(), "who does Alice know?")
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestSimilarityExactAndSubstringAndTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, similarity("Acme Corp", "acme corp"))
	assert.Greater(t, similarity("Acme", "Acme Corp"), 0.7)
	assert.Greater(t, similarity("lead researcher at acme", "researcher acme corp"), 0.0)
	assert.Equal(t, 0.0, similarity("", "anything"))
}

func TestBestFuzzyMatchRespectsMinScore(t *testing.T) {
	names := []string{"Acme Corp", "Paris", "Alice"}
	match, score, ok := bestFuzzyMatch("acme", names, 0.6)
	assert.True(t, ok)
	assert.Equal(t, "Acme Corp", match)
	assert.Greater(t, score, 0.6)

	_, _, ok = bestFuzzyMatch("zzz_no_match", names, 0.6)
	assert.False(t, ok)
}
