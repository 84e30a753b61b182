// Package query implements QueryService (spec §4.9): the single-path,
// no-intra-step-concurrency state machine
//
//	classify -> resolve_entities -> retrieve_context -> assemble_context -> answer
//
// plus the Global Map-Reduce path chosen when classify yields "global" and
// the community count clears MapReduceConfig.CommunityThreshold. Grounded
// on rag/pipeline.go's RAGPipeline node sequence (retrieve -> rerank ->
// generate -> format_citations), generalized from the teacher's single
// fixed vector-RAG path into the spec's classify-driven branching — kept
// as plain sequential Go calls rather than a graph.StateGraph, since unlike
// ToGReasoner this state machine has no looping or cyclic structure for a
// StateGraph to earn its keep.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
	"github.com/huytu0702/graphtog/result"
	"github.com/huytu0702/graphtog/retrieve"
)

const (
	maxRelatedPerEntity  = 5
	maxExcerptsPerEntity = 3
	excerptTruncateChars = 500
	defaultResolveLimit  = 10
)

// QueryResult is the answer operation's output payload (spec §4.9's
// `{answer, citations, confidence_score, reasoning_steps[]}`, extended with
// the Global Map-Reduce path's `{key_insights, supporting_communities,
// limitations}` when that path was taken).
type QueryResult struct {
	Answer                string   `json:"answer"`
	Citations             []string `json:"citations"`
	ConfidenceScore       float64  `json:"confidence_score"`
	ReasoningSteps        []string `json:"reasoning_steps,omitempty"`
	KeyInsights           []string `json:"key_insights,omitempty"`
	SupportingCommunities []int    `json:"supporting_communities,omitempty"`
	Limitations           string   `json:"limitations,omitempty"`
}

// Classification is classify's output (spec §4.9).
type Classification struct {
	Type        string   `json:"type"`
	KeyEntities []string `json:"key_entities"`
	Confidence  float64  `json:"confidence"`
}

// ToGResult is what a ToGReasoner returns when QueryService routes a "tog"
// classified question to it.
type ToGResult struct {
	Answer        string
	Confidence    float64
	ReasoningPath []string
	Triplets      []graphmodel.Triplet
}

// ToGReasoner is the dependency QueryService delegates "tog" classified
// questions to. Defined here (rather than imported from a tog package) so
// query has no dependency on the multi-hop reasoner's internals — any
// reasoner satisfying this interface can be wired in.
type ToGReasoner interface {
	Reason(ctx context.Context, question string) (ToGResult, error)
}

// Service implements QueryService over a graphstore.Store, an LLMGateway,
// a Retriever, and an optional ToGReasoner.
type Service struct {
	store     graphstore.Store
	gateway   *llmgateway.Gateway
	retriever *retrieve.Retriever
	tog       ToGReasoner
	mrCfg     config.MapReduceConfig
	logger    log.Logger
}

// New builds a Service. tog may be nil: a "tog" classified question then
// fails with errs.Internal rather than panicking.
func New(store graphstore.Store, gateway *llmgateway.Gateway, retriever *retrieve.Retriever, tog ToGReasoner, mrCfg config.MapReduceConfig, logger log.Logger) *Service {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Service{store: store, gateway: gateway, retriever: retriever, tog: tog, mrCfg: mrCfg, logger: logger}
}

// Answer runs the full classify -> resolve_entities -> retrieve_context ->
// assemble_context -> answer pipeline for question.
func (s *Service) Answer(ctx context.Context, question string) result.Envelope[QueryResult] {
	var steps []string

	classification, err := s.classify(ctx, question)
	if err != nil {
		return result.FailWithSteps[QueryResult](err, steps)
	}
	steps = append(steps, fmt.Sprintf("classified as %q (confidence %.2f)", classification.Type, classification.Confidence))

	if classification.Type == "tog" {
		return s.answerViaToG(ctx, question, steps)
	}

	resolved, err := s.resolveEntities(ctx, classification.KeyEntities)
	if err != nil {
		return result.FailWithSteps[QueryResult](err, steps)
	}
	steps = append(steps, fmt.Sprintf("resolved %d entities", len(resolved)))

	if classification.Type == "global" {
		return s.answerGlobal(ctx, question, steps)
	}

	env := s.retrieveContext(classification, resolved, question, ctx)
	steps = append(steps, fmt.Sprintf("retrieved context via %s mode", env.RetrievalType))
	if env.Status != result.Success {
		return result.FailWithSteps[QueryResult](envelopeError(env), steps)
	}

	entities := entitiesFromEnvelope(env)
	if len(entities) == 0 {
		entities = resolved
	}

	contextText, citations, err := s.assembleContext(ctx, entities)
	if err != nil {
		return result.FailWithSteps[QueryResult](err, steps)
	}
	steps = append(steps, "assembled context")

	return s.answer(ctx, question, contextText, citations, steps)
}

const classifyPromptTemplate = `Question: %s

Classify this question's retrieval strategy and extract its key entities.
Respond as a JSON object:
{"type": "local"|"global"|"hybrid"|"tog"|"comparative"|"exploratory"|"specific", "key_entities": ["..."], "confidence": 0.0}
`

func (s *Service) classify(ctx context.Context, question string) (Classification, error) {
	obj, err := s.gateway.GenerateJSON(ctx, fmt.Sprintf(classifyPromptTemplate, question), 0.0)
	if err != nil {
		return Classification{}, err
	}
	c := Classification{Type: "specific"}
	if t, ok := obj["type"].(string); ok && t != "" {
		c.Type = t
	}
	if ents, ok := obj["key_entities"].([]interface{}); ok {
		for _, v := range ents {
			if name, ok := v.(string); ok && strings.TrimSpace(name) != "" {
				c.KeyEntities = append(c.KeyEntities, name)
			}
		}
	}
	if conf, ok := obj["confidence"].(float64); ok {
		c.Confidence = conf
	}
	return c, nil
}

func (s *Service) resolveEntities(ctx context.Context, keyEntities []string) ([]graphmodel.Entity, error) {
	var out []graphmodel.Entity
	for _, name := range keyEntities {
		e, found, err := s.store.FindEntityByName(ctx, name, "")
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		top, err := s.store.TopEntities(ctx, defaultResolveLimit, "")
		if err != nil {
			return nil, err
		}
		out = top
	}
	return out, nil
}

func (s *Service) retrieveContext(c Classification, resolved []graphmodel.Entity, question string, ctx context.Context) retrieve.Envelope {
	seed := firstEntityName(resolved)
	switch c.Type {
	case "hybrid":
		return s.retriever.Hierarchical(ctx, question)
	case "local":
		return s.retriever.Local(ctx, seed)
	case "comparative":
		return s.retriever.Adaptive(ctx, seed, retrieve.QueryComparative)
	case "exploratory":
		return s.retriever.Adaptive(ctx, seed, retrieve.QueryExploratory)
	default:
		return s.retriever.Adaptive(ctx, seed, retrieve.QuerySpecific)
	}
}

func firstEntityName(entities []graphmodel.Entity) string {
	if len(entities) == 0 {
		return ""
	}
	return entities[0].Name
}

func entitiesFromEnvelope(env retrieve.Envelope) []graphmodel.Entity {
	switch data := env.Data.(type) {
	case retrieve.LocalData:
		out := []graphmodel.Entity{data.Seed}
		for _, re := range data.Neighbors {
			out = append(out, re.Entity)
		}
		return out
	case retrieve.CommunityData:
		out := []graphmodel.Entity{data.Seed}
		return append(out, data.CoMembers...)
	case retrieve.CombinedData:
		return data.Entities
	default:
		return nil
	}
}

func envelopeError(env retrieve.Envelope) error {
	if env.Error != nil {
		return errs.New(env.Error.Kind, env.Error.Message)
	}
	return errs.New(errs.Internal, "retrieval failed with no error detail")
}

// assembleContext builds one block per entity — "name (type) — description"
// plus up to maxRelatedPerEntity related entities and up to
// maxExcerptsPerEntity text-unit excerpts truncated at excerptTruncateChars
// — and a flat, globally-deduplicated citation list, one entry per excerpt,
// in the order blocks reference them (so citation index N+1 is `[N+1]` in
// the rendered context).
func (s *Service) assembleContext(ctx context.Context, entities []graphmodel.Entity) (string, []string, error) {
	var blocks []string
	var citations []string
	seenTextUnits := map[string]bool{}

	for _, e := range entities {
		ec, err := s.store.EntityContext(ctx, e.ID, 1, true)
		if err != nil {
			return "", nil, err
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s (%s) — %s\n", e.Name, e.Type, e.Description)

		related := ec.RelatedEntities
		if len(related) > maxRelatedPerEntity {
			related = related[:maxRelatedPerEntity]
		}
		for _, re := range related {
			fmt.Fprintf(&b, "  related via %s: %s\n", re.RelationType, re.Entity.Name)
		}

		excerpts := 0
		for _, tu := range ec.TextUnits {
			if excerpts >= maxExcerptsPerEntity {
				break
			}
			if seenTextUnits[tu.ID] {
				continue
			}
			seenTextUnits[tu.ID] = true
			excerpt := truncate(tu.Text, excerptTruncateChars)
			citations = append(citations, fmt.Sprintf("%s: %s", e.Name, excerpt))
			fmt.Fprintf(&b, "  [%d] %s\n", len(citations), excerpt)
			excerpts++
		}

		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, "\n"), citations, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

const answerPromptTemplate = `Question: %s

Context:
%s

Citations:
%s

Answer the question using only the supplied context. Reference sources with their numbered bracket markers, e.g. [1].
Respond as a JSON object: {"answer": "...", "confidence_score": 0.0}
`

func (s *Service) answer(ctx context.Context, question, contextText string, citations []string, steps []string) result.Envelope[QueryResult] {
	lines := make([]string, len(citations))
	for i, c := range citations {
		lines[i] = fmt.Sprintf("[%d] %s", i+1, c)
	}
	prompt := fmt.Sprintf(answerPromptTemplate, question, contextText, strings.Join(lines, "\n"))

	obj, err := s.gateway.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		return result.FailWithSteps[QueryResult](err, steps)
	}
	answerText, _ := obj["answer"].(string)
	confidence, _ := obj["confidence_score"].(float64)
	steps = append(steps, "generated answer")

	return result.OkWithSteps(QueryResult{
		Answer:          answerText,
		Citations:       citations,
		ConfidenceScore: confidence,
		ReasoningSteps:  steps,
	}, steps)
}

func (s *Service) answerViaToG(ctx context.Context, question string, steps []string) result.Envelope[QueryResult] {
	if s.tog == nil {
		return result.FailWithSteps[QueryResult](errs.New(errs.Internal, "tog reasoning requested but no ToGReasoner is configured"), steps)
	}
	tr, err := s.tog.Reason(ctx, question)
	if err != nil {
		return result.FailWithSteps[QueryResult](err, steps)
	}
	steps = append(steps, tr.ReasoningPath...)
	citations := make([]string, len(tr.Triplets))
	for i, t := range tr.Triplets {
		citations[i] = fmt.Sprintf("%s %s %s", t.Subject, t.Relation, t.Object)
	}
	return result.OkWithSteps(QueryResult{
		Answer:          tr.Answer,
		Citations:       citations,
		ConfidenceScore: tr.Confidence,
		ReasoningSteps:  steps,
	}, steps)
}
