// Package tog implements ToGReasoner (spec §4.10): iterative multi-hop
// reasoning over the knowledge graph, pruning the relation/entity frontier
// at every hop and stopping as soon as a sufficiency check (or the cycle
// check, or the depth bound) says to. Grounded on rag/pipeline.go's use of
// graph.StateGraph for conditional, multi-node control flow — generalized
// here from that single-pass RAG pipeline into a graph with an actual loop,
// which is what graph.StateGraph's AddConditionalEdge machinery is for.
package tog

import (
	"context"
	"fmt"
	"strings"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/graph"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
	"github.com/huytu0702/graphtog/prune"
	"github.com/huytu0702/graphtog/query"
)

// Step is one entry of the reasoning_path (spec §4.10's State).
type Step struct {
	Depth             int      `json:"depth"`
	EntitiesExplored  []string `json:"entities_explored"`
	RelationsSelected []string `json:"relations_selected"`
	SufficiencyScore  *float64 `json:"sufficiency_score,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// togState is the value threaded through every graph.StateGraph node.
// graph.StateGraph has no Schema configured for this graph, so mergeState
// simply replaces the running state with whatever the last node returned —
// a node that wants to carry state forward must return the (possibly
// mutated) *togState itself.
type togState struct {
	question string

	currentEntities   []graphmodel.Entity
	exploredEntities  map[string]bool
	exploredRelations map[string]bool
	reasoningPath     []Step
	triplets          []graphmodel.Triplet

	depth           int
	selectedRels    []prune.ScoredRelation
	prevDepthNames  map[string]bool
	curDepthNames   map[string]bool
	sufficient      bool
	sufficiencyNote string

	noStartingEntities bool
	fallback           bool
	fallbackErr        error

	result query.ToGResult
}

// Reasoner implements query.ToGReasoner.
type Reasoner struct {
	store   graphstore.Store
	gateway *llmgateway.Gateway
	pruner  prune.Strategy
	cfg     config.ToGConfig
	logger  log.Logger
	runner  *graph.StateRunnable
	tracer  *graph.Tracer
}

// New builds a Reasoner and compiles its state graph. Compile only fails if
// the entry point is unset, which New always sets, so the error return is
// defensive rather than load-bearing.
func New(store graphstore.Store, gateway *llmgateway.Gateway, cfg config.ToGConfig, logger log.Logger) (*Reasoner, error) {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	r := &Reasoner{
		store:   store,
		gateway: gateway,
		pruner:  prune.New(cfg.PruningMethod, gateway, logger),
		cfg:     cfg,
		logger:  logger,
	}

	g := graph.NewStateGraph()
	g.AddNode("extract_topic", "select up to 5 starting entities, falling back to fuzzy match", r.nodeExtractTopic)
	g.AddNode("explore_relations", "score and select up to search_width relation types", r.nodeExploreRelations)
	g.AddNode("expand_entities", "expand selected relations into candidate target entities", r.nodeExpandEntities)
	g.AddNode("sufficiency_check", "ask the LLM whether evidence so far is sufficient", r.nodeSufficiencyCheck)
	g.AddNode("cycle_check", "detect entity-set overlap with the previous depth", r.nodeCycleCheck)
	g.AddNode("generate_answer", "summarize the reasoning path into a final answer", r.nodeGenerateAnswer)

	g.SetEntryPoint("extract_topic")
	g.AddConditionalEdge("extract_topic", func(ctx context.Context, state any) string {
		s := state.(*togState)
		if s.noStartingEntities {
			return "generate_answer"
		}
		return "explore_relations"
	})
	g.AddEdge("explore_relations", "expand_entities")

	g.AddConditionalEdge("expand_entities", func(ctx context.Context, state any) string {
		if !r.cfg.EnableSufficiencyCheck {
			return "cycle_check"
		}
		return "sufficiency_check"
	})
	g.AddConditionalEdge("sufficiency_check", func(ctx context.Context, state any) string {
		s := state.(*togState)
		if s.sufficient {
			return "generate_answer"
		}
		return "cycle_check"
	})
	g.AddConditionalEdge("cycle_check", func(ctx context.Context, state any) string {
		s := state.(*togState)
		if s.sufficient {
			// CYCLE_CHECK found a cycle; nodeCycleCheck repurposes
			// `sufficient` to mean "stop now" for this edge only.
			return "generate_answer"
		}
		if s.depth >= r.cfg.SearchDepth {
			return "generate_answer"
		}
		return "explore_relations"
	})
	g.AddEdge("generate_answer", graph.END)

	if cfg.MaxNodeRetries > 0 {
		g.SetRetryPolicy(&graph.RetryPolicy{
			MaxRetries:      cfg.MaxNodeRetries,
			BackoffStrategy: graph.ExponentialBackoff,
			RetryableErrors: []string{string(errs.LLMTransient), string(errs.GraphUnavailable)},
		})
	}
	g.AddListener(graph.NewLoggingListener(logger, false))

	r.tracer = graph.NewTracer()

	runner, err := g.Compile()
	if err != nil {
		return nil, err
	}
	runner.SetTracer(r.tracer)
	r.runner = runner
	return r, nil
}

// Reason runs the full state machine for question, satisfying
// query.ToGReasoner. Any error surfaced by a node is caught here and
// degraded to the Fallback path rather than returned, per spec §4.10 — so
// this method itself never returns a non-nil error.
func (r *Reasoner) Reason(ctx context.Context, question string) (query.ToGResult, error) {
	init := &togState{
		question:          question,
		exploredEntities:  map[string]bool{},
		exploredRelations: map[string]bool{},
	}

	out, err := r.runner.Invoke(ctx, init)
	if err != nil {
		r.logger.Warn("tog: reasoning failed, degrading to fallback: %v", err)
		return r.fallbackResult(ctx, question, err), nil
	}
	s, ok := out.(*togState)
	if !ok {
		return r.fallbackResult(ctx, question, fmt.Errorf("unexpected state type %T", out)), nil
	}
	if s.fallback {
		return r.fallbackResult(ctx, question, s.fallbackErr), nil
	}
	return s.result, nil
}

// ReasonStream runs the same state machine as Reason, but additionally
// invokes onStep every time a node completes having appended or updated a
// reasoning_path entry, letting a caller surface hop-by-hop progress (spec
// §4.10's reasoning_path) instead of only the final result.
func (r *Reasoner) ReasonStream(ctx context.Context, question string, onStep func(Step)) (query.ToGResult, error) {
	init := &togState{
		question:          question,
		exploredEntities:  map[string]bool{},
		exploredRelations: map[string]bool{},
	}

	stream := r.runner.StreamInvoke(ctx, init, graph.DefaultStreamConfig())

	lastLen, lastNotes := 0, ""
	var lastScore *float64
	for event := range stream.Events {
		if event.Event != graph.NodeEventComplete || onStep == nil {
			continue
		}
		s, ok := event.State.(*togState)
		if !ok || len(s.reasoningPath) == 0 {
			continue
		}
		last := s.reasoningPath[len(s.reasoningPath)-1]
		if len(s.reasoningPath) == lastLen && last.SufficiencyScore == lastScore && last.Notes == lastNotes {
			continue
		}
		lastLen, lastScore, lastNotes = len(s.reasoningPath), last.SufficiencyScore, last.Notes
		// Emitted on every completing node touching reasoningPath: both a
		// node that appends a new step (extract_topic, expand_entities) and
		// one that mutates the existing last step in place
		// (sufficiency_check) produce a fresh onStep call.
		onStep(s.reasoningPath[len(s.reasoningPath)-1])
	}
	<-stream.Done

	select {
	case err := <-stream.Errors:
		r.logger.Warn("tog: streamed reasoning failed, degrading to fallback: %v", err)
		return r.fallbackResult(ctx, question, err), nil
	default:
	}

	out := <-stream.Result
	s, ok := out.(*togState)
	if !ok {
		return r.fallbackResult(ctx, question, fmt.Errorf("unexpected state type %T", out)), nil
	}
	if s.fallback {
		return r.fallbackResult(ctx, question, s.fallbackErr), nil
	}
	return s.result, nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func entityNames(entities []graphmodel.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

var errNoStartingEntities = errs.New(errs.InsufficientEvidence, "could not identify any starting entities for this question")
