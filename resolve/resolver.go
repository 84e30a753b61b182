// Package resolve implements EntityResolver (spec §4.5): similarity
// scoring, duplicate-pair discovery, LLM-arbitrated disambiguation, and the
// merge algorithm that consolidates duplicate Entity nodes.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/llmgateway"
	"github.com/huytu0702/graphtog/log"
)

// Similar is one result of FindSimilar.
type Similar struct {
	Entity     graphmodel.Entity
	Similarity float64
}

// Pair is one result of FindDuplicatePairs.
type Pair struct {
	A, B       graphmodel.Entity
	Similarity float64
}

// Arbitration is the result of ResolveWithLLM.
type Arbitration struct {
	AreSame       bool
	Confidence    float64
	CanonicalName string
	Reasoning     string
}

// MergeResult is the result of Merge.
type MergeResult struct {
	MergedCount int
	Aliases     []string
}

// Resolver is EntityResolver, backed by a graphstore.Store and an
// llmgateway.Gateway for ambiguous near-matches.
type Resolver struct {
	store   graphstore.Store
	gateway *llmgateway.Gateway
	cfg     config.EntityResolutionConfig
	logger  log.Logger
}

// New builds a Resolver.
func New(store graphstore.Store, gateway *llmgateway.Gateway, cfg config.EntityResolutionConfig, logger log.Logger) *Resolver {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Resolver{store: store, gateway: gateway, cfg: cfg, logger: logger}
}

// similarity computes normalized token/sequence similarity on case-folded,
// whitespace-trimmed names via Jaro-Winkler, the same scoring primitive the
// phonetic matcher uses for its fuzzy-fallback pass.
func similarity(a, b string) float64 {
	na := graphmodel.NormalizeName(a)
	nb := graphmodel.NormalizeName(b)
	if na == nb {
		return 1.0
	}
	return matchr.JaroWinkler(na, nb, false)
}

// FindSimilar returns every entity of typ whose name is within threshold of
// name (spec §4.5). threshold<=0 uses the configured default (0.85).
func (r *Resolver) FindSimilar(ctx context.Context, name string, typ graphmodel.EntityType, threshold float64) ([]Similar, error) {
	if threshold <= 0 {
		threshold = r.cfg.SimilarityThreshold
	}
	if threshold <= 0 {
		threshold = 0.85
	}

	var pool []graphmodel.Entity
	var err error
	if typ != "" {
		pool, err = r.store.AllEntities(ctx, nil)
		if err != nil {
			return nil, err
		}
		filtered := pool[:0]
		for _, e := range pool {
			if e.Type == typ {
				filtered = append(filtered, e)
			}
		}
		pool = filtered
	} else {
		pool, err = r.store.AllEntities(ctx, nil)
		if err != nil {
			return nil, err
		}
	}

	var out []Similar
	for _, e := range pool {
		s := similarity(name, e.Name)
		if s >= threshold {
			out = append(out, Similar{Entity: e, Similarity: s})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

// FindDuplicatePairs runs an O(n^2) comparison within each of types (or all
// entities if types is empty), returning pairs with A.ID < B.ID sorted by
// similarity desc, per spec §4.5.
func (r *Resolver) FindDuplicatePairs(ctx context.Context, types []graphmodel.EntityType, threshold float64) ([]Pair, error) {
	if threshold <= 0 {
		threshold = r.cfg.SimilarityThreshold
	}
	if threshold <= 0 {
		threshold = 0.85
	}

	all, err := r.store.AllEntities(ctx, nil)
	if err != nil {
		return nil, err
	}

	typeSet := map[graphmodel.EntityType]bool{}
	for _, t := range types {
		typeSet[t] = true
	}

	byType := map[graphmodel.EntityType][]graphmodel.Entity{}
	for _, e := range all {
		if len(typeSet) > 0 && !typeSet[e.Type] {
			continue
		}
		byType[e.Type] = append(byType[e.Type], e)
	}

	var out []Pair
	for _, entities := range byType {
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				a, b := entities[i], entities[j]
				if b.ID < a.ID {
					a, b = b, a
				}
				s := similarity(a.Name, b.Name)
				if s >= threshold {
					out = append(out, Pair{A: a, B: b, Similarity: s})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}

const arbitrationPromptTemplate = `Two entities were flagged as possible duplicates in a knowledge graph.

Entity A: name="%s", type=%s, description="%s"
Entity B: name="%s", type=%s, description="%s"

Decide whether they refer to the same real-world subject. Respond as a JSON object:
{
  "are_same": true or false,
  "confidence": a number between 0 and 1,
  "canonical_name": the preferred name if they are the same, otherwise "",
  "reasoning": a one-sentence explanation
}
`

// ResolveWithLLM arbitrates an ambiguous near-match pair via the gateway,
// per spec §4.5.
func (r *Resolver) ResolveWithLLM(ctx context.Context, a, b graphmodel.Entity) (Arbitration, error) {
	prompt := fmt.Sprintf(arbitrationPromptTemplate, a.Name, a.Type, a.Description, b.Name, b.Type, b.Description)
	obj, err := r.gateway.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		return Arbitration{}, err
	}

	out := Arbitration{}
	if v, ok := obj["are_same"].(bool); ok {
		out.AreSame = v
	}
	if v, ok := obj["confidence"].(float64); ok {
		out.Confidence = v
	}
	if v, ok := obj["canonical_name"].(string); ok {
		out.CanonicalName = v
	}
	if v, ok := obj["reasoning"].(string); ok {
		out.Reasoning = v
	}
	return out, nil
}

// Merge absorbs duplicateIDs into primaryID, delegating the graph mutation
// to the store (which owns the union/transfer/detach-delete invariants),
// then applies the optional rename step (spec §4.5 step 6).
func (r *Resolver) Merge(ctx context.Context, primaryID string, duplicateIDs []string, canonicalName string) (MergeResult, error) {
	mergedCount, err := r.store.MergeEntities(ctx, primaryID, duplicateIDs)
	if err != nil {
		return MergeResult{}, err
	}

	primary, ok, err := r.store.GetEntity(ctx, primaryID)
	if err != nil {
		return MergeResult{}, err
	}
	if !ok {
		return MergeResult{}, errs.New(errs.NotFound, "resolve: merge primary entity vanished")
	}

	if canonicalName != "" && strings.TrimSpace(canonicalName) != "" &&
		graphmodel.NormalizeName(canonicalName) != graphmodel.NormalizeName(primary.Name) {
		if err := r.store.RenameEntity(ctx, primaryID, canonicalName); err != nil {
			if errs.Is(err, errs.GraphConstraint) {
				r.logger.Debug("resolve: cannot rename %s to %q, name already owned; keeping alias", primaryID, canonicalName)
			} else {
				return MergeResult{}, err
			}
		} else {
			primary, _, _ = r.store.GetEntity(ctx, primaryID)
		}
	}

	return MergeResult{MergedCount: mergedCount, Aliases: primary.Aliases}, nil
}

// ShouldAutoMerge reports whether arbitration confidence clears the
// configured auto-merge threshold (spec §4.5's auto-merge policy).
func (r *Resolver) ShouldAutoMerge(arb Arbitration) bool {
	if r.cfg.AutoMergeConfidenceThreshold <= 0 {
		return false
	}
	return arb.AreSame && arb.Confidence >= r.cfg.AutoMergeConfidenceThreshold
}
