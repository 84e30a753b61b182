// Package community implements CommunityDetector (spec §4.6): a
// modularity-optimizing partition of the semantic-relation subgraph into a
// multi-level community hierarchy, with an incremental mode that recomputes
// only the communities touching a given set of entities.
package community

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/log"
)

// minSplitSize is the smallest connected component eligible for further
// modularity-based splitting; below this a BFS component is its own community.
const minSplitSize = 6

// maxModularityNodes caps the node count the O(n^2)-per-pass modularity
// optimisation is run over. Components larger than this stop at one level.
const maxModularityNodes = 200

// edge is a weighted adjacency-list entry over local entity indices.
type edge struct {
	to     int
	weight float64
}

// Result is the outcome of a detection run: every community produced,
// across whichever levels were requested.
type Result struct {
	Communities []graphmodel.Community
}

// Detector is CommunityDetector, backed by a graphstore.Store.
type Detector struct {
	store  graphstore.Store
	cfg    config.CommunityConfig
	logger log.Logger
}

// New builds a Detector.
func New(store graphstore.Store, cfg config.CommunityConfig, logger log.Logger) *Detector {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Detector{store: store, cfg: cfg, logger: logger}
}

// Detect runs full community detection over every entity in the graph
// (spec §4.6). If the graph has fewer than 2 entities it returns a single
// trivial community rather than failing.
func (d *Detector) Detect(ctx context.Context) (Result, error) {
	entities, err := d.store.AllEntities(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	if len(entities) < 2 {
		return d.trivialCommunity(ctx, entities)
	}
	rels, err := d.store.AllSemanticRelations(ctx)
	if err != nil {
		return Result{}, err
	}

	idIndex := indexByID(entities)
	adj, totalWeight := buildAdjacency(entities, rels, idIndex)
	comps := connectedComponents(len(entities), adj)

	return d.assignAndPersist(ctx, entities, adj, totalWeight, comps)
}

// DetectIncrementally recomputes only the communities touching
// affectedEntityIDs, leaving every other community assignment untouched
// (spec §4.6's incremental mode). Community ids are derived deterministically
// from (level, sorted member ids), so a component whose final membership is
// unchanged keeps the same id even when recomputed.
func (d *Detector) DetectIncrementally(ctx context.Context, affectedEntityIDs []string) (Result, error) {
	if len(affectedEntityIDs) == 0 {
		return Result{}, nil
	}

	affected := make(map[string]bool, len(affectedEntityIDs))
	for _, id := range affectedEntityIDs {
		affected[id] = true
	}

	entities, err := d.store.AllEntities(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	if len(entities) < 2 {
		for _, e := range entities {
			if affected[e.ID] {
				return d.trivialCommunity(ctx, entities)
			}
		}
		return Result{}, nil
	}
	rels, err := d.store.AllSemanticRelations(ctx)
	if err != nil {
		return Result{}, err
	}

	idIndex := indexByID(entities)
	adj, totalWeight := buildAdjacency(entities, rels, idIndex)
	comps := connectedComponents(len(entities), adj)

	var touched [][]int
	for _, comp := range comps {
		for _, idx := range comp {
			if affected[entities[idx].ID] {
				touched = append(touched, comp)
				break
			}
		}
	}
	if len(touched) == 0 {
		return Result{}, nil
	}

	return d.assignAndPersist(ctx, entities, adj, totalWeight, touched)
}

// trivialCommunity handles the spec's "never fail" floor for graphs with
// fewer than 2 entities.
func (d *Detector) trivialCommunity(ctx context.Context, entities []graphmodel.Entity) (Result, error) {
	if len(entities) == 0 {
		return Result{}, nil
	}
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	sort.Strings(ids)
	cid := communityID(0, ids)
	for _, id := range ids {
		if err := d.store.UpsertCommunityMembership(ctx, id, cid, 0); err != nil {
			return Result{}, err
		}
	}
	return Result{Communities: []graphmodel.Community{{ID: cid, Level: 0, EntityIDs: ids}}}, nil
}

// assignAndPersist builds the multi-level hierarchy for each component,
// emits level 0 only unless IncludeIntermediateLevels is set (in which case
// every level up to the deepest component's is emitted), and persists each
// entity's membership via UpsertCommunityMembership.
func (d *Detector) assignAndPersist(ctx context.Context, entities []graphmodel.Entity, adj [][]edge, totalWeight float64, comps [][]int) (Result, error) {
	if len(comps) == 0 {
		return Result{}, nil
	}

	rng := rand.New(rand.NewSource(d.cfg.Seed))

	hierarchies := make([][][][]int, len(comps))
	maxLevels := 0
	for i, comp := range comps {
		h := buildHierarchy(comp, adj, totalWeight, d.cfg, rng)
		hierarchies[i] = h
		if len(h) > maxLevels {
			maxLevels = len(h)
		}
	}

	levelsToEmit := 1
	if d.cfg.IncludeIntermediateLevels {
		levelsToEmit = maxLevels
	}

	var communities []graphmodel.Community
	for level := 0; level < levelsToEmit; level++ {
		for _, h := range hierarchies {
			idx := level
			if idx >= len(h) {
				idx = len(h) - 1
			}
			for _, group := range h[idx] {
				ids := entityIDsOf(group, entities)
				sort.Strings(ids)
				cid := communityID(level, ids)
				for _, eid := range ids {
					if err := d.store.UpsertCommunityMembership(ctx, eid, cid, level); err != nil {
						return Result{}, err
					}
				}
				communities = append(communities, graphmodel.Community{ID: cid, Level: level, EntityIDs: ids})
			}
		}
	}
	return Result{Communities: communities}, nil
}

func indexByID(entities []graphmodel.Entity) map[string]int {
	idx := make(map[string]int, len(entities))
	for i, e := range entities {
		idx[e.ID] = i
	}
	return idx
}

// buildAdjacency builds a weighted undirected adjacency list over entity
// indices from the semantic-relation subgraph, using relation confidence as
// edge weight (spec §4.6 excludes MENTIONED_IN/PART_OF; AllSemanticRelations
// already does so).
func buildAdjacency(entities []graphmodel.Entity, rels []graphmodel.Relation, idIndex map[string]int) ([][]edge, float64) {
	adj := make([][]edge, len(entities))
	total := 0.0
	for _, r := range rels {
		si, okS := idIndex[r.SourceID]
		ti, okT := idIndex[r.TargetID]
		if !okS || !okT || si == ti {
			continue
		}
		w := r.Confidence
		if w <= 0 {
			w = 0.1
		}
		adj[si] = append(adj[si], edge{to: ti, weight: w})
		adj[ti] = append(adj[ti], edge{to: si, weight: w})
		total += w
	}
	return adj, total
}

func connectedComponents(n int, adj [][]edge) [][]int {
	visited := make([]bool, n)
	var comps [][]int
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		var comp []int
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for _, e := range adj[node] {
				if !visited[e.to] {
					visited[e.to] = true
					queue = append(queue, e.to)
				}
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

// buildHierarchy recursively splits comp by modularity until no split
// improves it, returning levels with index 0 the finest (most-split)
// partition and the last index the coarsest (comp as a single group), per
// spec §4.6's "level 0 is finest" ordering.
func buildHierarchy(comp []int, adj [][]edge, totalWeight float64, cfg config.CommunityConfig, rng *rand.Rand) [][][]int {
	levels := [][][]int{{comp}}
	current := [][]int{comp}
	for {
		var next [][]int
		changed := false
		for _, g := range current {
			if len(g) >= minSplitSize && len(g) <= maxModularityNodes {
				split := modularitySplit(g, adj, totalWeight, cfg, rng)
				if len(split) > 1 {
					next = append(next, split...)
					changed = true
					continue
				}
			}
			next = append(next, g)
		}
		if !changed {
			break
		}
		levels = append(levels, next)
		current = next
	}

	out := make([][][]int, len(levels))
	for i, lv := range levels {
		out[len(levels)-1-i] = lv
	}
	return out
}

// modularitySplit applies a seeded greedy modularity optimisation (a
// simplified Louvain local pass) to split group into two or more
// sub-communities. If no split improves modularity beyond cfg.Tolerance, the
// group is returned unsplit.
func modularitySplit(group []int, adj [][]edge, totalWeight float64, cfg config.CommunityConfig, rng *rand.Rand) [][]int {
	n := len(group)
	if n < minSplitSize || totalWeight <= 0 {
		return [][]int{group}
	}

	localIdx := make(map[int]int, n)
	for i, node := range group {
		localIdx[node] = i
	}

	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}

	strength := make([]float64, n)
	for i, node := range group {
		for _, e := range adj[node] {
			if _, ok := localIdx[e.to]; ok {
				strength[i] += e.weight
			}
		}
	}

	m2 := 2.0 * totalWeight
	commStrength := make(map[int]float64, n)
	for i := range group {
		commStrength[membership[i]] += strength[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	maxPasses := cfg.MaxIterations
	if maxPasses <= 0 {
		maxPasses = 10
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = 1e-4
	}

	for pass := 0; pass < maxPasses; pass++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		moved := false
		for _, i := range order {
			node := group[i]
			commWeights := make(map[int]float64)
			for _, e := range adj[node] {
				li, ok := localIdx[e.to]
				if !ok {
					continue
				}
				commWeights[membership[li]] += e.weight
			}

			currentComm := membership[i]
			kiIn := commWeights[currentComm]
			ki := strength[i]
			sigmaCurrent := commStrength[currentComm]
			removeDelta := kiIn/m2 - (sigmaCurrent*ki)/(m2*m2)

			bestComm := currentComm
			bestGain := 0.0
			for c, wic := range commWeights {
				if c == currentComm {
					continue
				}
				sigmaC := commStrength[c]
				gain := (wic/m2 - (sigmaC*ki)/(m2*m2)) - removeDelta
				if gain > bestGain && gain > tolerance {
					bestGain = gain
					bestComm = c
				}
			}

			if bestComm != currentComm {
				commStrength[currentComm] -= ki
				commStrength[bestComm] += ki
				membership[i] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	groups := make(map[int][]int)
	for i, node := range group {
		groups[membership[i]] = append(groups[membership[i]], node)
	}
	if len(groups) <= 1 {
		return [][]int{group}
	}

	result := make([][]int, 0, len(groups))
	for _, g := range groups {
		sort.Ints(g)
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i][0] < result[j][0] })
	return result
}

func entityIDsOf(group []int, entities []graphmodel.Entity) []string {
	ids := make([]string, len(group))
	for i, idx := range group {
		ids[i] = entities[idx].ID
	}
	return ids
}

// communityID derives a stable id from (level, sorted member ids), so a
// community whose membership doesn't change keeps its id across both full
// and incremental detection runs.
func communityID(level int, sortedEntityIDs []string) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.Itoa(level)))
	h.Write([]byte{0})
	for _, id := range sortedEntityIDs {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	v := int(h.Sum32() & 0x7fffffff)
	if v == 0 {
		v = 1
	}
	return v
}
