// Package index implements the indexing pipeline (spec §2's "Flow
// (indexing): Chunker -> Extractor -> GraphStore <- EntityResolver ->
// CommunityDetector -> CommunitySummarizer"): the single entry point that
// turns one ingested document into chunked text units, an extracted and
// deduplicated entity/relation graph, and refreshed community summaries.
//
// Grounded on rag/pipeline.go's RAGPipeline node sequence, the same source
// query.Service is grounded on — generalized here from a single fixed
// retrieval path into a fixed ingestion path with one conditional branch
// (full vs. incremental community detection). Kept as plain sequential Go
// calls rather than a graph.StateGraph for the same reason query.Service
// is: this pipeline has no looping or cyclic structure for a StateGraph's
// conditional-edge machinery to earn its keep.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/huytu0702/graphtog/chunk"
	"github.com/huytu0702/graphtog/community"
	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/extract"
	"github.com/huytu0702/graphtog/graphmodel"
	"github.com/huytu0702/graphtog/graphstore"
	"github.com/huytu0702/graphtog/log"
	"github.com/huytu0702/graphtog/markdownx"
	"github.com/huytu0702/graphtog/resolve"
	"github.com/huytu0702/graphtog/result"
	"github.com/huytu0702/graphtog/summarize"
)

// Document is one ingestion request: a named Markdown source identified by
// its file path, the stable identity GraphStore.UpsertDocument keys on.
type Document struct {
	Name     string
	FilePath string
	Content  []byte
}

// Result reports what IndexDocument did, for the caller's logs and for
// tests — not part of the persisted graph.
type Result struct {
	DocumentID        string
	TextUnitCount     int
	EntityCount       int
	RelationCount     int
	MergedEntityCount int
	CommunityCount    int
	SummarizedCount   int
	ChunkFailures     []string
}

// Pipeline wires the indexing components together over one GraphStore.
type Pipeline struct {
	store      graphstore.Store
	chunker    *chunk.Chunker
	extractor  *extract.Extractor
	resolver   *resolve.Resolver
	detector   *community.Detector
	summarizer *summarize.Summarizer
	resolveCfg config.EntityResolutionConfig
	logger     log.Logger
}

// New builds a Pipeline from its already-constructed component
// collaborators, mirroring query.Service's constructor shape of accepting
// built components rather than raw config for each stage.
func New(store graphstore.Store, chunker *chunk.Chunker, extractor *extract.Extractor, resolver *resolve.Resolver, detector *community.Detector, summarizer *summarize.Summarizer, resolveCfg config.EntityResolutionConfig, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Pipeline{
		store:      store,
		chunker:    chunker,
		extractor:  extractor,
		resolver:   resolver,
		detector:   detector,
		summarizer: summarizer,
		resolveCfg: resolveCfg,
		logger:     logger,
	}
}

// documentID derives a stable Document id from its file path, so repeated
// ingestion of the same source updates the same Document node rather than
// creating a duplicate (spec §4.3's UNIQUE(id) on Document, combined with
// UpsertDocument's version-bump-on-content-change rule).
func documentID(filePath string) string {
	sum := sha256.Sum256([]byte(filePath))
	return "doc-" + hex.EncodeToString(sum[:])[:32]
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IndexDocument runs the full pipeline: normalize -> chunk -> extract ->
// resolve -> detect communities -> summarize. Re-ingesting the same
// FilePath first tears down its prior subgraph (DeleteDocumentSubgraph is a
// no-op for a document id the store has never seen, so this path is safe
// for first-time ingestion too), then rebuilds it from the new content;
// GraphStore.UpsertDocument bumps Document.Version only when ContentHash
// actually changed, so Version reflects real re-extractions rather than
// every ingestion attempt.
func (p *Pipeline) IndexDocument(ctx context.Context, doc Document) result.Envelope[Result] {
	var steps []string

	plainText, err := markdownx.Normalize(doc.Content)
	if err != nil {
		return result.FailWithSteps[Result](errs.New(errs.InvalidInput, "index: normalize markdown: "+err.Error()), steps)
	}
	steps = append(steps, "normalized markdown to plain text")

	docID := documentID(doc.FilePath)
	hash := contentHash(plainText)

	if err := p.store.DeleteDocumentSubgraph(ctx, docID); err != nil {
		return result.FailWithSteps[Result](err, steps)
	}
	steps = append(steps, "cleared any prior subgraph for this document")

	record := graphmodel.Document{
		ID:              docID,
		Name:            doc.Name,
		FilePath:        doc.FilePath,
		ContentHash:     hash,
		LastProcessedAt: time.Now(),
		Status:          graphmodel.DocumentProcessing,
	}
	if err := p.store.UpsertDocument(ctx, record); err != nil {
		return result.FailWithSteps[Result](err, steps)
	}

	units, err := p.chunker.Split(plainText)
	if err != nil {
		return result.FailWithSteps[Result](err, steps)
	}
	steps = append(steps, "split document into text units")

	chunks := make([]extract.Chunk, 0, len(units))
	for _, u := range units {
		tuID := uuid.New().String()
		tu := graphmodel.TextUnit{
			ID:         tuID,
			DocumentID: docID,
			Text:       u.Text,
			StartChar:  u.StartChar,
			EndChar:    u.EndChar,
			CreatedAt:  time.Now(),
		}
		if err := p.store.CreateTextUnit(ctx, tu); err != nil {
			return result.FailWithSteps[Result](err, steps)
		}
		chunks = append(chunks, extract.Chunk{TextUnitID: tuID, DocumentID: docID, Text: u.Text})
	}

	extractRes, err := p.extractor.Run(ctx, chunks)
	if err != nil {
		return result.FailWithSteps[Result](err, steps)
	}
	steps = append(steps, "ran joint entity/relation extraction over chunks")

	res := Result{DocumentID: docID, TextUnitCount: len(units)}
	for _, cr := range extractRes.ChunkResults {
		res.EntityCount += cr.EntityCount
		res.RelationCount += cr.RelationCount
		if cr.Err != nil {
			res.ChunkFailures = append(res.ChunkFailures, cr.TextUnitID+": "+cr.Err.Error())
		}
	}

	affectedIDs, err := p.runResolution(ctx, &res, &steps)
	if err != nil {
		return result.FailWithSteps[Result](err, steps)
	}

	if err := p.runCommunityDetection(ctx, docID, affectedIDs, &res, &steps); err != nil {
		return result.FailWithSteps[Result](err, steps)
	}

	finalStatus := extractRes.Status
	record.Status = finalStatus
	record.LastProcessedAt = time.Now()
	if err := p.store.UpsertDocument(ctx, record); err != nil {
		return result.FailWithSteps[Result](err, steps)
	}
	steps = append(steps, "marked document "+string(finalStatus))

	if len(res.ChunkFailures) > 0 {
		return result.PartialOk(res, "some chunks failed extraction; see chunk_failures")
	}
	return result.OkWithSteps(res, steps)
}

// runResolution runs EntityResolver's duplicate-pair discovery and
// auto-merge pass (spec §4.5), returning the set of entity ids touched by
// extraction or merge for incremental community detection.
func (p *Pipeline) runResolution(ctx context.Context, res *Result, steps *[]string) ([]string, error) {
	all, err := p.store.AllEntities(ctx, []string{res.DocumentID})
	if err != nil {
		return nil, err
	}
	touched := make(map[string]bool, len(all))
	for _, e := range all {
		touched[e.ID] = true
	}

	if !p.resolveCfg.Enabled || p.resolver == nil {
		return keys(touched), nil
	}

	pairs, err := p.resolver.FindDuplicatePairs(ctx, nil, p.resolveCfg.SimilarityThreshold)
	if err != nil {
		return nil, err
	}
	*steps = append(*steps, "checked candidate entity pairs for duplicates")

	merged := map[string]bool{}
	for _, pair := range pairs {
		if merged[pair.A.ID] || merged[pair.B.ID] {
			continue
		}
		arb, err := p.resolver.ResolveWithLLM(ctx, pair.A, pair.B)
		if err != nil {
			p.logger.Warn("index: resolve pair %s/%s: %v", pair.A.ID, pair.B.ID, err)
			continue
		}
		if !p.resolver.ShouldAutoMerge(arb) {
			continue
		}
		mr, err := p.resolver.Merge(ctx, pair.A.ID, []string{pair.B.ID}, arb.CanonicalName)
		if err != nil {
			p.logger.Warn("index: merge %s into %s: %v", pair.B.ID, pair.A.ID, err)
			continue
		}
		merged[pair.B.ID] = true
		res.MergedEntityCount += mr.MergedCount
		touched[pair.A.ID] = true
		delete(touched, pair.B.ID)
	}
	if res.MergedEntityCount > 0 {
		*steps = append(*steps, "merged duplicate entities")
	}

	return keys(touched), nil
}

func (p *Pipeline) runCommunityDetection(ctx context.Context, docID string, affectedIDs []string, res *Result, steps *[]string) error {
	if p.detector == nil {
		return nil
	}
	var cres community.Result
	var err error
	if len(affectedIDs) > 0 {
		cres, err = p.detector.DetectIncrementally(ctx, affectedIDs)
		*steps = append(*steps, "ran incremental community detection")
	} else {
		cres, err = p.detector.Detect(ctx)
		*steps = append(*steps, "ran full community detection")
	}
	if err != nil {
		return err
	}
	res.CommunityCount = len(cres.Communities)

	if p.summarizer == nil || len(cres.Communities) == 0 {
		return nil
	}
	outcomes, err := p.summarizer.Summarize(ctx, cres.Communities)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Err == nil {
			res.SummarizedCount++
		} else {
			p.logger.Warn("index: summarize community %d: %v", o.CommunityID, o.Err)
		}
	}
	*steps = append(*steps, "summarized affected communities")
	return nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
