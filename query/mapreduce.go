package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/result"
	"github.com/huytu0702/graphtog/retrieve"
)

// answerGlobal implements classify->global: per the §9 design decision,
// global answering REQUIRES community summaries to exist — if none do, it
// fails fast with a MISSING_SUMMARIES message rather than silently
// degrading to an unsummarized listing. Below MapReduceConfig's community
// threshold (or with map-reduce disabled), it answers directly off the
// community summaries; at or above threshold, it runs the Map-Reduce path.
func (s *Service) answerGlobal(ctx context.Context, question string, steps []string) result.Envelope[QueryResult] {
	env := s.retriever.Global(ctx)
	steps = append(steps, "retrieved global community list")
	if env.Status != result.Success {
		return result.FailWithSteps[QueryResult](envelopeError(env), steps)
	}
	data, ok := env.Data.(retrieve.GlobalData)
	if !ok {
		return result.FailWithSteps[QueryResult](errs.New(errs.Internal, "unexpected global retrieval payload"), steps)
	}
	if !data.SummariesAvailable {
		return result.FailWithSteps[QueryResult](errs.New(errs.InsufficientEvidence, "MISSING_SUMMARIES: no community has been summarized yet"), steps)
	}

	if !s.mrCfg.Enabled || len(data.Communities) < s.mrCfg.CommunityThreshold {
		return s.answerGlobalDirect(ctx, question, data.Communities, steps)
	}
	return s.answerGlobalMapReduce(ctx, question, data.Communities, steps)
}

func (s *Service) answerGlobalDirect(ctx context.Context, question string, communities []retrieve.GlobalCommunityInfo, steps []string) result.Envelope[QueryResult] {
	lines := make([]string, len(communities))
	citations := make([]string, len(communities))
	for i, c := range communities {
		lines[i] = fmt.Sprintf("Community %d (level %d, %s significance): %s [themes: %s]",
			c.ID, c.Level, c.Significance, c.Summary, strings.Join(c.Themes, ", "))
		citations[i] = fmt.Sprintf("community %d: %s", c.ID, truncate(c.Summary, excerptTruncateChars))
	}
	steps = append(steps, "assembled community summaries directly (below map-reduce threshold)")
	return s.answer(ctx, question, strings.Join(lines, "\n"), citations, steps)
}

const mapPromptTemplate = `Question: %s

Communities in this batch:
%s

Summarize how these communities help answer the question, using only their content.
Respond as a JSON object: {"summary": "...", "confidence": 0.0}
`

const reducePromptTemplate = `Question: %s

Batch summaries:
%s

Synthesize a final answer from these batch summaries.
Respond as a JSON object:
{"answer": "...", "key_insights": ["..."], "supporting_communities": [1, 2], "limitations": "...", "confidence_score": 0.0}
`

type batchOutcome struct {
	CommunityIDs []int
	Summary      string
	Confidence   float64
}

func (s *Service) mapBatch(ctx context.Context, question string, batch []retrieve.GlobalCommunityInfo) (string, float64, error) {
	lines := make([]string, len(batch))
	for i, c := range batch {
		lines[i] = fmt.Sprintf("Community %d (level %d, %s significance): %s [themes: %s]",
			c.ID, c.Level, c.Significance, c.Summary, strings.Join(c.Themes, ", "))
	}
	prompt := fmt.Sprintf(mapPromptTemplate, question, strings.Join(lines, "\n"))

	obj, err := s.gateway.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		return "", 0, err
	}
	summary, _ := obj["summary"].(string)
	confidence, _ := obj["confidence"].(float64)
	return summary, confidence, nil
}

// answerGlobalMapReduce partitions communities into batches of
// mrCfg.BatchSize, maps each batch to an intermediate {summary, confidence}
// bound to the query (failures are logged and the batch is omitted, per
// spec §4.9), then reduces the surviving batch summaries into one final
// answer. If at least 25% of batches failed, the reduce step's limitations
// note always mentions the partial coverage even if the LLM's own
// limitations text didn't.
func (s *Service) answerGlobalMapReduce(ctx context.Context, question string, communities []retrieve.GlobalCommunityInfo, steps []string) result.Envelope[QueryResult] {
	batchSize := s.mrCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	var batches [][]retrieve.GlobalCommunityInfo
	for i := 0; i < len(communities); i += batchSize {
		end := i + batchSize
		if end > len(communities) {
			end = len(communities)
		}
		batches = append(batches, communities[i:end])
	}

	var outcomes []batchOutcome
	failed := 0
	for _, batch := range batches {
		summary, confidence, err := s.mapBatch(ctx, question, batch)
		if err != nil {
			s.logger.Warn("query: map-reduce batch failed, omitting: %v", err)
			failed++
			continue
		}
		ids := make([]int, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
		}
		outcomes = append(outcomes, batchOutcome{CommunityIDs: ids, Summary: summary, Confidence: confidence})
	}
	steps = append(steps, fmt.Sprintf("map-reduce: %d/%d batches succeeded", len(outcomes), len(batches)))

	if len(outcomes) == 0 {
		return result.FailWithSteps[QueryResult](errs.New(errs.InsufficientEvidence, "all map-reduce batches failed"), steps)
	}

	lines := make([]string, len(outcomes))
	var allIDs []int
	for i, o := range outcomes {
		lines[i] = fmt.Sprintf("Batch %d (confidence %.2f): %s", i+1, o.Confidence, o.Summary)
		allIDs = append(allIDs, o.CommunityIDs...)
	}
	prompt := fmt.Sprintf(reducePromptTemplate, question, strings.Join(lines, "\n"))

	obj, err := s.gateway.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		return result.FailWithSteps[QueryResult](err, steps)
	}

	answerText, _ := obj["answer"].(string)
	confidence, _ := obj["confidence_score"].(float64)
	limitations, _ := obj["limitations"].(string)

	var keyInsights []string
	if arr, ok := obj["key_insights"].([]interface{}); ok {
		for _, v := range arr {
			if sv, ok := v.(string); ok {
				keyInsights = append(keyInsights, sv)
			}
		}
	}
	var supporting []int
	if arr, ok := obj["supporting_communities"].([]interface{}); ok {
		for _, v := range arr {
			if fv, ok := v.(float64); ok {
				supporting = append(supporting, int(fv))
			}
		}
	}
	if len(supporting) == 0 {
		supporting = allIDs
	}

	if failed*4 >= len(batches) {
		note := fmt.Sprintf("%d of %d batches failed, coverage is partial", failed, len(batches))
		if limitations != "" {
			limitations = limitations + "; " + note
		} else {
			limitations = note
		}
	}
	steps = append(steps, "reduced batch summaries into final answer")

	citations := make([]string, len(outcomes))
	for i, o := range outcomes {
		citations[i] = fmt.Sprintf("communities %v", o.CommunityIDs)
	}

	return result.OkWithSteps(QueryResult{
		Answer:                answerText,
		Citations:             citations,
		ConfidenceScore:       confidence,
		ReasoningSteps:        steps,
		KeyInsights:           keyInsights,
		SupportingCommunities: supporting,
		Limitations:           limitations,
	}, steps)
}
