// Package llmgateway implements LLMGateway (spec §4.2): a stateless facade
// over a generative model with retry, rate pacing, and output canonicalization.
//
// It is built on langchaingo's llms.Model interface the same way
// rag.RAGPipeline's generateNode drives its configured LLM — TextParts
// messages into GenerateContent — backed concretely by
// langchaingo/llms/openai, which wraps github.com/sashabaranov/go-openai.
package llmgateway

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"github.com/huytu0702/graphtog/config"
	"github.com/huytu0702/graphtog/errs"
	"github.com/huytu0702/graphtog/log"
)

// Gateway is a stateless facade over a chat/completion model and an
// embedding endpoint. It may be invoked concurrently: pacing is serialized
// internally, requests are not.
type Gateway struct {
	model    llms.Model
	embedder embeddings.Embedder
	cfg      config.LLMConfig
	logger   log.Logger

	paceMu   sync.Mutex
	lastCall time.Time
}

// New builds a Gateway over model/embedder using cfg for retry and pacing.
func New(model llms.Model, embedder embeddings.Embedder, cfg config.LLMConfig, logger log.Logger) *Gateway {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}
	return &Gateway{model: model, embedder: embedder, cfg: cfg, logger: logger}
}

// pace blocks until at least RateLimitInterval has elapsed since the last
// call, serializing pacing without serializing the requests themselves.
func (g *Gateway) pace() {
	if g.cfg.RateLimitInterval <= 0 {
		return
	}
	g.paceMu.Lock()
	defer g.paceMu.Unlock()
	wait := g.cfg.RateLimitInterval - time.Since(g.lastCall)
	if wait > 0 {
		time.Sleep(wait)
	}
	g.lastCall = time.Now()
}

// Generate produces freeform text for prompt at the given temperature,
// retrying transient failures with exponential backoff.
func (g *Gateway) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	var out string
	err := g.withRetry(ctx, func(ctx context.Context) error {
		g.pace()
		messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
		resp, err := g.model.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
		if err != nil {
			return errs.Wrap(errs.LLMTransient, err, "llmgateway: generate failed")
		}
		if len(resp.Choices) == 0 {
			return errs.New(errs.LLMTransient, "llmgateway: empty response")
		}
		out = resp.Choices[0].Content
		return nil
	})
	return out, err
}

// GenerateJSON produces a structured object for prompt, canonicalizing the
// model's raw output (stripping fenced code blocks and control characters)
// before parsing. On persistent malformed output it returns an errs.LLMParse
// error after one stricter-instruction retry, per spec §4.2/§7.
func (g *Gateway) GenerateJSON(ctx context.Context, prompt string, temperature float64) (map[string]any, error) {
	raw, err := g.Generate(ctx, prompt, temperature)
	if err != nil {
		return nil, err
	}
	obj, perr := parseJSONObject(raw)
	if perr == nil {
		return obj, nil
	}

	g.logger.Warn("llmgateway: JSON parse failed, retrying with stricter instruction: %v", perr)
	stricter := prompt + "\n\nRespond with ONLY a single valid JSON object. No prose, no markdown fences."
	raw, err = g.Generate(ctx, stricter, temperature)
	if err != nil {
		return nil, err
	}
	obj, perr = parseJSONObject(raw)
	if perr != nil {
		return nil, errs.Wrap(errs.LLMParse, perr, "llmgateway: response not valid JSON after sanitization")
	}
	return obj, nil
}

// Embed returns the embedding vector for text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.embedder == nil {
		return nil, errs.New(errs.Internal, "llmgateway: no embedder configured")
	}
	var vec []float32
	err := g.withRetry(ctx, func(ctx context.Context) error {
		g.pace()
		v, err := g.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return errs.Wrap(errs.LLMTransient, err, "llmgateway: embed failed")
		}
		vec = make([]float32, len(v))
		for i, f := range v {
			vec[i] = float32(f)
		}
		return nil
	})
	return vec, err
}

// withRetry runs fn with exponential backoff on LLM_TRANSIENT errors, up to
// cfg.MaxRetries attempts (default 3), per spec §4.2/§7.
func (g *Gateway) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := g.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errs.Wrap(errs.Cancelled, ctx.Err(), "llmgateway: cancelled during retry backoff")
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errs.Is(lastErr, errs.LLMTransient) {
			return lastErr
		}
		g.logger.Debug("llmgateway: transient failure on attempt %d: %v", attempt+1, lastErr)
	}
	return lastErr
}

var fencedBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// canonicalize strips fenced code blocks and control characters from raw
// LLM output so it can be parsed as JSON, per spec §4.2.
func canonicalize(raw string) string {
	s := raw
	if m := fencedBlockRE.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	var sb strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\t' || r >= 0x20 {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

func parseJSONObject(raw string) (map[string]any, error) {
	clean := canonicalize(raw)
	start := strings.IndexByte(clean, '{')
	end := strings.LastIndexByte(clean, '}')
	if start < 0 || end < start {
		return nil, errs.New(errs.LLMParse, "no JSON object found in response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(clean[start:end+1]), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
