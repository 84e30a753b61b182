// Package config holds the typed, enumerated configuration records for each
// component, replacing loosely-typed request dicts with explicit options
// structs configured via the teacher's functional-options idiom (see
// splitter.WithChunkSize/WithChunkOverlap). Unknown options are rejected at
// construction: there is no free-form map accepted anywhere in this package.
package config

import "time"

// ChunkerConfig configures the Chunker (spec §4.1).
type ChunkerConfig struct {
	TargetTokens  int
	OverlapTokens int
	MinTokens     int
}

// ChunkerOption configures a ChunkerConfig.
type ChunkerOption func(*ChunkerConfig)

// WithTargetTokens sets the target chunk size in tokens.
func WithTargetTokens(n int) ChunkerOption {
	return func(c *ChunkerConfig) { c.TargetTokens = n }
}

// WithOverlapTokens sets the overlap seeded into the next chunk.
func WithOverlapTokens(n int) ChunkerOption {
	return func(c *ChunkerConfig) { c.OverlapTokens = n }
}

// WithMinTokens sets the minimum chunk size before an early emit is allowed.
func WithMinTokens(n int) ChunkerOption {
	return func(c *ChunkerConfig) { c.MinTokens = n }
}

// NewChunkerConfig builds a ChunkerConfig with spec defaults, then applies opts.
func NewChunkerConfig(opts ...ChunkerOption) ChunkerConfig {
	c := ChunkerConfig{TargetTokens: 1000, OverlapTokens: 500, MinTokens: 100}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LLMConfig configures the LLMGateway (spec §4.2, §6).
type LLMConfig struct {
	Model              string
	APIKey             string
	BaseURL            string
	RateLimitInterval  time.Duration
	MaxRetries         int
	EmbeddingModel     string
}

// LLMOption configures an LLMConfig.
type LLMOption func(*LLMConfig)

func WithModel(model string) LLMOption           { return func(c *LLMConfig) { c.Model = model } }
func WithAPIKey(key string) LLMOption            { return func(c *LLMConfig) { c.APIKey = key } }
func WithBaseURL(url string) LLMOption           { return func(c *LLMConfig) { c.BaseURL = url } }
func WithEmbeddingModel(m string) LLMOption      { return func(c *LLMConfig) { c.EmbeddingModel = m } }
func WithRateLimitInterval(d time.Duration) LLMOption {
	return func(c *LLMConfig) { c.RateLimitInterval = d }
}
func WithMaxRetries(n int) LLMOption { return func(c *LLMConfig) { c.MaxRetries = n } }

// NewLLMConfig builds an LLMConfig with spec defaults, then applies opts.
func NewLLMConfig(opts ...LLMOption) LLMConfig {
	c := LLMConfig{
		Model:             "gpt-4o-mini",
		EmbeddingModel:    "text-embedding-3-small",
		RateLimitInterval: 100 * time.Millisecond,
		MaxRetries:        3,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ExtractorConfig configures the Extractor (spec §4.4).
type ExtractorConfig struct {
	BatchParallelism      int
	TwoPassMaxIterations  int
}

// ExtractorOption configures an ExtractorConfig.
type ExtractorOption func(*ExtractorConfig)

func WithBatchParallelism(n int) ExtractorOption {
	return func(c *ExtractorConfig) { c.BatchParallelism = n }
}
func WithTwoPassMaxIterations(n int) ExtractorOption {
	return func(c *ExtractorConfig) { c.TwoPassMaxIterations = n }
}

// NewExtractorConfig builds an ExtractorConfig with spec defaults, then applies opts.
// TwoPassMaxIterations defaults to 2 per the §9 Open Question decision.
func NewExtractorConfig(opts ...ExtractorOption) ExtractorConfig {
	c := ExtractorConfig{BatchParallelism: 6, TwoPassMaxIterations: 2}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// EntityResolutionConfig configures the EntityResolver (spec §4.5).
type EntityResolutionConfig struct {
	Enabled                  bool
	SimilarityThreshold       float64
	AutoMergeConfidenceThreshold float64
}

// EntityResolutionOption configures an EntityResolutionConfig.
type EntityResolutionOption func(*EntityResolutionConfig)

func WithResolutionEnabled(b bool) EntityResolutionOption {
	return func(c *EntityResolutionConfig) { c.Enabled = b }
}
func WithSimilarityThreshold(t float64) EntityResolutionOption {
	return func(c *EntityResolutionConfig) { c.SimilarityThreshold = t }
}
func WithAutoMergeConfidenceThreshold(t float64) EntityResolutionOption {
	return func(c *EntityResolutionConfig) { c.AutoMergeConfidenceThreshold = t }
}

// NewEntityResolutionConfig builds an EntityResolutionConfig with spec defaults.
func NewEntityResolutionConfig(opts ...EntityResolutionOption) EntityResolutionConfig {
	c := EntityResolutionConfig{Enabled: true, SimilarityThreshold: 0.85}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// CommunityConfig configures the CommunityDetector (spec §4.6).
type CommunityConfig struct {
	Seed                     int64
	Tolerance                float64
	MaxIterations            int
	IncludeIntermediateLevels bool
}

// CommunityOption configures a CommunityConfig.
type CommunityOption func(*CommunityConfig)

func WithSeed(seed int64) CommunityOption {
	return func(c *CommunityConfig) { c.Seed = seed }
}
func WithTolerance(t float64) CommunityOption {
	return func(c *CommunityConfig) { c.Tolerance = t }
}
func WithMaxIterations(n int) CommunityOption {
	return func(c *CommunityConfig) { c.MaxIterations = n }
}
func WithIncludeIntermediateLevels(b bool) CommunityOption {
	return func(c *CommunityConfig) { c.IncludeIntermediateLevels = b }
}

// NewCommunityConfig builds a CommunityConfig with spec defaults.
func NewCommunityConfig(opts ...CommunityOption) CommunityConfig {
	c := CommunityConfig{Seed: 42, Tolerance: 1e-4, MaxIterations: 10}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// SummarizerConfig configures the CommunitySummarizer (spec §4.7).
type SummarizerConfig struct {
	MaxMembers   int
	MaxRelations int
	Concurrency  int
}

// SummarizerOption configures a SummarizerConfig.
type SummarizerOption func(*SummarizerConfig)

func WithMaxMembers(n int) SummarizerOption {
	return func(c *SummarizerConfig) { c.MaxMembers = n }
}
func WithMaxRelations(n int) SummarizerOption {
	return func(c *SummarizerConfig) { c.MaxRelations = n }
}
func WithSummarizerConcurrency(n int) SummarizerOption {
	return func(c *SummarizerConfig) { c.Concurrency = n }
}

// NewSummarizerConfig builds a SummarizerConfig with spec defaults (K≈20
// members, M≈15 relations), then applies opts.
func NewSummarizerConfig(opts ...SummarizerOption) SummarizerConfig {
	c := SummarizerConfig{MaxMembers: 20, MaxRelations: 15, Concurrency: 8}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// RetrieverConfig configures the Retriever (spec §4.8).
type RetrieverConfig struct {
	HopLimit            int
	MaxCoMembers        int
	MaxPaths            int
	HierarchicalTopK    int
}

// RetrieverOption configures a RetrieverConfig.
type RetrieverOption func(*RetrieverConfig)

func WithHopLimit(n int) RetrieverOption { return func(c *RetrieverConfig) { c.HopLimit = n } }
func WithMaxCoMembers(n int) RetrieverOption {
	return func(c *RetrieverConfig) { c.MaxCoMembers = n }
}
func WithMaxPaths(n int) RetrieverOption { return func(c *RetrieverConfig) { c.MaxPaths = n } }
func WithHierarchicalTopK(n int) RetrieverOption {
	return func(c *RetrieverConfig) { c.HierarchicalTopK = n }
}

// NewRetrieverConfig builds a RetrieverConfig with spec defaults, then applies opts.
func NewRetrieverConfig(opts ...RetrieverOption) RetrieverConfig {
	c := RetrieverConfig{HopLimit: 2, MaxCoMembers: 20, MaxPaths: 10, HierarchicalTopK: 3}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// MapReduceConfig configures QueryService's Global Map-Reduce path (spec §4.9).
type MapReduceConfig struct {
	Enabled            bool
	BatchSize          int
	CommunityThreshold int
}

// MapReduceOption configures a MapReduceConfig.
type MapReduceOption func(*MapReduceConfig)

func WithMapReduceEnabled(b bool) MapReduceOption {
	return func(c *MapReduceConfig) { c.Enabled = b }
}
func WithBatchSize(n int) MapReduceOption {
	return func(c *MapReduceConfig) { c.BatchSize = n }
}
func WithCommunityThreshold(n int) MapReduceOption {
	return func(c *MapReduceConfig) { c.CommunityThreshold = n }
}

// NewMapReduceConfig builds a MapReduceConfig with spec defaults.
func NewMapReduceConfig(opts ...MapReduceOption) MapReduceConfig {
	c := MapReduceConfig{Enabled: true, BatchSize: 10, CommunityThreshold: 20}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// PruningMethod selects which PruningStrategy variant ToGReasoner uses.
type PruningMethod string

const (
	PruningLLM           PruningMethod = "llm"
	PruningBM25          PruningMethod = "bm25"
	PruningSentenceBERT  PruningMethod = "sentence_bert"
)

// ToGConfig configures the ToGReasoner (spec §4.10).
type ToGConfig struct {
	SearchWidth            int
	SearchDepth            int
	NumRetainEntity        int
	ExplorationTemp        float64
	ReasoningTemp          float64
	PruningMethod          PruningMethod
	EnableSufficiencyCheck bool
	DocumentIDs            []string

	// MaxNodeRetries is how many extra attempts graph.StateRunnable makes
	// for a node whose error carries an LLM_TRANSIENT or GRAPH_UNAVAILABLE
	// errs.Kind, on top of the initial attempt. 0 disables retrying.
	MaxNodeRetries int
}

// ToGOption configures a ToGConfig.
type ToGOption func(*ToGConfig)

func WithSearchWidth(n int) ToGOption       { return func(c *ToGConfig) { c.SearchWidth = n } }
func WithSearchDepth(n int) ToGOption       { return func(c *ToGConfig) { c.SearchDepth = n } }
func WithNumRetainEntity(n int) ToGOption   { return func(c *ToGConfig) { c.NumRetainEntity = n } }
func WithExplorationTemp(t float64) ToGOption {
	return func(c *ToGConfig) { c.ExplorationTemp = t }
}
func WithReasoningTemp(t float64) ToGOption { return func(c *ToGConfig) { c.ReasoningTemp = t } }
func WithPruningMethod(m PruningMethod) ToGOption {
	return func(c *ToGConfig) { c.PruningMethod = m }
}
func WithSufficiencyCheck(b bool) ToGOption {
	return func(c *ToGConfig) { c.EnableSufficiencyCheck = b }
}
func WithDocumentIDs(ids []string) ToGOption { return func(c *ToGConfig) { c.DocumentIDs = ids } }
func WithMaxNodeRetries(n int) ToGOption     { return func(c *ToGConfig) { c.MaxNodeRetries = n } }

// NewToGConfig builds a ToGConfig with spec defaults, then applies opts.
// SearchDepth is clamped to the spec's 1..5 range.
func NewToGConfig(opts ...ToGOption) ToGConfig {
	c := ToGConfig{
		SearchWidth:            3,
		SearchDepth:            3,
		NumRetainEntity:        5,
		ExplorationTemp:        0.4,
		ReasoningTemp:          0.0,
		PruningMethod:          PruningLLM,
		EnableSufficiencyCheck: true,
		MaxNodeRetries:         2,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.SearchDepth < 1 {
		c.SearchDepth = 1
	}
	if c.SearchDepth > 5 {
		c.SearchDepth = 5
	}
	return c
}

// GraphConfig configures graph store connection pooling (spec §6).
type GraphConfig struct {
	PoolSize           int
	AcquisitionTimeout time.Duration
	DatabaseURL        string
	GraphName          string
}

// GraphOption configures a GraphConfig.
type GraphOption func(*GraphConfig)

func WithPoolSize(n int) GraphOption { return func(c *GraphConfig) { c.PoolSize = n } }
func WithAcquisitionTimeout(d time.Duration) GraphOption {
	return func(c *GraphConfig) { c.AcquisitionTimeout = d }
}
func WithDatabaseURL(url string) GraphOption { return func(c *GraphConfig) { c.DatabaseURL = url } }
func WithGraphName(name string) GraphOption  { return func(c *GraphConfig) { c.GraphName = name } }

// NewGraphConfig builds a GraphConfig with spec defaults, then applies opts.
func NewGraphConfig(opts ...GraphOption) GraphConfig {
	c := GraphConfig{PoolSize: 10, AcquisitionTimeout: 5 * time.Second, GraphName: "graphtog"}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
