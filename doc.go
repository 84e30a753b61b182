// Graphtog - a GraphRAG question-answering engine over a property-graph
// knowledge base.
//
// Graphtog ingests Markdown documents, extracts a typed entity/relationship
// graph with supporting text units, detects hierarchical communities,
// summarizes them, and answers natural-language questions through several
// retrieval strategies, including an iterative multi-hop Tree-of-Graphs
// (ToG) reasoner with guided pruning.
//
// # Quick Start
//
// Install the package:
//
//	go get github.com/huytu0702/graphtog
//
// Index a document, then answer a question over it:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/huytu0702/graphtog/chunk"
//		"github.com/huytu0702/graphtog/community"
//		"github.com/huytu0702/graphtog/config"
//		"github.com/huytu0702/graphtog/extract"
//		"github.com/huytu0702/graphtog/graphstore"
//		"github.com/huytu0702/graphtog/index"
//		"github.com/huytu0702/graphtog/llmgateway"
//		"github.com/huytu0702/graphtog/query"
//		"github.com/huytu0702/graphtog/resolve"
//		"github.com/huytu0702/graphtog/retrieve"
//		"github.com/huytu0702/graphtog/summarize"
//		"github.com/tmc/langchaingo/llms/openai"
//	)
//
//	func main() {
//		ctx := context.Background()
//		model, _ := openai.New()
//		gateway := llmgateway.New(model, nil, config.NewLLMConfig(), nil)
//		store := graphstore.NewMemoryStore()
//
//		pipeline := index.New(
//			store,
//			chunk.New(config.NewChunkerConfig()),
//			extract.New(gateway, store, config.NewExtractorConfig(), nil),
//			resolve.New(store, gateway, config.NewEntityResolutionConfig(), nil),
//			community.New(store, config.NewCommunityConfig(), nil),
//			summarize.New(store, gateway, config.NewSummarizerConfig(), nil),
//			config.NewEntityResolutionConfig(),
//			nil,
//		)
//		pipeline.IndexDocument(ctx, index.Document{
//			Name:     "notes.md",
//			FilePath: "docs/notes.md",
//			Content:  []byte("# Notes\n\nAlice works at Acme Corp.\n"),
//		})
//
//		retriever := retrieve.New(store, gateway, config.NewRetrieverConfig(), nil)
//		svc := query.New(store, gateway, retriever, nil, config.NewMapReduceConfig(), nil)
//		answer := svc.Answer(ctx, "Where does Alice work?")
//		fmt.Println(answer.Data.Answer)
//	}
//
// # Key Features
//
//   - Token-bounded Markdown chunking with paragraph/sentence cascading splits
//   - LLM-guided joint entity/relation extraction with two-pass continuation
//   - Fuzzy and LLM-arbitrated entity resolution with alias preservation
//   - Modularity-based hierarchical community detection and summarization
//   - Five retrieval strategies: local, community, global, hierarchical, adaptive
//   - Query classification and map-reduce global answering
//   - A Tree-of-Graphs (ToG) iterative multi-hop reasoner with pluggable
//     LLM/BM25/sentence-embedding pruning and cycle/sufficiency control
//   - Uniform {status, data, error, reasoning_steps} result envelopes instead
//     of exception-driven control flow
//
// # Package Structure
//
// # Indexing
//
// markdownx/ normalizes ingested Markdown into paragraph-delimited plain
// text. chunk/ splits that text into overlapping, token-bounded TextUnits.
// extract/ runs the joint entity/relation extraction prompt over each
// TextUnit and persists results to a graphstore.Store. resolve/ finds and
// merges duplicate entities. community/ partitions the semantic-relation
// subgraph into a community hierarchy, and summarize/ generates a
// per-community theme/summary/significance. index/ ties all of the above
// into one IndexDocument operation:
//
//	pipeline := index.New(store, chunker, extractor, resolver, detector, summarizer, resolveCfg, logger)
//	result := pipeline.IndexDocument(ctx, index.Document{Name: "doc.md", FilePath: "doc.md", Content: raw})
//
// # Querying
//
// retrieve/ implements the five retrieval modes over a graphstore.Store.
// query/ implements QueryService: classify -> resolve entities -> retrieve
// context -> assemble context -> answer, plus the Global map-reduce path.
// tog/ implements the ToG reasoner for multi-hop questions, invoked by
// query.Service when classification selects it:
//
//	svc := query.New(store, gateway, retriever, togReasoner, mrCfg, logger)
//	answer := svc.Answer(ctx, "How does Alice's company relate to Paris?")
//
// # Supporting packages
//
// graphstore/ is the property-graph access layer (FalkorDB/Redis-protocol
// backend and an in-process MemoryStore), grounded on the UNIQUE-constraint
// and typed-edge contract in spec §4.3. graphmodel/ holds the shared
// Entity/TextUnit/Document/Relation/Community/Triplet types. llmgateway/ is
// the stateless facade over a langchaingo llms.Model with retry and rate
// pacing. prune/ implements the pluggable LLM/BM25/sentence-embedding
// scoring strategies tog/ and retrieve/ use. errs/ and result/ carry the
// typed error taxonomy and the uniform envelope every public operation
// returns. config/ holds every component's functional-options configuration
// record. relstore/ and cache/ are the out-of-core collaborators (Postgres
// row storage, Redis key/value caching) described in §6 as thin glue
// layers, not part of the graph core itself.
//
// graph/ is the directed-state-graph execution engine tog.Reasoner compiles
// its state machine onto:
//
//	g := graph.NewStateGraph()
//	g.AddNode("explore", "explore relations", exploreFn)
//	g.AddConditionalEdge("explore", routeFn)
//	g.SetEntryPoint("explore")
//	runnable, _ := g.Compile()
//	result, _ := runnable.Invoke(ctx, initialState)
//
// log/ is the leveled Logger interface every component above takes as an
// explicit collaborator, with a golog-backed implementation for
// structured output:
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//
// # Non-goals
//
// Training or embedding LLMs, exact reproduction of any specific LLM
// provider's response format, real-time collaborative editing, and strong
// transactional guarantees across the graph store and relational store are
// explicitly out of scope. HTTP request routing, authentication, document
// persistence as rows, file upload/storage, and visualization payload
// shaping are external collaborators with minimal contracts, not part of
// this module.
//
// # Configuration
//
// Every component is configured via its own typed Config struct built with
// functional options (config.NewChunkerConfig, config.NewToGConfig, and so
// on) rather than environment variables or a global settings object.
package graphtog // import "github.com/huytu0702/graphtog"
