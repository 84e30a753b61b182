// Package graph provides the directed-state-graph execution engine that
// tog.Reasoner compiles its multi-hop reasoning state machine onto.
//
// # Core Concepts
//
// ## StateGraph
// StateGraph is the primary component for building graphs: it holds nodes,
// static edges, conditional edges, an entry point, and optional retry
// policy / state schema / listeners. State flows through nodes as an
// untyped any value, transformed by each node's function.
//
// ## Nodes and Edges
// Nodes represent processing units (functions) that transform state.
// Edges define the flow between nodes; conditional edges (added with
// AddConditionalEdge) take priority over static edges from the same node,
// and determine the next node(s) at runtime based on the current state.
// A node may have multiple outgoing static edges, in which case all are
// followed, executing their targets concurrently.
//
// # Example Usage
//
//	g := graph.NewStateGraph()
//
//	g.AddNode("process", "processes input", func(ctx context.Context, state any) (any, error) {
//		s := state.(map[string]any)
//		s["processed"] = true
//		return s, nil
//	})
//
//	g.AddNode("validate", "validates processed state", func(ctx context.Context, state any) (any, error) {
//		s := state.(map[string]any)
//		s["valid"] = s["processed"].(bool)
//		return s, nil
//	})
//
//	g.SetEntryPoint("process")
//	g.AddEdge("process", "validate")
//	g.AddEdge("validate", graph.END)
//
//	runnable, err := g.Compile()
//	result, err := runnable.Invoke(context.Background(), map[string]any{"data": "example"})
//
// # Parallel execution
//
// No separate parallel-node wrapper exists: whenever determineNextNodes
// returns more than one node (fan-out via multiple static edges),
// executeNodesParallel runs every active node in its own goroutine and
// merges their results before advancing, so concurrency falls out of the
// graph topology itself.
//
// # Streaming and listeners
//
// NodeListener (listeners.go) is notified of every node's start,
// completion, and error. AddListener registers one on a StateGraph for
// all compiled StateRunnables; WithListener attaches one to a single
// StateRunnable without touching the shared graph, which is what
// StreamInvoke (streaming.go) uses to deliver a StreamResult's Events
// channel for a single call without racing concurrent invocations:
//
//	runnable, _ := g.Compile()
//	result := runnable.StreamInvoke(ctx, initialState, graph.DefaultStreamConfig())
//	for event := range result.Events {
//		fmt.Printf("%s: %s\n", event.NodeName, event.Event)
//	}
//	final := <-result.Result
//
// # Error handling and resilience
//
// retry.go provides per-node wrapping (AddNodeWithRetry, AddNodeWithTimeout,
// AddNodeWithCircuitBreaker, AddNodeWithRateLimit) independent of the
// graph-wide RetryPolicy set with SetRetryPolicy; a node can use both, with
// the per-node wrapper applying first. Interrupt (graph.go) and
// NodeInterrupt (errors.go) support pausing a node pending external input,
// surfaced to the caller of Invoke as a *GraphInterrupt.
//
// # Tracing
//
// tracing.go's Tracer records TraceSpans for the whole graph invocation and
// each node execution, with pluggable TraceHooks; attach one with
// StateRunnable.SetTracer or WithTracer.
//
// # Thread safety
//
// StateGraph's node/edge/listener slices and maps are built before Compile
// and must not be mutated concurrently with Invoke. StateRunnable.Invoke and
// StreamInvoke are safe to call concurrently on the same compiled
// StateRunnable (and on different StateRunnables sharing one StateGraph),
// since WithListener never mutates shared state.
package graph
