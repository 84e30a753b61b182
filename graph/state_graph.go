package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// StateGraph represents a state-based graph similar to Python's LangGraph StateGraph
type StateGraph struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// conditionalEdges contains a map between "From" node, while "To" node is derived based on the condition
	conditionalEdges map[string]func(ctx context.Context, state any) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// retryPolicy defines retry behavior for failed nodes
	retryPolicy *RetryPolicy

	// stateMerger is an optional function to merge states from parallel execution
	stateMerger StateMerger

	// Schema defines the state structure and update logic
	Schema StateSchema

	// listeners are notified of node lifecycle events during Invoke.
	listeners []NodeListener
}

// NewStateGraph creates a new instance of StateGraph.
func NewStateGraph() *StateGraph {
	return &StateGraph{
		nodes:            make(map[string]Node),
		conditionalEdges: make(map[string]func(ctx context.Context, state any) string),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function
func (g *StateGraph) AddNode(name string, description string, fn func(ctx context.Context, state any) (any, error)) {
	g.nodes[name] = Node{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes
func (g *StateGraph) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
// Conditional edges take priority over static edges added with AddEdge for the same From node.
func (g *StateGraph) AddConditionalEdge(from string, condition func(ctx context.Context, state any) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph
func (g *StateGraph) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRetryPolicy sets the retry policy applied to every node in the graph.
// Per-node retry/timeout/circuit-breaker wrapping (AddNodeWithRetry and
// friends, in retry.go) composes with this: the policy also applies to
// wrapped nodes, retrying the whole wrapped call.
func (g *StateGraph) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// SetStateMerger sets the state merger function for the state graph
func (g *StateGraph) SetStateMerger(merger StateMerger) {
	g.stateMerger = merger
}

// SetSchema sets the state schema for the graph
func (g *StateGraph) SetSchema(schema StateSchema) {
	g.Schema = schema
}

// AddListener registers a NodeListener notified of every node's start,
// completion, and error during Invoke.
func (g *StateGraph) AddListener(listener NodeListener) {
	g.listeners = append(g.listeners, listener)
}

func (g *StateGraph) notify(ctx context.Context, event NodeEvent, nodeName string, state any, err error) {
	for _, l := range g.listeners {
		l.OnNodeEvent(ctx, event, nodeName, state, err)
	}
}

// StateRunnable represents a compiled state graph that can be invoked
type StateRunnable struct {
	graph     *StateGraph
	tracer    *Tracer
	listeners []NodeListener
}

// Compile compiles the state graph and returns a StateRunnable instance
func (g *StateGraph) Compile() (*StateRunnable, error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}

	return &StateRunnable{graph: g}, nil
}

// SetTracer sets a tracer for observability
func (r *StateRunnable) SetTracer(tracer *Tracer) {
	r.tracer = tracer
}

// WithTracer returns a new StateRunnable with the given tracer
func (r *StateRunnable) WithTracer(tracer *Tracer) *StateRunnable {
	return &StateRunnable{graph: r.graph, tracer: tracer, listeners: r.listeners}
}

// WithListener returns a new StateRunnable that additionally notifies
// listener of every node event, without registering it on the shared
// StateGraph (and therefore without affecting other StateRunnables
// compiled from the same graph, or concurrent Invoke calls on this one).
func (r *StateRunnable) WithListener(listener NodeListener) *StateRunnable {
	listeners := make([]NodeListener, len(r.listeners), len(r.listeners)+1)
	copy(listeners, r.listeners)
	listeners = append(listeners, listener)
	return &StateRunnable{graph: r.graph, tracer: r.tracer, listeners: listeners}
}

func (r *StateRunnable) notify(ctx context.Context, event NodeEvent, nodeName string, state any, err error) {
	r.graph.notify(ctx, event, nodeName, state, err)
	for _, l := range r.listeners {
		l.OnNodeEvent(ctx, event, nodeName, state, err)
	}
}

// Invoke executes the compiled state graph with the given input state,
// stepping from entryPoint through its edges/conditional edges until a
// node routes to END.
func (r *StateRunnable) Invoke(ctx context.Context, initialState any) (any, error) {
	state := initialState
	currentNodes := []string{r.graph.entryPoint}

	var graphSpan *TraceSpan
	if r.tracer != nil {
		graphSpan = r.tracer.StartSpan(ctx, TraceEventGraphStart, "graph")
		graphSpan.State = initialState
	}

	for len(currentNodes) > 0 {
		activeNodes := make([]string, 0, len(currentNodes))
		for _, node := range currentNodes {
			if node != END {
				activeNodes = append(activeNodes, node)
			}
		}
		currentNodes = activeNodes
		if len(currentNodes) == 0 {
			break
		}

		results, errorsList := r.executeNodesParallel(ctx, currentNodes, state)

		for _, err := range errorsList {
			if err == nil {
				continue
			}
			var nodeInterrupt *NodeInterrupt
			if errors.As(err, &nodeInterrupt) {
				return state, &GraphInterrupt{
					Node:           nodeInterrupt.Node,
					State:          state,
					InterruptValue: nodeInterrupt.Value,
					NextNodes:      []string{nodeInterrupt.Node},
				}
			}
			return nil, err
		}

		var err error
		state, err = r.mergeState(ctx, state, results)
		if err != nil {
			return nil, err
		}

		currentNodes, err = r.determineNextNodes(ctx, currentNodes, state)
		if err != nil {
			return nil, err
		}
	}

	if r.tracer != nil && graphSpan != nil {
		r.tracer.EndSpan(ctx, graphSpan, state, nil)
	}

	return state, nil
}

// executeNodeWithRetry executes a node with retry logic based on the graph's retry policy
func (r *StateRunnable) executeNodeWithRetry(ctx context.Context, node Node, state any) (any, error) {
	var lastErr error

	maxRetries := 1 // Default: no retries
	if r.graph.retryPolicy != nil {
		maxRetries = r.graph.retryPolicy.MaxRetries + 1 // +1 for initial attempt
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := node.Function(ctx, state)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if r.graph.retryPolicy != nil && attempt < maxRetries-1 && r.isRetryableError(err) {
			delay := r.calculateBackoffDelay(attempt)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			continue
		}
		break
	}

	return nil, lastErr
}

// isRetryableError checks if an error is retryable based on the retry policy
func (r *StateRunnable) isRetryableError(err error) bool {
	if r.graph.retryPolicy == nil {
		return false
	}
	errorStr := err.Error()
	for _, pattern := range r.graph.retryPolicy.RetryableErrors {
		if strContains(errorStr, pattern) {
			return true
		}
	}
	return false
}

func strContains(s, substr string) bool {
	if substr == "" {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// calculateBackoffDelay calculates the delay for retry based on the backoff strategy
func (r *StateRunnable) calculateBackoffDelay(attempt int) time.Duration {
	if r.graph.retryPolicy == nil {
		return 0
	}

	baseDelay := time.Second

	switch r.graph.retryPolicy.BackoffStrategy {
	case FixedBackoff:
		return baseDelay
	case ExponentialBackoff:
		return baseDelay * time.Duration(1<<attempt)
	case LinearBackoff:
		return baseDelay * time.Duration(attempt+1)
	default:
		return baseDelay
	}
}

// executeNodesParallel executes the current set of active nodes concurrently
// (one goroutine per node), notifying the tracer and any registered
// listeners of each node's start/completion/error.
func (r *StateRunnable) executeNodesParallel(ctx context.Context, nodes []string, state any) ([]any, []error) {
	var wg sync.WaitGroup
	results := make([]any, len(nodes))
	errorsList := make([]error, len(nodes))

	for i, nodeName := range nodes {
		node, ok := r.graph.nodes[nodeName]
		if !ok {
			errorsList[i] = fmt.Errorf("%w: %s", ErrNodeNotFound, nodeName)
			continue
		}

		idx, n, name := i, node, nodeName
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errorsList[idx] = fmt.Errorf("panic in node %s: %v", name, p)
				}
			}()

			r.notify(ctx, NodeEventStart, name, state, nil)

			var nodeSpan *TraceSpan
			if r.tracer != nil {
				nodeSpan = r.tracer.StartSpan(ctx, TraceEventNodeStart, name)
				nodeSpan.State = state
			}

			res, err := r.executeNodeWithRetry(ctx, n, state)

			if r.tracer != nil && nodeSpan != nil {
				r.tracer.EndSpan(ctx, nodeSpan, res, err)
			}

			if err != nil {
				var nodeInterrupt *NodeInterrupt
				if errors.As(err, &nodeInterrupt) {
					nodeInterrupt.Node = name
				}
				r.notify(ctx, NodeEventError, name, state, err)
				errorsList[idx] = fmt.Errorf("error in node %s: %w", name, err)
				return
			}

			r.notify(ctx, NodeEventComplete, name, res, nil)
			results[idx] = res
		}()
	}
	wg.Wait()
	return results, errorsList
}

// mergeState merges the processed results into the current state
func (r *StateRunnable) mergeState(ctx context.Context, currentState any, results []any) (any, error) {
	state := currentState
	switch {
	case r.graph.Schema != nil:
		for _, res := range results {
			var err error
			state, err = r.graph.Schema.Update(state, res)
			if err != nil {
				return nil, fmt.Errorf("schema update failed: %w", err)
			}
		}
	case r.graph.stateMerger != nil:
		var err error
		state, err = r.graph.stateMerger(ctx, state, results)
		if err != nil {
			return nil, fmt.Errorf("state merge failed: %w", err)
		}
	default:
		if len(results) > 0 {
			state = results[len(results)-1]
		}
	}
	return state, nil
}

// determineNextNodes determines the next nodes to execute: a conditional
// edge registered for a node overrides any static edges from that node.
func (r *StateRunnable) determineNextNodes(ctx context.Context, currentNodes []string, state any) ([]string, error) {
	nextNodesSet := make(map[string]bool)

	for _, nodeName := range currentNodes {
		if nextNodeFn, ok := r.graph.conditionalEdges[nodeName]; ok {
			nextNode := nextNodeFn(ctx, state)
			if nextNode == "" {
				return nil, fmt.Errorf("conditional edge returned empty next node from %s", nodeName)
			}
			nextNodesSet[nextNode] = true
			continue
		}

		foundNext := false
		for _, edge := range r.graph.edges {
			if edge.From == nodeName {
				nextNodesSet[edge.To] = true
				foundNext = true
				// Do NOT break: allow fan-out via multiple edges from the same node.
			}
		}
		if !foundNext {
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, nodeName)
		}
	}

	nextNodesList := make([]string, 0, len(nextNodesSet))
	for node := range nextNodesSet {
		nextNodesList = append(nextNodesList, node)
	}
	return nextNodesList, nil
}
