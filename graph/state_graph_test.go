package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateGraph_Interrupt(t *testing.T) {
	g := NewStateGraph()

	g.AddNode("ask", "asks for input", func(ctx context.Context, state any) (any, error) {
		val, err := Interrupt(ctx, "need confirmation")
		if err != nil {
			return nil, err
		}
		s := state.(map[string]any)
		s["confirmed"] = val
		return s, nil
	})
	g.SetEntryPoint("ask")
	g.AddEdge("ask", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = runnable.Invoke(context.Background(), map[string]any{})
	var interrupt *GraphInterrupt
	require.True(t, errors.As(err, &interrupt))
	assert.Equal(t, "ask", interrupt.Node)
	assert.Equal(t, "need confirmation", interrupt.InterruptValue)

	resumeCtx := WithResumeValue(context.Background(), true)
	result, err := runnable.Invoke(resumeCtx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, result.(map[string]any)["confirmed"])
}

func TestStateGraph_Tracer(t *testing.T) {
	g := NewStateGraph()

	g.AddNode("A", "A", func(ctx context.Context, state any) (any, error) { return state, nil })
	g.AddNode("B", "B", func(ctx context.Context, state any) (any, error) { return state, nil })
	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddEdge("B", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	tracer := NewTracer()
	runnable.SetTracer(tracer)

	_, err = runnable.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)

	spans := tracer.GetSpans()
	require.Len(t, spans, 3) // graph span + one per node

	var names []string
	for _, span := range spans {
		names = append(names, span.NodeName)
	}
	assert.Contains(t, names, "graph")
	assert.Contains(t, names, "A")
	assert.Contains(t, names, "B")
}

func TestStateGraph_Listener(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("A", "A", func(ctx context.Context, state any) (any, error) { return state, nil })
	g.SetEntryPoint("A")
	g.AddEdge("A", END)

	var mu sync.Mutex
	var events []NodeEvent
	g.AddListener(NodeListenerFunc(func(ctx context.Context, event NodeEvent, nodeName string, state any, err error) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}))

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = runnable.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []NodeEvent{NodeEventStart, NodeEventComplete}, events)
}

func TestStateGraph_WithListener_ScopedToRunnable(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("A", "A", func(ctx context.Context, state any) (any, error) { return state, nil })
	g.SetEntryPoint("A")
	g.AddEdge("A", END)

	base, err := g.Compile()
	require.NoError(t, err)

	var scoped []NodeEvent
	scopedRunnable := base.WithListener(NodeListenerFunc(func(ctx context.Context, event NodeEvent, nodeName string, state any, err error) {
		scoped = append(scoped, event)
	}))

	_, err = scopedRunnable.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []NodeEvent{NodeEventStart, NodeEventComplete}, scoped)

	// The listener attached via WithListener must not leak onto the base
	// runnable (or other runnables compiled from the same graph).
	_, err = base.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []NodeEvent{NodeEventStart, NodeEventComplete}, scoped)
}

func TestStateGraph_RetryPolicy(t *testing.T) {
	g := NewStateGraph()

	attempts := 0
	g.AddNode("flaky", "fails once", func(ctx context.Context, state any) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("temporary failure")
		}
		return state, nil
	})
	g.SetEntryPoint("flaky")
	g.AddEdge("flaky", END)
	g.SetRetryPolicy(&RetryPolicy{
		MaxRetries:      2,
		BackoffStrategy: FixedBackoff,
		RetryableErrors: []string{"temporary failure"},
	})

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = runnable.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestStateGraph_MissingEntryPoint(t *testing.T) {
	g := NewStateGraph()
	_, err := g.Compile()
	assert.ErrorIs(t, err, ErrEntryPointNotSet)
}
