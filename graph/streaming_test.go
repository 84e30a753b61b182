package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamInvoke_EmitsEventsAndResult(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("A", "A", func(ctx context.Context, state any) (any, error) {
		s := state.(map[string]any)
		s["visited"] = append(s["visited"].([]string), "A")
		return s, nil
	})
	g.AddNode("B", "B", func(ctx context.Context, state any) (any, error) {
		s := state.(map[string]any)
		s["visited"] = append(s["visited"].([]string), "B")
		return s, nil
	})
	g.SetEntryPoint("A")
	g.AddEdge("A", "B")
	g.AddEdge("B", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	stream := runnable.StreamInvoke(context.Background(), map[string]any{"visited": []string{}}, DefaultStreamConfig())

	var events []StreamEvent
	for event := range stream.Events {
		events = append(events, event)
	}

	select {
	case result := <-stream.Result:
		visited := result.(map[string]any)["visited"].([]string)
		assert.Equal(t, []string{"A", "B"}, visited)
	case err := <-stream.Errors:
		t.Fatalf("unexpected error: %v", err)
	}

	<-stream.Done

	require.Len(t, events, 4)
	assert.Equal(t, NodeEventStart, events[0].Event)
	assert.Equal(t, "A", events[0].NodeName)
	assert.Equal(t, NodeEventComplete, events[1].Event)
	assert.Equal(t, NodeEventStart, events[2].Event)
	assert.Equal(t, "B", events[2].NodeName)
	assert.Equal(t, NodeEventComplete, events[3].Event)
}

func TestStreamInvoke_ValuesModeFiltersToCompletions(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("A", "A", func(ctx context.Context, state any) (any, error) { return state, nil })
	g.SetEntryPoint("A")
	g.AddEdge("A", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	config := DefaultStreamConfig()
	config.Mode = StreamModeValues
	stream := runnable.StreamInvoke(context.Background(), map[string]any{}, config)

	var events []StreamEvent
	for event := range stream.Events {
		events = append(events, event)
	}
	<-stream.Done

	require.Len(t, events, 1)
	assert.Equal(t, NodeEventComplete, events[0].Event)
}

func TestStreamInvoke_PropagatesError(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("A", "A", func(ctx context.Context, state any) (any, error) {
		return nil, assert.AnError
	})
	g.SetEntryPoint("A")
	g.AddEdge("A", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	stream := runnable.StreamInvoke(context.Background(), map[string]any{}, DefaultStreamConfig())
	for range stream.Events {
	}
	<-stream.Done

	select {
	case err := <-stream.Errors:
		require.Error(t, err)
	default:
		t.Fatal("expected an error on stream.Errors")
	}
}
