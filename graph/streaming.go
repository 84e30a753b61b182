package graph

import (
	"context"
	"sync"
	"time"
)

// StreamMode defines which subset of node events a StreamResult delivers.
type StreamMode string

const (
	// StreamModeValues emits only NodeEventComplete events, carrying the
	// full state produced by each node.
	StreamModeValues StreamMode = "values"
	// StreamModeUpdates emits NodeEventComplete and NodeEventError.
	StreamModeUpdates StreamMode = "updates"
	// StreamModeDebug emits every node event (default).
	StreamModeDebug StreamMode = "debug"
)

// StreamConfig configures streaming behavior.
type StreamConfig struct {
	// BufferSize is the size of the event channel buffer.
	BufferSize int

	// EnableBackpressure counts events dropped because the buffer is full
	// in StreamingListener.DroppedEvents. Sends never block: a full buffer
	// drops the event whether or not this is set.
	EnableBackpressure bool

	// Mode specifies what subset of events to stream.
	Mode StreamMode
}

// DefaultStreamConfig returns the default streaming configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BufferSize:         64,
		EnableBackpressure: true,
		Mode:               StreamModeDebug,
	}
}

// StreamResult contains the channels returned by StreamInvoke.
type StreamResult struct {
	// Events receives a StreamEvent for every node lifecycle event that
	// matches the StreamConfig's Mode, in the order they occur.
	Events <-chan StreamEvent

	// Result receives the final state once Invoke returns successfully.
	Result <-chan any

	// Errors receives the error if Invoke fails.
	Errors <-chan error

	// Done is closed once Invoke has returned and Events/Result/Errors
	// have been fully populated.
	Done <-chan struct{}

	// Cancel stops the underlying Invoke call.
	Cancel context.CancelFunc
}

// StreamingListener is a NodeListener that forwards node events onto a
// channel, applying the StreamConfig's Mode filter. It never blocks the
// graph's execution goroutines: an event that does not fit in the buffer is
// dropped, and counted when EnableBackpressure is set.
type StreamingListener struct {
	eventChan chan<- StreamEvent
	config    StreamConfig

	mu            sync.Mutex
	closed        bool
	droppedEvents int
}

// NewStreamingListener creates a StreamingListener writing to eventChan.
func NewStreamingListener(eventChan chan<- StreamEvent, config StreamConfig) *StreamingListener {
	return &StreamingListener{eventChan: eventChan, config: config}
}

// OnNodeEvent implements NodeListener.
func (sl *StreamingListener) OnNodeEvent(_ context.Context, event NodeEvent, nodeName string, state any, err error) {
	if !sl.shouldEmit(event) {
		return
	}

	sl.mu.Lock()
	closed := sl.closed
	sl.mu.Unlock()
	if closed {
		return
	}

	streamEvent := StreamEvent{
		Timestamp: time.Now(),
		NodeName:  nodeName,
		Event:     event,
		State:     state,
		Error:     err,
	}

	select {
	case sl.eventChan <- streamEvent:
	default:
		if sl.config.EnableBackpressure {
			sl.mu.Lock()
			sl.droppedEvents++
			sl.mu.Unlock()
		}
	}
}

func (sl *StreamingListener) shouldEmit(event NodeEvent) bool {
	switch sl.config.Mode {
	case StreamModeValues:
		return event == NodeEventComplete
	case StreamModeUpdates:
		return event == NodeEventComplete || event == NodeEventError
	default:
		return true
	}
}

// Close marks the listener as closed; further OnNodeEvent calls are
// dropped rather than racing a close of the channel they write to.
func (sl *StreamingListener) Close() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.closed = true
}

// DroppedEvents returns the number of events dropped due to
// backpressure since the listener was created.
func (sl *StreamingListener) DroppedEvents() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.droppedEvents
}

// StreamInvoke runs the graph like Invoke, but additionally emits a
// StreamEvent for every node start/completion/error on StreamResult.Events
// as it happens, using WithListener so the subscription is scoped to this
// one call and does not race concurrent Invoke/StreamInvoke calls sharing
// the same compiled StateRunnable.
func (r *StateRunnable) StreamInvoke(ctx context.Context, initialState any, config StreamConfig) *StreamResult {
	streamCtx, cancel := context.WithCancel(ctx)

	eventChan := make(chan StreamEvent, config.BufferSize)
	resultChan := make(chan any, 1)
	errorChan := make(chan error, 1)
	doneChan := make(chan struct{})

	listener := NewStreamingListener(eventChan, config)
	runnable := r.WithListener(listener)

	go func() {
		defer close(doneChan)
		defer close(resultChan)
		defer close(errorChan)
		defer close(eventChan)
		defer listener.Close()

		result, err := runnable.Invoke(streamCtx, initialState)
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- result
	}()

	return &StreamResult{
		Events: eventChan,
		Result: resultChan,
		Errors: errorChan,
		Done:   doneChan,
		Cancel: cancel,
	}
}
