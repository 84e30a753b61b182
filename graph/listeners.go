package graph

import (
	"context"
	"time"

	"github.com/huytu0702/graphtog/log"
)

// NodeEvent represents different types of node events
type NodeEvent string

const (
	// NodeEventStart indicates a node has started execution
	NodeEventStart NodeEvent = "start"

	// NodeEventComplete indicates a node has completed successfully
	NodeEventComplete NodeEvent = "complete"

	// NodeEventError indicates a node encountered an error
	NodeEventError NodeEvent = "error"
)

// NodeListener defines the interface for node event listeners, registered
// on a StateGraph with AddListener and notified for every node it runs.
type NodeListener interface {
	OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state any, err error)
}

// NodeListenerFunc is a function adapter for NodeListener
type NodeListenerFunc func(ctx context.Context, event NodeEvent, nodeName string, state any, err error)

// OnNodeEvent implements the NodeListener interface
func (f NodeListenerFunc) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state any, err error) {
	f(ctx, event, nodeName, state, err)
}

// StreamEvent is one observed node event, timestamped for ordering on the
// channel StreamInvoke (streaming.go) delivers them over.
type StreamEvent struct {
	Timestamp time.Time
	NodeName  string
	Event     NodeEvent
	State     any
	Error     error
}

// LoggingListener is a NodeListener that reports every node event through a
// log.Logger, at LogLevelDebug for start/completion and LogLevelError for
// failures. IncludeState controls whether the (possibly large) state value
// is included in the log line.
type LoggingListener struct {
	logger       log.Logger
	includeState bool
}

// NewLoggingListener creates a LoggingListener writing through logger.
func NewLoggingListener(logger log.Logger, includeState bool) *LoggingListener {
	return &LoggingListener{logger: logger, includeState: includeState}
}

// OnNodeEvent implements NodeListener.
func (l *LoggingListener) OnNodeEvent(_ context.Context, event NodeEvent, nodeName string, state any, err error) {
	switch event {
	case NodeEventError:
		l.logger.Error("node %s failed: %v", nodeName, err)
	case NodeEventStart:
		if l.includeState {
			l.logger.Debug("node %s starting, state=%+v", nodeName, state)
		} else {
			l.logger.Debug("node %s starting", nodeName)
		}
	case NodeEventComplete:
		if l.includeState {
			l.logger.Debug("node %s completed, state=%+v", nodeName, state)
		} else {
			l.logger.Debug("node %s completed", nodeName)
		}
	}
}
