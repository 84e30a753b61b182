// Package errs defines the stable error-kind taxonomy shared across the
// indexing pipeline and query engine, following the sentinel-error-plus-wrap
// idiom used by graph.ErrNodeNotFound: callers compare kinds with errors.Is
// against typed sentinels instead of string-matching messages.
package errs

import "errors"

// Kind is a stable, machine-readable error classification.
type Kind string

const (
	InvalidInput        Kind = "INVALID_INPUT"
	NotFound             Kind = "NOT_FOUND"
	LLMTransient          Kind = "LLM_TRANSIENT"
	LLMParse              Kind = "LLM_PARSE"
	GraphConstraint      Kind = "GRAPH_CONSTRAINT"
	GraphUnavailable     Kind = "GRAPH_UNAVAILABLE"
	Cycle                Kind = "CYCLE"
	InsufficientEvidence Kind = "INSUFFICIENT_EVIDENCE"
	Cancelled            Kind = "CANCELLED"
	Internal             Kind = "INTERNAL"
)

// sentinels allow errors.Is(err, errs.NotFoundErr) style comparisons against
// a specific kind without inspecting Error, mirroring graph.ErrNodeNotFound.
var (
	NotFoundErr             = errors.New(string(NotFound))
	InvalidInputErr         = errors.New(string(InvalidInput))
	LLMTransientErr         = errors.New(string(LLMTransient))
	LLMParseErr             = errors.New(string(LLMParse))
	GraphConstraintErr      = errors.New(string(GraphConstraint))
	GraphUnavailableErr     = errors.New(string(GraphUnavailable))
	CycleErr                = errors.New(string(Cycle))
	InsufficientEvidenceErr = errors.New(string(InsufficientEvidence))
	CancelledErr            = errors.New(string(Cancelled))
	InternalErr             = errors.New(string(Internal))
)

var sentinelByKind = map[Kind]error{
	InvalidInput:         InvalidInputErr,
	NotFound:             NotFoundErr,
	LLMTransient:         LLMTransientErr,
	LLMParse:             LLMParseErr,
	GraphConstraint:      GraphConstraintErr,
	GraphUnavailable:     GraphUnavailableErr,
	Cycle:                CycleErr,
	InsufficientEvidence: InsufficientEvidenceErr,
	Cancelled:            CancelledErr,
	Internal:             InternalErr,
}

// Error carries a stable Kind, a human-readable Message, and an optional Cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap exposes Cause to errors.Is/errors.As, and also the kind's sentinel
// so errors.Is(err, errs.NotFoundErr) matches regardless of message text.
func (e *Error) Unwrap() []error {
	sentinel := sentinelByKind[e.Kind]
	if e.Cause != nil {
		return []error{sentinel, e.Cause}
	}
	return []error{sentinel}
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind, preserving cause for Unwrap.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return errors.Is(err, sentinelByKind[kind])
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one of our own error types.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
