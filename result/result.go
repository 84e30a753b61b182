// Package result defines the uniform envelope returned by every public
// operation in the system, replacing exception-driven control flow with an
// explicit {status, data, error, reasoning_steps} result type (spec §6/§9).
package result

import "github.com/huytu0702/graphtog/errs"

// Status is the outcome classification at the boundary of a public operation.
type Status string

const (
	Success  Status = "success"
	Error    Status = "error"
	NotFound Status = "not_found"
	Partial  Status = "partial"
)

// ErrorInfo is the machine-readable/human-readable error pair surfaced to callers.
type ErrorInfo struct {
	Kind    errs.Kind `json:"kind"`
	Message string    `json:"message"`
}

// Envelope[T] is the stable result shape for every public operation.
type Envelope[T any] struct {
	Status         Status     `json:"status"`
	Data           T          `json:"data,omitempty"`
	Error          *ErrorInfo `json:"error,omitempty"`
	ReasoningSteps []string   `json:"reasoning_steps,omitempty"`
}

// Ok builds a success envelope carrying data.
func Ok[T any](data T) Envelope[T] {
	return Envelope[T]{Status: Success, Data: data}
}

// OkWithSteps builds a success envelope carrying data and reasoning steps.
func OkWithSteps[T any](data T, steps []string) Envelope[T] {
	return Envelope[T]{Status: Success, Data: data, ReasoningSteps: steps}
}

// Fail builds an error envelope from err, classifying it via errs.KindOf
// unless err is already an *errs.Error carrying its own kind.
func Fail[T any](err error) Envelope[T] {
	return Envelope[T]{
		Status: Error,
		Error:  &ErrorInfo{Kind: errs.KindOf(err), Message: err.Error()},
	}
}

// FailWithSteps builds an error envelope from err, preserving reasoning steps
// accumulated before the failure — required for QueryService/ToG debuggability.
func FailWithSteps[T any](err error, steps []string) Envelope[T] {
	e := Fail[T](err)
	e.ReasoningSteps = steps
	return e
}

// Missing builds a not_found envelope with a human-readable message.
func Missing[T any](message string) Envelope[T] {
	return Envelope[T]{
		Status: NotFound,
		Error:  &ErrorInfo{Kind: errs.NotFound, Message: message},
	}
}

// PartialOk builds a partial envelope: some work succeeded, some did not.
func PartialOk[T any](data T, message string) Envelope[T] {
	return Envelope[T]{
		Status: Partial,
		Data:   data,
		Error:  &ErrorInfo{Kind: errs.Internal, Message: message},
	}
}
