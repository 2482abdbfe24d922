package graph

import "errors"

// ErrMaxStepsExceeded indicates that the run reached the maximum allowed
// superstep count without completing.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNoRoute indicates that a node completed without an explicit route and
// none of its outgoing edges matched.
var ErrNoRoute = errors.New("no valid route from node")

// ErrInvalidRetryPolicy is returned when a RetryPolicy fails validation.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// Engine error codes.
const (
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
	CodeNodeNotFound     = "NODE_NOT_FOUND"
	CodeNoRoute          = "NO_ROUTE"
	CodeStoreError       = "STORE_ERROR"
	CodeMissingReducer   = "MISSING_REDUCER"
	CodeNoStartNode      = "NO_START_NODE"
	CodeDuplicateNode    = "DUPLICATE_NODE"
	CodeInvalidNode      = "INVALID_NODE"
	CodeNodeTimeout      = "NODE_TIMEOUT"
	CodeStateCopy        = "STATE_COPY_FAILED"
	CodeRunNotFound      = "RUN_NOT_FOUND"
	CodeNotInterrupted   = "NOT_INTERRUPTED"
	CodeInvalidOption    = "INVALID_OPTION"
)

// EngineError represents an error raised by the engine itself rather than by
// a node.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err (or anything it wraps) is an EngineError with
// the given code.
func HasCode(err error, code string) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}
