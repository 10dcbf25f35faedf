package job

import (
	"errors"
	"fmt"
)

// Kind classifies why a job stopped.
type Kind string

const (
	KindMalformedTrigger Kind = "malformed_trigger"
	KindConfigNotFound   Kind = "config_not_found"
	KindInvalidConfig    Kind = "invalid_config"
	KindEmptyInput       Kind = "empty_input"
	KindInputRead        Kind = "input_read"
	KindExternalService  Kind = "external_service"
	KindDownstreamWrite  Kind = "downstream_write"
)

// Error is a classified job failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("job: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("job: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is nil or unclassified.
func KindOf(err error) Kind {
	var je *Error
	if errors.As(err, &je) {
		return je.Kind
	}
	return ""
}

// IsAbort reports whether err ends the job without anything to retry: the
// trigger was malformed, the config document is missing or the input is
// empty. Redelivering the same message cannot change the outcome.
func IsAbort(err error) bool {
	switch KindOf(err) {
	case KindMalformedTrigger, KindConfigNotFound, KindEmptyInput:
		return true
	default:
		return false
	}
}
