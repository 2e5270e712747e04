package patch

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	// ErrMalformedInput is the kind of errors for messages that miss required fields or carry
	// a path without the leading delimiter
	ErrMalformedInput = errors.New("malformed input")

	// ErrTypeCoercion is the kind of errors for values that cannot be coerced to the type their
	// property name requires
	ErrTypeCoercion = errors.New("type coercion failure")
)

// Error describes why a patch message was rejected. Index is the position of the offending
// operation in the patch, or -1 if the message as a whole is at fault.
type Error struct {
	Kind  error
	Index int
	Path  string
	Value json.RawMessage
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s at operation %d", msg, e.Index)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" path '%s'", e.Path)
	}
	if len(e.Value) > 0 {
		msg += fmt.Sprintf(" value %s", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func malformed(index int, path string, err error) *Error {
	return &Error{Kind: ErrMalformedInput, Index: index, Path: path, Err: err}
}

// KindName returns a short label for the kind of err, suitable for metrics
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrTypeCoercion):
		return "type_coercion"
	default:
		return "unknown"
	}
}
