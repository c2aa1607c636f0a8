package errors

import (
	"fmt"
	"maps"
	"slices"
)

// StructuredError is an error with a message, an optional cause, and fields
// that Log renders as slog attributes.
type StructuredError struct {
	msg    string
	cause  error
	fields map[string]any
}

// NewWith returns a StructuredError with msg and key/value fields.
func NewWith(msg string, fields ...any) *StructuredError {
	return &StructuredError{msg: msg, fields: fieldMap(fields)}
}

// NewWithCause is like NewWith, but also wraps cause.
func NewWithCause(msg string, cause error, fields ...any) *StructuredError {
	return &StructuredError{msg: msg, cause: cause, fields: fieldMap(fields)}
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Message returns the error message without the cause.
func (e *StructuredError) Message() string {
	return e.msg
}

// Unwrap returns the cause.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// Fields returns a copy of the error fields.
func (e *StructuredError) Fields() map[string]any {
	return maps.Clone(e.fields)
}

// attrs returns the cause followed by the fields sorted by key, as slog
// arguments.
func (e *StructuredError) attrs() []any {
	args := make([]any, 0, len(e.fields)*2+2)
	if e.cause != nil {
		args = append(args, "cause", e.cause)
	}
	for _, k := range slices.Sorted(maps.Keys(e.fields)) {
		args = append(args, k, e.fields[k])
	}
	return args
}

func fieldMap(fields []any) map[string]any {
	if len(fields)%2 != 0 {
		panic(fmt.Sprintf("odd number of error fields: %d", len(fields)))
	}

	m := make(map[string]any, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			panic(fmt.Sprintf("error field key %v is not a string", fields[i]))
		}
		m[key] = fields[i+1]
	}

	return m
}
