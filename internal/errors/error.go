package errors

import (
	stderrors "errors"
	"fmt"
	"runtime/debug"
)

// Category represents the type of error.
type Category string

const (
	CategoryCompile    Category = "compile"
	CategoryEvaluation Category = "evaluation"
	CategoryCallback   Category = "callback"
	CategoryScheduler  Category = "scheduler"
	CategoryProp       Category = "prop"
	CategoryBridge     Category = "bridge"
	CategoryConfig     Category = "config"
	CategoryProtocol   Category = "protocol"
)

// XError is a structured runtime error.
type XError struct {
	// Code is a unique error identifier (e.g., "E120").
	Code string

	// Category is the error kind.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of this occurrence.
	Detail string

	// Component is the type name of the component the error surfaced in.
	Component string

	// Info names the failing unit: a watcher description, a hook name or
	// a template node type.
	Info string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Stack is captured when the error was recovered from a panic.
	Stack string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *XError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *XError) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *XError) WithDetail(d string) *XError {
	e.Detail = d
	return e
}

// WithDetailf is WithDetail with formatting.
func (e *XError) WithDetailf(format string, args ...any) *XError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *XError) WithSuggestion(s string) *XError {
	e.Suggestion = s
	return e
}

// WithComponent records the component type the error surfaced in. An
// already recorded component is kept, so the innermost one wins.
func (e *XError) WithComponent(name string) *XError {
	if e.Component == "" {
		e.Component = name
	}
	return e
}

// WithInfo records the failing unit.
func (e *XError) WithInfo(info string) *XError {
	if e.Info == "" {
		e.Info = info
	}
	return e
}

// Wrap wraps another error.
func (e *XError) Wrap(err error) *XError {
	e.Wrapped = err
	return e
}

// New creates an XError from a registered error code.
func New(code string) *XError {
	template, ok := registry[code]
	if !ok {
		return &XError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &XError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
	}
}

// Newf creates a new XError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *XError {
	return &XError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an XError. An error that already is
// an XError is returned as is.
func FromError(err error, code string) *XError {
	if err == nil {
		return nil
	}
	var xe *XError
	if stderrors.As(err, &xe) {
		return xe
	}
	return New(code).Wrap(err)
}

// Recovered converts a recovered panic value into an XError with the
// current stack attached.
func Recovered(code string, r any) *XError {
	e := New(code)
	e.Stack = string(debug.Stack())
	if err, ok := r.(error); ok {
		return e.Wrap(err)
	}
	return e.Wrap(fmt.Errorf("panic: %v", r))
}

// CodeOf returns the code of the first XError in err's chain.
func CodeOf(err error) string {
	var xe *XError
	if stderrors.As(err, &xe) {
		return xe.Code
	}
	return ""
}

// CategoryOf returns the category of the first XError in err's chain.
func CategoryOf(err error) Category {
	var xe *XError
	if stderrors.As(err, &xe) {
		return xe.Category
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
