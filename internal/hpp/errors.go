package hpp

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindDependency Kind = "dependency"
	KindInternal   Kind = "internal"
	KindCancelled  Kind = "cancelled"
)

// Machine-readable codes carried alongside a Kind.
const (
	CodeInvalidServings   = "invalid_servings"
	CodeInvalidInput      = "invalid_input"
	CodeMissingPrice      = "missing_price"
	CodeAllocation        = "allocation_unavailable"
	CodeNegativeCost      = "negative_cost"
	CodeDuplicateSnapshot = "duplicate_snapshot"
	CodeOutOfOrder        = "out_of_order"
	CodeTimeout           = "timeout"
	CodeNotifyFailed      = "notification_failed"
	CodePanic             = "panic"
)

// Error is the engine's error type. Message is meant for humans, Kind and
// Code for machines.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Validationf reports bad input shape or range.
func Validationf(format string, args ...any) *Error {
	return Errorf(KindValidation, CodeInvalidInput, format, args...)
}

// NotFoundf reports a missing recipe, ingredient or recommendation.
func NotFoundf(format string, args ...any) *Error {
	return Errorf(KindNotFound, "", format, args...)
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of err, if it carries one.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// MessageOf returns the human-readable message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
