// Package apperr defines the typed error taxonomy shared across the
// decision pipeline (kinds, not just messages, so callers can branch on
// errors.As instead of string-matching).
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error-taxonomy entries.
type Kind string

const (
	KindInsufficientData        Kind = "InsufficientData"
	KindStaleData               Kind = "StaleData"
	KindValidationFailure       Kind = "ValidationFailure"
	KindConstraintBreach        Kind = "ConstraintBreach"
	KindTimeout                 Kind = "Timeout"
	KindPromotionRejected       Kind = "PromotionRejected"
	KindRunNotFound             Kind = "RunNotFound"
	KindInsufficientCalibration Kind = "InsufficientCalibration"
	KindSeriesUnavailable       Kind = "SeriesUnavailable"
)

// Error is the single typed error type carried through the pipeline. It
// wraps an optional cause in the usual fmt.Errorf("...: %w") idiom while
// still exposing a machine-checkable Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &Error{Kind: K}) match by kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func InsufficientData(msg string) *Error        { return New(KindInsufficientData, msg) }
func StaleData(msg string) *Error               { return New(KindStaleData, msg) }
func ValidationFailure(msg string) *Error       { return New(KindValidationFailure, msg) }
func ConstraintBreach(msg string) *Error        { return New(KindConstraintBreach, msg) }
func Timeout(msg string) *Error                 { return New(KindTimeout, msg) }
func PromotionRejected(msg string) *Error       { return New(KindPromotionRejected, msg) }
func RunNotFound(msg string) *Error             { return New(KindRunNotFound, msg) }
func InsufficientCalibration(msg string) *Error { return New(KindInsufficientCalibration, msg) }
func SeriesUnavailable(msg string) *Error       { return New(KindSeriesUnavailable, msg) }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
