// Package apperr carries the error taxonomy shared by the domain packages.
//
// Domain packages keep their own sentinel errors (ledger.ErrInsufficientCredit,
// jobs.ErrNotPending, ...) and wrap them in an *Error so the HTTP layer can map the
// failure class without knowing every sentinel.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindBusinessRule
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindUpstream:
		return "upstream"
	}
	return "unknown"
}

// Error is a classified failure with a human-readable reason.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func NotFound(cause error, format string, args ...any) *Error {
	return New(KindNotFound, cause, format, args...)
}

func Validation(cause error, format string, args ...any) *Error {
	return New(KindValidation, cause, format, args...)
}

func BusinessRule(cause error, format string, args ...any) *Error {
	return New(KindBusinessRule, cause, format, args...)
}

func Upstream(cause error, format string, args ...any) *Error {
	return New(KindUpstream, cause, format, args...)
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
func IsBusinessRule(err error) bool { return KindOf(err) == KindBusinessRule }
func IsUpstream(err error) bool     { return KindOf(err) == KindUpstream }
