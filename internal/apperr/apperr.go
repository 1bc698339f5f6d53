// Package apperr defines the error taxonomy shared by every layer of the
// host: a small set of Kinds that the HTTP surface maps to status codes,
// plus an Error type that carries a message, a Kind, and an optional cause.
package apperr

import "errors"

// Kind classifies an error for the purposes of API status mapping and
// recovery policy. Layer-specific error types (module, store) expose their
// own Kind() method rather than embedding *Error so that type switches in
// those layers keep working; KindOf walks the chain with errors.As to find
// the first one.
type Kind int

const (
	Unknown Kind = iota
	Internal
	InvalidInput
	NotFound
	AlreadyExists
	FailedPrecondition
	Timeout
	IO
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case FailedPrecondition:
		return "failed_precondition"
	case Timeout:
		return "timeout"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// kinder is implemented by any error type that can classify itself. Module
// errors and store errors implement this directly instead of wrapping
// *Error, matching the teacher's ProviderError code-constant pattern
// (pkg/llm.ProviderError + hasCode) but generalized to an interface so a
// chain mixing module and store errors still classifies correctly.
type kinder interface {
	Kind() Kind
}

// Error is the taxonomy-level error: a Kind, a human message, and an
// optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a taxonomy error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates a taxonomy error around an existing cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf classifies err by its chain: an *Error anywhere in the chain takes
// precedence; otherwise the first error that implements kinder decides.
// Returns Unknown for nil or an
// unrecognized error, matching the teacher's convention that unmapped
// errors surface as 500s rather than panicking.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Unknown
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
