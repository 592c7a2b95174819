// Package errors defines the typed error taxonomy used across the ingestion
// pipeline and API surface. Handlers and adapters return these kinds instead
// of bare errors so the HTTP layer can map them to stable status codes
// without inspecting internal structure.
package errors

import "fmt"

// Kind identifies one of the fixed error categories.
type Kind string

const (
	KindConfig        Kind = "config_error"
	KindTransientIO   Kind = "transient_io_error"
	KindSourceSchema  Kind = "source_schema_error"
	KindAuth          Kind = "auth_error"
	KindRateLimit     Kind = "rate_limit_error"
	KindNotFound      Kind = "not_found_error"
	KindConflict      Kind = "conflict_error"
	KindForbidden     Kind = "forbidden_error"
)

// Error is a typed error carrying a stable code and a user-safe message.
// The transport layer is the only place that converts a Kind to an HTTP
// status; nothing below it should write one.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Config(code, msg string, err error) *Error       { return newErr(KindConfig, code, msg, err) }
func TransientIO(code, msg string, err error) *Error  { return newErr(KindTransientIO, code, msg, err) }
func SourceSchema(code, msg string, err error) *Error { return newErr(KindSourceSchema, code, msg, err) }
func Auth(code, msg string, err error) *Error         { return newErr(KindAuth, code, msg, err) }
func RateLimit(code, msg string, err error) *Error    { return newErr(KindRateLimit, code, msg, err) }
func NotFound(code, msg string, err error) *Error     { return newErr(KindNotFound, code, msg, err) }
func Conflict(code, msg string, err error) *Error     { return newErr(KindConflict, code, msg, err) }
func Forbidden(code, msg string, err error) *Error    { return newErr(KindForbidden, code, msg, err) }

// As extracts a *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var target *Error
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*Error); ok {
		return e, true
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return As(u.Unwrap())
	}
	_ = target
	return nil, false
}

// Retryable reports whether err should be retried by a queue worker, i.e.
// it is a TransientIoError or a one-shot ConflictError.
func Retryable(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	return e.Kind == KindTransientIO || e.Kind == KindConflict
}
