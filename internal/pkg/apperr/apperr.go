// Package apperr defines the business error taxonomy shared by every HTTP
// surface in this system. Handlers never return raw errors to callers;
// they return or wrap an *Error so the HTTP tier can render the envelope
// {code, message, data, traceId} with status 200, reserving non-200 for
// transport failures (missing token, unknown route, uncaught panic).
package apperr

import "fmt"

// Code is a business error code per the 5-digit range taxonomy.
type Code int

const (
	// CodeOK is the success code, never carried by an *Error.
	CodeOK Code = 0

	// 40000-40099: parameter errors, rejected synchronously, no retry.
	CodeBadParam Code = 40000

	// 40100-40199: auth token errors, rejected before routing.
	CodeAuthToken Code = 40100

	// 40300-40399: authorization errors.
	CodeForbidden Code = 40300

	// 40400-40499: resource not found.
	CodeNotFound Code = 40400

	// 40900-40999: business conflict.
	CodeConflict         Code = 40900
	CodeQuotaExceeded    Code = 40910 // ASR quota exceeded for a specific provider
	CodeQuotaExhausted   Code = 40911 // all ASR quotas exhausted, no fallback left

	// 50000-50099: system errors (database, cache, file system).
	CodeSystem Code = 50000

	// 51000-51999: third-party vendor errors.
	CodeVendor Code = 51000
)

// Error is a business error carrying both the wire code and the localised
// message to render, plus an optional wrapped cause for logging.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error carrying cause, used when a lower layer error
// must be attributed a business code on its way up to the HTTP tier.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// BadParam is a convenience constructor for the common 40000 case.
func BadParam(format string, args ...any) *Error {
	return New(CodeBadParam, fmt.Sprintf(format, args...))
}

// NotFound is a convenience constructor for the common 40400 case.
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

// System wraps a lower-layer error (DB, cache, filesystem) as a 50000.
func System(cause error) *Error {
	return Wrap(CodeSystem, "internal error", cause)
}

// Vendor wraps a third-party vendor call failure as a 51000.
func Vendor(provider string, cause error) *Error {
	return Wrap(CodeVendor, fmt.Sprintf("vendor %s failed", provider), cause)
}

// As reports whether err is (or wraps) an *Error, same convention as
// the standard errors.As.
func As(err error) (*Error, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e, true
	}
	return nil, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
