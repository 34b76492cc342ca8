// Package gwerr is the gateway's error taxonomy: every failure, expected or
// not, maps to a stable status/code pair and a uniform JSON envelope.
package gwerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Stable wire codes. Clients match on these, never on messages.
const (
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeAuthInvalid        = "AUTH_INVALID"
	CodeAuthRevoked        = "AUTH_REVOKED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeForbidden          = "FORBIDDEN"
	CodeRoleInsufficient   = "ROLE_INSUFFICIENT"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeMalformedJSON      = "MALFORMED_JSON"
	CodeNotFound           = "NOT_FOUND"
	CodeEndpointNotFound   = "ENDPOINT_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Internal observability buckets for upstream store failures. Never sent to
// clients.
const (
	BucketDatabase = "database"
	BucketCache    = "cache"
	BucketStorage  = "storage"
)

type Error struct {
	Status  int
	Code    string
	Message string
	Details any
	// Bucket classifies store failures for logs only.
	Bucket string
	// Err is the internal cause; logged server-side, never serialized.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Envelope is the uniform wire shape for every error response.
type Envelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
	Details   any    `json:"details,omitempty"`
}

func (e *Error) Envelope(requestID string) Envelope {
	return Envelope{
		Error:     http.StatusText(e.Status),
		Message:   e.Message,
		Code:      e.Code,
		RequestID: requestID,
		Details:   e.Details,
	}
}

func AuthRequired() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeAuthRequired, Message: "authentication required"}
}

func AuthInvalid(msg string) *Error {
	if msg == "" {
		msg = "invalid or expired token"
	}
	return &Error{Status: http.StatusUnauthorized, Code: CodeAuthInvalid, Message: msg}
}

func AuthRevoked() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeAuthRevoked, Message: "token has been revoked"}
}

func InvalidCredentials() *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeInvalidCredentials, Message: "invalid email or password"}
}

func Forbidden(required, actual string) *Error {
	return &Error{
		Status:  http.StatusForbidden,
		Code:    CodeRoleInsufficient,
		Message: "insufficient role",
		Details: map[string]string{"required": required, "actual": actual},
	}
}

func Validation(fields map[string]string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeValidationFailed,
		Message: "request validation failed",
		Details: fields,
	}
}

func MalformedJSON() *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeMalformedJSON, Message: "request body is not valid JSON"}
}

func NotFound(msg string) *Error {
	if msg == "" {
		msg = "resource not found"
	}
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: msg}
}

func EndpointNotFound(path string) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Code:    CodeEndpointNotFound,
		Message: "no handler for " + path,
	}
}

func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: msg}
}

func RateLimited(retryAfter int) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimited,
		Message: "rate limit exceeded, slow down",
		Details: map[string]int{"retryAfter": retryAfter},
	}
}

func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error", Err: err}
}

// From maps any failure to a taxonomy error. Already-classified errors pass
// through; everything else is sniffed for store failures, then falls back to
// a generic internal error. The client-facing message for store failures is
// always generic, the bucket only feeds logs.
func From(err error) *Error {
	if err == nil {
		return Internal(nil)
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if bucket := storeBucket(err); bucket != "" {
		return &Error{
			Status:  http.StatusInternalServerError,
			Code:    CodeStoreUnavailable,
			Message: "a dependent service is unavailable",
			Bucket:  bucket,
			Err:     err,
		}
	}
	return Internal(err)
}

// FromPanic converts a recovered value; it must never itself panic.
func FromPanic(v any) *Error {
	switch t := v.(type) {
	case *Error:
		return t
	case error:
		return From(t)
	default:
		return Internal(fmt.Errorf("panic: %v", v))
	}
}

func storeBucket(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "pgx", "postgres", "sqlstate", "relation ", "pg_"):
		return BucketDatabase
	case containsAny(msg, "redis", "moved ", "loading "):
		return BucketCache
	case containsAny(msg, "s3", "bucket", "object store", "storage"):
		return BucketStorage
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
