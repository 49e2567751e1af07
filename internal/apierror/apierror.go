// Package apierror defines the uniform error envelope the HTTP surface
// sends to clients (§7 of the specification): {code, message, success,
// timestamp}. Cache backend errors never reach this type; they degrade
// silently to miss/false and are only counted in the backend's stats.
package apierror

import (
	"encoding/json"
	"net/http"
	"time"
)

// Kind classifies an error for HTTP status mapping.
type Kind string

// The error kinds surfaced to clients.
const (
	KindBadRequest     Kind = "bad-request"
	KindNotFound       Kind = "not-found"
	KindForbidden      Kind = "forbidden"
	KindOriginFailure  Kind = "origin-failure"
	KindRewriteFailure Kind = "rewrite-failure"
)

var statusByKind = map[Kind]int{
	KindBadRequest:     http.StatusBadRequest,
	KindNotFound:       http.StatusNotFound,
	KindForbidden:      http.StatusForbidden,
	KindOriginFailure:  http.StatusBadGateway,
	KindRewriteFailure: http.StatusInternalServerError,
}

// Error is the typed error carried through request handling until it is
// written to the client.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, remembering the underlying cause
// for logging without leaking it into the client-facing message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for this error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// envelope is the wire shape of §7's uniform error response.
type envelope struct {
	Code      Kind      `json:"code"`
	Message   string    `json:"message"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Write sends err to w as the §7 JSON envelope, setting the matching HTTP
// status. It must be called before any other header/body write for this
// request; the request handler guarantees no second status code is sent
// once headers are flushed.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(envelope{
		Code:      err.Kind,
		Message:   err.Message,
		Success:   false,
		Timestamp: time.Now().UTC(),
	})
}
