// Package apierr defines the typed error kinds shared across the proxy's
// components and maps them to the wire error envelope and HTTP status
// codes the transport layer serves.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Code identifies an error kind at the design level.
type Code string

const (
	CodeMalformedRequest    Code = "MalformedRequest"
	CodeInvalidCredentials  Code = "InvalidCredentials"
	CodeEmptyScope          Code = "EmptyScope"
	CodeUpstreamUnavailable Code = "UpstreamUnavailable"
	CodeUpstreamTimeout     Code = "UpstreamTimeout"
	CodeTokenMalformed      Code = "TokenMalformed"
	CodeSignatureInvalid    Code = "SignatureInvalid"
	CodeTokenExpired        Code = "TokenExpired"
	CodeTokenRevoked        Code = "TokenRevoked"
	CodeScopeMissing        Code = "ScopeMissing"
	CodeOutOfScope          Code = "OutOfScope"
	CodeInternalError       Code = "InternalError"
)

var statusByCode = map[Code]int{
	CodeMalformedRequest:    http.StatusBadRequest,
	CodeInvalidCredentials:  http.StatusUnauthorized,
	CodeEmptyScope:          http.StatusNotFound,
	CodeUpstreamUnavailable: http.StatusBadGateway,
	CodeUpstreamTimeout:     http.StatusRequestTimeout,
	CodeTokenMalformed:      http.StatusUnauthorized,
	CodeSignatureInvalid:    http.StatusUnauthorized,
	CodeTokenExpired:        http.StatusUnauthorized,
	CodeTokenRevoked:        http.StatusUnauthorized,
	CodeScopeMissing:        http.StatusUnauthorized,
	CodeOutOfScope:          http.StatusForbidden,
	CodeInternalError:       http.StatusInternalServerError,
}

// Error is a typed, user-facing error. Resource is populated only for
// OutOfScope denials, carrying the resource id that failed the match.
type Error struct {
	Code     Code
	Message  string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status this error kind maps to.
func (e *Error) StatusCode() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error carrying an underlying cause, never surfaced to
// the client beyond the message passed here.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Deny constructs an OutOfScope error naming the denied resource.
func Deny(resourceID string) *Error {
	return &Error{Code: CodeOutOfScope, Message: "resource is not in caller's scope", Resource: resourceID}
}

// envelope is the wire shape of the error response.
type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Path       string `json:"path"`
	Timestamp  string `json:"timestamp"`
}

// WriteJSON serializes err as the standard error envelope, inferring the
// status code from its Code when err is an *Error, otherwise treating it
// as an opaque InternalError so internal detail never reaches the client.
func WriteJSON(w http.ResponseWriter, path string, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = &Error{Code: CodeInternalError, Message: "internal error"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	_ = json.NewEncoder(w).Encode(envelope{Error: envelopeBody{
		Code:       string(apiErr.Code),
		Message:    apiErr.Message,
		StatusCode: apiErr.StatusCode(),
		Path:       path,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}})
}
