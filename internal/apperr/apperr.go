// Package apperr defines the error taxonomy shared by the HTTP handlers and
// the gateway, and renders it as the JSON envelope clients expect.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
)

// Kind categorises an error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindBadRequest      Kind = "bad_request"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindPaymentRequired Kind = "payment_required"
	KindTooLarge        Kind = "too_large"
	KindRateLimited     Kind = "rate_limited"
	KindUpstream        Kind = "upstream"
	KindTimeout         Kind = "timeout"
	KindInternal        Kind = "internal"
)

// Error is a structured application error.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Status  int
	Cause   error

	// RetryAfter is sent as a header with KindRateLimited, in seconds.
	RetryAfter int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

func Validation(message string, details map[string]string) *Error {
	e := newError(KindValidation, http.StatusUnprocessableEntity, message)
	e.Details = details
	return e
}

// MalformedBody reports an unreadable JSON body as a validation failure on
// the "body" field, for routes that answer every input problem with 422.
func MalformedBody() *Error {
	return Validation("Validation failed", map[string]string{"body": "must be a valid JSON object"})
}

func BadRequest(message string) *Error {
	return newError(KindBadRequest, http.StatusBadRequest, message)
}

func Unauthorized(message string) *Error {
	return newError(KindUnauthorized, http.StatusUnauthorized, message)
}

func Forbidden(message string) *Error {
	return newError(KindForbidden, http.StatusForbidden, message)
}

func NotFound(message string) *Error {
	return newError(KindNotFound, http.StatusNotFound, message)
}

func Conflict(message string) *Error {
	return newError(KindConflict, http.StatusConflict, message)
}

func PaymentRequired(message string) *Error {
	return newError(KindPaymentRequired, http.StatusPaymentRequired, message)
}

func TooLarge(message string) *Error {
	return newError(KindTooLarge, http.StatusRequestEntityTooLarge, message)
}

// RateLimited carries the number of seconds after which the client may retry.
func RateLimited(retryAfter int) *Error {
	e := newError(KindRateLimited, http.StatusTooManyRequests, "Too many requests, please try again later")
	e.RetryAfter = retryAfter
	return e
}

// Upstream relays a failure from a downstream service. A status outside the
// 4xx/5xx range is reported as 502.
func Upstream(status int, message string, cause error) *Error {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	e := newError(KindUpstream, status, message)
	e.Cause = cause
	return e
}

func Timeout(message string, cause error) *Error {
	e := newError(KindTimeout, http.StatusGatewayTimeout, message)
	e.Cause = cause
	return e
}

func Internal(cause error) *Error {
	e := newError(KindInternal, http.StatusInternalServerError, "Internal server error")
	e.Cause = cause
	return e
}

// From converts any error into an *Error. Unknown errors become internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Body is the JSON envelope written for every error response.
type Body struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Write renders err as a JSON response. Client errors use status "fail";
// server errors use "error" and, for internal errors, a generic message.
func Write(w http.ResponseWriter, err error) {
	e := From(err)
	if e.Status >= 500 {
		log.Printf("[http] %v", e)
	}

	body := Body{Status: "fail", Message: e.Message, Errors: e.Details}
	if e.Status >= 500 {
		body.Status = "error"
	}
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}

	WriteJSON(w, e.Status, body)
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] failed to encode response: %v", err)
	}
}
