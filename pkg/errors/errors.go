package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies the failures the service surfaces to clients.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindUpstream   Kind = "upstream"
	KindNotFound   Kind = "not_found"
	KindAuth       Kind = "auth"
	KindRateLimit  Kind = "rate_limit"
	KindParsing    Kind = "parsing"
	KindValidation Kind = "validation"
	KindDownload   Kind = "download"
	KindUnknown    Kind = "unknown"
)

// Error carries the failure kind and, when the failure originated from an
// HTTP exchange, the upstream status code.
type Error struct {
	Kind    Kind
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FromStatus maps a non-2xx upstream response to a typed error. The response
// body, when present, becomes the message so the caller sees what the
// upstream actually said.
func FromStatus(code int, body string) *Error {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = http.StatusText(code)
	}

	var kind Kind
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = KindAuth
	case code == http.StatusNotFound:
		kind = KindNotFound
	case code == http.StatusTooManyRequests:
		kind = KindRateLimit
	default:
		kind = KindUpstream
	}

	return &Error{Kind: kind, Message: msg, Code: code}
}

// KindOf extracts the kind of err, or KindUnknown for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is a typed error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code the HTTP layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusServiceUnavailable
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream, KindDownload:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether an operation failing with this kind is worth
// retrying. Timeouts are deliberately not retryable: they are surfaced to the
// user as-is.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindUpstream, KindRateLimit:
		return true
	default:
		return false
	}
}
