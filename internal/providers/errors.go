// Package providers defines the error taxonomy shared by every generation
// provider adapter. The pipeline classifies these errors to decide between
// limiter backoff, credential fallback, the safe-fallback prompt path, and
// permanent unit failure.
package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure.
type Kind string

const (
	// KindRateLimited is an ordinary rate-limit rejection (HTTP 429).
	KindRateLimited Kind = "rate_limited"
	// KindOverloaded is a provider overload signal (HTTP 503) warranting a
	// harsher backoff than a plain rate limit.
	KindOverloaded Kind = "overloaded"
	// KindTransient covers failures worth retrying with a different
	// credential or after backoff (5xx, timeouts, connection resets).
	KindTransient Kind = "transient"
	// KindContentFiltered means the provider refused the prompt; the safe
	// fallback path applies instead of a retry loop.
	KindContentFiltered Kind = "content_filtered"
	// KindPermanent failures are not retried at all (bad request, auth).
	KindPermanent Kind = "permanent"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// NewError constructs a classified provider error.
func NewError(kind Kind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

// FromStatus classifies an HTTP response status into a provider error.
func FromStatus(provider string, status int, message string) *Error {
	e := &Error{Provider: provider, Status: status, Message: message}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status == http.StatusServiceUnavailable:
		e.Kind = KindOverloaded
	case status >= 500:
		e.Kind = KindTransient
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindPermanent
	default:
		e.Kind = KindTransient
	}
	return e
}

// KindOf extracts the classification from err, defaulting to transient so an
// unclassified failure still gets its bounded retries.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// IsContentFiltered reports whether err is a content-filter refusal.
func IsContentFiltered(err error) bool {
	return KindOf(err) == KindContentFiltered
}
