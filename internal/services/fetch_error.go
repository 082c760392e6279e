package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies why a provider fetch failed
type ErrorKind string

const (
	ErrorKindCrossOrigin     ErrorKind = "cross_origin_blocked"
	ErrorKindUpstreamTimeout ErrorKind = "upstream_timeout"
	ErrorKindGeneric         ErrorKind = "generic"
)

// ErrQuotaExceeded is returned when an upstream's daily request budget is spent
var ErrQuotaExceeded = errors.New("daily request limit exceeded")

// FetchError is returned by card providers for any failed search
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Provider   string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// newStatusError builds a FetchError for a non-2xx upstream response
func newStatusError(provider string, status int) *FetchError {
	kind := ErrorKindGeneric
	if status == http.StatusGatewayTimeout {
		kind = ErrorKindUpstreamTimeout
	}
	return &FetchError{
		Kind:       kind,
		StatusCode: status,
		Provider:   provider,
		Err:        fmt.Errorf("%s API returned status %d", provider, status),
	}
}

// wrapFetchError turns a transport or decode failure into a classified FetchError
func wrapFetchError(provider string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{
		Kind:     ClassifyError(err),
		Provider: provider,
		Err:      err,
	}
}

// ClassifyError maps any fetch failure onto an ErrorKind
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindGeneric
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindUpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindUpstreamTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "504"),
		strings.Contains(msg, "gateway timeout"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "aborted"):
		return ErrorKindUpstreamTimeout
	case strings.Contains(msg, "cors"),
		strings.Contains(msg, "cross-origin"),
		strings.Contains(msg, "blocked"),
		strings.Contains(msg, "failed to fetch"):
		return ErrorKindCrossOrigin
	default:
		return ErrorKindGeneric
	}
}

// IsTransient reports whether a first-page fetch should be retried
func IsTransient(err error) bool {
	return ClassifyError(err) == ErrorKindUpstreamTimeout
}

// Guidance returns the remediation text shown next to a failed lookup
func Guidance(kind ErrorKind) string {
	switch kind {
	case ErrorKindCrossOrigin:
		return "The card catalog refused the request from this origin. Route requests through the /proxy endpoint or switch card_provider to tcgdex."
	case ErrorKindUpstreamTimeout:
		return "The card catalog took too long to answer. Wait a moment and try again, or switch card_provider to tcgdex."
	default:
		return "Check your network connection and the card provider configuration, then try again."
	}
}

// Message returns a short user-facing description of the failure
func Message(kind ErrorKind) string {
	switch kind {
	case ErrorKindCrossOrigin:
		return "Cards could not be loaded: the request was blocked."
	case ErrorKindUpstreamTimeout:
		return "Cards could not be loaded: the card catalog timed out."
	default:
		return "Cards could not be loaded."
	}
}
