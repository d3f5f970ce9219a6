package engine

import (
	"errors"
	"fmt"
)

// ErrMaxIterations is returned when the engine reaches its iteration bound
// without producing a final response.
var ErrMaxIterations = errors.New("engine: maximum iterations reached")

// PartialError wraps an execution failure together with the output the engine
// produced before failing.
type PartialError struct {
	Partial string
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("engine failed after partial output: %v", e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// PartialOutput returns the partial output carried by err's chain, if any.
func PartialOutput(err error) string {
	var pe *PartialError
	if errors.As(err, &pe) {
		return pe.Partial
	}
	return ""
}

// ProviderErrorKind classifies model provider failures.
type ProviderErrorKind string

const (
	// ProviderErrorKindAuth indicates authentication or authorization failures.
	ProviderErrorKindAuth ProviderErrorKind = "auth"
	// ProviderErrorKindInvalidRequest indicates the provider rejected the
	// request; retrying it unchanged will not succeed.
	ProviderErrorKindInvalidRequest ProviderErrorKind = "invalid_request"
	// ProviderErrorKindRateLimited indicates the provider is throttling.
	ProviderErrorKindRateLimited ProviderErrorKind = "rate_limited"
	// ProviderErrorKindOverloaded indicates the provider is over capacity
	// (Anthropic 529).
	ProviderErrorKindOverloaded ProviderErrorKind = "overloaded"
	// ProviderErrorKindUnavailable indicates a transient provider failure.
	ProviderErrorKindUnavailable ProviderErrorKind = "unavailable"
	// ProviderErrorKindUnknown indicates an unclassified provider failure.
	ProviderErrorKindUnknown ProviderErrorKind = "unknown"
)

// ProviderError describes a failure returned by a model provider.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	HTTPStatus int
	Message    string
	Cause      error
}

// NewProviderError returns a ProviderError for provider. The kind is derived
// from httpStatus when kind is empty.
func NewProviderError(provider string, httpStatus int, kind ProviderErrorKind, message string, cause error) *ProviderError {
	if kind == "" {
		kind = KindForStatus(httpStatus)
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		HTTPStatus: httpStatus,
		Message:    message,
		Cause:      cause,
	}
}

// KindForStatus maps an HTTP status code to a ProviderErrorKind.
func KindForStatus(status int) ProviderErrorKind {
	switch {
	case status == 401 || status == 403:
		return ProviderErrorKindAuth
	case status == 429:
		return ProviderErrorKindRateLimited
	case status == 529:
		return ProviderErrorKindOverloaded
	case status >= 500:
		return ProviderErrorKindUnavailable
	case status >= 400:
		return ProviderErrorKindInvalidRequest
	}
	return ProviderErrorKindUnknown
}

// Retryable reports whether retrying the call later may succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderErrorKindRateLimited, ProviderErrorKindOverloaded, ProviderErrorKindUnavailable:
		return true
	}
	return false
}

func (e *ProviderError) Error() string {
	status := ""
	if e.HTTPStatus > 0 {
		status = fmt.Sprintf(" %d", e.HTTPStatus)
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = "provider error"
	}
	return fmt.Sprintf("%s %s%s: %s", e.Provider, e.Kind, status, msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AsProviderError returns the first ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
