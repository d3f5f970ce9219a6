package producer

import (
	"context"
	"errors"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
)

// ErrorType is the error_type reported by WorkflowError events.
type ErrorType string

const (
	ErrorTypeProviderOverloaded ErrorType = "provider_overloaded"
	ErrorTypeTimeout            ErrorType = "timeout"
	ErrorTypeMaxIterations      ErrorType = "max_iterations"
	ErrorTypeCanceled           ErrorType = "canceled"
	ErrorTypeUnclassified       ErrorType = "unclassified"
)

// Failure is the user-safe description of an execution error.
type Failure struct {
	Type               ErrorType
	Message            string
	RecoverySuggestion string
	// PartialResponse is the last output the engine produced, if any.
	PartialResponse string
}

// Classify maps an execution error to a Failure. The raw error text never
// appears in Message.
func Classify(err error) Failure {
	f := classify(err)
	f.PartialResponse = engine.PartialOutput(err)
	return f
}

func classify(err error) Failure {
	if pe, ok := engine.AsProviderError(err); ok {
		switch pe.Kind {
		case engine.ProviderErrorKindOverloaded, engine.ProviderErrorKindUnavailable:
			return Failure{Type: ErrorTypeProviderOverloaded, Message: PublicErrorProviderOverloaded, RecoverySuggestion: SuggestionRetryLater}
		case engine.ProviderErrorKindRateLimited:
			return Failure{Type: ErrorTypeProviderOverloaded, Message: PublicErrorProviderRateLimited, RecoverySuggestion: SuggestionRetryLater}
		case engine.ProviderErrorKindAuth, engine.ProviderErrorKindInvalidRequest:
			return Failure{Type: ErrorTypeUnclassified, Message: PublicErrorProviderRejected, RecoverySuggestion: SuggestionRetry}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure{Type: ErrorTypeTimeout, Message: PublicErrorTimeout, RecoverySuggestion: SuggestionRetry}
	}
	if errors.Is(err, engine.ErrMaxIterations) {
		return Failure{Type: ErrorTypeMaxIterations, Message: PublicErrorMaxIterations, RecoverySuggestion: SuggestionNarrowRequest}
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Type: ErrorTypeCanceled, Message: PublicErrorCanceled}
	}
	return Failure{Type: ErrorTypeUnclassified, Message: PublicErrorInternal, RecoverySuggestion: SuggestionRetry}
}
