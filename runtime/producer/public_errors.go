package producer

// User-facing failure text carried by WorkflowError and ToolEnd events. Override these at
// process startup to customize wording; do not mutate them while workflows
// run.
var (
	// PublicErrorProviderOverloaded is used when the model provider is over
	// capacity or temporarily unavailable.
	PublicErrorProviderOverloaded = "The AI service is currently overloaded."

	// PublicErrorProviderRateLimited is used when the model provider is
	// throttling requests.
	PublicErrorProviderRateLimited = "The AI service is rate-limiting requests."

	// PublicErrorProviderRejected is used when the provider rejects the
	// request or its credentials.
	PublicErrorProviderRejected = "The AI service rejected the request."

	// PublicErrorTimeout is used when the workflow ran out of time.
	PublicErrorTimeout = "The request timed out."

	// PublicErrorMaxIterations is used when the agent hit its step limit.
	PublicErrorMaxIterations = "The agent could not finish within its step limit."

	// PublicErrorCanceled is used when the workflow was canceled.
	PublicErrorCanceled = "The workflow was canceled."

	// PublicErrorInternal is used for unclassified failures.
	PublicErrorInternal = "The workflow failed due to an unexpected error."

	// PublicErrorToolFailed is reported by ToolEnd events for failed tool
	// calls.
	PublicErrorToolFailed = "The tool could not complete the request."

	// SuggestionRetryLater accompanies transient provider failures.
	SuggestionRetryLater = "Please try again in a few moments."

	// SuggestionRetry accompanies timeouts and unclassified failures.
	SuggestionRetry = "Please retry. Contact support if the problem persists."

	// SuggestionNarrowRequest accompanies step-limit failures.
	SuggestionNarrowRequest = "Try breaking the request into smaller tasks."
)
