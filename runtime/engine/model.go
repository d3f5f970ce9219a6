package engine

import "context"

type (
	// Model is a chat model capable of tool calling. Provider adapters
	// translate ModelRequest into their native API and map failures to
	// *ProviderError.
	Model interface {
		Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
	}

	// ModelRequest is one model turn.
	ModelRequest struct {
		System      string
		Messages    []Message
		Tools       []ToolDefinition
		MaxTokens   int
		Temperature float64
	}

	// ModelResponse is the model output for one turn. A response without
	// tool calls is final.
	ModelResponse struct {
		Text      string
		Thinking  string
		ToolCalls []ToolUse
	}

	// Message is one conversation entry. User messages carry Text or
	// ToolResults; assistant messages carry Text and ToolCalls.
	Message struct {
		Role        Role
		Text        string
		ToolCalls   []ToolUse
		ToolResults []ToolOutcome
	}

	// Role identifies the author of a Message.
	Role string

	// ToolUse is a tool call requested by the model.
	ToolUse struct {
		ID    string
		Name  string
		Input map[string]any
	}

	// ToolOutcome is the result of a ToolUse sent back to the model.
	ToolOutcome struct {
		ToolUseID string
		Content   string
		IsError   bool
	}
)

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
