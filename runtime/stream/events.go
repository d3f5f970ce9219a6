// Package stream coordinates live event feeds for long-running agent
// workflows. A Coordinator owns one bounded event queue per active workflow;
// producers publish into it without blocking and any number of consumers read
// from it through Subscriptions. Queues overflow by dropping their oldest
// event, and the Coordinator removes finished or idle workflows on its own.
//
// Events form a closed set of eight types. Each concrete event embeds Base for
// the shared metadata (type, workflow ID, timestamp) and carries a typed Data
// payload. Consumers switch on the concrete type when they need structured
// access and call Payload when they only need to serialize.
package stream

import "time"

type (
	// Event is a single update in a workflow's event feed. The set of
	// implementations is closed: only the types declared in this package
	// satisfy it.
	//
	// Implementations are immutable values and safe to share across
	// goroutines.
	Event interface {
		// Type returns the event discriminator.
		Type() EventType
		// WorkflowID returns the workflow that produced the event.
		WorkflowID() string
		// Timestamp returns the time the event was produced (UTC).
		Timestamp() time.Time
		// Payload returns the type-specific data in JSON-serializable form.
		Payload() any

		// rebase returns a copy of the event carrying b's workflow ID and
		// timestamp. It seals the interface.
		rebase(b Base) Event
	}

	// Base carries the metadata shared by every event.
	Base struct {
		t  EventType
		w  string
		ts time.Time
	}

	// EventType enumerates the event kinds.
	EventType string

	// WorkflowStarted is the first event of every workflow.
	WorkflowStarted struct {
		Base
		Data WorkflowStartedPayload
	}

	// ReasoningStep reports one step of the agent's reasoning chain.
	ReasoningStep struct {
		Base
		Data ReasoningStepPayload
	}

	// ToolStart reports that the agent invoked a tool.
	ToolStart struct {
		Base
		Data ToolStartPayload
	}

	// ToolEnd reports that a tool returned. Every ToolStart is eventually
	// followed by a ToolEnd for the same tool unless the workflow fails.
	ToolEnd struct {
		Base
		Data ToolEndPayload
	}

	// AgentThinking carries free-form planning output from the agent.
	AgentThinking struct {
		Base
		Data AgentThinkingPayload
	}

	// WorkflowCompleted is the terminal event of a successful workflow.
	WorkflowCompleted struct {
		Base
		Data WorkflowCompletedPayload
	}

	// WorkflowError is the terminal event of a failed workflow.
	WorkflowError struct {
		Base
		Data WorkflowErrorPayload
	}

	// Heartbeat keeps idle connections alive while the engine works.
	Heartbeat struct {
		Base
		Data HeartbeatPayload
	}

	// WorkflowStartedPayload describes a new workflow.
	WorkflowStartedPayload struct {
		InitialPrompt string `json:"initial_prompt"`
		AgentType     string `json:"agent_type"`
	}

	// ReasoningStepPayload describes a reasoning step. Action and ActionInput
	// are set when the step decided to call a tool; otherwise they serialize
	// as "" and null.
	ReasoningStepPayload struct {
		StepID      string         `json:"step_id"`
		Thought     string         `json:"thought"`
		Action      string         `json:"action"`
		ActionInput map[string]any `json:"action_input"`
		StepNumber  int            `json:"step_number"`
	}

	// ToolStartPayload describes a tool invocation.
	ToolStartPayload struct {
		ToolName    string         `json:"tool_name"`
		ToolInput   map[string]any `json:"tool_input"`
		Description string         `json:"description"`
	}

	// ToolEndPayload describes a tool result. ErrorMessage is set on failure
	// and is safe to show to end users.
	ToolEndPayload struct {
		ToolName        string `json:"tool_name"`
		ToolOutput      string `json:"tool_output"`
		Success         bool   `json:"success"`
		ErrorMessage    string `json:"error_message,omitempty"`
		ExecutionTimeMS int64  `json:"execution_time_ms"`
	}

	// AgentThinkingPayload carries planning output. PlanningStage is one of
	// "analysis", "planning", "execution" or "review".
	AgentThinkingPayload struct {
		Thinking      string `json:"thinking"`
		PlanningStage string `json:"planning_stage"`
	}

	// WorkflowCompletedPayload summarizes a successful workflow.
	WorkflowCompletedPayload struct {
		FinalResponse   string   `json:"final_response"`
		TotalSteps      int      `json:"total_steps"`
		ExecutionTimeMS int64    `json:"execution_time_ms"`
		ToolsUsed       []string `json:"tools_used"`
	}

	// WorkflowErrorPayload describes a failed workflow. ErrorMessage is always
	// safe to show to end users.
	WorkflowErrorPayload struct {
		ErrorMessage       string `json:"error_message"`
		ErrorType          string `json:"error_type"`
		RecoverySuggestion string `json:"recovery_suggestion,omitempty"`
		PartialResponse    string `json:"partial_response,omitempty"`
	}

	// HeartbeatPayload carries the producer status.
	HeartbeatPayload struct {
		Status string `json:"status"`
	}
)

const (
	// EventWorkflowStarted is emitted once when the stream is created.
	EventWorkflowStarted EventType = "workflow_started"
	// EventReasoningStep is emitted for each reasoning step.
	EventReasoningStep EventType = "reasoning_step"
	// EventToolStart is emitted when a tool is invoked.
	EventToolStart EventType = "tool_start"
	// EventToolEnd is emitted when a tool returns.
	EventToolEnd EventType = "tool_end"
	// EventAgentThinking is emitted for planning output.
	EventAgentThinking EventType = "agent_thinking"
	// EventWorkflowCompleted terminates a successful workflow.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowError terminates a failed workflow.
	EventWorkflowError EventType = "workflow_error"
	// EventHeartbeat is emitted periodically while the producer runs.
	EventHeartbeat EventType = "heartbeat"
)

// DefaultAgentType is the agent type reported by WorkflowStarted when the
// producer does not configure one.
const DefaultAgentType = "CommunicationsAgent"

// HeartbeatStatusProcessing is the status carried by heartbeats emitted while
// the engine runs.
const HeartbeatStatusProcessing = "processing"

// IsTerminal reports whether events of this type end a workflow.
func (t EventType) IsTerminal() bool {
	return t == EventWorkflowCompleted || t == EventWorkflowError
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventWorkflowStarted, EventReasoningStep, EventToolStart, EventToolEnd,
		EventAgentThinking, EventWorkflowCompleted, EventWorkflowError, EventHeartbeat:
		return true
	}
	return false
}

// IsTerminal reports whether ev ends its workflow.
func IsTerminal(ev Event) bool {
	return ev != nil && ev.Type().IsTerminal()
}

// NewBase constructs a Base with the given type, workflow ID and timestamp.
// The timestamp is normalized to UTC.
func NewBase(t EventType, workflowID string, at time.Time) Base {
	return Base{t: t, w: workflowID, ts: at.UTC()}
}

// Type implements Event.Type.
func (b Base) Type() EventType { return b.t }

// WorkflowID implements Event.WorkflowID.
func (b Base) WorkflowID() string { return b.w }

// Timestamp implements Event.Timestamp.
func (b Base) Timestamp() time.Time { return b.ts }

// NewWorkflowStarted builds a WorkflowStarted event.
func NewWorkflowStarted(workflowID string, at time.Time, data WorkflowStartedPayload) WorkflowStarted {
	return WorkflowStarted{Base: NewBase(EventWorkflowStarted, workflowID, at), Data: data}
}

// NewReasoningStep builds a ReasoningStep event.
func NewReasoningStep(workflowID string, at time.Time, data ReasoningStepPayload) ReasoningStep {
	return ReasoningStep{Base: NewBase(EventReasoningStep, workflowID, at), Data: data}
}

// NewToolStart builds a ToolStart event.
func NewToolStart(workflowID string, at time.Time, data ToolStartPayload) ToolStart {
	return ToolStart{Base: NewBase(EventToolStart, workflowID, at), Data: data}
}

// NewToolEnd builds a ToolEnd event.
func NewToolEnd(workflowID string, at time.Time, data ToolEndPayload) ToolEnd {
	return ToolEnd{Base: NewBase(EventToolEnd, workflowID, at), Data: data}
}

// NewAgentThinking builds an AgentThinking event.
func NewAgentThinking(workflowID string, at time.Time, data AgentThinkingPayload) AgentThinking {
	return AgentThinking{Base: NewBase(EventAgentThinking, workflowID, at), Data: data}
}

// NewWorkflowCompleted builds a WorkflowCompleted event. A nil ToolsUsed is
// normalized to an empty slice so it serializes as [].
func NewWorkflowCompleted(workflowID string, at time.Time, data WorkflowCompletedPayload) WorkflowCompleted {
	if data.ToolsUsed == nil {
		data.ToolsUsed = []string{}
	}
	return WorkflowCompleted{Base: NewBase(EventWorkflowCompleted, workflowID, at), Data: data}
}

// NewWorkflowError builds a WorkflowError event.
func NewWorkflowError(workflowID string, at time.Time, data WorkflowErrorPayload) WorkflowError {
	return WorkflowError{Base: NewBase(EventWorkflowError, workflowID, at), Data: data}
}

// NewHeartbeat builds a Heartbeat event.
func NewHeartbeat(workflowID string, at time.Time, status string) Heartbeat {
	return Heartbeat{Base: NewBase(EventHeartbeat, workflowID, at), Data: HeartbeatPayload{Status: status}}
}

func (e WorkflowStarted) Payload() any   { return e.Data }
func (e ReasoningStep) Payload() any     { return e.Data }
func (e ToolStart) Payload() any         { return e.Data }
func (e ToolEnd) Payload() any           { return e.Data }
func (e AgentThinking) Payload() any     { return e.Data }
func (e WorkflowCompleted) Payload() any { return e.Data }
func (e WorkflowError) Payload() any     { return e.Data }
func (e Heartbeat) Payload() any         { return e.Data }

func (e WorkflowStarted) rebase(b Base) Event   { b.t = EventWorkflowStarted; e.Base = b; return e }
func (e ReasoningStep) rebase(b Base) Event     { b.t = EventReasoningStep; e.Base = b; return e }
func (e ToolStart) rebase(b Base) Event         { b.t = EventToolStart; e.Base = b; return e }
func (e ToolEnd) rebase(b Base) Event           { b.t = EventToolEnd; e.Base = b; return e }
func (e AgentThinking) rebase(b Base) Event     { b.t = EventAgentThinking; e.Base = b; return e }
func (e WorkflowCompleted) rebase(b Base) Event { b.t = EventWorkflowCompleted; e.Base = b; return e }
func (e WorkflowError) rebase(b Base) Event     { b.t = EventWorkflowError; e.Base = b; return e }
func (e Heartbeat) rebase(b Base) Event         { b.t = EventHeartbeat; e.Base = b; return e }
