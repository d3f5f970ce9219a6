// Package engine defines the boundary between the streaming runtime and the
// reasoning engine that executes a workflow. The runtime treats the engine as
// opaque: it hands over a prompt, observes progress through Callbacks and
// receives a final response or an error.
//
// Loop is the built-in Engine: a bounded tool-calling loop over a Model.
// Provider adapters under features/engine implement Model.
package engine

import (
	"context"
	"time"
)

type (
	// Engine executes one workflow to completion.
	Engine interface {
		// Execute runs the workflow described by req and reports progress to
		// cb. On failure it may return a *PartialError carrying the output
		// produced so far.
		Execute(ctx context.Context, req Request, cb Callbacks) (Result, error)
	}

	// Callbacks receives progress notifications from an Engine. Calls are
	// made sequentially from the goroutine running Execute.
	Callbacks interface {
		// OnReasoningStep is called when the engine settles on a step of its
		// reasoning, typically right before acting on it.
		OnReasoningStep(ctx context.Context, step Step)
		// OnToolStart is called before a tool runs.
		OnToolStart(ctx context.Context, call ToolCall)
		// OnToolEnd is called after a tool returns.
		OnToolEnd(ctx context.Context, res ToolResult)
		// OnThinking is called with planning output.
		OnThinking(ctx context.Context, th Thinking)
	}

	// Request identifies the workflow and carries its prompt.
	Request struct {
		WorkflowID string
		Prompt     string
	}

	// Result is the outcome of a successful execution.
	Result struct {
		FinalResponse string
		// Iterations is the number of model turns taken.
		Iterations int
	}

	// Step is one reasoning step. Action and Input are set when the step
	// decided to call a tool.
	Step struct {
		Thought string
		Action  string
		Input   map[string]any
	}

	// ToolCall describes a tool invocation.
	ToolCall struct {
		ID          string
		Name        string
		Input       map[string]any
		Description string
	}

	// ToolResult describes a tool outcome. Err is set when the tool failed;
	// Output then holds the message returned to the model.
	ToolResult struct {
		ID       string
		Name     string
		Output   string
		Err      error
		Duration time.Duration
	}

	// Thinking carries free-form planning output and the stage it belongs
	// to.
	Thinking struct {
		Text  string
		Stage Stage
	}

	// Stage names the phase a Thinking notification belongs to.
	Stage string

	// NopCallbacks ignores every notification.
	NopCallbacks struct{}
)

const (
	StageAnalysis  Stage = "analysis"
	StagePlanning  Stage = "planning"
	StageExecution Stage = "execution"
	StageReview    Stage = "review"
)

func (NopCallbacks) OnReasoningStep(context.Context, Step) {}
func (NopCallbacks) OnToolStart(context.Context, ToolCall) {}
func (NopCallbacks) OnToolEnd(context.Context, ToolResult) {}
func (NopCallbacks) OnThinking(context.Context, Thinking)  {}
