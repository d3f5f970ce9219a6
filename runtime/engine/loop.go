package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxIterations bounds the number of model turns per execution.
	DefaultMaxIterations = 15
	// DefaultMaxTokens is the per-turn output token limit.
	DefaultMaxTokens = 4096
	// DefaultTemperature is the sampling temperature.
	DefaultTemperature = 0.1

	analyzingMessage = "Agent is analyzing the request and planning actions..."
	reviewingMessage = "Agent is reviewing tool results..."
)

type (
	// Loop is an Engine running a bounded tool-calling loop: it asks the
	// model for a turn, executes the requested tools, feeds the results back
	// and stops when the model answers without calling tools.
	Loop struct {
		model         Model
		tools         *Toolset
		system        string
		maxIterations int
		maxTokens     int
		temperature   float64
		now           func() time.Time
	}

	// LoopOption configures a Loop.
	LoopOption func(*Loop)
)

// WithSystemPrompt sets the system prompt sent on every turn.
func WithSystemPrompt(prompt string) LoopOption {
	return func(l *Loop) { l.system = prompt }
}

// WithToolset sets the tools offered to the model.
func WithToolset(ts *Toolset) LoopOption {
	return func(l *Loop) { l.tools = ts }
}

// WithMaxIterations sets the turn bound. Values below one are ignored.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithMaxTokens sets the per-turn output token limit.
func WithMaxTokens(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LoopOption {
	return func(l *Loop) { l.temperature = t }
}

// NewLoop returns a Loop driving model.
func NewLoop(model Model, opts ...LoopOption) (*Loop, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	l := &Loop{
		model:         model,
		maxIterations: DefaultMaxIterations,
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Execute implements Engine. Failures after the model produced text are
// wrapped in *PartialError.
func (l *Loop) Execute(ctx context.Context, req Request, cb Callbacks) (Result, error) {
	if cb == nil {
		cb = NopCallbacks{}
	}
	messages := []Message{{Role: RoleUser, Text: req.Prompt}}
	var partial string
	for i := 0; i < l.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, wrapPartial(err, partial)
		}
		stage, msg := StageAnalysis, analyzingMessage
		if i > 0 {
			stage, msg = StageReview, reviewingMessage
		}
		cb.OnThinking(ctx, Thinking{Text: msg, Stage: stage})

		resp, err := l.model.Complete(ctx, ModelRequest{
			System:      l.system,
			Messages:    messages,
			Tools:       l.tools.Definitions(),
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		})
		if err != nil {
			return Result{}, wrapPartial(fmt.Errorf("model turn %d: %w", i+1, err), partial)
		}
		if resp.Thinking != "" {
			cb.OnThinking(ctx, Thinking{Text: resp.Thinking, Stage: StagePlanning})
		}
		if resp.Text != "" {
			partial = resp.Text
		}
		if len(resp.ToolCalls) == 0 {
			cb.OnReasoningStep(ctx, Step{Thought: resp.Text})
			return Result{FinalResponse: resp.Text, Iterations: i + 1}, nil
		}

		messages = append(messages, Message{Role: RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls})
		outcomes := make([]ToolOutcome, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			outcomes = append(outcomes, l.runTool(ctx, cb, resp.Text, call))
		}
		messages = append(messages, Message{Role: RoleUser, ToolResults: outcomes})
	}
	return Result{}, &PartialError{Partial: partial, Err: ErrMaxIterations}
}

// runTool reports and executes one tool call. Tool failures are returned to
// the model as error results rather than aborting the execution.
func (l *Loop) runTool(ctx context.Context, cb Callbacks, thought string, call ToolUse) ToolOutcome {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if thought == "" {
		thought = "Executing " + call.Name
	}
	cb.OnReasoningStep(ctx, Step{Thought: thought, Action: call.Name, Input: call.Input})
	cb.OnToolStart(ctx, ToolCall{
		ID:          call.ID,
		Name:        call.Name,
		Input:       call.Input,
		Description: l.tools.Describe(call.Name),
	})

	start := l.now()
	out, err := l.tools.Invoke(ctx, call.Name, call.Input)
	res := ToolResult{ID: call.ID, Name: call.Name, Output: out, Err: err, Duration: l.now().Sub(start)}
	if err != nil {
		res.Output = "Error: " + err.Error()
	}
	cb.OnToolEnd(ctx, res)
	return ToolOutcome{ToolUseID: call.ID, Content: res.Output, IsError: err != nil}
}

func wrapPartial(err error, partial string) error {
	if partial == "" {
		return err
	}
	return &PartialError{Partial: partial, Err: err}
}
