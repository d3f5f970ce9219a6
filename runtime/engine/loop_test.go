package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	mu        sync.Mutex
	responses []ModelResponse
	errs      []error
	requests  []ModelRequest
}

func (m *scriptedModel) Complete(_ context.Context, req ModelRequest) (ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return ModelResponse{}, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return m.responses[len(m.responses)-1], nil
}

type recordingCallbacks struct {
	steps    []Step
	starts   []ToolCall
	ends     []ToolResult
	thinking []Thinking
}

func (r *recordingCallbacks) OnReasoningStep(_ context.Context, s Step) { r.steps = append(r.steps, s) }
func (r *recordingCallbacks) OnToolStart(_ context.Context, c ToolCall) {
	r.starts = append(r.starts, c)
}
func (r *recordingCallbacks) OnToolEnd(_ context.Context, res ToolResult) {
	r.ends = append(r.ends, res)
}
func (r *recordingCallbacks) OnThinking(_ context.Context, th Thinking) {
	r.thinking = append(r.thinking, th)
}

func lookupTool(t *testing.T) *Toolset {
	t.Helper()
	ts, err := NewToolset(NewFuncTool(ToolDefinition{
		Name:        "lookup_case",
		Description: "Look up a case by client name",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
			"required":   []string{"name"},
		},
	}, func(_ context.Context, in map[string]any) (string, error) {
		return "case for " + in["name"].(string), nil
	}))
	require.NoError(t, err)
	return ts
}

func TestLoopExecutesToolsUntilFinalAnswer(t *testing.T) {
	model := &scriptedModel{responses: []ModelResponse{
		{Text: "I will look up the case", ToolCalls: []ToolUse{{ID: "call-1", Name: "lookup_case", Input: map[string]any{"name": "Doe"}}}},
		{Text: "Reminder sent to Doe", Thinking: "all done"},
	}}
	loop, err := NewLoop(model, WithToolset(lookupTool(t)), WithSystemPrompt("be kind"))
	require.NoError(t, err)
	cb := &recordingCallbacks{}

	res, err := loop.Execute(context.Background(), Request{WorkflowID: "wf_1", Prompt: "remind Doe"}, cb)
	require.NoError(t, err)
	require.Equal(t, "Reminder sent to Doe", res.FinalResponse)
	require.Equal(t, 2, res.Iterations)

	require.Len(t, cb.starts, 1)
	require.Equal(t, "lookup_case", cb.starts[0].Name)
	require.Equal(t, "Look up a case by client name", cb.starts[0].Description)
	require.Len(t, cb.ends, 1)
	require.NoError(t, cb.ends[0].Err)
	require.Equal(t, "case for Doe", cb.ends[0].Output)
	require.Len(t, cb.steps, 2)
	require.Equal(t, "lookup_case", cb.steps[0].Action)
	require.Equal(t, []Stage{StageAnalysis, StageReview, StagePlanning}, []Stage{
		cb.thinking[0].Stage, cb.thinking[1].Stage, cb.thinking[2].Stage,
	})

	require.Len(t, model.requests, 2)
	require.Equal(t, "be kind", model.requests[0].System)
	second := model.requests[1].Messages
	require.Len(t, second, 3)
	require.Equal(t, RoleAssistant, second[1].Role)
	require.Equal(t, "call-1", second[2].ToolResults[0].ToolUseID)
	require.False(t, second[2].ToolResults[0].IsError)
}

func TestLoopReturnsToolFailuresToModel(t *testing.T) {
	model := &scriptedModel{responses: []ModelResponse{
		{ToolCalls: []ToolUse{{ID: "c1", Name: "lookup_case", Input: map[string]any{}}}},
		{ToolCalls: []ToolUse{{ID: "c2", Name: "nope"}}},
		{Text: "gave up"},
	}}
	loop, err := NewLoop(model, WithToolset(lookupTool(t)))
	require.NoError(t, err)
	cb := &recordingCallbacks{}

	res, err := loop.Execute(context.Background(), Request{Prompt: "x"}, cb)
	require.NoError(t, err)
	require.Equal(t, "gave up", res.FinalResponse)
	require.Len(t, cb.ends, 2)
	var invalid *InvalidInputError
	require.ErrorAs(t, cb.ends[0].Err, &invalid)
	require.ErrorIs(t, cb.ends[1].Err, ErrUnknownTool)
	require.True(t, model.requests[1].Messages[2].ToolResults[0].IsError)
	require.Equal(t, "Executing lookup_case", cb.steps[0].Thought)
}

func TestLoopStopsAtMaxIterations(t *testing.T) {
	model := &scriptedModel{responses: []ModelResponse{
		{Text: "still working", ToolCalls: []ToolUse{{ID: "c", Name: "lookup_case", Input: map[string]any{"name": "Doe"}}}},
	}}
	loop, err := NewLoop(model, WithToolset(lookupTool(t)), WithMaxIterations(3))
	require.NoError(t, err)

	_, err = loop.Execute(context.Background(), Request{Prompt: "x"}, nil)
	require.ErrorIs(t, err, ErrMaxIterations)
	require.Equal(t, "still working", PartialOutput(err))
	require.Len(t, model.requests, 3)
}

func TestLoopWrapsModelFailureWithPartialOutput(t *testing.T) {
	overloaded := NewProviderError("anthropic", 529, "", "overloaded", nil)
	model := &scriptedModel{
		responses: []ModelResponse{
			{Text: "checking", ToolCalls: []ToolUse{{ID: "c", Name: "lookup_case", Input: map[string]any{"name": "Doe"}}}},
		},
		errs: []error{nil, overloaded},
	}
	loop, err := NewLoop(model, WithToolset(lookupTool(t)))
	require.NoError(t, err)

	_, err = loop.Execute(context.Background(), Request{Prompt: "x"}, nil)
	require.Error(t, err)
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, ProviderErrorKindOverloaded, pe.Kind)
	require.Equal(t, "checking", PartialOutput(err))
}

func TestLoopHonorsCanceledContext(t *testing.T) {
	loop, err := NewLoop(&scriptedModel{responses: []ModelResponse{{Text: "x"}}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loop.Execute(ctx, Request{Prompt: "x"}, nil)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestNewLoopRequiresModel(t *testing.T) {
	_, err := NewLoop(nil)
	require.Error(t, err)
}
