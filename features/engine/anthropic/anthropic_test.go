package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
)

type stubMessages struct {
	last sdk.MessageNewParams
	resp *sdk.Message
	err  error
}

func (s *stubMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.last = body
	return s.resp, s.err
}

func newModel(t *testing.T, stub *stubMessages) *Model {
	t.Helper()
	m, err := New(stub, Options{Model: "claude-sonnet-4-20250514", MaxTokens: 4096, Temperature: 0.1})
	require.NoError(t, err)
	return m
}

func TestCompleteText(t *testing.T) {
	stub := &stubMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "thinking", Thinking: "consider the case"},
			{Type: "text", Text: "All set."},
		},
		StopReason: sdk.StopReasonEndTurn,
	}}
	m := newModel(t, stub)

	resp, err := m.Complete(context.Background(), engine.ModelRequest{
		System:   "You are helpful.",
		Messages: []engine.Message{{Role: engine.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, "All set.", resp.Text)
	require.Equal(t, "consider the case", resp.Thinking)
	require.Empty(t, resp.ToolCalls)

	require.Equal(t, sdk.Model("claude-sonnet-4-20250514"), stub.last.Model)
	require.EqualValues(t, 4096, stub.last.MaxTokens)
	require.Len(t, stub.last.System, 1)
	require.Equal(t, "You are helpful.", stub.last.System[0].Text)
	require.Len(t, stub.last.Messages, 1)
}

func TestCompleteToolUse(t *testing.T) {
	stub := &stubMessages{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "tool_use", ID: "tu_1", Name: "lookup_case", Input: json.RawMessage(`{"name":"Doe"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}}
	m := newModel(t, stub)

	resp, err := m.Complete(context.Background(), engine.ModelRequest{
		Messages: []engine.Message{
			{Role: engine.RoleUser, Text: "remind Doe"},
			{Role: engine.RoleAssistant, ToolCalls: []engine.ToolUse{{ID: "tu_0", Name: "lookup_case", Input: map[string]any{"name": "Doe"}}}},
			{Role: engine.RoleUser, ToolResults: []engine.ToolOutcome{{ToolUseID: "tu_0", Content: "not found", IsError: true}}},
		},
		Tools: []engine.ToolDefinition{{
			Name:        "lookup_case",
			Description: "Find a case",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"name": map[string]any{"type": "string"}},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, engine.ToolUse{ID: "tu_1", Name: "lookup_case", Input: map[string]any{"name": "Doe"}}, resp.ToolCalls[0])
	require.Len(t, stub.last.Messages, 3)
	require.Len(t, stub.last.Tools, 1)
	require.Equal(t, "lookup_case", stub.last.Tools[0].OfTool.Name)
}

func TestCompleteRejectsNonObjectSchema(t *testing.T) {
	m := newModel(t, &stubMessages{})
	_, err := m.Complete(context.Background(), engine.ModelRequest{
		Messages: []engine.Message{{Role: engine.RoleUser, Text: "hi"}},
		Tools:    []engine.ToolDefinition{{Name: "x", InputSchema: map[string]any{"type": "string"}}},
	})
	require.Error(t, err)
}

func TestCompleteRequiresMessages(t *testing.T) {
	m := newModel(t, &stubMessages{})
	_, err := m.Complete(context.Background(), engine.ModelRequest{})
	require.Error(t, err)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   engine.ProviderErrorKind
	}{
		{529, engine.ProviderErrorKindOverloaded},
		{429, engine.ProviderErrorKindRateLimited},
		{401, engine.ProviderErrorKindAuth},
		{400, engine.ProviderErrorKindInvalidRequest},
		{503, engine.ProviderErrorKindUnavailable},
	}
	for _, c := range cases {
		m := newModel(t, &stubMessages{err: &sdk.Error{StatusCode: c.status}})
		_, err := m.Complete(context.Background(), engine.ModelRequest{
			Messages: []engine.Message{{Role: engine.RoleUser, Text: "hi"}},
		})
		pe, ok := engine.AsProviderError(err)
		require.True(t, ok, "status %d", c.status)
		require.Equal(t, c.kind, pe.Kind, "status %d", c.status)
		require.Equal(t, ProviderName, pe.Provider)
		require.Equal(t, c.status, pe.HTTPStatus)
	}
}

func TestContextErrorsPassThrough(t *testing.T) {
	m := newModel(t, &stubMessages{err: context.Canceled})
	_, err := m.Complete(context.Background(), engine.ModelRequest{
		Messages: []engine.Message{{Role: engine.RoleUser, Text: "hi"}},
	})
	require.ErrorIs(t, err, context.Canceled)
	_, ok := engine.AsProviderError(err)
	require.False(t, ok)

	m = newModel(t, &stubMessages{err: errors.New("dial tcp: refused")})
	_, err = m.Complete(context.Background(), engine.ModelRequest{
		Messages: []engine.Message{{Role: engine.RoleUser, Text: "hi"}},
	})
	pe, ok := engine.AsProviderError(err)
	require.True(t, ok)
	require.Equal(t, engine.ProviderErrorKindUnavailable, pe.Kind)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Options{Model: "m"})
	require.Error(t, err)
	_, err = New(&stubMessages{}, Options{})
	require.Error(t, err)
	_, err = NewFromAPIKey("", Options{Model: "m"})
	require.Error(t, err)
}
