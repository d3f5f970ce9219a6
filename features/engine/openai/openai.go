// Package openai implements engine.Model on the OpenAI Chat Completions API
// using github.com/openai/openai-go.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
)

// ProviderName identifies OpenAI in provider errors.
const ProviderName = "openai"

type (
	// CompletionsClient is the subset of the SDK used by Model.
	// *openai.ChatCompletionService satisfies it.
	CompletionsClient interface {
		New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	}

	// Options configures the adapter.
	Options struct {
		// Model is the chat model identifier. Required.
		Model       string
		MaxTokens   int
		Temperature float64
	}

	// Model implements engine.Model.
	Model struct {
		chat      CompletionsClient
		model     string
		maxTokens int
		temp      float64
	}
)

var _ engine.Model = (*Model)(nil)

// New returns a Model using chat.
func New(chat CompletionsClient, opts Options) (*Model, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Model{chat: chat, model: opts.Model, maxTokens: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey builds a Model with the default SDK HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, opts)
}

// Complete runs one chat completion.
func (m *Model) Complete(ctx context.Context, req engine.ModelRequest) (engine.ModelResponse, error) {
	if len(req.Messages) == 0 {
		return engine.ModelResponse{}, errors.New("openai: at least one message is required")
	}
	msgs, err := encodeMessages(req)
	if err != nil {
		return engine.ModelResponse{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    m.model,
		Messages: msgs,
	}
	if n := pick(req.MaxTokens, m.maxTokens); n > 0 {
		params.MaxCompletionTokens = openai.Int(int64(n))
	}
	if t := pickFloat(req.Temperature, m.temp); t > 0 {
		params.Temperature = openai.Float(t)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, def := range req.Tools {
			schema := def.InputSchema
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			fn := openai.FunctionDefinitionParam{
				Name:       def.Name,
				Parameters: schema,
			}
			if def.Description != "" {
				fn.Description = openai.String(def.Description)
			}
			tools = append(tools, openai.ChatCompletionToolParam{Type: "function", Function: fn})
		}
		params.Tools = tools
	}

	resp, err := m.chat.New(ctx, params)
	if err != nil {
		return engine.ModelResponse{}, wrapError(err)
	}
	return translateResponse(resp)
}

func encodeMessages(req engine.ModelRequest) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case engine.RoleUser:
			for _, tr := range msg.ToolResults {
				out = append(out, openai.ToolMessage(tr.Content, tr.ToolUseID))
			}
			if msg.Text != "" {
				out = append(out, openai.UserMessage(msg.Text))
			}
		case engine.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Text))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil {
					return nil, fmt.Errorf("openai: encode %s arguments: %w", tc.Name, err)
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: calls,
			}})
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}

func translateResponse(resp *openai.ChatCompletion) (engine.ModelResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return engine.ModelResponse{}, errors.New("openai: no choices returned")
	}
	msg := resp.Choices[0].Message
	out := engine.ModelResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, engine.ToolUse{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: parseArguments(tc.Function.Arguments),
		})
	}
	return out, nil
}

func parseArguments(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}

func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return engine.NewProviderError(ProviderName, 0, engine.ProviderErrorKindUnavailable, "openai request failed", err)
	}
	status := apiErr.StatusCode
	return engine.NewProviderError(ProviderName, status, "",
		fmt.Sprintf("openai chat completion returned %d %s", status, http.StatusText(status)), err)
}

func pick(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func pickFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
