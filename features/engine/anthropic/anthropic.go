// Package anthropic implements engine.Model on top of the Anthropic Claude
// Messages API using github.com/anthropics/anthropic-sdk-go. API failures are
// mapped to *engine.ProviderError; HTTP 529 is reported as overloaded.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
)

// ProviderName identifies Anthropic in provider errors.
const ProviderName = "anthropic"

type (
	// MessagesClient is the subset of the SDK used by Model. *sdk.MessageService
	// satisfies it.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the adapter.
	Options struct {
		// Model is the Claude model identifier. Required.
		Model string
		// MaxTokens is used when a request does not set one.
		MaxTokens int
		// Temperature is used when a request does not set one.
		Temperature float64
	}

	// Model implements engine.Model.
	Model struct {
		msg       MessagesClient
		model     string
		maxTokens int
		temp      float64
	}
)

var _ engine.Model = (*Model)(nil)

// New returns a Model using msg.
func New(msg MessagesClient, opts Options) (*Model, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Model{msg: msg, model: opts.Model, maxTokens: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey builds a Model with the default SDK HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, opts)
}

// Complete runs one Messages.New call.
func (m *Model) Complete(ctx context.Context, req engine.ModelRequest) (engine.ModelResponse, error) {
	params, err := m.params(req)
	if err != nil {
		return engine.ModelResponse{}, err
	}
	msg, err := m.msg.New(ctx, params)
	if err != nil {
		return engine.ModelResponse{}, wrapError(err)
	}
	return translateResponse(msg)
}

func (m *Model) params(req engine.ModelRequest) (sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	if maxTokens <= 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(m.model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = m.temp
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if len(req.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, 0, len(req.Tools))
		for _, def := range req.Tools {
			schema, err := inputSchema(def.InputSchema)
			if err != nil {
				return sdk.MessageNewParams{}, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
			}
			u := sdk.ToolUnionParamOfTool(schema, def.Name)
			if u.OfTool != nil && def.Description != "" {
				u.OfTool.Description = sdk.String(def.Description)
			}
			tools = append(tools, u)
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeMessages(msgs []engine.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []sdk.ContentBlockParamUnion
		if m.Text != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Text))
		}
		for _, tc := range m.ToolCalls {
			input := tc.Input
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		for _, tr := range m.ToolResults {
			blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolUseID, tr.Content, tr.IsError))
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case engine.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case engine.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}
	return out, nil
}

func inputSchema(schema map[string]any) (sdk.ToolInputSchemaParam, error) {
	if len(schema) == 0 {
		return sdk.ToolInputSchemaParam{Properties: map[string]any{}}, nil
	}
	extra := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "type" {
			continue
		}
		extra[k] = v
	}
	if t, ok := schema["type"]; ok && t != "object" {
		return sdk.ToolInputSchemaParam{}, fmt.Errorf("input schema type must be object, got %v", t)
	}
	return sdk.ToolInputSchemaParam{ExtraFields: extra}, nil
}

func translateResponse(msg *sdk.Message) (engine.ModelResponse, error) {
	if msg == nil {
		return engine.ModelResponse{}, errors.New("anthropic: response message is nil")
	}
	var (
		resp     engine.ModelResponse
		text     []string
		thinking []string
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				text = append(text, block.Text)
			}
		case "thinking":
			if block.Thinking != "" {
				thinking = append(thinking, block.Thinking)
			}
		case "tool_use":
			var input map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					input = map[string]any{"raw": string(block.Input)}
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, engine.ToolUse{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	resp.Text = strings.Join(text, "\n")
	resp.Thinking = strings.Join(thinking, "\n")
	return resp, nil
}

// wrapError maps SDK failures to *engine.ProviderError. Context errors pass
// through unchanged.
func wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return engine.NewProviderError(ProviderName, 0, engine.ProviderErrorKindUnavailable, "anthropic request failed", err)
	}
	status := apiErr.StatusCode
	msg := fmt.Sprintf("anthropic messages.new returned %d %s", status, http.StatusText(status))
	if status == 529 {
		msg = fmt.Sprintf("anthropic messages.new returned %d overloaded", status)
	}
	return engine.NewProviderError(ProviderName, status, "", msg, err)
}
