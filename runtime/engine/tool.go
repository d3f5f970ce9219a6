package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type (
	// Tool is a capability the engine may invoke on the model's behalf.
	Tool interface {
		Definition() ToolDefinition
		Call(ctx context.Context, input map[string]any) (string, error)
	}

	// ToolDefinition describes a tool to the model. InputSchema is a JSON
	// Schema object; nil accepts any object.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema map[string]any
	}

	// Toolset indexes tools by name and validates inputs against their
	// schemas before invocation.
	Toolset struct {
		order []string
		tools map[string]compiledTool
	}

	// InvalidInputError is returned by Toolset.Invoke when the input does not
	// match the tool schema.
	InvalidInputError struct {
		Tool  string
		Cause error
	}

	compiledTool struct {
		tool   Tool
		schema *jsonschema.Schema
	}

	funcTool struct {
		def ToolDefinition
		fn  func(context.Context, map[string]any) (string, error)
	}
)

// ErrUnknownTool is returned by Toolset.Invoke for unregistered tool names.
var ErrUnknownTool = errors.New("engine: unknown tool")

// NewFuncTool adapts fn into a Tool.
func NewFuncTool(def ToolDefinition, fn func(context.Context, map[string]any) (string, error)) Tool {
	return &funcTool{def: def, fn: fn}
}

func (t *funcTool) Definition() ToolDefinition { return t.def }

func (t *funcTool) Call(ctx context.Context, input map[string]any) (string, error) {
	return t.fn(ctx, input)
}

// NewToolset compiles the schemas of tools. Tool names must be unique and
// non-empty.
func NewToolset(tools ...Tool) (*Toolset, error) {
	ts := &Toolset{tools: make(map[string]compiledTool, len(tools))}
	for _, t := range tools {
		if t == nil {
			return nil, errors.New("tool is required")
		}
		def := t.Definition()
		if def.Name == "" {
			return nil, errors.New("tool name is required")
		}
		if _, dup := ts.tools[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		schema, err := compileSchema(def.Name, def.InputSchema)
		if err != nil {
			return nil, err
		}
		ts.tools[def.Name] = compiledTool{tool: t, schema: schema}
		ts.order = append(ts.order, def.Name)
	}
	return ts, nil
}

// Len returns the number of tools.
func (ts *Toolset) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.order)
}

// Definitions returns the tool definitions in registration order.
func (ts *Toolset) Definitions() []ToolDefinition {
	if ts == nil {
		return nil
	}
	defs := make([]ToolDefinition, 0, len(ts.order))
	for _, name := range ts.order {
		defs = append(defs, ts.tools[name].tool.Definition())
	}
	return defs
}

// Describe returns the description of the named tool.
func (ts *Toolset) Describe(name string) string {
	if ts == nil {
		return ""
	}
	if ct, ok := ts.tools[name]; ok {
		return ct.tool.Definition().Description
	}
	return ""
}

// Invoke validates input against the tool schema and calls the tool.
func (ts *Toolset) Invoke(ctx context.Context, name string, input map[string]any) (string, error) {
	if ts == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	ct, ok := ts.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if ct.schema != nil {
		doc, err := normalize(input)
		if err != nil {
			return "", &InvalidInputError{Tool: name, Cause: err}
		}
		if doc == nil {
			doc = map[string]any{}
		}
		if err := ct.schema.Validate(doc); err != nil {
			return "", &InvalidInputError{Tool: name, Cause: err}
		}
	}
	return ct.tool.Call(ctx, input)
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for tool %q: %v", e.Tool, e.Cause)
}

func (e *InvalidInputError) Unwrap() error { return e.Cause }

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	doc, err := normalize(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %q schema: %w", name, err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add tool %q schema resource: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile tool %q schema: %w", name, err)
	}
	return compiled, nil
}

// normalize round-trips v through JSON so the validator sees only the types
// encoding/json produces.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
