package producer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

// callbacks bridges engine notifications into stream events for one run. It
// numbers reasoning steps and tracks the distinct tools used.
type callbacks struct {
	a          *Adapter
	workflowID string

	mu    sync.Mutex
	steps int
	tools []string
	seen  map[string]struct{}
}

var _ engine.Callbacks = (*callbacks)(nil)

func newCallbacks(a *Adapter, workflowID string) *callbacks {
	return &callbacks{a: a, workflowID: workflowID, seen: make(map[string]struct{})}
}

func (c *callbacks) OnReasoningStep(ctx context.Context, step engine.Step) {
	ev := c.translate(step)
	c.a.coord.Publish(ctx, c.workflowID, ev)
	if c.a.store == nil {
		return
	}
	err := c.a.store.AppendReasoningStep(ctx, c.workflowID, workflow.ReasoningStep{
		Timestamp:   ev.Timestamp(),
		Thought:     step.Thought,
		Action:      step.Action,
		ActionInput: step.Input,
	})
	if err != nil {
		c.a.logger.Error(ctx, "failed to persist reasoning step", "workflow_id", c.workflowID, "err", err)
	}
}

func (c *callbacks) OnToolStart(ctx context.Context, call engine.ToolCall) {
	c.a.coord.Publish(ctx, c.workflowID, c.translate(call))
}

func (c *callbacks) OnToolEnd(ctx context.Context, res engine.ToolResult) {
	if res.Err != nil {
		c.a.logger.Warn(ctx, "tool failed", "workflow_id", c.workflowID, "tool", res.Name, "err", res.Err)
	}
	c.a.coord.Publish(ctx, c.workflowID, c.translate(res))
}

func (c *callbacks) OnThinking(ctx context.Context, th engine.Thinking) {
	c.a.coord.Publish(ctx, c.workflowID, c.translate(th))
}

// translate converts an engine notification into its stream event and
// updates the run counters.
func (c *callbacks) translate(n any) stream.Event {
	at := c.a.now()
	switch n := n.(type) {
	case engine.Step:
		c.mu.Lock()
		c.steps++
		num := c.steps
		c.mu.Unlock()
		return stream.NewReasoningStep(c.workflowID, at, stream.ReasoningStepPayload{
			StepID:      uuid.NewString(),
			Thought:     n.Thought,
			Action:      n.Action,
			ActionInput: n.Input,
			StepNumber:  num,
		})
	case engine.ToolCall:
		c.mu.Lock()
		if _, ok := c.seen[n.Name]; !ok {
			c.seen[n.Name] = struct{}{}
			c.tools = append(c.tools, n.Name)
		}
		c.mu.Unlock()
		input := n.Input
		if input == nil {
			input = map[string]any{}
		}
		return stream.NewToolStart(c.workflowID, at, stream.ToolStartPayload{
			ToolName:    n.Name,
			ToolInput:   input,
			Description: n.Description,
		})
	case engine.ToolResult:
		p := stream.ToolEndPayload{
			ToolName:        n.Name,
			ToolOutput:      n.Output,
			Success:         n.Err == nil,
			ExecutionTimeMS: n.Duration.Milliseconds(),
		}
		if n.Err != nil {
			// The output of a failed call carries the raw error for the
			// model; consumers only see the public text.
			p.ToolOutput = ""
			p.ErrorMessage = PublicErrorToolFailed
		}
		return stream.NewToolEnd(c.workflowID, at, p)
	case engine.Thinking:
		stage := n.Stage
		if stage == "" {
			stage = engine.StageAnalysis
		}
		return stream.NewAgentThinking(c.workflowID, at, stream.AgentThinkingPayload{
			Thinking:      n.Text,
			PlanningStage: string(stage),
		})
	}
	panic("producer: unsupported engine notification")
}

func (c *callbacks) totalSteps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

func (c *callbacks) toolsUsed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.tools...)
}
