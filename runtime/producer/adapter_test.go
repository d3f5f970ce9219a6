package producer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow/inmem"
)

type engineFunc func(ctx context.Context, req engine.Request, cb engine.Callbacks) (engine.Result, error)

func (f engineFunc) Execute(ctx context.Context, req engine.Request, cb engine.Callbacks) (engine.Result, error) {
	return f(ctx, req, cb)
}

type recordingSink struct {
	mu     sync.Mutex
	events []stream.Event
}

func (s *recordingSink) Send(_ context.Context, ev stream.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close(context.Context) error { return nil }

func (s *recordingSink) Types() []stream.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type()
	}
	return out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newCoordinator(t *testing.T) *stream.Coordinator {
	t.Helper()
	c := stream.NewCoordinator(stream.WithReapInterval(0), stream.WithGracePeriod(time.Minute))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func collect(t *testing.T, ctx context.Context, sub *stream.Subscription) []stream.Event {
	t.Helper()
	var out []stream.Event
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func eventTypes(events []stream.Event) []stream.EventType {
	out := make([]stream.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type()
	}
	return out
}

func happyEngine() engine.Engine {
	return engineFunc(func(ctx context.Context, req engine.Request, cb engine.Callbacks) (engine.Result, error) {
		cb.OnThinking(ctx, engine.Thinking{Text: "analyzing", Stage: engine.StageAnalysis})
		cb.OnReasoningStep(ctx, engine.Step{Thought: "find case", Action: "lookup_case", Input: map[string]any{"name": "Doe"}})
		cb.OnToolStart(ctx, engine.ToolCall{ID: "c1", Name: "lookup_case", Input: map[string]any{"name": "Doe"}})
		cb.OnToolEnd(ctx, engine.ToolResult{ID: "c1", Name: "lookup_case", Output: "case 7", Duration: 15 * time.Millisecond})
		cb.OnToolStart(ctx, engine.ToolCall{ID: "c2", Name: "lookup_case"})
		cb.OnToolEnd(ctx, engine.ToolResult{ID: "c2", Name: "lookup_case", Output: "Error: dial tcp 10.0.0.7:5432: refused", Err: errors.New("dial tcp 10.0.0.7:5432: refused")})
		cb.OnReasoningStep(ctx, engine.Step{Thought: "done"})
		return engine.Result{FinalResponse: "Reminder sent"}, nil
	})
}

func TestStartRunsWorkflowToCompletion(t *testing.T) {
	ctx := testContext(t)
	coord := newCoordinator(t)
	store := inmem.New()
	sink := &recordingSink{}
	a, err := New(coord, happyEngine(), WithStore(store), WithSink(sink), WithHeartbeatInterval(0))
	require.NoError(t, err)

	require.NoError(t, a.Start(ctx, "wf_1", "remind Doe"))
	sub, err := coord.Subscribe(ctx, "wf_1")
	require.NoError(t, err)
	defer sub.Close()

	events := collect(t, ctx, sub)
	require.Equal(t, []stream.EventType{
		stream.EventWorkflowStarted,
		stream.EventAgentThinking,
		stream.EventReasoningStep,
		stream.EventToolStart,
		stream.EventToolEnd,
		stream.EventToolStart,
		stream.EventToolEnd,
		stream.EventReasoningStep,
		stream.EventWorkflowCompleted,
	}, eventTypes(events))

	step := events[2].(stream.ReasoningStep)
	require.Equal(t, 1, step.Data.StepNumber)
	require.NotEmpty(t, step.Data.StepID)
	require.Equal(t, 2, events[7].(stream.ReasoningStep).Data.StepNumber)
	failed := events[6].(stream.ToolEnd)
	require.False(t, failed.Data.Success)
	require.Equal(t, PublicErrorToolFailed, failed.Data.ErrorMessage)
	require.Empty(t, failed.Data.ToolOutput)

	done := events[8].(stream.WorkflowCompleted)
	require.Equal(t, "Reminder sent", done.Data.FinalResponse)
	require.Equal(t, 2, done.Data.TotalSteps)
	require.Equal(t, []string{"lookup_case"}, done.Data.ToolsUsed)

	require.NoError(t, a.Wait(ctx))
	rec, err := store.Load(ctx, "wf_1")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCompleted, rec.Status)
	require.Equal(t, "Reminder sent", rec.FinalResponse)
	require.Equal(t, "remind Doe", rec.InitialPrompt)
	require.Len(t, rec.ReasoningChain, 2)
	require.Equal(t, "lookup_case", rec.ReasoningChain[0].Action)

	require.Equal(t, eventTypes(events), sink.Types())
}

func TestRunEmitsSingleClassifiedErrorOnFailure(t *testing.T) {
	ctx := testContext(t)
	coord := newCoordinator(t)
	store := inmem.New()
	raw := engine.NewProviderError("anthropic", 529, "", "Overloaded: secret internal detail", nil)
	eng := engineFunc(func(context.Context, engine.Request, engine.Callbacks) (engine.Result, error) {
		return engine.Result{}, &engine.PartialError{Partial: "Dear client,", Err: raw}
	})
	a, err := New(coord, eng, WithStore(store), WithHeartbeatInterval(0))
	require.NoError(t, err)

	require.NoError(t, a.Start(ctx, "wf_2", "p"))
	require.NoError(t, a.Wait(ctx))

	sub, err := coord.Subscribe(ctx, "wf_2")
	require.NoError(t, err)
	defer sub.Close()
	events := collect(t, ctx, sub)
	require.Equal(t, []stream.EventType{stream.EventWorkflowStarted, stream.EventWorkflowError}, eventTypes(events))

	we := events[1].(stream.WorkflowError)
	require.Equal(t, string(ErrorTypeProviderOverloaded), we.Data.ErrorType)
	require.Equal(t, PublicErrorProviderOverloaded, we.Data.ErrorMessage)
	require.NotContains(t, we.Data.ErrorMessage, "secret")
	require.Equal(t, SuggestionRetryLater, we.Data.RecoverySuggestion)
	require.Equal(t, "Dear client,", we.Data.PartialResponse)

	rec, err := store.Load(ctx, "wf_2")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusFailed, rec.Status)
}

func TestRunRecoversEnginePanic(t *testing.T) {
	ctx := testContext(t)
	coord := newCoordinator(t)
	eng := engineFunc(func(context.Context, engine.Request, engine.Callbacks) (engine.Result, error) {
		panic("nil map")
	})
	a, err := New(coord, eng, WithHeartbeatInterval(0))
	require.NoError(t, err)
	_, err = coord.CreateStream(ctx, "wf_3", "p")
	require.NoError(t, err)

	err = a.Run(ctx, "wf_3", "p")
	require.ErrorContains(t, err, "engine panic")

	sub, err := coord.Subscribe(ctx, "wf_3")
	require.NoError(t, err)
	defer sub.Close()
	events := collect(t, ctx, sub)
	require.Len(t, events, 2)
	we := events[1].(stream.WorkflowError)
	require.Equal(t, string(ErrorTypeUnclassified), we.Data.ErrorType)
	require.Equal(t, PublicErrorInternal, we.Data.ErrorMessage)
}

func TestHeartbeatsStopBeforeTerminalEvent(t *testing.T) {
	ctx := testContext(t)
	coord := newCoordinator(t)
	release := make(chan struct{})
	eng := engineFunc(func(ctx context.Context, _ engine.Request, _ engine.Callbacks) (engine.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return engine.Result{FinalResponse: "ok"}, nil
	})
	a, err := New(coord, eng, WithHeartbeatInterval(5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx, "wf_4", "p"))

	require.Eventually(t, func() bool {
		info, ok := coord.Info("wf_4")
		return ok && info.Published >= 3
	}, 2*time.Second, time.Millisecond)
	close(release)
	require.NoError(t, a.Wait(ctx))

	sub, err := coord.Subscribe(ctx, "wf_4")
	require.NoError(t, err)
	defer sub.Close()
	events := collect(t, ctx, sub)
	require.GreaterOrEqual(t, len(events), 4)
	for _, ev := range events[1 : len(events)-1] {
		hb, ok := ev.(stream.Heartbeat)
		require.True(t, ok)
		require.Equal(t, stream.HeartbeatStatusProcessing, hb.Data.Status)
	}
	require.Equal(t, stream.EventWorkflowCompleted, events[len(events)-1].Type())
}

func TestStartIsDetachedFromCallerContext(t *testing.T) {
	ctx := testContext(t)
	coord := newCoordinator(t)
	started := make(chan struct{})
	release := make(chan struct{})
	eng := engineFunc(func(ctx context.Context, _ engine.Request, _ engine.Callbacks) (engine.Result, error) {
		close(started)
		<-release
		return engine.Result{FinalResponse: "ok"}, ctx.Err()
	})
	a, err := New(coord, eng, WithHeartbeatInterval(0))
	require.NoError(t, err)

	callerCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, a.Start(callerCtx, "wf_5", "p"))
	<-started
	cancel()
	close(release)
	require.NoError(t, a.Wait(ctx))

	sub, err := coord.Subscribe(ctx, "wf_5")
	require.NoError(t, err)
	defer sub.Close()
	events := collect(t, ctx, sub)
	require.Equal(t, stream.EventWorkflowCompleted, events[len(events)-1].Type())
}

func TestStartSurfacesCoordinatorErrors(t *testing.T) {
	ctx := testContext(t)
	coord := newCoordinator(t)
	a, err := New(coord, happyEngine(), WithHeartbeatInterval(0), WithAgentType("ReminderAgent"))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx, "wf_6", "p"))

	var dup *stream.DuplicateWorkflowError
	require.ErrorAs(t, a.Start(ctx, "wf_6", "p"), &dup)
	require.NoError(t, a.Wait(ctx))

	sub, err := coord.Subscribe(ctx, "wf_6")
	require.NoError(t, err)
	defer sub.Close()
	first, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "ReminderAgent", first.(stream.WorkflowStarted).Data.AgentType)
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, happyEngine())
	require.Error(t, err)
	_, err = New(stream.NewCoordinator(), nil)
	require.Error(t, err)
}

func TestFinishedWorkflowIsRemovedAfterGracePeriod(t *testing.T) {
	ctx := testContext(t)
	coord := stream.NewCoordinator(stream.WithReapInterval(0), stream.WithGracePeriod(20*time.Millisecond))
	t.Cleanup(func() { _ = coord.Close(context.Background()) })
	a, err := New(coord, happyEngine(), WithHeartbeatInterval(0))
	require.NoError(t, err)
	_, err = coord.CreateStream(ctx, "wf_7", "p")
	require.NoError(t, err)

	require.NoError(t, a.Run(ctx, "wf_7", "p"))
	require.False(t, coord.IsActive("wf_7"))
	require.Eventually(t, func() bool { return coord.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
