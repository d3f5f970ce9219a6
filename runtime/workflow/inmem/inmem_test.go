package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Create(ctx, workflow.Record{
		WorkflowID:    "wf_1",
		AgentType:     "CommunicationsAgent",
		InitialPrompt: "remind Doe",
	}))
	require.ErrorIs(t, s.Create(ctx, workflow.Record{WorkflowID: "wf_1"}), workflow.ErrAlreadyExists)

	rec, err := s.Load(ctx, "wf_1")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPending, rec.Status)
	require.Empty(t, rec.ReasoningChain)
	require.False(t, rec.CreatedAt.IsZero())

	require.NoError(t, s.UpdateStatus(ctx, "wf_1", workflow.StatusProcessing))
	require.NoError(t, s.AppendReasoningStep(ctx, "wf_1", workflow.ReasoningStep{
		Thought:     "look up case",
		Action:      "lookup_case",
		ActionInput: map[string]any{"name": "Doe"},
	}))
	require.NoError(t, s.Complete(ctx, "wf_1", "sent"))

	rec, err = s.Load(ctx, "wf_1")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCompleted, rec.Status)
	require.Equal(t, "sent", rec.FinalResponse)
	require.Len(t, rec.ReasoningChain, 1)
	require.False(t, rec.ReasoningChain[0].Timestamp.IsZero())

	view := rec.View()
	require.True(t, view.HasFinalResponse)
	require.Equal(t, workflow.StatusCompleted, view.Status)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, workflow.Record{WorkflowID: "wf_1"}))
	require.NoError(t, s.AppendReasoningStep(ctx, "wf_1", workflow.ReasoningStep{
		ActionInput: map[string]any{"k": "v"},
	}))

	rec, err := s.Load(ctx, "wf_1")
	require.NoError(t, err)
	rec.ReasoningChain[0].ActionInput["k"] = "mutated"

	again, err := s.Load(ctx, "wf_1")
	require.NoError(t, err)
	require.Equal(t, "v", again.ReasoningChain[0].ActionInput["k"])
}

func TestStoreMissingWorkflow(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, workflow.ErrNotFound)
	require.ErrorIs(t, s.UpdateStatus(ctx, "missing", workflow.StatusFailed), workflow.ErrNotFound)
	require.ErrorIs(t, s.Complete(ctx, "missing", ""), workflow.ErrNotFound)
	require.Error(t, s.UpdateStatus(ctx, "missing", "DONE"))
}
