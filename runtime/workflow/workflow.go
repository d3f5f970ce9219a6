// Package workflow defines the durable record of a workflow execution and the
// Store contract used to persist it. Stream state is ephemeral and lives in
// the stream coordinator; the Store is the source of truth for status lookups
// after a stream has been removed.
package workflow

import (
	"context"
	"errors"
	"time"
)

type (
	// Store persists workflow records. Implementations must be safe for
	// concurrent use.
	Store interface {
		// Create inserts a new record. It returns ErrAlreadyExists when a
		// record with the same WorkflowID exists.
		Create(ctx context.Context, r Record) error
		// UpdateStatus sets the status of an existing record.
		UpdateStatus(ctx context.Context, workflowID string, status Status) error
		// AppendReasoningStep appends step to the record's reasoning chain.
		AppendReasoningStep(ctx context.Context, workflowID string, step ReasoningStep) error
		// Complete marks the record COMPLETED and stores the final response.
		Complete(ctx context.Context, workflowID, finalResponse string) error
		// Load returns the record or ErrNotFound.
		Load(ctx context.Context, workflowID string) (Record, error)
	}

	// Record is the durable state of a workflow.
	Record struct {
		WorkflowID     string          `json:"workflow_id"`
		Status         Status          `json:"status"`
		AgentType      string          `json:"agent_type"`
		CaseID         string          `json:"case_id,omitempty"`
		InitialPrompt  string          `json:"initial_prompt"`
		FinalResponse  string          `json:"final_response,omitempty"`
		CreatedAt      time.Time       `json:"created_at"`
		UpdatedAt      time.Time       `json:"updated_at"`
		ReasoningChain []ReasoningStep `json:"reasoning_chain"`
	}

	// ReasoningStep is one persisted reasoning step.
	ReasoningStep struct {
		Timestamp    time.Time      `json:"timestamp"`
		Thought      string         `json:"thought"`
		Action       string         `json:"action,omitempty"`
		ActionInput  map[string]any `json:"action_input,omitempty"`
		ActionOutput string         `json:"action_output,omitempty"`
	}

	// StatusView is the lightweight status projection of a Record.
	StatusView struct {
		WorkflowID       string    `json:"workflow_id"`
		Status           Status    `json:"status"`
		CreatedAt        time.Time `json:"created_at"`
		UpdatedAt        time.Time `json:"updated_at"`
		HasFinalResponse bool      `json:"has_final_response"`
	}

	// Status is the lifecycle status of a workflow.
	Status string
)

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var (
	// ErrNotFound is returned when no record exists for a workflow ID.
	ErrNotFound = errors.New("workflow not found")
	// ErrAlreadyExists is returned by Create for duplicate workflow IDs.
	ErrAlreadyExists = errors.New("workflow already exists")
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// View returns the status projection of r.
func (r Record) View() StatusView {
	return StatusView{
		WorkflowID:       r.WorkflowID,
		Status:           r.Status,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		HasFinalResponse: r.FinalResponse != "",
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.ReasoningChain != nil {
		out.ReasoningChain = make([]ReasoningStep, len(r.ReasoningChain))
		for i, s := range r.ReasoningChain {
			out.ReasoningChain[i] = s.Clone()
		}
	}
	return out
}

// Clone returns a copy of s with its own ActionInput map.
func (s ReasoningStep) Clone() ReasoningStep {
	if s.ActionInput != nil {
		in := make(map[string]any, len(s.ActionInput))
		for k, v := range s.ActionInput {
			in[k] = v
		}
		s.ActionInput = in
	}
	return s
}
