// Package inmem provides an in-memory workflow.Store for tests and local
// development. Records do not survive process restarts.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

// Store implements workflow.Store in memory. Records are copied on read and
// write so callers cannot mutate stored state.
type Store struct {
	mu      sync.RWMutex
	records map[string]workflow.Record
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]workflow.Record), now: time.Now}
}

// Create implements workflow.Store.
func (s *Store) Create(_ context.Context, r workflow.Record) error {
	if r.WorkflowID == "" {
		return fmt.Errorf("workflow id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.WorkflowID]; ok {
		return fmt.Errorf("%w: %s", workflow.ErrAlreadyExists, r.WorkflowID)
	}
	now := s.now().UTC()
	if r.Status == "" {
		r.Status = workflow.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if r.ReasoningChain == nil {
		r.ReasoningChain = []workflow.ReasoningStep{}
	}
	s.records[r.WorkflowID] = r.Clone()
	return nil
}

// UpdateStatus implements workflow.Store.
func (s *Store) UpdateStatus(_ context.Context, workflowID string, status workflow.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid workflow status %q", status)
	}
	return s.update(workflowID, func(r *workflow.Record) {
		r.Status = status
	})
}

// AppendReasoningStep implements workflow.Store.
func (s *Store) AppendReasoningStep(_ context.Context, workflowID string, step workflow.ReasoningStep) error {
	return s.update(workflowID, func(r *workflow.Record) {
		if step.Timestamp.IsZero() {
			step.Timestamp = s.now().UTC()
		}
		r.ReasoningChain = append(r.ReasoningChain, step.Clone())
	})
}

// Complete implements workflow.Store.
func (s *Store) Complete(_ context.Context, workflowID, finalResponse string) error {
	return s.update(workflowID, func(r *workflow.Record) {
		r.Status = workflow.StatusCompleted
		r.FinalResponse = finalResponse
	})
}

// Load implements workflow.Store.
func (s *Store) Load(_ context.Context, workflowID string) (workflow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[workflowID]
	if !ok {
		return workflow.Record{}, fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
	}
	return r.Clone(), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) update(workflowID string, fn func(*workflow.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
	}
	fn(&r)
	r.UpdatedAt = s.now().UTC()
	s.records[workflowID] = r
	return nil
}
