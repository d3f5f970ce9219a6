package mongo

import (
	"context"
	"errors"

	mongoc "github.com/camrenhall/luceron-ai-communications-agent/features/workflow/mongo/clients/mongo"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

// Store implements workflow.Store by delegating to the Mongo client.
type Store struct {
	client mongoc.Client
}

// Options configures the Store.
type Options struct {
	Client mongoc.Client
}

var _ workflow.Store = (*Store)(nil)

// NewStore builds a Store using the provided client.
func NewStore(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: opts.Client}, nil
}

// NewStoreFromMongo builds the Mongo client from opts and wraps it in a Store.
func NewStoreFromMongo(opts mongoc.Options) (*Store, error) {
	cl, err := mongoc.New(opts)
	if err != nil {
		return nil, err
	}
	return NewStore(Options{Client: cl})
}

// Client returns the underlying client, for health checks.
func (s *Store) Client() mongoc.Client { return s.client }

// Create stores a new workflow record.
func (s *Store) Create(ctx context.Context, r workflow.Record) error {
	return s.client.CreateWorkflow(ctx, r)
}

// UpdateStatus sets the workflow status.
func (s *Store) UpdateStatus(ctx context.Context, workflowID string, status workflow.Status) error {
	return s.client.UpdateStatus(ctx, workflowID, status)
}

// AppendReasoningStep appends a reasoning step.
func (s *Store) AppendReasoningStep(ctx context.Context, workflowID string, step workflow.ReasoningStep) error {
	return s.client.AppendReasoningStep(ctx, workflowID, step)
}

// Complete marks the workflow completed.
func (s *Store) Complete(ctx context.Context, workflowID, finalResponse string) error {
	return s.client.Complete(ctx, workflowID, finalResponse)
}

// Load retrieves a workflow record.
func (s *Store) Load(ctx context.Context, workflowID string) (workflow.Record, error) {
	return s.client.LoadWorkflow(ctx, workflowID)
}
