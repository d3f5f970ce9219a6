// Package cache decorates a workflow.Store with an in-process TTL cache for
// the read path. Status polling hits Load repeatedly; finished workflows
// never change, so they are kept longer than running ones.
package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

const (
	// DefaultTTL bounds how stale a cached running workflow may be.
	DefaultTTL = 5 * time.Second
	// DefaultTerminalTTL is the lifetime of cached COMPLETED/FAILED records.
	DefaultTerminalTTL = 10 * time.Minute
	// DefaultCleanupInterval is how often expired entries are purged.
	DefaultCleanupInterval = time.Minute
)

type (
	// Options configures the cache.
	Options struct {
		TTL             time.Duration
		TerminalTTL     time.Duration
		CleanupInterval time.Duration
	}

	// Store caches Load results of the wrapped store. Writes go straight
	// through and evict the affected record.
	Store struct {
		next        workflow.Store
		cache       *gocache.Cache
		ttl         time.Duration
		terminalTTL time.Duration
	}
)

var _ workflow.Store = (*Store)(nil)

// New wraps next.
func New(next workflow.Store, opts Options) (*Store, error) {
	if next == nil {
		return nil, errors.New("store is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.TerminalTTL <= 0 {
		opts.TerminalTTL = DefaultTerminalTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	return &Store{
		next:        next,
		cache:       gocache.New(opts.TTL, opts.CleanupInterval),
		ttl:         opts.TTL,
		terminalTTL: opts.TerminalTTL,
	}, nil
}

// Create implements workflow.Store.
func (s *Store) Create(ctx context.Context, r workflow.Record) error {
	s.cache.Delete(r.WorkflowID)
	return s.next.Create(ctx, r)
}

// UpdateStatus implements workflow.Store.
func (s *Store) UpdateStatus(ctx context.Context, workflowID string, status workflow.Status) error {
	defer s.cache.Delete(workflowID)
	return s.next.UpdateStatus(ctx, workflowID, status)
}

// AppendReasoningStep implements workflow.Store.
func (s *Store) AppendReasoningStep(ctx context.Context, workflowID string, step workflow.ReasoningStep) error {
	defer s.cache.Delete(workflowID)
	return s.next.AppendReasoningStep(ctx, workflowID, step)
}

// Complete implements workflow.Store.
func (s *Store) Complete(ctx context.Context, workflowID, finalResponse string) error {
	defer s.cache.Delete(workflowID)
	return s.next.Complete(ctx, workflowID, finalResponse)
}

// Load returns the cached record when present, otherwise loads and caches it.
// Missing records are not cached.
func (s *Store) Load(ctx context.Context, workflowID string) (workflow.Record, error) {
	if v, ok := s.cache.Get(workflowID); ok {
		if r, ok := v.(workflow.Record); ok {
			return r.Clone(), nil
		}
	}
	r, err := s.next.Load(ctx, workflowID)
	if err != nil {
		return workflow.Record{}, err
	}
	ttl := s.ttl
	if r.Status.Terminal() {
		ttl = s.terminalTTL
	}
	s.cache.Set(workflowID, r.Clone(), ttl)
	return r, nil
}

// Flush drops every cached record.
func (s *Store) Flush() {
	s.cache.Flush()
}
