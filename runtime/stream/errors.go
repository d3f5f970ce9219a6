package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyStreams is returned by CreateStream when the coordinator
	// already tracks the configured maximum number of workflows.
	ErrTooManyStreams = errors.New("stream: too many active workflows")
	// ErrTooManySubscribers is returned by Subscribe when the workflow already
	// has the configured maximum number of consumers.
	ErrTooManySubscribers = errors.New("stream: too many subscribers")
	// ErrCoordinatorClosed is returned by CreateStream and Subscribe after
	// Close.
	ErrCoordinatorClosed = errors.New("stream: coordinator closed")
	// ErrStreamClosed is returned by Subscription.Next when the workflow was
	// removed before it produced a terminal event.
	ErrStreamClosed = errors.New("stream: stream closed before terminal event")
	// ErrSubscriptionClosed is returned by Subscription.Next after Close.
	ErrSubscriptionClosed = errors.New("stream: subscription closed")
)

// DuplicateWorkflowError is returned by CreateStream when a stream is already
// registered for the workflow.
type DuplicateWorkflowError struct {
	WorkflowID string
}

// UnknownWorkflowError is returned by Subscribe when no stream is registered
// for the workflow.
type UnknownWorkflowError struct {
	WorkflowID string
}

func (e *DuplicateWorkflowError) Error() string {
	return fmt.Sprintf("stream: workflow %q already has an active stream", e.WorkflowID)
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("stream: no active stream for workflow %q", e.WorkflowID)
}
