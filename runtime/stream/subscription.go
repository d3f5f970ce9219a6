package stream

import (
	"context"
	"io"
	"iter"
	"sync"
	"time"
)

// Subscription is one consumer's cursor into a workflow stream. Each
// subscription observes events in publication order; subscriptions do not
// affect each other or the producer. A Subscription is meant to be consumed by
// a single goroutine; Close may be called from any goroutine.
type Subscription struct {
	st  *state
	now func() time.Time

	mu      sync.Mutex
	cursor  uint64
	dropped uint64
	err     error

	closeOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

// Next blocks until the next event is available and returns it. It returns
// io.EOF once the terminal event has been delivered, ErrStreamClosed when the
// stream was removed before finishing, and ctx.Err() when ctx is done.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	done := s.doneCh()
	for {
		s.mu.Lock()
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		ev, next, skipped, wait, res := s.st.read(s.cursor, s.now())
		s.cursor = next
		s.dropped += skipped
		switch res {
		case readEvent:
			s.mu.Unlock()
			return ev, nil
		case readEnd:
			s.err = io.EOF
			s.mu.Unlock()
			return nil, io.EOF
		case readClosed:
			s.err = ErrStreamClosed
			s.mu.Unlock()
			return nil, ErrStreamClosed
		}
		s.mu.Unlock()

		select {
		case <-wait:
		case <-done:
			return nil, s.Err()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// All returns a sequence over the remaining events. Iteration stops at the
// end of the stream, on error, or when ctx is done; Err reports why.
func (s *Subscription) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				if err != io.EOF {
					s.setErr(err)
				}
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Err returns the error that ended iteration, or nil if the stream ended
// normally or is still open.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Dropped returns how many events this subscription missed because the
// queue evicted them before they were read.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription. It never affects the stream or the
// producer and is safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.setErr(ErrSubscriptionClosed)
		close(s.doneCh())
		s.st.detach()
	})
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Subscription) doneCh() chan struct{} {
	s.doneOnce.Do(func() { s.done = make(chan struct{}) })
	return s.done
}
