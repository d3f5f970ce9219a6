package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	c := NewCoordinator(append([]Option{WithReapInterval(0)}, opts...)...)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// drain reads events until the subscription ends and returns them with the
// terminating error.
func drain(t *testing.T, ctx context.Context, sub *Subscription) ([]Event, error) {
	t.Helper()
	var out []Event
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type()
	}
	return out
}

func requireNext(t *testing.T, ctx context.Context, sub *Subscription) Event {
	t.Helper()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	return ev
}
