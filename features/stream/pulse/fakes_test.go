package pulse

import (
	"context"
	"sync"

	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "github.com/camrenhall/luceron-ai-communications-agent/features/stream/pulse/clients/pulse"
)

type (
	fakeClient struct {
		mu        sync.Mutex
		streams   map[string]*fakeStream
		streamErr error
		closed    bool
	}

	fakeStream struct {
		mu      sync.Mutex
		name    string
		added   []addCall
		addErr  error
		sink    *fakeSink
		sinkErr error
	}

	addCall struct {
		event   string
		payload []byte
	}

	fakeSink struct {
		name   string
		ch     chan *streaming.Event
		mu     sync.Mutex
		acked  []string
		ackErr error
		closed bool
	}
)

func newFakeClient() *fakeClient {
	return &fakeClient{streams: make(map[string]*fakeStream)}
}

func (c *fakeClient) Name() string                { return "fake" }
func (c *fakeClient) Ping(context.Context) error  { return nil }
func (c *fakeClient) Close(context.Context) error { c.closed = true; return nil }

func (c *fakeClient) Stream(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	return c.streamLocked(name), nil
}

func (c *fakeClient) stream(name string) *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamLocked(name)
}

func (c *fakeClient) streamLocked(name string) *fakeStream {
	s, ok := c.streams[name]
	if !ok {
		s = &fakeStream{name: name}
		c.streams[name] = s
	}
	return s
}

func (s *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return "", s.addErr
	}
	s.added = append(s.added, addCall{event: event, payload: payload})
	return "1-0", nil
}

func (s *fakeStream) NewSink(_ context.Context, name string, _ ...streamopts.Sink) (clientspulse.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sinkErr != nil {
		return nil, s.sinkErr
	}
	if s.sink == nil {
		s.sink = &fakeSink{ch: make(chan *streaming.Event, 16)}
	}
	s.sink.name = name
	return s.sink, nil
}

func (s *fakeStream) Destroy(context.Context) error { return nil }

// replay feeds every added entry into the stream's sink.
func (s *fakeStream) replay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.added {
		s.sink.ch <- &streaming.Event{ID: string(rune('a' + i)), Payload: a.payload}
	}
}

func (k *fakeSink) Subscribe() <-chan *streaming.Event { return k.ch }

func (k *fakeSink) Ack(_ context.Context, evt *streaming.Event) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ackErr != nil {
		return k.ackErr
	}
	k.acked = append(k.acked, evt.ID)
	return nil
}

func (k *fakeSink) Close(context.Context) {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
}
