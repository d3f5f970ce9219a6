package pulse

import (
	"context"
	"errors"

	clientspulse "github.com/camrenhall/luceron-ai-communications-agent/features/stream/pulse/clients/pulse"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

// Streams shares one Pulse client between the publishing sink handed to the
// producer and the subscribers used to attach to remote workflows.
type Streams struct {
	sink   *Sink
	client clientspulse.Client
}

// NewStreams builds the sink over client.
func NewStreams(client clientspulse.Client) (*Streams, error) {
	if client == nil {
		return nil, errors.New("pulse client is required")
	}
	sink, err := NewSink(Options{Client: client})
	if err != nil {
		return nil, err
	}
	return &Streams{sink: sink, client: client}, nil
}

// Sink returns the publishing sink.
func (s *Streams) Sink() stream.Sink {
	return s.sink
}

// NewSubscriber returns a subscriber on the shared client.
func (s *Streams) NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	opts.Client = s.client
	return NewSubscriber(opts)
}

// Client returns the shared client, for health checks.
func (s *Streams) Client() clientspulse.Client {
	return s.client
}

// Close closes the sink and its client.
func (s *Streams) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}
