package pulse

import (
	"context"
	"errors"
	"fmt"

	streamopts "goa.design/pulse/streaming/options"

	clientspulse "github.com/camrenhall/luceron-ai-communications-agent/features/stream/pulse/clients/pulse"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

type (
	// EnvelopeDecoder converts a raw Pulse payload into an event.
	EnvelopeDecoder func([]byte) (stream.Event, error)

	// SubscriberOptions configures a Subscriber.
	SubscriberOptions struct {
		// Client reads streams. Required.
		Client clientspulse.Client
		// SinkName is the Pulse consumer group. Defaults to "agentstream".
		SinkName string
		// Buffer is the event channel capacity. Defaults to 64.
		Buffer int
		// StreamID maps a workflow id to a stream name. Defaults to StreamID.
		StreamID func(workflowID string) string
		// Decoder overrides envelope decoding.
		Decoder EnvelopeDecoder
	}

	// Subscriber follows workflow streams published by another process.
	Subscriber struct {
		client   clientspulse.Client
		name     string
		buffer   int
		streamID func(string) string
		decode   EnvelopeDecoder
	}
)

// NewSubscriber returns a Subscriber reading through opts.Client.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	s := &Subscriber{
		client:   opts.Client,
		name:     opts.SinkName,
		buffer:   opts.Buffer,
		streamID: opts.StreamID,
		decode:   opts.Decoder,
	}
	if s.name == "" {
		s.name = "agentstream"
	}
	if s.buffer <= 0 {
		s.buffer = 64
	}
	if s.streamID == nil {
		s.streamID = StreamID
	}
	if s.decode == nil {
		s.decode = decodeEnvelope
	}
	return s, nil
}

// Subscribe follows workflowID's Pulse stream. Events are delivered in stream
// order; the channel closes after a terminal event, when ctx is done, or when
// cancel is called. At most one error is sent on errs before both channels
// close.
func (s *Subscriber) Subscribe(ctx context.Context, workflowID string, opts ...streamopts.Sink) (<-chan stream.Event, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(s.streamID(workflowID))
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	events := make(chan stream.Event, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, events, errs)
	return events, errs, func() {
		cancel()
		sink.Close(context.Background())
	}, nil
}

func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- stream.Event, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			ev, err := s.decode(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if err := sink.Ack(ctx, evt); err != nil {
				errs <- fmt.Errorf("pulse ack: %w", err)
				return
			}
			if stream.IsTerminal(ev) {
				return
			}
		}
	}
}
