// Package pulse mirrors workflow streams into goa.design/pulse (Redis
// streams) so consumers in other processes can follow a workflow. The sink
// side plugs into the producer as a stream.Sink; the subscriber side turns a
// Pulse stream back into stream.Event values.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camrenhall/luceron-ai-communications-agent/features/stream/pulse/clients/pulse"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

type (
	// Options configures the Pulse sink.
	Options struct {
		// Client publishes events. Required.
		Client pulse.Client
		// StreamID maps a workflow id to a Pulse stream name. Defaults to
		// "workflow/<id>".
		StreamID func(workflowID string) string
	}

	// Sink publishes stream events into per-workflow Pulse streams. It is
	// safe for concurrent use.
	Sink struct {
		client   pulse.Client
		streamID func(string) string
	}

	// envelope is the wire form of an event on a Pulse stream.
	envelope struct {
		Type       stream.EventType `json:"type"`
		WorkflowID string           `json:"workflow_id"`
		Timestamp  string           `json:"timestamp"`
		Payload    json.RawMessage  `json:"payload,omitempty"`
	}
)

var _ stream.Sink = (*Sink)(nil)

// NewSink returns a Sink publishing through opts.Client.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	id := opts.StreamID
	if id == nil {
		id = StreamID
	}
	return &Sink{client: opts.Client, streamID: id}, nil
}

// StreamID is the default Pulse stream name of a workflow.
func StreamID(workflowID string) string {
	return "workflow/" + workflowID
}

// Send appends event to its workflow's Pulse stream. The Pulse event name is
// the event type.
func (s *Sink) Send(ctx context.Context, event stream.Event) error {
	if event.WorkflowID() == "" {
		return errors.New("stream event missing workflow id")
	}
	body, err := marshalEnvelope(event)
	if err != nil {
		return err
	}
	h, err := s.client.Stream(s.streamID(event.WorkflowID()))
	if err != nil {
		return err
	}
	if _, err := h.Add(ctx, string(event.Type()), body); err != nil {
		return err
	}
	return nil
}

// Close closes the Pulse client.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func marshalEnvelope(event stream.Event) ([]byte, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.Type(), err)
	}
	return json.Marshal(envelope{
		Type:       event.Type(),
		WorkflowID: event.WorkflowID(),
		Timestamp:  event.Timestamp().UTC().Format(stream.TimestampLayout),
		Payload:    payload,
	})
}

// decodeEnvelope rebuilds a typed event from its envelope by flattening the
// payload next to the header fields.
func decodeEnvelope(data []byte) (stream.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	flat := make(map[string]json.RawMessage)
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, &flat); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	for k, v := range map[string]any{
		"type":        env.Type,
		"workflow_id": env.WorkflowID,
		"timestamp":   env.Timestamp,
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		flat[k] = b
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return nil, err
	}
	return stream.Unmarshal(b)
}
