package stream

import (
	"context"
	"errors"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/telemetry"
)

type (
	// Sink delivers events to an external transport such as a message bus.
	// Implementations must be safe for concurrent use.
	Sink interface {
		// Send publishes one event.
		Send(ctx context.Context, event Event) error
		// Close releases transport resources. It is idempotent.
		Close(ctx context.Context) error
	}

	// Relay mirrors a workflow's stream into a Sink. It reads through its own
	// subscription so a slow or failing sink never blocks the producer.
	Relay struct {
		sink   Sink
		logger telemetry.Logger
	}
)

// NewRelay returns a Relay forwarding to sink. A nil logger discards logs.
func NewRelay(sink Sink, logger telemetry.Logger) (*Relay, error) {
	if sink == nil {
		return nil, errors.New("stream sink is required")
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Relay{sink: sink, logger: logger}, nil
}

// Forward subscribes to workflowID and sends each event to the sink until the
// stream ends or ctx is done. Send failures are logged and skipped. It returns
// nil when the terminal event was forwarded.
func (r *Relay) Forward(ctx context.Context, coord *Coordinator, workflowID string) error {
	sub, err := coord.Subscribe(ctx, workflowID)
	if err != nil {
		return err
	}
	defer sub.Close()
	for ev := range sub.All(ctx) {
		if err := r.sink.Send(ctx, ev); err != nil {
			r.logger.Warn(ctx, "failed to relay stream event",
				"workflow_id", workflowID, "type", string(ev.Type()), "err", err)
		}
	}
	return sub.Err()
}
