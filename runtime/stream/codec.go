package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format of event timestamps: ISO-8601 UTC with
// millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type header struct {
	Type       EventType `json:"type"`
	WorkflowID string    `json:"workflow_id"`
	Timestamp  string    `json:"timestamp"`
}

// Marshal encodes ev as a flat JSON object holding type, workflow_id,
// timestamp and the payload fields.
func Marshal(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("marshal event: nil event")
	}
	hb, err := json.Marshal(header{
		Type:       ev.Type(),
		WorkflowID: ev.WorkflowID(),
		Timestamp:  ev.Timestamp().UTC().Format(TimestampLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event header: %w", err)
	}
	pb, err := json.Marshal(ev.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Type(), err)
	}
	pb = bytes.TrimSpace(pb)
	if len(pb) < 2 || pb[0] != '{' {
		return nil, fmt.Errorf("marshal %s payload: not an object", ev.Type())
	}
	if string(pb) == "{}" {
		return hb, nil
	}
	out := make([]byte, 0, len(hb)+len(pb))
	out = append(out, hb[:len(hb)-1]...)
	out = append(out, ',')
	out = append(out, pb[1:]...)
	return out, nil
}

// Unmarshal decodes a flat JSON event produced by Marshal into its concrete
// type. Unknown event types are rejected.
func Unmarshal(data []byte) (Event, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("unmarshal event header: %w", err)
	}
	if !h.Type.Valid() {
		return nil, fmt.Errorf("unmarshal event: unknown type %q", h.Type)
	}
	var ts time.Time
	if h.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, h.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("unmarshal event timestamp: %w", err)
		}
		ts = parsed
	}
	base := NewBase(h.Type, h.WorkflowID, ts)
	switch h.Type {
	case EventWorkflowStarted:
		return decode[WorkflowStartedPayload](data, func(p WorkflowStartedPayload) Event {
			return WorkflowStarted{Base: base, Data: p}
		})
	case EventReasoningStep:
		return decode[ReasoningStepPayload](data, func(p ReasoningStepPayload) Event {
			return ReasoningStep{Base: base, Data: p}
		})
	case EventToolStart:
		return decode[ToolStartPayload](data, func(p ToolStartPayload) Event {
			return ToolStart{Base: base, Data: p}
		})
	case EventToolEnd:
		return decode[ToolEndPayload](data, func(p ToolEndPayload) Event {
			return ToolEnd{Base: base, Data: p}
		})
	case EventAgentThinking:
		return decode[AgentThinkingPayload](data, func(p AgentThinkingPayload) Event {
			return AgentThinking{Base: base, Data: p}
		})
	case EventWorkflowCompleted:
		return decode[WorkflowCompletedPayload](data, func(p WorkflowCompletedPayload) Event {
			if p.ToolsUsed == nil {
				p.ToolsUsed = []string{}
			}
			return WorkflowCompleted{Base: base, Data: p}
		})
	case EventWorkflowError:
		return decode[WorkflowErrorPayload](data, func(p WorkflowErrorPayload) Event {
			return WorkflowError{Base: base, Data: p}
		})
	default:
		return decode[HeartbeatPayload](data, func(p HeartbeatPayload) Event {
			return Heartbeat{Base: base, Data: p}
		})
	}
}

func decode[P any](data []byte, build func(P) Event) (Event, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}
	return build(p), nil
}
