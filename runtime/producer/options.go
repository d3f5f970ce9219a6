package producer

import (
	"time"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/telemetry"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

// DefaultHeartbeatInterval is the period between heartbeats while the engine
// runs.
const DefaultHeartbeatInterval = 30 * time.Second

// Option configures an Adapter.
type Option func(*Adapter)

// WithStore persists workflow status and reasoning steps to s.
func WithStore(s workflow.Store) Option {
	return func(a *Adapter) { a.store = s }
}

// WithHeartbeatInterval sets the heartbeat period. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.heartbeat = d
		}
	}
}

// WithAgentType sets the agent type reported by WorkflowStarted and stored
// records.
func WithAgentType(t string) Option {
	return func(a *Adapter) {
		if t != "" {
			a.agentType = t
		}
	}
}

// WithSink mirrors every workflow's events into sink.
func WithSink(sink stream.Sink) Option {
	return func(a *Adapter) { a.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(l telemetry.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(a *Adapter) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(a *Adapter) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithClock overrides the time source used for event timestamps and
// durations.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}
