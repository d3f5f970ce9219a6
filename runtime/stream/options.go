package stream

import (
	"time"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/telemetry"
)

const (
	// DefaultCapacity is the number of events retained per workflow.
	DefaultCapacity = 1000
	// DefaultGracePeriod is how long a finished workflow stays attachable.
	DefaultGracePeriod = 30 * time.Second
	// DefaultIdleTimeout is how long a workflow may go without activity
	// before the reaper removes it.
	DefaultIdleTimeout = time.Hour
	// DefaultReapInterval is the reaper schedule.
	DefaultReapInterval = 5 * time.Minute
	// DefaultMaxStreams bounds the number of concurrently tracked workflows.
	DefaultMaxStreams = 10000
	// DefaultMaxSubscribers bounds the number of consumers per workflow.
	DefaultMaxSubscribers = 64
)

type (
	// Option configures a Coordinator.
	Option func(*options)

	// SubscribeOption configures a Subscription.
	SubscribeOption func(*subscribeOptions)

	options struct {
		capacity       int
		gracePeriod    time.Duration
		idleTimeout    time.Duration
		reapInterval   time.Duration
		maxStreams     int
		maxSubscribers int
		logger         telemetry.Logger
		metrics        telemetry.Metrics
		now            func() time.Time
	}

	subscribeOptions struct {
		fromLatest bool
	}
)

// WithCapacity sets the number of events retained per workflow. Values below
// one are ignored.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithGracePeriod sets how long a workflow remains attachable after its
// terminal event.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.gracePeriod = d
		}
	}
}

// WithIdleTimeout sets the inactivity threshold used by the reaper.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithReapInterval sets the reaper schedule. Zero disables the scheduled
// reaper; Reap may still be called directly.
func WithReapInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.reapInterval = d
		}
	}
}

// WithMaxStreams bounds the number of tracked workflows. Zero means
// unbounded.
func WithMaxStreams(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxStreams = n
		}
	}
}

// WithMaxSubscribers bounds the number of concurrent consumers per workflow.
// Zero means unbounded.
func WithMaxSubscribers(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxSubscribers = n
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the coordinator metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock overrides the time source. Grace-period timers still use real
// time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// FromLatest starts the subscription at the next published event instead of
// the oldest retained one.
func FromLatest() SubscribeOption {
	return func(o *subscribeOptions) {
		o.fromLatest = true
	}
}

func defaultOptions() options {
	return options{
		capacity:       DefaultCapacity,
		gracePeriod:    DefaultGracePeriod,
		idleTimeout:    DefaultIdleTimeout,
		reapInterval:   DefaultReapInterval,
		maxStreams:     DefaultMaxStreams,
		maxSubscribers: DefaultMaxSubscribers,
		logger:         telemetry.NewNoopLogger(),
		metrics:        telemetry.NewNoopMetrics(),
		now:            time.Now,
	}
}
