package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type (
	// Coordinator is the registry of active workflow streams. It is safe for
	// concurrent use: Publish never blocks and never fails, and consumers
	// attach through Subscribe.
	//
	// Streams leave the registry three ways: a grace period after their
	// terminal event, when the reaper finds them idle past the idle timeout,
	// or when the coordinator is closed.
	Coordinator struct {
		opts options

		mu      sync.RWMutex
		streams map[string]*state
		closed  bool

		lifecycle sync.Mutex
		reaper    *cron.Cron
	}

	// Handle is returned by CreateStream. It binds coordinator operations to a
	// single workflow.
	Handle struct {
		id    string
		coord *Coordinator
	}
)

// NewCoordinator returns a Coordinator configured with opts. Call Start to
// run the scheduled reaper.
func NewCoordinator(opts ...Option) *Coordinator {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Coordinator{opts: o, streams: make(map[string]*state)}
}

// Start schedules the reaper every reap interval. It returns an error when
// called twice or after Close.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.isClosed() {
		return ErrCoordinatorClosed
	}
	if c.reaper != nil {
		return errors.New("stream: coordinator already started")
	}
	if c.opts.reapInterval <= 0 {
		c.opts.logger.Info(ctx, "stream reaper disabled")
		return nil
	}
	c.reaper = cron.New()
	c.reaper.Schedule(cron.Every(c.opts.reapInterval), cron.FuncJob(func() {
		c.Reap(context.Background())
	}))
	c.reaper.Start()
	c.opts.logger.Info(ctx, "stream reaper started",
		"interval", c.opts.reapInterval.String(),
		"idle_timeout", c.opts.idleTimeout.String())
	return nil
}

// Close stops the reaper and removes every stream so blocked consumers
// return. It is idempotent.
func (c *Coordinator) Close(ctx context.Context) error {
	c.lifecycle.Lock()
	reaper := c.reaper
	c.reaper = nil
	c.lifecycle.Unlock()
	if reaper != nil {
		select {
		case <-reaper.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	victims := make([]*state, 0, len(c.streams))
	for id, st := range c.streams {
		victims = append(victims, st)
		delete(c.streams, id)
	}
	c.mu.Unlock()

	for _, st := range victims {
		st.remove()
	}
	c.opts.metrics.RecordGauge("stream.active", 0)
	c.opts.logger.Info(ctx, "stream coordinator closed", "streams", len(victims))
	return nil
}

// CreateStream registers a stream for workflowID and enqueues its
// WorkflowStarted event.
func (c *Coordinator) CreateStream(ctx context.Context, workflowID, initialPrompt string) (*Handle, error) {
	return c.CreateStreamWithAgent(ctx, workflowID, initialPrompt, DefaultAgentType)
}

// CreateStreamWithAgent is CreateStream with an explicit agent type reported
// by WorkflowStarted.
func (c *Coordinator) CreateStreamWithAgent(ctx context.Context, workflowID, initialPrompt, agentType string) (*Handle, error) {
	if workflowID == "" {
		return nil, errors.New("workflow id is required")
	}
	if agentType == "" {
		agentType = DefaultAgentType
	}
	now := c.opts.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCoordinatorClosed
	}
	if _, ok := c.streams[workflowID]; ok {
		c.mu.Unlock()
		return nil, &DuplicateWorkflowError{WorkflowID: workflowID}
	}
	if c.opts.maxStreams > 0 && len(c.streams) >= c.opts.maxStreams {
		c.mu.Unlock()
		return nil, ErrTooManyStreams
	}
	st := newState(workflowID, c.opts.capacity, now)
	c.streams[workflowID] = st
	active := len(c.streams)
	c.mu.Unlock()

	c.opts.metrics.RecordGauge("stream.active", float64(active))
	c.opts.logger.Info(ctx, "stream created", "workflow_id", workflowID, "active", active)

	c.Publish(ctx, workflowID, NewWorkflowStarted(workflowID, now, WorkflowStartedPayload{
		InitialPrompt: initialPrompt,
		AgentType:     agentType,
	}))
	return &Handle{id: workflowID, coord: c}, nil
}

// Publish appends ev to the workflow's queue. It never blocks and never
// fails: publishing to an unknown or finished workflow is logged and ignored,
// and a full queue evicts its oldest event. The event is stamped with
// workflowID and a timestamp no earlier than the previous event's. Publishing
// a terminal event marks the workflow terminal.
func (c *Coordinator) Publish(ctx context.Context, workflowID string, ev Event) {
	if ev == nil {
		c.opts.logger.Warn(ctx, "ignoring nil stream event", "workflow_id", workflowID)
		return
	}
	st := c.lookup(workflowID)
	if st == nil {
		c.opts.logger.Warn(ctx, "publish to unknown workflow stream",
			"workflow_id", workflowID, "type", string(ev.Type()))
		return
	}
	stored, res := st.append(ev, c.opts.now())
	switch res {
	case appendRemoved:
		c.opts.logger.Warn(ctx, "publish to removed workflow stream",
			"workflow_id", workflowID, "type", string(ev.Type()))
		return
	case appendAfterTerminal:
		c.opts.logger.Warn(ctx, "discarding event published after terminal event",
			"workflow_id", workflowID, "type", string(ev.Type()))
		return
	case appendAcceptedWithDrop:
		c.opts.metrics.IncCounter("stream.events.dropped", 1)
		if st.overflowLog.Allow() {
			info := st.info()
			c.opts.logger.Warn(ctx, "stream queue full, dropped oldest event",
				"workflow_id", workflowID,
				"capacity", c.opts.capacity,
				"dropped_total", info.Dropped)
		}
	}
	c.opts.metrics.IncCounter("stream.events.published", 1, "type", string(stored.Type()))
	if IsTerminal(stored) {
		c.MarkTerminal(ctx, workflowID)
	}
}

// Subscribe attaches a consumer to the workflow's stream. By default the
// subscription replays the buffered backlog, starting at the oldest retained
// event, before following live events; FromLatest skips the backlog.
func (c *Coordinator) Subscribe(ctx context.Context, workflowID string, opts ...SubscribeOption) (*Subscription, error) {
	var so subscribeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}
	c.mu.RLock()
	closed := c.closed
	st := c.streams[workflowID]
	c.mu.RUnlock()
	if closed {
		return nil, ErrCoordinatorClosed
	}
	if st == nil {
		return nil, &UnknownWorkflowError{WorkflowID: workflowID}
	}
	cursor, err := st.attach(c.opts.maxSubscribers, so.fromLatest, c.opts.now())
	if err != nil {
		return nil, err
	}
	c.opts.logger.Debug(ctx, "stream subscriber attached", "workflow_id", workflowID)
	return &Subscription{st: st, cursor: cursor, now: c.opts.now}, nil
}

// MarkTerminal flags the workflow as finished and schedules its removal after
// the grace period. Subsequent calls have no effect.
func (c *Coordinator) MarkTerminal(ctx context.Context, workflowID string) {
	st := c.lookup(workflowID)
	if st == nil || !st.markTerminal() {
		return
	}
	st.setGraceTimer(time.AfterFunc(c.opts.gracePeriod, func() {
		c.removeState(context.Background(), workflowID, st, "grace period elapsed")
	}))
	c.opts.logger.Debug(ctx, "stream marked terminal",
		"workflow_id", workflowID, "grace_period", c.opts.gracePeriod.String())
}

// Reap removes every stream idle for longer than the idle timeout, finished
// or not, and returns how many were removed. The scheduled reaper calls it;
// callers may also run a pass directly.
func (c *Coordinator) Reap(ctx context.Context) int {
	cutoff := c.opts.now().Add(-c.opts.idleTimeout)
	c.mu.Lock()
	var victims []*state
	for id, st := range c.streams {
		if st.lastActivity().Before(cutoff) {
			victims = append(victims, st)
			delete(c.streams, id)
		}
	}
	active := len(c.streams)
	c.mu.Unlock()

	for _, st := range victims {
		abandoned := st.remove()
		c.opts.logger.Info(ctx, "reaped idle workflow stream",
			"workflow_id", st.id, "abandoned", abandoned)
	}
	if len(victims) > 0 {
		c.opts.metrics.RecordGauge("stream.active", float64(active))
	}
	return len(victims)
}

// Len returns the number of registered streams.
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.streams)
}

// IsActive reports whether a stream is registered for workflowID and has not
// yet produced its terminal event.
func (c *Coordinator) IsActive(workflowID string) bool {
	st := c.lookup(workflowID)
	if st == nil {
		return false
	}
	return !st.info().Terminal
}

// Info returns a snapshot of the workflow's stream.
func (c *Coordinator) Info(workflowID string) (Info, bool) {
	st := c.lookup(workflowID)
	if st == nil {
		return Info{}, false
	}
	return st.info(), true
}

func (c *Coordinator) lookup(workflowID string) *state {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streams[workflowID]
}

func (c *Coordinator) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// removeState deletes st from the registry if it is still the registered
// state for workflowID.
func (c *Coordinator) removeState(ctx context.Context, workflowID string, st *state, reason string) {
	c.mu.Lock()
	if cur, ok := c.streams[workflowID]; !ok || cur != st {
		c.mu.Unlock()
		return
	}
	delete(c.streams, workflowID)
	active := len(c.streams)
	c.mu.Unlock()

	st.remove()
	c.opts.metrics.RecordGauge("stream.active", float64(active))
	c.opts.logger.Info(ctx, "removed workflow stream", "workflow_id", workflowID, "reason", reason)
}

// ID returns the workflow ID.
func (h *Handle) ID() string { return h.id }

// Publish publishes ev to the workflow.
func (h *Handle) Publish(ctx context.Context, ev Event) { h.coord.Publish(ctx, h.id, ev) }

// MarkTerminal marks the workflow terminal.
func (h *Handle) MarkTerminal(ctx context.Context) { h.coord.MarkTerminal(ctx, h.id) }

// Subscribe attaches a consumer to the workflow.
func (h *Handle) Subscribe(ctx context.Context, opts ...SubscribeOption) (*Subscription, error) {
	return h.coord.Subscribe(ctx, h.id, opts...)
}
