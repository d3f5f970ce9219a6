package stream

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type (
	// state is the per-workflow event queue. Events live in a ring buffer
	// addressed by absolute sequence numbers: head is the sequence of the
	// oldest retained event and next the sequence the next append receives.
	state struct {
		id string

		mu        sync.Mutex
		buf       []Event
		head      uint64
		next      uint64
		notify    chan struct{}
		createdAt time.Time
		lastSeen  time.Time
		lastTS    time.Time
		terminal  bool
		removed   bool
		consumers int
		published uint64
		dropped   uint64
		grace     *time.Timer
		// graceArmed is set once the removal timer has been requested.
		graceArmed bool

		// overflowLog limits overflow warnings to one per second per stream.
		overflowLog *rate.Limiter
	}

	// Info is a point-in-time snapshot of a workflow stream.
	Info struct {
		WorkflowID     string    `json:"workflow_id"`
		CreatedAt      time.Time `json:"created_at"`
		LastActivityAt time.Time `json:"last_activity_at"`
		Terminal       bool      `json:"terminal"`
		Buffered       int       `json:"buffered"`
		Subscribers    int       `json:"subscribers"`
		Published      uint64    `json:"published"`
		Dropped        uint64    `json:"dropped"`
	}

	appendResult int

	readResult int
)

const (
	appendAccepted appendResult = iota
	appendAcceptedWithDrop
	appendAfterTerminal
	appendRemoved
)

const (
	readEvent readResult = iota
	readWait
	readEnd
	readClosed
)

func newState(id string, capacity int, now time.Time) *state {
	return &state{
		id:          id,
		buf:         make([]Event, capacity),
		notify:      make(chan struct{}),
		createdAt:   now,
		lastSeen:    now,
		overflowLog: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// append stamps ev with the stream's workflow ID and a non-decreasing
// timestamp and stores it, evicting the oldest event when the buffer is full.
// It returns the stored event.
func (s *state) append(ev Event, now time.Time) (Event, appendResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return nil, appendRemoved
	}
	if s.terminal {
		return nil, appendAfterTerminal
	}
	ts := ev.Timestamp()
	if ts.IsZero() {
		ts = now
	}
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	ev = ev.rebase(NewBase(ev.Type(), s.id, ts))
	s.lastTS = ev.Timestamp()

	res := appendAccepted
	if s.next-s.head == uint64(len(s.buf)) {
		s.buf[s.head%uint64(len(s.buf))] = nil
		s.head++
		s.dropped++
		res = appendAcceptedWithDrop
	}
	s.buf[s.next%uint64(len(s.buf))] = ev
	s.next++
	s.published++
	s.lastSeen = now
	if IsTerminal(ev) {
		s.terminal = true
	}
	s.broadcast()
	return ev, res
}

// read returns the event at cursor or, when none is available yet, the
// channel that is closed on the next state change. skipped reports how many
// events the cursor lost to eviction.
func (s *state) read(cursor uint64, now time.Time) (ev Event, nextCursor uint64, skipped uint64, wait <-chan struct{}, res readResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor < s.head {
		skipped = s.head - cursor
		cursor = s.head
	}
	if cursor < s.next {
		s.lastSeen = now
		return s.buf[cursor%uint64(len(s.buf))], cursor + 1, skipped, nil, readEvent
	}
	switch {
	case s.terminal:
		return nil, cursor, skipped, nil, readEnd
	case s.removed:
		return nil, cursor, skipped, nil, readClosed
	}
	return nil, cursor, skipped, s.notify, readWait
}

// attach registers a consumer and returns its starting cursor. It fails when
// the stream is gone or max consumers are attached (zero means no bound).
func (s *state) attach(max int, fromLatest bool, now time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed && !s.terminal {
		return 0, &UnknownWorkflowError{WorkflowID: s.id}
	}
	if max > 0 && s.consumers >= max {
		return 0, ErrTooManySubscribers
	}
	s.consumers++
	s.lastSeen = now
	if fromLatest {
		return s.next, nil
	}
	return s.head, nil
}

func (s *state) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumers > 0 {
		s.consumers--
	}
}

// markTerminal sets the terminal flag and reports whether the caller must arm
// the grace timer. It returns true at most once per stream, whether the flag
// was set here or by appending a terminal event.
func (s *state) markTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed || s.graceArmed {
		return false
	}
	if !s.terminal {
		s.terminal = true
		s.broadcast()
	}
	s.graceArmed = true
	return true
}

func (s *state) setGraceTimer(t *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		t.Stop()
		return
	}
	s.grace = t
}

// remove marks the state as removed, stops its grace timer and wakes every
// waiting consumer. It reports whether the stream ended without a terminal
// event.
func (s *state) remove() (abandoned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return false
	}
	s.removed = true
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
	s.broadcast()
	return !s.terminal
}

func (s *state) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *state) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		WorkflowID:     s.id,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastSeen,
		Terminal:       s.terminal,
		Buffered:       int(s.next - s.head),
		Subscribers:    s.consumers,
		Published:      s.published,
		Dropped:        s.dropped,
	}
}

// broadcast wakes every waiter. Callers hold s.mu.
func (s *state) broadcast() {
	close(s.notify)
	s.notify = make(chan struct{})
}
