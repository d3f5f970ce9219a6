package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type sliceSource struct {
	events []stream.Event
	err    error
	block  bool
}

func (s *sliceSource) Next(ctx context.Context) (stream.Event, error) {
	if len(s.events) == 0 {
		if s.block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func serve(t *testing.T, src Source, done chan<- error) *websocket.Conn {
	t.Helper()
	up := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			done <- err
			return
		}
		done <- Serve(r.Context(), conn, src, Options{})
	}))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeStreamsEvents(t *testing.T) {
	done := make(chan error, 1)
	conn := serve(t, &sliceSource{events: []stream.Event{
		stream.NewWorkflowStarted("wf_1", at, stream.WorkflowStartedPayload{InitialPrompt: "hi", AgentType: stream.DefaultAgentType}),
		stream.NewWorkflowCompleted("wf_1", at, stream.WorkflowCompletedPayload{FinalResponse: "done"}),
	}}, done)

	var got []stream.EventType
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
			break
		}
		ev, err := stream.Unmarshal(b)
		require.NoError(t, err)
		got = append(got, ev.Type())
	}
	require.Equal(t, []stream.EventType{stream.EventWorkflowStarted, stream.EventWorkflowCompleted}, got)
	require.NoError(t, <-done)
}

func TestServeReportsSourceError(t *testing.T) {
	done := make(chan error, 1)
	conn := serve(t, &sliceSource{err: stream.ErrStreamClosed}, done)
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	require.ErrorIs(t, <-done, stream.ErrStreamClosed)
}

func TestServeEndsWhenClientLeaves(t *testing.T) {
	done := make(chan error, 1)
	conn := serve(t, &sliceSource{block: true}, done)
	require.NoError(t, conn.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after client close")
	}
}

func TestUpgraderOrigin(t *testing.T) {
	up := NewUpgrader(func(origin string) bool { return origin == "https://app.example.com" })
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	require.False(t, up.CheckOrigin(r))
	r.Header.Set("Origin", "https://app.example.com")
	require.True(t, up.CheckOrigin(r))
}
