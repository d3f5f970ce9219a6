package sse

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type sliceSource struct {
	events []stream.Event
	err    error
}

func (s *sliceSource) Next(ctx context.Context) (stream.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func frames(t *testing.T, body string) []stream.Event {
	t.Helper()
	var out []stream.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		ev, err := stream.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")))
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestServeWritesFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	src := &sliceSource{events: []stream.Event{
		stream.NewWorkflowStarted("wf_1", at, stream.WorkflowStartedPayload{InitialPrompt: "hi", AgentType: stream.DefaultAgentType}),
		stream.NewAgentThinking("wf_1", at, stream.AgentThinkingPayload{Thinking: "plan", PlanningStage: "analysis"}),
		stream.NewWorkflowCompleted("wf_1", at, stream.WorkflowCompletedPayload{FinalResponse: "done"}),
	}}
	require.NoError(t, Serve(context.Background(), rec, src))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	require.True(t, rec.Flushed)

	got := frames(t, rec.Body.String())
	require.Len(t, got, 3)
	require.Equal(t, stream.EventWorkflowCompleted, got[2].Type())
	require.True(t, strings.HasSuffix(rec.Body.String(), "\n\n"))
}

func TestCopyReturnsSourceError(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)
	err = Copy(context.Background(), w, &sliceSource{err: stream.ErrStreamClosed})
	require.ErrorIs(t, err, stream.ErrStreamClosed)
}

func TestCopyStopsOnCanceledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, Copy(ctx, w, &sliceSource{err: context.Canceled}))
}

func TestComment(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)
	require.NoError(t, w.Comment("keep\nalive"))
	require.Equal(t, ": keep alive\n\n", rec.Body.String())
}

type plainWriter struct{ h http.Header }

func (p *plainWriter) Header() http.Header         { return p.h }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestNewWriterRequiresFlusher(t *testing.T) {
	_, err := NewWriter(&plainWriter{h: http.Header{}})
	require.True(t, errors.Is(err, ErrStreamingUnsupported))
}
