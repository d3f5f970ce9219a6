package pulse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

func collect(t *testing.T, events <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestSubscribeFollowsUntilTerminal(t *testing.T) {
	ctx := context.Background()
	cli := newFakeClient()
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	for _, ev := range []stream.Event{
		stream.NewWorkflowStarted("wf_1", at, stream.WorkflowStartedPayload{InitialPrompt: "hi", AgentType: stream.DefaultAgentType}),
		stream.NewHeartbeat("wf_1", at.Add(time.Second), stream.HeartbeatStatusProcessing),
		stream.NewWorkflowError("wf_1", at.Add(2*time.Second), stream.WorkflowErrorPayload{ErrorMessage: "failed", ErrorType: "timeout"}),
		stream.NewHeartbeat("wf_1", at.Add(3*time.Second), stream.HeartbeatStatusProcessing),
	} {
		require.NoError(t, sink.Send(ctx, ev))
	}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)
	events, errs, cancel, err := sub.Subscribe(ctx, "wf_1")
	require.NoError(t, err)
	defer cancel()
	str := cli.stream("workflow/wf_1")
	str.replay()

	got := collect(t, events)
	require.Len(t, got, 3)
	require.Equal(t, stream.EventWorkflowStarted, got[0].Type())
	require.Equal(t, stream.EventWorkflowError, got[2].Type())
	_, open := <-errs
	require.False(t, open)
	require.Equal(t, "agentstream", str.sink.name)
	require.Len(t, str.sink.acked, 3)
}

func TestSubscribeDecoderError(t *testing.T) {
	ctx := context.Background()
	cli := newFakeClient()
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	require.NoError(t, sink.Send(ctx, stream.NewHeartbeat("wf_1", at, "processing")))

	sub, err := NewSubscriber(SubscriberOptions{
		Client:  cli,
		Decoder: func([]byte) (stream.Event, error) { return nil, errors.New("decode error") },
	})
	require.NoError(t, err)
	events, errs, cancel, err := sub.Subscribe(ctx, "wf_1")
	require.NoError(t, err)
	defer cancel()
	cli.stream("workflow/wf_1").replay()

	require.EqualError(t, <-errs, "pulse decode payload: decode error")
	require.Empty(t, collect(t, events))
}

func TestSubscribeCancelClosesSink(t *testing.T) {
	cli := newFakeClient()
	sub, err := NewSubscriber(SubscriberOptions{Client: cli, SinkName: "ui"})
	require.NoError(t, err)
	events, _, cancel, err := sub.Subscribe(context.Background(), "wf_2")
	require.NoError(t, err)
	cancel()
	require.Empty(t, collect(t, events))
	str := cli.stream("workflow/wf_2")
	require.True(t, str.sink.closed)
	require.Equal(t, "ui", str.sink.name)
}

func TestSubscribeSinkError(t *testing.T) {
	cli := newFakeClient()
	cli.stream("workflow/wf_3").sinkErr = errors.New("group")
	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)
	_, _, _, err = sub.Subscribe(context.Background(), "wf_3")
	require.EqualError(t, err, "group")
}
