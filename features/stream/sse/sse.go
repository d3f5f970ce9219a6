// Package sse writes workflow events to HTTP clients as Server-Sent Events.
// Each event is one "data:" frame holding the flat JSON encoding of the
// event, flushed as soon as it is written.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

type (
	// Source yields events in order until io.EOF. *stream.Subscription
	// implements it.
	Source interface {
		Next(ctx context.Context) (stream.Event, error)
	}

	// Writer frames events onto a response. It implements stream.Sink so it
	// can also be fed by a stream.Relay.
	Writer struct {
		mu      sync.Mutex
		w       io.Writer
		flusher http.Flusher
	}
)

var (
	_ stream.Sink = (*Writer)(nil)

	// ErrStreamingUnsupported is returned when the response cannot be flushed.
	ErrStreamingUnsupported = errors.New("response writer does not support flushing")
)

// NewWriter prepares w for an event stream: it sets the SSE headers and
// writes the 200 status line.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes ev as a single data frame and flushes it.
func (w *Writer) Send(_ context.Context, ev stream.Event) error {
	b, err := stream.Marshal(ev)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", b); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Comment writes an SSE comment line. Clients ignore it; proxies see
// traffic.
func (w *Writer) Comment(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	text = strings.ReplaceAll(text, "\n", " ")
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Close is a no-op; the HTTP server owns the response.
func (w *Writer) Close(context.Context) error { return nil }

// Copy writes every event of src to w until src ends. It returns nil when
// src is exhausted or ctx is done, and the first source or write error
// otherwise.
func Copy(ctx context.Context, w *Writer, src Source) error {
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := w.Send(ctx, ev); err != nil {
			return fmt.Errorf("write %s event: %w", ev.Type(), err)
		}
	}
}

// Serve is NewWriter followed by Copy.
func Serve(ctx context.Context, w http.ResponseWriter, src Source) error {
	sw, err := NewWriter(w)
	if err != nil {
		return err
	}
	return Copy(ctx, sw, src)
}
