// Package websocket delivers workflow events to websocket clients, one text
// message per event. Client messages are read and discarded; a client close
// or read error ends the session.
package websocket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
)

const (
	// DefaultWriteWait bounds a single frame write.
	DefaultWriteWait = 10 * time.Second
	// DefaultPongWait is how long a client may stay silent before the
	// session is dropped.
	DefaultPongWait = 60 * time.Second
)

type (
	// Source yields events in order until io.EOF.
	Source interface {
		Next(ctx context.Context) (stream.Event, error)
	}

	// Options tunes session timing. Zero values use the defaults.
	Options struct {
		WriteWait time.Duration
		PongWait  time.Duration
	}

	// Conn is the subset of *websocket.Conn used by Serve.
	Conn interface {
		WriteMessage(messageType int, data []byte) error
		WriteControl(messageType int, data []byte, deadline time.Time) error
		SetWriteDeadline(t time.Time) error
		SetReadDeadline(t time.Time) error
		SetPongHandler(h func(appData string) error)
		ReadMessage() (messageType int, p []byte, err error)
		Close() error
	}
)

// NewUpgrader returns an upgrader accepting origins for which allow returns
// true. A nil allow accepts every origin.
func NewUpgrader(allow func(origin string) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allow == nil {
				return true
			}
			return allow(r.Header.Get("Origin"))
		},
	}
}

// Serve streams src to conn until src ends, the client goes away or ctx is
// done. It closes conn before returning. A normal closure frame is sent when
// src is exhausted.
func Serve(ctx context.Context, conn Conn, src Source, opts Options) error {
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readLoop(cancel, conn, opts.PongWait)

	pings := time.NewTicker(opts.PongWait * 9 / 10)
	defer pings.Stop()
	next := make(chan result, 1)
	pull := func() {
		ev, err := src.Next(ctx)
		next <- result{ev: ev, err: err}
	}
	go pull()

	for {
		select {
		case <-pings.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(opts.WriteWait)); err != nil {
				cancel()
				<-next
				return nil
			}
		case r := <-next:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "workflow ended")
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(opts.WriteWait))
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, r.err.Error())
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(opts.WriteWait))
				return r.err
			}
			b, err := stream.Marshal(r.ev)
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return nil
			}
			go pull()
		}
	}
}

type result struct {
	ev  stream.Event
	err error
}

func readLoop(cancel context.CancelFunc, conn Conn, pongWait time.Duration) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
