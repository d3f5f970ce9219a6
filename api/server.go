// Package api exposes workflows over HTTP: starting them, attaching to their
// live event streams over SSE or websockets, and reading their durable
// status once the stream is gone.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"goa.design/clue/debug"
	"goa.design/clue/health"
	"goa.design/clue/log"
	goahttp "goa.design/goa/v3/http"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/camrenhall/luceron-ai-communications-agent/features/stream/websocket"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/producer"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/telemetry"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

type (
	// Starter starts workflows. *producer.Adapter implements it.
	Starter interface {
		Start(ctx context.Context, workflowID, prompt string) error
	}

	// RemoteSubscriber follows workflows running in other processes.
	// *pulse.Subscriber implements it.
	RemoteSubscriber interface {
		Subscribe(ctx context.Context, workflowID string, opts ...streamopts.Sink) (<-chan stream.Event, <-chan error, context.CancelFunc, error)
	}

	// Options configures the Server.
	Options struct {
		// Coordinator owns the live streams. Required.
		Coordinator *stream.Coordinator
		// Starter runs workflows. Required.
		Starter Starter
		// Store serves the read path. Required.
		Store workflow.Store
		// Remote, when set, is used to attach to workflows unknown to the
		// local coordinator.
		Remote RemoteSubscriber
		// Pingers are checked by /healthz.
		Pingers []health.Pinger
		// Upgrader upgrades websocket requests. Defaults to accepting any
		// origin.
		Upgrader *gorillaws.Upgrader
		// Debug mounts the pprof and log level endpoints and logs request
		// bodies.
		Debug bool
		// Logger defaults to a no-op logger.
		Logger telemetry.Logger
		// NewID generates workflow ids for requests that omit one.
		NewID func() string
	}

	// Server routes HTTP requests.
	Server struct {
		coord    *stream.Coordinator
		starter  Starter
		store    workflow.Store
		remote   RemoteSubscriber
		checker  health.Checker
		upgrader *gorillaws.Upgrader
		debug    bool
		logger   telemetry.Logger
		newID    func() string
		mux      goahttp.Muxer
	}
)

var _ Starter = (*producer.Adapter)(nil)

// New returns a Server with every route mounted.
func New(opts Options) (*Server, error) {
	if opts.Coordinator == nil {
		return nil, errors.New("stream coordinator is required")
	}
	if opts.Starter == nil {
		return nil, errors.New("workflow starter is required")
	}
	if opts.Store == nil {
		return nil, errors.New("workflow store is required")
	}
	s := &Server{
		coord:    opts.Coordinator,
		starter:  opts.Starter,
		store:    opts.Store,
		remote:   opts.Remote,
		checker:  health.NewChecker(opts.Pingers...),
		upgrader: opts.Upgrader,
		debug:    opts.Debug,
		logger:   opts.Logger,
		newID:    opts.NewID,
		mux:      goahttp.NewMuxer(),
	}
	if s.upgrader == nil {
		s.upgrader = websocket.NewUpgrader(nil)
	}
	if s.logger == nil {
		s.logger = telemetry.NewNoopLogger()
	}
	if s.newID == nil {
		s.newID = NewWorkflowID
	}
	s.mount()
	return s, nil
}

// NewWorkflowID returns a random workflow id.
func NewWorkflowID() string {
	return "wf_" + uuid.NewString()
}

// Handler returns the root handler. Requests are logged with the logger
// carried by ctx. Streaming routes get the logger but skip the response
// capturing middlewares, which would hide the Flusher and Hijacker of the
// underlying writer.
func (s *Server) Handler(ctx context.Context) http.Handler {
	var h http.Handler = s.mux
	if s.debug {
		h = debug.HTTP()(h)
	}
	logged := log.HTTP(ctx)(h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isStreaming(r) {
			logged.ServeHTTP(w, r)
			return
		}
		rctx := log.WithContext(r.Context(), ctx)
		log.Info(rctx, log.KV{K: "stream", V: r.URL.Path}, log.KV{K: "method", V: r.Method})
		s.mux.ServeHTTP(w, r.WithContext(rctx))
	})
}

func isStreaming(r *http.Request) bool {
	p := r.URL.Path
	return p == "/chat" || strings.HasSuffix(p, "/stream") || strings.HasSuffix(p, "/ws")
}

func (s *Server) mount() {
	if s.debug {
		debug.MountPprofHandlers(debug.Adapt(s.mux))
		debug.MountDebugLogEnabler(debug.Adapt(s.mux))
	}
	s.mux.Handle(http.MethodGet, "/livez", s.livez)
	s.mux.Handle(http.MethodGet, "/healthz", health.Handler(s.checker).ServeHTTP)
	s.mux.Handle(http.MethodPost, "/chat", s.chat)
	s.mux.Handle(http.MethodPost, "/workflows", s.startWorkflow)
	s.mux.Handle(http.MethodGet, "/workflows/{id}", s.getWorkflow)
	s.mux.Handle(http.MethodGet, "/workflows/{id}/status", s.getStatus)
	s.mux.Handle(http.MethodGet, "/workflows/{id}/stream", s.streamSSE)
	s.mux.Handle(http.MethodGet, "/workflows/{id}/ws", s.streamWS)
	s.mux.Handle(http.MethodGet, "/streams", s.listStreams)
	s.mux.Handle(http.MethodGet, "/streams/{id}", s.getStream)
}
