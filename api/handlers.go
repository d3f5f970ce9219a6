package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	goahttp "goa.design/goa/v3/http"

	"github.com/camrenhall/luceron-ai-communications-agent/features/stream/sse"
	"github.com/camrenhall/luceron-ai-communications-agent/features/stream/websocket"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

type (
	startRequest struct {
		Message    string `json:"message"`
		WorkflowID string `json:"workflow_id,omitempty"`
	}

	startResponse struct {
		WorkflowID string `json:"workflow_id"`
		StreamURL  string `json:"stream_url"`
		WSURL      string `json:"ws_url"`
		StatusURL  string `json:"status_url"`
	}

	streamsResponse struct {
		ActiveStreams int `json:"active_streams"`
	}

	streamInfoResponse struct {
		WorkflowID     string `json:"workflow_id"`
		CreatedAt      string `json:"created_at"`
		LastActivityAt string `json:"last_activity_at"`
		Terminal       bool   `json:"terminal"`
		Active         bool   `json:"active"`
		Buffered       int    `json:"buffered"`
		Subscribers    int    `json:"subscribers"`
		Published      uint64 `json:"published"`
		Dropped        uint64 `json:"dropped"`
	}

	errorResponse struct {
		Error      string          `json:"error"`
		WorkflowID string          `json:"workflow_id,omitempty"`
		Status     workflow.Status `json:"status,omitempty"`
	}

	// source is what the SSE and websocket writers consume.
	source interface {
		Next(ctx context.Context) (stream.Event, error)
	}

	// channelSource adapts a remote subscription to source.
	channelSource struct {
		events <-chan stream.Event
		errs   <-chan error
	}
)

func (s *Server) livez(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

// chat starts a workflow and streams it back on the same response.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := s.start(w, r)
	if !ok {
		return
	}
	sub, err := s.coord.Subscribe(ctx, id)
	if err != nil {
		s.writeError(ctx, w, id, err)
		return
	}
	defer sub.Close()
	if err := sse.Serve(ctx, w, sub); err != nil {
		s.logger.Warn(ctx, "chat stream ended with error", "workflow_id", id, "err", err)
	}
}

// startWorkflow starts a workflow and returns where to follow it.
func (s *Server) startWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.start(w, r)
	if !ok {
		return
	}
	base := "/workflows/" + id
	s.encode(r.Context(), w, http.StatusAccepted, startResponse{
		WorkflowID: id,
		StreamURL:  base + "/stream",
		WSURL:      base + "/ws",
		StatusURL:  base + "/status",
	})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	var body startRequest
	if err := goahttp.RequestDecoder(r).Decode(&body); err != nil {
		s.encode(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return "", false
	}
	body.Message = strings.TrimSpace(body.Message)
	if body.Message == "" {
		s.encode(ctx, w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return "", false
	}
	id := body.WorkflowID
	if id == "" {
		id = s.newID()
	}
	if err := s.starter.Start(ctx, id, body.Message); err != nil {
		s.writeError(ctx, w, id, err)
		return "", false
	}
	s.logger.Info(ctx, "workflow started", "workflow_id", id)
	return id, true
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := s.mux.Vars(r)["id"]
	rec, err := s.store.Load(ctx, id)
	if err != nil {
		s.writeError(ctx, w, id, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, rec)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := s.mux.Vars(r)["id"]
	rec, err := s.store.Load(ctx, id)
	if err != nil {
		s.writeError(ctx, w, id, err)
		return
	}
	s.encode(ctx, w, http.StatusOK, rec.View())
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := s.mux.Vars(r)["id"]
	src, closeFn, err := s.attach(ctx, id)
	if err != nil {
		s.writeError(ctx, w, id, err)
		return
	}
	defer closeFn()
	if err := sse.Serve(ctx, w, src); err != nil {
		s.logger.Warn(ctx, "event stream ended with error", "workflow_id", id, "err", err)
	}
}

func (s *Server) streamWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := s.mux.Vars(r)["id"]
	src, closeFn, err := s.attach(ctx, id)
	if err != nil {
		s.writeError(ctx, w, id, err)
		return
	}
	defer closeFn()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Warn(ctx, "websocket upgrade failed", "workflow_id", id, "err", err)
		return
	}
	if err := websocket.Serve(ctx, conn, src, websocket.Options{}); err != nil {
		s.logger.Warn(ctx, "websocket stream ended with error", "workflow_id", id, "err", err)
	}
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	s.encode(r.Context(), w, http.StatusOK, streamsResponse{ActiveStreams: s.coord.Len()})
}

func (s *Server) getStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := s.mux.Vars(r)["id"]
	info, ok := s.coord.Info(id)
	if !ok {
		s.writeError(ctx, w, id, &stream.UnknownWorkflowError{WorkflowID: id})
		return
	}
	s.encode(ctx, w, http.StatusOK, streamInfoResponse{
		WorkflowID:     info.WorkflowID,
		CreatedAt:      info.CreatedAt.UTC().Format(stream.TimestampLayout),
		LastActivityAt: info.LastActivityAt.UTC().Format(stream.TimestampLayout),
		Terminal:       info.Terminal,
		Active:         s.coord.IsActive(id),
		Buffered:       info.Buffered,
		Subscribers:    info.Subscribers,
		Published:      info.Published,
		Dropped:        info.Dropped,
	})
}

// attach subscribes to id locally, falling back to the remote subscriber
// when the local coordinator does not know the workflow.
func (s *Server) attach(ctx context.Context, id string) (source, func(), error) {
	sub, err := s.coord.Subscribe(ctx, id)
	if err == nil {
		return sub, sub.Close, nil
	}
	var unknown *stream.UnknownWorkflowError
	if !errors.As(err, &unknown) || s.remote == nil {
		return nil, nil, err
	}
	if rec, lerr := s.store.Load(ctx, id); lerr == nil && rec.Status.Terminal() {
		return nil, nil, err
	}
	events, errs, cancel, rerr := s.remote.Subscribe(ctx, id)
	if rerr != nil {
		s.logger.Warn(ctx, "remote attach failed", "workflow_id", id, "err", rerr)
		return nil, nil, err
	}
	return &channelSource{events: events, errs: errs}, cancel, nil
}

// Next implements source.
func (c *channelSource) Next(ctx context.Context) (stream.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-c.events:
		if ok {
			return ev, nil
		}
	}
	if err, ok := <-c.errs; ok && err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, id string, err error) {
	var (
		dup     *stream.DuplicateWorkflowError
		unknown *stream.UnknownWorkflowError
	)
	switch {
	case errors.As(err, &dup):
		s.encode(ctx, w, http.StatusConflict, errorResponse{Error: "workflow already exists", WorkflowID: id})
	case errors.As(err, &unknown):
		resp := errorResponse{Error: "workflow stream not found", WorkflowID: id}
		status := http.StatusNotFound
		if rec, lerr := s.store.Load(ctx, id); lerr == nil {
			resp.Error = "workflow stream has ended"
			resp.Status = rec.Status
			status = http.StatusGone
		}
		s.encode(ctx, w, status, resp)
	case errors.Is(err, workflow.ErrNotFound):
		s.encode(ctx, w, http.StatusNotFound, errorResponse{Error: "workflow not found", WorkflowID: id})
	case errors.Is(err, stream.ErrTooManyStreams), errors.Is(err, stream.ErrTooManySubscribers):
		s.encode(ctx, w, http.StatusTooManyRequests, errorResponse{Error: err.Error(), WorkflowID: id})
	case errors.Is(err, stream.ErrCoordinatorClosed):
		s.encode(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "service is shutting down"})
	default:
		s.logger.Error(ctx, "request failed", "workflow_id", id, "err", err)
		s.encode(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal error", WorkflowID: id})
	}
}

func (s *Server) encode(ctx context.Context, w http.ResponseWriter, status int, v any) {
	enc := goahttp.ResponseEncoder(ctx, w)
	w.WriteHeader(status)
	if err := enc.Encode(v); err != nil {
		s.logger.Warn(ctx, "failed to encode response", "err", err)
	}
}
