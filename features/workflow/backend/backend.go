// Package backend implements workflow.Store over the case-management backend
// REST API. Records live in the backend; this package only translates store
// calls into HTTP requests.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

type (
	// Option configures the Store.
	Option func(*Store)

	// Store implements workflow.Store against the backend API.
	Store struct {
		base    *url.URL
		http    *http.Client
		headers http.Header
		now     func() time.Time
	}

	createRequest struct {
		WorkflowID    string `json:"workflow_id"`
		AgentType     string `json:"agent_type"`
		CaseID        string `json:"case_id,omitempty"`
		Status        string `json:"status"`
		InitialPrompt string `json:"initial_prompt"`
	}

	statusRequest struct {
		Status        string `json:"status"`
		FinalResponse string `json:"final_response,omitempty"`
	}

	stepRequest struct {
		Timestamp    string         `json:"timestamp"`
		Thought      string         `json:"thought"`
		Action       string         `json:"action,omitempty"`
		ActionInput  map[string]any `json:"action_input,omitempty"`
		ActionOutput string         `json:"action_output,omitempty"`
	}

	// StatusError reports an unexpected backend response.
	StatusError struct {
		Method     string
		Path       string
		StatusCode int
		Body       string
	}
)

var _ workflow.Store = (*Store)(nil)

// Error implements error.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("backend %s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// WithHTTPClient overrides the HTTP client. The client transport is used as
// is and not wrapped with request logging.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.http = c
	}
}

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.headers.Set("Authorization", "Bearer "+key)
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.http.Timeout = d
		}
	}
}

// New returns a Store targeting the backend at baseURL.
func New(baseURL string, opts ...Option) (*Store, error) {
	if baseURL == "" {
		return nil, errors.New("backend url is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	s := &Store{
		base: u,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: log.Client(http.DefaultTransport),
		},
		headers: make(http.Header),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Create posts a new workflow record.
func (s *Store) Create(ctx context.Context, r workflow.Record) error {
	if r.WorkflowID == "" {
		return errors.New("workflow id is required")
	}
	status := r.Status
	if status == "" {
		status = workflow.StatusPending
	}
	body := createRequest{
		WorkflowID:    r.WorkflowID,
		AgentType:     r.AgentType,
		CaseID:        r.CaseID,
		Status:        string(status),
		InitialPrompt: r.InitialPrompt,
	}
	return s.do(ctx, http.MethodPost, "/api/workflows", body, nil)
}

// UpdateStatus sets the workflow status.
func (s *Store) UpdateStatus(ctx context.Context, workflowID string, status workflow.Status) error {
	return s.do(ctx, http.MethodPut, workflowPath(workflowID, "status"), statusRequest{Status: string(status)}, nil)
}

// AppendReasoningStep posts a reasoning step.
func (s *Store) AppendReasoningStep(ctx context.Context, workflowID string, step workflow.ReasoningStep) error {
	ts := step.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	body := stepRequest{
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
		Thought:      step.Thought,
		Action:       step.Action,
		ActionInput:  step.ActionInput,
		ActionOutput: step.ActionOutput,
	}
	return s.do(ctx, http.MethodPost, workflowPath(workflowID, "reasoning-step"), body, nil)
}

// Complete marks the workflow completed with its final response.
func (s *Store) Complete(ctx context.Context, workflowID, finalResponse string) error {
	body := statusRequest{Status: string(workflow.StatusCompleted), FinalResponse: finalResponse}
	return s.do(ctx, http.MethodPut, workflowPath(workflowID, "status"), body, nil)
}

// Load fetches the workflow record.
func (s *Store) Load(ctx context.Context, workflowID string) (workflow.Record, error) {
	var r workflow.Record
	if err := s.do(ctx, http.MethodGet, workflowPath(workflowID, ""), nil, &r); err != nil {
		return workflow.Record{}, err
	}
	if r.WorkflowID == "" {
		r.WorkflowID = workflowID
	}
	return r, nil
}

func workflowPath(workflowID, suffix string) string {
	p := "/api/workflows/" + url.PathEscape(workflowID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (s *Store) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range s.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, path)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", workflow.ErrAlreadyExists, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
