// Package producer runs workflows on an engine and turns their progress into
// stream events. The Adapter guarantees that every workflow it starts ends
// with exactly one terminal event, whether the engine succeeds, fails or
// panics, and keeps the durable workflow record in step with the stream.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/telemetry"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

// Adapter executes workflows and publishes their events to a Coordinator.
type Adapter struct {
	coord     *stream.Coordinator
	engine    engine.Engine
	store     workflow.Store
	sink      stream.Sink
	relay     *stream.Relay
	heartbeat time.Duration
	agentType string
	logger    telemetry.Logger
	tracer    telemetry.Tracer
	metrics   telemetry.Metrics
	now       func() time.Time

	wg sync.WaitGroup
}

// New returns an Adapter publishing to coord and executing on eng.
func New(coord *stream.Coordinator, eng engine.Engine, opts ...Option) (*Adapter, error) {
	if coord == nil {
		return nil, errors.New("stream coordinator is required")
	}
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	a := &Adapter{
		coord:     coord,
		engine:    eng,
		heartbeat: DefaultHeartbeatInterval,
		agentType: stream.DefaultAgentType,
		logger:    telemetry.NewNoopLogger(),
		tracer:    telemetry.NewNoopTracer(),
		metrics:   telemetry.NewNoopMetrics(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.sink != nil {
		relay, err := stream.NewRelay(a.sink, a.logger)
		if err != nil {
			return nil, err
		}
		a.relay = relay
	}
	return a, nil
}

// Start creates the workflow stream, records the workflow as PENDING and runs
// it in the background. The run is detached from ctx: it keeps going after the
// caller returns or its consumers disconnect. Coordinator errors such as
// *stream.DuplicateWorkflowError are returned as is.
func (a *Adapter) Start(ctx context.Context, workflowID, prompt string) error {
	if _, err := a.coord.CreateStreamWithAgent(ctx, workflowID, prompt, a.agentType); err != nil {
		return err
	}
	if a.store != nil {
		err := a.store.Create(ctx, workflow.Record{
			WorkflowID:    workflowID,
			Status:        workflow.StatusPending,
			AgentType:     a.agentType,
			InitialPrompt: prompt,
		})
		if err != nil {
			a.logger.Error(ctx, "failed to record workflow", "workflow_id", workflowID, "err", err)
		}
	}

	runCtx := context.WithoutCancel(ctx)
	if a.relay != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.relay.Forward(runCtx, a.coord, workflowID); err != nil {
				a.logger.Warn(runCtx, "stream relay stopped", "workflow_id", workflowID, "err", err)
			}
		}()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.Run(runCtx, workflowID, prompt)
	}()
	return nil
}

// Run executes the workflow on the engine and publishes exactly one terminal
// event when it ends. The stream must already exist. Run returns the engine
// error, or an error describing a recovered panic.
func (a *Adapter) Run(ctx context.Context, workflowID, prompt string) (err error) {
	ctx, span := a.tracer.Start(ctx, "producer.run",
		trace.WithAttributes(attribute.String("workflow_id", workflowID)))
	defer span.End()

	start := a.now()
	cb := newCallbacks(a, workflowID)
	stopHeartbeat := a.startHeartbeat(ctx, workflowID)
	a.updateStatus(ctx, workflowID, workflow.StatusProcessing)

	var res engine.Result
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
		stopHeartbeat()
		a.finish(ctx, workflowID, cb, start, res, err, span)
	}()

	res, err = a.engine.Execute(ctx, engine.Request{WorkflowID: workflowID, Prompt: prompt}, cb)
	return err
}

// Wait blocks until every run and relay started by Start has returned or ctx
// is done.
func (a *Adapter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) finish(ctx context.Context, workflowID string, cb *callbacks, start time.Time, res engine.Result, runErr error, span telemetry.Span) {
	elapsed := a.now().Sub(start)
	if runErr == nil {
		a.coord.Publish(ctx, workflowID, stream.NewWorkflowCompleted(workflowID, a.now(), stream.WorkflowCompletedPayload{
			FinalResponse:   res.FinalResponse,
			TotalSteps:      cb.totalSteps(),
			ExecutionTimeMS: elapsed.Milliseconds(),
			ToolsUsed:       cb.toolsUsed(),
		}))
		if a.store != nil {
			if err := a.store.Complete(ctx, workflowID, res.FinalResponse); err != nil {
				a.logger.Error(ctx, "failed to record workflow completion", "workflow_id", workflowID, "err", err)
			}
		}
		a.metrics.RecordTimer("workflow.duration", elapsed, "outcome", "completed")
		span.SetStatus(codes.Ok, "")
		a.logger.Info(ctx, "workflow completed",
			"workflow_id", workflowID, "steps", cb.totalSteps(), "duration_ms", elapsed.Milliseconds())
		return
	}

	f := Classify(runErr)
	a.coord.Publish(ctx, workflowID, stream.NewWorkflowError(workflowID, a.now(), stream.WorkflowErrorPayload{
		ErrorMessage:       f.Message,
		ErrorType:          string(f.Type),
		RecoverySuggestion: f.RecoverySuggestion,
		PartialResponse:    f.PartialResponse,
	}))
	a.updateStatus(ctx, workflowID, workflow.StatusFailed)
	a.metrics.RecordTimer("workflow.duration", elapsed, "outcome", "failed", "error_type", string(f.Type))
	span.RecordError(runErr)
	span.SetStatus(codes.Error, string(f.Type))
	a.logger.Error(ctx, "workflow failed",
		"workflow_id", workflowID, "error_type", string(f.Type), "err", runErr)
}

func (a *Adapter) updateStatus(ctx context.Context, workflowID string, status workflow.Status) {
	if a.store == nil {
		return
	}
	if err := a.store.UpdateStatus(ctx, workflowID, status); err != nil {
		a.logger.Error(ctx, "failed to update workflow status",
			"workflow_id", workflowID, "status", string(status), "err", err)
	}
}

// startHeartbeat publishes a heartbeat every interval until the returned
// function is called. The stop function waits for the heartbeat goroutine to
// exit so no heartbeat can follow the terminal event.
func (a *Adapter) startHeartbeat(ctx context.Context, workflowID string) func() {
	if a.heartbeat <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(a.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.coord.Publish(ctx, workflowID,
					stream.NewHeartbeat(workflowID, a.now(), stream.HeartbeatStatusProcessing))
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}
