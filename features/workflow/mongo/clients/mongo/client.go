// Package mongo hosts the MongoDB client used by the workflow store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
)

const (
	defaultWorkflowsCollection = "workflows"
	defaultOpTimeout           = 5 * time.Second
	workflowClientName         = "workflow-mongo"
)

// Client exposes Mongo-backed operations for workflow records.
type Client interface {
	health.Pinger

	CreateWorkflow(ctx context.Context, r workflow.Record) error
	UpdateStatus(ctx context.Context, workflowID string, status workflow.Status) error
	AppendReasoningStep(ctx context.Context, workflowID string, step workflow.ReasoningStep) error
	Complete(ctx context.Context, workflowID, finalResponse string) error
	LoadWorkflow(ctx context.Context, workflowID string) (workflow.Record, error)
}

// Options configures the Mongo workflow client.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type client struct {
	mongo   *mongodriver.Client
	coll    collection
	timeout time.Duration
	now     func() time.Time
}

// New returns a Client backed by MongoDB. It creates the unique workflow_id
// index if missing.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	name := opts.Collection
	if name == "" {
		name = defaultWorkflowsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	wrapper := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(name)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newClientWithCollection(opts.Client, wrapper, timeout)
}

func (c *client) Name() string {
	return workflowClientName
}

func (c *client) Ping(ctx context.Context) error {
	if c.mongo == nil {
		return errors.New("mongo client not configured")
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) CreateWorkflow(ctx context.Context, r workflow.Record) error {
	if r.WorkflowID == "" {
		return errors.New("workflow id is required")
	}
	now := c.now().UTC()
	if r.Status == "" {
		r.Status = workflow.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.coll.InsertOne(ctx, fromRecord(r)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", workflow.ErrAlreadyExists, r.WorkflowID)
		}
		return err
	}
	return nil
}

func (c *client) UpdateStatus(ctx context.Context, workflowID string, status workflow.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid workflow status %q", status)
	}
	return c.update(ctx, workflowID, bson.M{
		"$set": bson.M{"status": string(status), "updated_at": c.now().UTC()},
	})
}

func (c *client) AppendReasoningStep(ctx context.Context, workflowID string, step workflow.ReasoningStep) error {
	now := c.now().UTC()
	if step.Timestamp.IsZero() {
		step.Timestamp = now
	}
	return c.update(ctx, workflowID, bson.M{
		"$push": bson.M{"reasoning_chain": fromStep(step)},
		"$set":  bson.M{"updated_at": now},
	})
}

func (c *client) Complete(ctx context.Context, workflowID, finalResponse string) error {
	return c.update(ctx, workflowID, bson.M{
		"$set": bson.M{
			"status":         string(workflow.StatusCompleted),
			"final_response": finalResponse,
			"updated_at":     c.now().UTC(),
		},
	})
}

func (c *client) LoadWorkflow(ctx context.Context, workflowID string) (workflow.Record, error) {
	if workflowID == "" {
		return workflow.Record{}, errors.New("workflow id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc workflowDocument
	if err := c.coll.FindOne(ctx, bson.M{"workflow_id": workflowID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return workflow.Record{}, fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
		}
		return workflow.Record{}, err
	}
	return doc.toRecord(), nil
}

func (c *client) update(ctx context.Context, workflowID string, update bson.M) error {
	if workflowID == "" {
		return errors.New("workflow id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.coll.UpdateOne(ctx, bson.M{"workflow_id": workflowID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, workflowID)
	}
	return nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type (
	workflowDocument struct {
		WorkflowID     string         `bson:"workflow_id"`
		Status         string         `bson:"status"`
		AgentType      string         `bson:"agent_type"`
		CaseID         string         `bson:"case_id,omitempty"`
		InitialPrompt  string         `bson:"initial_prompt"`
		FinalResponse  string         `bson:"final_response,omitempty"`
		CreatedAt      time.Time      `bson:"created_at"`
		UpdatedAt      time.Time      `bson:"updated_at"`
		ReasoningChain []stepDocument `bson:"reasoning_chain"`
	}

	stepDocument struct {
		Timestamp    time.Time      `bson:"timestamp"`
		Thought      string         `bson:"thought"`
		Action       string         `bson:"action,omitempty"`
		ActionInput  map[string]any `bson:"action_input,omitempty"`
		ActionOutput string         `bson:"action_output,omitempty"`
	}
)

func fromRecord(r workflow.Record) workflowDocument {
	steps := make([]stepDocument, 0, len(r.ReasoningChain))
	for _, s := range r.ReasoningChain {
		steps = append(steps, fromStep(s))
	}
	return workflowDocument{
		WorkflowID:     r.WorkflowID,
		Status:         string(r.Status),
		AgentType:      r.AgentType,
		CaseID:         r.CaseID,
		InitialPrompt:  r.InitialPrompt,
		FinalResponse:  r.FinalResponse,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		ReasoningChain: steps,
	}
}

func fromStep(s workflow.ReasoningStep) stepDocument {
	s = s.Clone()
	return stepDocument{
		Timestamp:    s.Timestamp.UTC(),
		Thought:      s.Thought,
		Action:       s.Action,
		ActionInput:  s.ActionInput,
		ActionOutput: s.ActionOutput,
	}
}

func (doc workflowDocument) toRecord() workflow.Record {
	chain := make([]workflow.ReasoningStep, 0, len(doc.ReasoningChain))
	for _, s := range doc.ReasoningChain {
		chain = append(chain, workflow.ReasoningStep{
			Timestamp:    s.Timestamp.UTC(),
			Thought:      s.Thought,
			Action:       s.Action,
			ActionInput:  s.ActionInput,
			ActionOutput: s.ActionOutput,
		}.Clone())
	}
	return workflow.Record{
		WorkflowID:     doc.WorkflowID,
		Status:         workflow.Status(doc.Status),
		AgentType:      doc.AgentType,
		CaseID:         doc.CaseID,
		InitialPrompt:  doc.InitialPrompt,
		FinalResponse:  doc.FinalResponse,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
		ReasoningChain: chain,
	}
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "workflow_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

func newClientWithCollection(mongoClient *mongodriver.Client, coll collection, timeout time.Duration) (*client, error) {
	if coll == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{
		mongo:   mongoClient,
		coll:    coll,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// collection is the subset of *mongo.Collection used by the client.
type collection interface {
	InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error)
	FindOne(ctx context.Context, filter any) singleResult
	UpdateOne(ctx context.Context, filter any, update any) (*mongodriver.UpdateResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc)
}

func (c mongoCollection) FindOne(ctx context.Context, filter any) singleResult {
	return c.coll.FindOne(ctx, filter)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel) (string, error) {
	return v.view.CreateOne(ctx, model)
}
