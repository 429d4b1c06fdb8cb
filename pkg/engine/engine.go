// Package engine executes workflow instances. It walks the compiled plan an
// instance captured at start, waits on approvals and delays, and records the
// outcome of every condition it evaluates.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/cflux/flow/pkg/approvers"
	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/eventbus"
	"github.com/cflux/flow/pkg/events"
	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/locker"
	"github.com/cflux/flow/pkg/metrics"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/notification"
	"github.com/cflux/flow/pkg/otelhelper"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultSweepWorkers = 4

type Engine struct {
	instances persistence.InstanceRepository
	compiler  *graph.Compiler
	evaluator *condition.Evaluator

	resolver  approvers.Resolver
	notifier  notification.Notifier
	publisher eventbus.EventPublisher
	locker    locker.Locker
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger

	now             func() time.Time
	immediateDelays bool
	sweepWorkers    int
}

type Option func(*Engine)

// WithImmediateDelays approves DELAY steps as soon as they are reached instead
// of waiting for the sweep. The intended delay is logged.
func WithImmediateDelays() Option {
	return func(e *Engine) {
		e.immediateDelays = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithResolver(resolver approvers.Resolver) Option {
	return func(e *Engine) {
		e.resolver = resolver
	}
}

func WithNotifier(notifier notification.Notifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithPublisher publishes instance lifecycle and approval events after every
// committed transition.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithLocker(l locker.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSweepWorkers bounds how many due instances a sweep resumes at once.
func WithSweepWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sweepWorkers = n
		}
	}
}

func New(
	p persistence.Persistence,
	compiler *graph.Compiler,
	evaluator *condition.Evaluator,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		instances:    p.InstanceRepository(),
		compiler:     compiler,
		evaluator:    evaluator,
		resolver:     approvers.NewDirectory(),
		notifier:     notification.NewLog(logger),
		locker:       locker.NewMemory(),
		tracer:       otelhelper.NoopTracer(),
		logger:       logger,
		now:          time.Now,
		sweepWorkers: defaultSweepWorkers,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartRequest describes the entity a workflow instance runs against.
type StartRequest struct {
	Workflow   *models.Workflow
	TriggerID  string
	EntityType string
	EntityID   string
	EntityData map[string]any
}

// Result is the state of an instance after a decision on one of its steps.
type Result struct {
	Instance *models.WorkflowInstance     `json:"instance"`
	Step     *models.WorkflowInstanceStep `json:"step"`
}

// Start compiles the workflow, creates an instance bound to the entity
// snapshot and ticks it until it waits or finishes.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start",
		attribute.String(otelhelper.WorkflowIDKey, req.Workflow.ID),
		attribute.String(otelhelper.EntityTypeKey, req.EntityType),
		attribute.String(otelhelper.EntityIDKey, req.EntityID),
	)
	defer span.End()

	plan, err := e.compiler.Compile(req.Workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to compile workflow %s: %w", req.Workflow.ID, err)
	}

	data := maps.Clone(req.EntityData)
	if data == nil {
		data = map[string]any{}
	}

	instance := &models.WorkflowInstance{
		ID:         uuid.New().String(),
		WorkflowID: req.Workflow.ID,
		TriggerID:  req.TriggerID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		EntityData: data,
		Status:     models.InstancePending,
		Plan:       plan,
		Decisions:  []models.Decision{},
		StartedAt:  e.now().UTC(),
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))

	unlock, err := e.locker.Lock(ctx, locker.InstanceKey(instance.ID))
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to lock instance %s: %w", instance.ID, err)
	}
	defer unlock()

	r := newRun(instance, nil)
	r.emit(events.NewInstanceEvent(events.InstanceStartedEvent, instance.WorkflowID, instance.ID,
		instance.EntityType, instance.EntityID, string(models.InstanceInProgress), ""))

	err = e.tick(ctx, r)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = e.commit(ctx, r)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.metrics.InstanceStarted(instance.WorkflowID)
	e.logger.InfoContext(ctx, "Started workflow instance",
		"instance_id", instance.ID,
		"workflow_id", instance.WorkflowID,
		"entity_type", instance.EntityType,
		"entity_id", instance.EntityID,
		"status", instance.Status,
	)

	return instance, nil
}

// Approve records userID's approval of a pending approval step. Once the
// step's quorum is met the step is APPROVED and the instance advances.
func (e *Engine) Approve(ctx context.Context, stepID, userID, comment string) (*Result, error) {
	return e.decide(ctx, "engine.approve", stepID, userID, func(ctx context.Context, r *run, step *models.WorkflowInstanceStep) error {
		if step.HasApproved(userID) {
			return ErrAlreadyDecided
		}

		now := e.now().UTC()
		step.Approvals = append(step.Approvals, models.Approval{UserID: userID, Comment: comment, At: now})
		r.touch(step)

		if !step.QuorumMet() {
			e.logger.InfoContext(ctx, "Recorded approval, quorum not met",
				"instance_id", step.InstanceID, "step_id", step.ID, "user_id", userID,
				"approvals", len(step.Approvals), "approvers", len(step.ApproverUserIDs))

			return nil
		}

		step.Status = models.StepApproved
		step.ApprovedByID = &userID
		step.ApprovedAt = &now
		step.Comment = comment

		next, _ := r.instance.Plan.Next(step.StepID, models.TagDefault)
		if e.advance(r, next) {
			return e.tick(ctx, r)
		}

		return nil
	})
}

// Reject rejects a pending approval step and with it the whole instance. A
// comment is mandatory.
func (e *Engine) Reject(ctx context.Context, stepID, userID, comment string) (*Result, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, ErrCommentRequired
	}

	return e.decide(ctx, "engine.reject", stepID, userID, func(_ context.Context, r *run, step *models.WorkflowInstanceStep) error {
		now := e.now().UTC()

		step.Status = models.StepRejected
		step.ApprovedByID = &userID
		step.ApprovedAt = &now
		step.Comment = comment
		r.touch(step)

		e.reject(r, comment)

		return nil
	})
}

type decision func(ctx context.Context, r *run, step *models.WorkflowInstanceStep) error

func (e *Engine) decide(ctx context.Context, op, stepID, userID string, apply decision) (*Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, op,
		attribute.String(otelhelper.StepIDKey, stepID),
		attribute.String(otelhelper.UserIDKey, userID),
	)
	defer span.End()

	found, err := e.instances.Step(ctx, stepID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, found.InstanceID))

	unlock, err := e.locker.Lock(ctx, locker.InstanceKey(found.InstanceID))
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to lock instance %s: %w", found.InstanceID, err)
	}
	defer unlock()

	r, err := e.load(ctx, found.InstanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	step := r.step(stepID)

	switch {
	case step == nil:
		err = persistence.NewEntityError("Step", "instance step", stepID, persistence.ErrStepNotFound)
	case step.Status != models.StepPending:
		err = fmt.Errorf("%w: step %s is %s", ErrStepNotPending, stepID, step.Status)
	case r.instance.Status.Terminal():
		err = fmt.Errorf("%w: instance %s is %s", ErrInstanceTerminal, r.instance.ID, r.instance.Status)
	case step.StepType != models.StepTypeApproval:
		err = fmt.Errorf("%w: step %s is %s", ErrNotApprovalStep, stepID, step.StepType)
	case !step.IsApprover(userID):
		err = fmt.Errorf("%w: %s", ErrUnauthorizedApprover, userID)
	default:
		err = apply(ctx, r, step)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = e.commit(ctx, r)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return &Result{Instance: r.instance, Step: step}, nil
}

// Cancel stops a running instance. An open pending step is SKIPPED.
func (e *Engine) Cancel(ctx context.Context, instanceID, comment string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.cancel",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer span.End()

	unlock, err := e.locker.Lock(ctx, locker.InstanceKey(instanceID))
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to lock instance %s: %w", instanceID, err)
	}
	defer unlock()

	r, err := e.load(ctx, instanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if r.instance.Status.Terminal() {
		err = fmt.Errorf("%w: instance %s is %s", ErrInstanceTerminal, instanceID, r.instance.Status)
		otelhelper.SetError(span, err)

		return nil, err
	}

	for _, step := range r.steps {
		if step.Status == models.StepPending {
			step.Status = models.StepSkipped
			r.touch(step)
		}
	}

	e.finish(r, models.InstanceCancelled, comment, events.InstanceCancelledEvent)

	err = e.commit(ctx, r)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.logger.InfoContext(ctx, "Cancelled workflow instance", "instance_id", instanceID)

	return r.instance, nil
}

func (e *Engine) load(ctx context.Context, instanceID string) (*run, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	steps, err := e.instances.Steps(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps of instance %s: %w", instanceID, err)
	}

	if instance.Plan == nil {
		return nil, fmt.Errorf("instance %s has no plan", instanceID)
	}

	return newRun(instance, steps), nil
}

// commit saves the instance and every step the run changed in one
// compare-and-set write, then publishes the run's events.
func (e *Engine) commit(ctx context.Context, r *run) error {
	err := e.instances.Save(ctx, r.instance, r.dirty...)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", r.instance.ID, err)
	}

	for _, step := range r.dirty {
		if r.before[step.ID] != step.Status {
			e.metrics.StepTransition(string(step.StepType), string(step.Status))
		}
	}

	if r.instance.Status.Terminal() && !r.wasTerminal {
		e.metrics.InstanceFinished(string(r.instance.Status))
	}

	if e.publisher == nil {
		return nil
	}

	for _, event := range r.events {
		err := e.publisher.Publish(ctx, r.instance.ID, event)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to publish instance event",
				"instance_id", r.instance.ID, "event_type", event.GetType(), "error", err)
		}
	}

	return nil
}
