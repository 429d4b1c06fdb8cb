package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/eventbus"
	"github.com/cflux/flow/pkg/events"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/notification"
	"github.com/google/uuid"
)

var errNoOperands = errors.New("logic step has no inputs")

// run is the in-memory state of one locked mutation of an instance.
type run struct {
	instance    *models.WorkflowInstance
	steps       []*models.WorkflowInstanceStep
	dirty       []*models.WorkflowInstanceStep
	before      map[string]models.StepStatus
	events      []eventbus.Event
	wasTerminal bool
}

func newRun(instance *models.WorkflowInstance, steps []*models.WorkflowInstanceStep) *run {
	before := make(map[string]models.StepStatus, len(steps))
	for _, s := range steps {
		before[s.ID] = s.Status
	}

	return &run{
		instance:    instance,
		steps:       steps,
		before:      before,
		wasTerminal: instance.Status.Terminal(),
	}
}

func (r *run) step(id string) *models.WorkflowInstanceStep {
	for _, s := range r.steps {
		if s.ID == id {
			return s
		}
	}

	return nil
}

func (r *run) touch(step *models.WorkflowInstanceStep) {
	if !slices.Contains(r.dirty, step) {
		r.dirty = append(r.dirty, step)
	}
}

func (r *run) emit(event eventbus.Event) {
	r.events = append(r.events, event)
}

// materialize creates the instance step row for a visited plan step.
func (r *run) materialize(step *models.WorkflowStep, now time.Time) *models.WorkflowInstanceStep {
	s := &models.WorkflowInstanceStep{
		ID:              uuid.New().String(),
		InstanceID:      r.instance.ID,
		StepID:          step.ID,
		StepName:        step.Name,
		StepType:        step.Type,
		Sequence:        len(r.steps) + 1,
		Status:          models.StepPending,
		ApproverUserIDs: []string{},
		Approvals:       []models.Approval{},
		CreatedAt:       now,
	}

	r.steps = append(r.steps, s)
	r.touch(s)

	return s
}

// tick walks the plan from the current pointer until the instance waits on a
// person or a delay, or finishes.
func (e *Engine) tick(ctx context.Context, r *run) error {
	instance := r.instance
	plan := instance.Plan

	if instance.Status == models.InstancePending {
		instance.Status = models.InstanceInProgress
	}

	if instance.CurrentStepID == nil && !e.advance(r, plan.Entry) {
		return nil
	}

	for !instance.Status.Terminal() {
		stepID := *instance.CurrentStepID

		step, ok := plan.Step(stepID)
		if !ok {
			return fmt.Errorf("instance %s points at unknown step %s", instance.ID, stepID)
		}

		next, wait, err := e.visit(ctx, r, step)
		if err != nil {
			return err
		}

		if wait || !e.advance(r, next) {
			return nil
		}
	}

	return nil
}

// advance moves the current pointer to next. It reports false when the
// instance finished instead.
func (e *Engine) advance(r *run, next string) bool {
	if next == "" || next == models.EndStep {
		e.finish(r, models.InstanceCompleted, "", events.InstanceCompletedEvent)

		return false
	}

	r.instance.CurrentStepID = &next

	return true
}

func (e *Engine) visit(ctx context.Context, r *run, step *models.WorkflowStep) (string, bool, error) {
	plan := r.instance.Plan
	now := e.now().UTC()

	switch {
	case step.Type == models.StepTypeApproval:
		return "", true, e.visitApproval(ctx, r, step, now)

	case step.Type.IsMessage():
		e.visitMessage(ctx, r, step, now)

	case step.Type == models.StepTypeDelay:
		if !e.visitDelay(ctx, r, step, now) {
			return "", true, nil
		}

	case step.Type.IsBranch():
		outcome, err := e.evaluator.Step(step, r.instance.EntityData)
		if err != nil {
			e.failEvaluation(ctx, r, step, err)

			return "", true, nil
		}

		r.instance.Decisions = append(r.instance.Decisions, models.Decision{StepID: step.ID, Type: step.Type, Outcome: outcome, At: now})

		next, _ := plan.Next(step.ID, outcomeTag(outcome))

		return next, false, nil

	case step.Type.IsLogic():
		outcome, err := e.logic(r.instance, step, map[string]bool{})
		if err != nil {
			e.failEvaluation(ctx, r, step, err)

			return "", true, nil
		}

		r.instance.Decisions = append(r.instance.Decisions, models.Decision{StepID: step.ID, Type: step.Type, Outcome: outcome, At: now})

		next, _ := plan.Next(step.ID, outcomeTag(outcome))

		return next, false, nil

	default:
		return "", false, fmt.Errorf("%w: %s", models.ErrUnknownStepType, step.Type)
	}

	next, _ := plan.Next(step.ID, models.TagDefault)

	return next, false, nil
}

func (e *Engine) visitApproval(ctx context.Context, r *run, step *models.WorkflowStep, now time.Time) error {
	ids, requireAll := approverConfig(step)

	resolved, err := e.resolver.Resolve(ctx, ids)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to resolve approvers",
			"instance_id", r.instance.ID, "step_id", step.ID, "error", err)
		e.reject(r, SystemCommentPrefix+"approver resolution failed: "+err.Error())

		return nil
	}

	pending := r.materialize(step, now)
	pending.ApproverUserIDs = resolved
	pending.RequireAllApprovers = requireAll

	r.emit(&events.ApprovalRequested{
		BaseEvent:      events.NewBaseEvent(events.ApprovalRequestedEvent, r.instance.WorkflowID),
		InstanceID:     r.instance.ID,
		InstanceStepID: pending.ID,
		StepName:       pending.StepName,
		ApproverIDs:    resolved,
		RequireAll:     requireAll,
	})

	e.logger.InfoContext(ctx, "Waiting for approval",
		"instance_id", r.instance.ID, "step_id", step.ID, "approvers", resolved, "require_all", requireAll)

	return nil
}

// visitMessage delivers the step's message. Delivery failures are recorded on
// the step and never hold the instance back.
func (e *Engine) visitMessage(ctx context.Context, r *run, step *models.WorkflowStep, now time.Time) {
	sent := r.materialize(step, now)
	sent.Status = models.StepApproved
	sent.ApprovedAt = &now

	msg, err := notification.Render(r.instance, step)
	if err == nil {
		err = e.notifier.Notify(ctx, msg)
	}

	if err != nil {
		e.logger.WarnContext(ctx, "Failed to deliver notification",
			"instance_id", r.instance.ID, "step_id", step.ID, "error", err)

		sent.Result = map[string]any{"delivered": false, "error": err.Error()}

		return
	}

	sent.Result = map[string]any{"delivered": true, "recipients": msg.Recipients}
}

// visitDelay reports whether the delay already elapsed.
func (e *Engine) visitDelay(ctx context.Context, r *run, step *models.WorkflowStep, now time.Time) bool {
	var delay time.Duration
	if cfg, ok := step.Config.(*models.DelayConfig); ok && cfg != nil {
		delay = cfg.Duration()
	}

	waiting := r.materialize(step, now)

	if e.immediateDelays || delay <= 0 {
		waiting.Status = models.StepApproved
		waiting.ApprovedAt = &now
		waiting.Result = map[string]any{"delay": delay.String(), "waited": false}

		e.logger.InfoContext(ctx, "Delay not scheduled, continuing immediately",
			"instance_id", r.instance.ID, "step_id", step.ID, "intended_delay", delay.String())

		return true
	}

	due := now.Add(delay)
	waiting.Result = map[string]any{"delay": delay.String(), "dueAt": due}
	r.instance.DueAt = &due

	e.logger.InfoContext(ctx, "Waiting for delay",
		"instance_id", r.instance.ID, "step_id", step.ID, "due_at", due)

	return false
}

// logic combines the operands of a logic step. An operand coming from a
// condition uses its recorded outcome, or evaluates it now when the walk took
// another path.
func (e *Engine) logic(instance *models.WorkflowInstance, step *models.WorkflowStep, visiting map[string]bool) (bool, error) {
	visiting[step.ID] = true
	defer delete(visiting, step.ID)

	logicType := models.LogicAnd
	if step.Type == models.StepTypeLogicOr {
		logicType = models.LogicOr
	}

	if cfg, ok := step.Config.(*models.LogicConfig); ok && cfg != nil && cfg.LogicType != "" {
		logicType = cfg.LogicType
	}

	inputs := instance.Plan.LogicInputs[step.ID]
	if len(inputs) == 0 {
		return false, fmt.Errorf("step %s: %w", step.ID, errNoOperands)
	}

	var result bool

	for i, in := range inputs {
		v, err := e.operand(instance, in, visiting)
		if err != nil {
			return false, err
		}

		if i == 0 {
			result = v

			continue
		}

		result, err = condition.Logic(logicType, result, v)
		if err != nil {
			return false, err
		}
	}

	return result, nil
}

func (e *Engine) operand(instance *models.WorkflowInstance, in models.LogicInput, visiting map[string]bool) (bool, error) {
	if in.From == "" {
		return true, nil
	}

	from, ok := instance.Plan.Step(in.From)
	if !ok || !(from.Type.IsBranch() || from.Type.IsLogic()) {
		return true, nil
	}

	value, recorded := instance.Decision(in.From)

	if !recorded {
		var err error

		switch {
		case from.Type.IsBranch():
			value, err = e.evaluator.Step(from, instance.EntityData)
		case visiting[from.ID]:
			err = fmt.Errorf("logic step %s depends on itself", from.ID)
		default:
			value, err = e.logic(instance, from, visiting)
		}

		if err != nil {
			return false, err
		}
	}

	if in.When == models.TagFalse {
		value = !value
	}

	return value, nil
}

func (e *Engine) failEvaluation(ctx context.Context, r *run, step *models.WorkflowStep, err error) {
	e.logger.ErrorContext(ctx, "Condition evaluation failed, rejecting instance",
		"instance_id", r.instance.ID, "step_id", step.ID, "error", err)

	e.reject(r, SystemCommentPrefix+"condition evaluation failed: "+err.Error())
}

func (e *Engine) reject(r *run, comment string) {
	e.finish(r, models.InstanceRejected, comment, events.InstanceRejectedEvent)
}

func (e *Engine) finish(r *run, status models.InstanceStatus, comment string, eventType events.EventType) {
	now := e.now().UTC()
	instance := r.instance

	instance.Status = status
	instance.CompletedAt = &now
	instance.CurrentStepID = nil
	instance.DueAt = nil

	if comment != "" {
		instance.Comment = comment
	}

	r.emit(events.NewInstanceEvent(eventType, instance.WorkflowID, instance.ID,
		instance.EntityType, instance.EntityID, string(status), comment))
}

func approverConfig(step *models.WorkflowStep) ([]string, bool) {
	if cfg, ok := step.Config.(*models.ApprovalConfig); ok && cfg != nil && len(cfg.ApproverUserIDs) > 0 {
		return cfg.ApproverUserIDs, cfg.RequireAllApprovers
	}

	return step.ApproverUserIDs, step.RequireAllApprovers
}

func outcomeTag(outcome bool) models.Tag {
	if outcome {
		return models.TagTrue
	}

	return models.TagFalse
}
