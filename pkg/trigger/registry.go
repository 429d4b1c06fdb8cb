// Package trigger binds workflows to system actions and decides which
// workflows a fired action starts.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/metrics"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	WorkflowID string
	ActionKey  string
}

// MatchResult holds the triggers that fire for an action, BEFORE triggers
// first, then AFTER triggers, each group by ascending priority. Instead is set
// when the matching triggers replace the default action.
type MatchResult struct {
	ActionKey string
	Triggers  []*models.WorkflowTrigger
	Instead   bool
}

// Timing returns the matched triggers with the given timing.
func (m *MatchResult) Timing(timing models.Timing) []*models.WorkflowTrigger {
	var out []*models.WorkflowTrigger

	for _, t := range m.Triggers {
		if t.Timing == timing {
			out = append(out, t)
		}
	}

	return out
}

// TestResult reports what Match would do, trigger by trigger.
type TestResult struct {
	ActionKey string        `json:"actionKey"`
	Triggers  []TriggerTest `json:"triggers"`
	WouldFire int           `json:"wouldFire"`
	Instead   bool          `json:"instead"`
	Error     string        `json:"error,omitempty"`
}

type TriggerTest struct {
	TriggerID    string        `json:"triggerId"`
	WorkflowID   string        `json:"workflowId"`
	WorkflowName string        `json:"workflowName"`
	Timing       models.Timing `json:"timing"`
	Priority     int           `json:"priority"`
	WouldFire    bool          `json:"wouldFire"`
	Reason       string        `json:"reason"`
	Steps        []StepSummary `json:"steps"`
}

type StepSummary struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Type  models.StepType `json:"type"`
	Order int             `json:"order"`
}

type Registry struct {
	triggers  persistence.TriggerRepository
	workflows persistence.WorkflowRepository
	actions   persistence.ActionRepository
	compiler  *graph.Compiler
	evaluator *condition.Evaluator
	validate  *validator.Validate
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewRegistry(
	p persistence.Persistence,
	compiler *graph.Compiler,
	evaluator *condition.Evaluator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		triggers:  p.TriggerRepository(),
		workflows: p.WorkflowRepository(),
		actions:   p.ActionRepository(),
		compiler:  compiler,
		evaluator: evaluator,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		metrics:   m,
		logger:    logger,
	}
}

// Register validates a new trigger, applies the defaults and stores it. The
// workflow must exist and be active, and the action must exist.
func (r *Registry) Register(ctx context.Context, t *models.WorkflowTrigger) (*models.WorkflowTrigger, error) {
	t.ID = ""
	t.ApplyDefaults()

	err := r.check(ctx, t)
	if err != nil {
		return nil, err
	}

	err = r.triggers.Save(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	r.logger.InfoContext(ctx, "Registered trigger", "trigger_id", t.ID, "workflow_id", t.WorkflowID, "action_key", t.ActionKey, "timing", t.Timing)

	return t, nil
}

// Update replaces the mutable fields of a trigger.
func (r *Registry) Update(ctx context.Context, id string, update *models.WorkflowTrigger) (*models.WorkflowTrigger, error) {
	existing, err := r.triggers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	update.ID = existing.ID
	update.CreatedAt = existing.CreatedAt
	update.ApplyDefaults()

	err = r.check(ctx, update)
	if err != nil {
		return nil, err
	}

	err = r.triggers.Save(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	return update, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.triggers.Delete(ctx, id)
}

// Toggle flips whether the trigger is active.
func (r *Registry) Toggle(ctx context.Context, id string) (*models.WorkflowTrigger, error) {
	t, err := r.triggers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	t.IsActive = !t.IsActive

	err = r.triggers.Save(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	return t, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*models.WorkflowTrigger, error) {
	return r.triggers.GetByID(ctx, id)
}

func (r *Registry) List(ctx context.Context, filter Filter) ([]*models.WorkflowTrigger, error) {
	var (
		triggers []*models.WorkflowTrigger
		err      error
	)

	switch {
	case filter.ActionKey != "":
		triggers, err = r.triggers.GetByActionKey(ctx, filter.ActionKey)
	case filter.WorkflowID != "":
		triggers, err = r.triggers.GetByWorkflow(ctx, filter.WorkflowID)
	default:
		triggers, err = r.triggers.GetAll(ctx)
	}

	if err != nil {
		return nil, err
	}

	if filter.ActionKey != "" && filter.WorkflowID != "" {
		triggers = slices.DeleteFunc(triggers, func(t *models.WorkflowTrigger) bool {
			return t.WorkflowID != filter.WorkflowID
		})
	}

	return triggers, nil
}

func (r *Registry) check(ctx context.Context, t *models.WorkflowTrigger) error {
	t.ActionKey = strings.TrimSpace(t.ActionKey)

	err := r.validate.Struct(t)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}

	if !t.Timing.Valid() {
		return fmt.Errorf("%w: unknown timing %q", ErrInvalidTrigger, t.Timing)
	}

	if t.Priority < 0 {
		return fmt.Errorf("%w: priority must not be negative", ErrInvalidTrigger)
	}

	workflow, err := r.workflows.GetByID(ctx, t.WorkflowID)
	if err != nil {
		return err
	}

	if !workflow.IsActive {
		return fmt.Errorf("%w: %s", ErrWorkflowInactive, workflow.ID)
	}

	_, err = r.actions.GetByKey(ctx, t.ActionKey)
	if err != nil {
		return err
	}

	return nil
}

// Match returns the active triggers for actionKey whose condition holds for
// the payload and whose workflow is active. A condition that cannot be
// evaluated counts as not matching.
func (r *Registry) Match(ctx context.Context, actionKey string, payload map[string]any) (*MatchResult, error) {
	result, tests, err := r.evaluate(ctx, actionKey, payload)
	if err != nil {
		return nil, err
	}

	for _, test := range tests {
		if !test.WouldFire {
			r.logger.DebugContext(ctx, "Trigger skipped", "trigger_id", test.TriggerID, "reason", test.Reason)
		}
	}

	err = result.validate()
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", actionKey, err)
	}

	for _, t := range result.Triggers {
		r.metrics.TriggerMatched(actionKey, string(t.Timing))
	}

	return result, nil
}

// Test is a dry run of Match. It reports every trigger considered and the
// declared steps of its workflow, and never starts anything.
func (r *Registry) Test(ctx context.Context, actionKey string, payload map[string]any) (*TestResult, error) {
	result, tests, err := r.evaluate(ctx, actionKey, payload)
	if err != nil {
		return nil, err
	}

	out := &TestResult{
		ActionKey: actionKey,
		Triggers:  tests,
		WouldFire: len(result.Triggers),
		Instead:   result.Instead,
	}

	err = result.validate()
	if err != nil {
		out.Error = err.Error()
	}

	return out, nil
}

func (r *Registry) evaluate(ctx context.Context, actionKey string, payload map[string]any) (*MatchResult, []TriggerTest, error) {
	triggers, err := r.triggers.GetByActionKey(ctx, actionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load triggers for %s: %w", actionKey, err)
	}

	sortTriggers(triggers)

	result := &MatchResult{ActionKey: actionKey}
	tests := make([]TriggerTest, 0, len(triggers))
	workflows := make(map[string]*models.Workflow)

	for _, t := range triggers {
		test := TriggerTest{
			TriggerID:  t.ID,
			WorkflowID: t.WorkflowID,
			Timing:     t.Timing,
			Priority:   t.Priority,
		}

		workflow, err := r.workflow(ctx, workflows, t.WorkflowID)

		switch {
		case err != nil:
			test.Reason = "workflow unavailable: " + err.Error()
		case !t.IsActive:
			test.WorkflowName = workflow.Name
			test.Reason = "trigger is inactive"
		case !workflow.IsActive:
			test.WorkflowName = workflow.Name
			test.Reason = "workflow is inactive"
		default:
			test.WorkflowName = workflow.Name
			test.WouldFire, test.Reason = r.condition(t, payload)
		}

		if workflow != nil {
			test.Steps = r.steps(workflow)
		}

		if test.WouldFire {
			result.Triggers = append(result.Triggers, t)
		}

		tests = append(tests, test)
	}

	result.Instead = len(result.Timing(models.TimingInstead)) > 0

	return result, tests, nil
}

func (r *Registry) workflow(ctx context.Context, cache map[string]*models.Workflow, id string) (*models.Workflow, error) {
	if w, ok := cache[id]; ok {
		return w, nil
	}

	w, err := r.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	cache[id] = w

	return w, nil
}

func (r *Registry) condition(t *models.WorkflowTrigger, payload map[string]any) (bool, string) {
	if t.Condition == nil {
		return true, "no condition"
	}

	ok, err := r.evaluator.Trigger(t.Condition, payload)
	if err != nil {
		return false, err.Error()
	}

	if !ok {
		return false, fmt.Sprintf("condition %s %s %v not met", t.Condition.Field, t.Condition.Operator, t.Condition.Value)
	}

	return true, "condition met"
}

func (r *Registry) steps(workflow *models.Workflow) []StepSummary {
	plan, err := r.compiler.Compile(workflow)
	if err != nil {
		return nil
	}

	ordered := plan.OrderedSteps()
	out := make([]StepSummary, 0, len(ordered))

	for i, s := range ordered {
		out = append(out, StepSummary{ID: s.ID, Name: s.Name, Type: s.Type, Order: i + 1})
	}

	return out
}

func (m *MatchResult) validate() error {
	if m.Instead && len(m.Triggers) > len(m.Timing(models.TimingInstead)) {
		return ErrTimingConflict
	}

	return nil
}

var timingRank = map[models.Timing]int{
	models.TimingBefore:  0,
	models.TimingInstead: 1,
	models.TimingAfter:   2,
}

// sortTriggers orders by timing group, then ascending priority, then id.
func sortTriggers(triggers []*models.WorkflowTrigger) {
	slices.SortStableFunc(triggers, func(a, b *models.WorkflowTrigger) int {
		if d := timingRank[a.Timing] - timingRank[b.Timing]; d != 0 {
			return d
		}

		if d := priority(a) - priority(b); d != 0 {
			return d
		}

		return strings.Compare(a.ID, b.ID)
	})
}

func priority(t *models.WorkflowTrigger) int {
	if t.Priority == 0 {
		return models.DefaultTriggerPriority
	}

	return t.Priority
}

// Payload builds the data a trigger condition is evaluated against: the entity
// fields at the top level, plus the action context under its own keys so both
// "totalAmount" and "entityData.totalAmount" resolve.
//
// The context keys entityType, entityId and entityData, and userId when a user
// is given, take precedence over entity fields of the same name. Such fields
// stay reachable through the "entityData." prefix.
func Payload(entityType, entityID, userID string, entityData map[string]any) map[string]any {
	payload := make(map[string]any, len(entityData)+4)
	maps.Copy(payload, entityData)

	payload["entityType"] = entityType
	payload["entityId"] = entityID
	payload["entityData"] = entityData

	if userID != "" {
		payload["userId"] = userID
	}

	return payload
}
