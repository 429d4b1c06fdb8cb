package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/google/uuid"
)

// StepRequest creates or replaces a manual step of a workflow without a graph.
type StepRequest struct {
	Name                string          `json:"name"                validate:"required"`
	Type                models.StepType `json:"type"                validate:"required"`
	Order               int             `json:"order"               validate:"min=0"`
	ApproverUserIDs     []string        `json:"approverUserIds"`
	RequireAllApprovers bool            `json:"requireAllApprovers"`
	Config              map[string]any  `json:"config"`
}

// AddStep appends a step to a manual workflow. A zero order places it last.
func (w *Workflow) AddStep(ctx context.Context, workflowID string, req *StepRequest) (*models.WorkflowStep, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.IsGraph() {
		return nil, ErrGraphWorkflowSteps
	}

	step := &models.WorkflowStep{ID: uuid.New().String(), WorkflowID: workflowID}

	err = w.applyStep(step, req)
	if err != nil {
		return nil, err
	}

	if step.Order == 0 {
		step.Order = nextOrder(workflow.Steps)
	}

	workflow.Steps = append(workflow.Steps, step)

	err = w.save(ctx, "AddStep", workflow)
	if err != nil {
		return nil, err
	}

	return step, nil
}

// UpdateStep replaces a manual step.
func (w *Workflow) UpdateStep(ctx context.Context, stepID string, req *StepRequest) (*models.WorkflowStep, error) {
	workflow, idx, err := w.findStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	step := &models.WorkflowStep{ID: stepID, WorkflowID: workflow.ID}

	err = w.applyStep(step, req)
	if err != nil {
		return nil, err
	}

	if step.Order == 0 {
		step.Order = workflow.Steps[idx].Order
	}

	workflow.Steps[idx] = step

	err = w.save(ctx, "UpdateStep", workflow)
	if err != nil {
		return nil, err
	}

	return step, nil
}

func (w *Workflow) DeleteStep(ctx context.Context, stepID string) error {
	workflow, idx, err := w.findStep(ctx, stepID)
	if err != nil {
		return err
	}

	workflow.Steps = slices.Delete(workflow.Steps, idx, idx+1)

	return w.save(ctx, "DeleteStep", workflow)
}

func (w *Workflow) findStep(ctx context.Context, stepID string) (*models.Workflow, int, error) {
	workflows, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if workflow.IsGraph() {
			continue
		}

		idx := slices.IndexFunc(workflow.Steps, func(s *models.WorkflowStep) bool { return s.ID == stepID })
		if idx >= 0 {
			return workflow, idx, nil
		}
	}

	return nil, 0, persistence.NewEntityError("FindStep", "workflow step", stepID, persistence.ErrWorkflowStepNotFound)
}

func (w *Workflow) applyStep(step *models.WorkflowStep, req *StepRequest) error {
	err := w.validate.Struct(req)
	if err != nil {
		return NewValidationError("Step", "INVALID_STEP", err.Error(), ErrInvalidRequest)
	}

	if !req.Type.Valid() {
		return NewValidationError("Step", "INVALID_STEP", fmt.Sprintf("unknown step type %q", req.Type), ErrInvalidRequest)
	}

	raw, err := json.Marshal(req.Config)
	if err != nil {
		return NewValidationError("Step", "INVALID_STEP", err.Error(), ErrInvalidRequest)
	}

	cfg, err := models.DecodeStepConfig(req.Type, raw)
	if err != nil {
		return NewValidationError("Step", "INVALID_STEP", err.Error(), ErrInvalidRequest)
	}

	step.Name = req.Name
	step.Type = req.Type
	step.Order = req.Order
	step.ApproverUserIDs = req.ApproverUserIDs
	step.RequireAllApprovers = req.RequireAllApprovers
	step.Config = cfg
	step.Normalize()

	return nil
}

func nextOrder(steps []*models.WorkflowStep) int {
	highest := 0
	for _, s := range steps {
		highest = max(highest, s.Order)
	}

	return highest + 1
}
