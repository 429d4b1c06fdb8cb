package services

import (
	"context"
	"fmt"

	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/models"
)

// Activate makes a workflow eligible for triggers. Only a workflow that
// compiles to a runnable plan can be activated.
func (w *Workflow) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsGraph() && len(workflow.Steps) == 0 {
		return nil, &graph.DefinitionError{WorkflowID: workflowID, Err: graph.ErrEmptyWorkflow}
	}

	return w.setActive(ctx, workflow, true)
}

// Deactivate stops new instances from starting. Running instances continue.
func (w *Workflow) Deactivate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return w.setActive(ctx, workflow, false)
}

func (w *Workflow) setActive(ctx context.Context, workflow *models.Workflow, active bool) (*models.Workflow, error) {
	if workflow.IsActive == active {
		w.deriveSteps(workflow)

		return workflow, nil
	}

	workflow.IsActive = active

	err := w.save(ctx, "SetActive", workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to change workflow activation: %w", err)
	}

	w.logger.InfoContext(ctx, "Changed workflow activation", "workflow_id", workflow.ID, "active", active)

	return workflow, nil
}
