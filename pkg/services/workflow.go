package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Workflow struct {
	persistence persistence.Persistence
	compiler    *graph.Compiler
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence, compiler *graph.Compiler, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: p,
		compiler:    compiler,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns all workflows with their derived steps.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		w.deriveSteps(workflow)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	w.deriveSteps(workflow)

	return workflow, nil
}

// Create validates and compiles a new workflow before storing it.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
	}

	workflow.ID = id.String()

	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
	}

	err = w.save(ctx, "Create", workflow)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Created workflow", "workflow_id", workflow.ID, "name", workflow.Name)

	return workflow, nil
}

// Update replaces a workflow definition. Running instances keep the plan they
// captured at start.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt

	if !workflow.IsGraph() && workflow.Steps == nil {
		workflow.Steps = existing.Steps
	}

	err = w.save(ctx, "Update", workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Delete removes a workflow. Workflows linked to templates cannot be deleted.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	_, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	links, err := w.persistence.TemplateLinkRepository().ByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to check template links: %w", err)
	}

	if len(links) > 0 {
		return &ServiceError{
			Op:      "Delete",
			Code:    "WORKFLOW_IN_USE",
			Message: fmt.Sprintf("workflow %s is linked to %d template(s)", workflowID, len(links)),
			Err:     ErrWorkflowInUse,
		}
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// save validates, compiles and stores the workflow, then fills its derived steps.
func (w *Workflow) save(ctx context.Context, op string, workflow *models.Workflow) error {
	workflow.Name = strings.TrimSpace(workflow.Name)
	if workflow.Name == "" {
		return NewValidationError(op, "WORKFLOW_NAME_REQUIRED", "workflow name is required", ErrWorkflowNameRequired)
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return NewValidationError(op, "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	if workflow.IsActive && !workflow.IsGraph() && len(workflow.Steps) == 0 {
		return &graph.DefinitionError{WorkflowID: workflow.ID, Err: graph.ErrEmptyWorkflow}
	}

	if workflow.IsGraph() || len(workflow.Steps) > 0 {
		_, err = w.compiler.Compile(workflow)
		if err != nil {
			return err
		}
	}

	if workflow.IsGraph() {
		workflow.Steps = nil
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	w.deriveSteps(workflow)

	return nil
}

// deriveSteps exposes the compiled steps of a graph workflow.
func (w *Workflow) deriveSteps(workflow *models.Workflow) {
	if !workflow.IsGraph() {
		if workflow.Steps == nil {
			workflow.Steps = []*models.WorkflowStep{}
		}

		return
	}

	plan, err := w.compiler.Compile(workflow)
	if err != nil {
		w.logger.Warn("Stored workflow does not compile", "workflow_id", workflow.ID, "error", err)

		workflow.Steps = []*models.WorkflowStep{}

		return
	}

	workflow.Steps = plan.OrderedSteps()
}
