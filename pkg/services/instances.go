package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cflux/flow/pkg/engine"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
)

// InvoiceEntity is the entity type of the invoice convenience routes.
const InvoiceEntity = "invoice"

// Instances exposes running workflow instances and the approval operations on
// their steps.
type Instances struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	logger      *slog.Logger
}

func NewInstances(p persistence.Persistence, eng *engine.Engine, logger *slog.Logger) *Instances {
	return &Instances{persistence: p, engine: eng, logger: logger}
}

type InstanceDetail struct {
	*models.WorkflowInstance

	Steps []*models.WorkflowInstanceStep `json:"steps"`
}

type ApprovalStatus struct {
	CanApprove   bool `json:"canApprove"`
	AllCompleted bool `json:"allCompleted"`
	AnyRejected  bool `json:"anyRejected"`
}

// PendingApproval is a step waiting for the user together with the entity it
// decides on.
type PendingApproval struct {
	Step         *models.WorkflowInstanceStep `json:"step"`
	InstanceID   string                       `json:"instanceId"`
	WorkflowID   string                       `json:"workflowId"`
	WorkflowName string                       `json:"workflowName,omitempty"`
	EntityType   string                       `json:"entityType"`
	EntityID     string                       `json:"entityId"`
	EntityData   map[string]any               `json:"entityData"`
}

type TestRequest struct {
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	EntityData map[string]any `json:"entityData"`
}

// ByEntity returns every instance of the entity with its steps, newest first.
func (s *Instances) ByEntity(ctx context.Context, entityType, entityID string) ([]*InstanceDetail, error) {
	instances, err := s.persistence.InstanceRepository().ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	details := make([]*InstanceDetail, 0, len(instances))

	for _, instance := range instances {
		steps, err := s.persistence.InstanceRepository().Steps(ctx, instance.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list instance steps: %w", err)
		}

		details = append(details, &InstanceDetail{WorkflowInstance: instance, Steps: steps})
	}

	return details, nil
}

func (s *Instances) ByInvoice(ctx context.Context, invoiceID string) ([]*InstanceDetail, error) {
	return s.ByEntity(ctx, InvoiceEntity, invoiceID)
}

func (s *Instances) Get(ctx context.Context, instanceID string) (*InstanceDetail, error) {
	instance, err := s.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	steps, err := s.persistence.InstanceRepository().Steps(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instance steps: %w", err)
	}

	return &InstanceDetail{WorkflowInstance: instance, Steps: steps}, nil
}

func (s *Instances) Cancel(ctx context.Context, instanceID, comment string) (*models.WorkflowInstance, error) {
	return s.engine.Cancel(ctx, instanceID, comment)
}

func (s *Instances) Approve(ctx context.Context, stepID, userID, comment string) (*engine.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewValidationError("Approve", "USER_REQUIRED", "userId is required", ErrUserRequired)
	}

	return s.engine.Approve(ctx, stepID, userID, comment)
}

func (s *Instances) Reject(ctx context.Context, stepID, userID, comment string) (*engine.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewValidationError("Reject", "USER_REQUIRED", "userId is required", ErrUserRequired)
	}

	return s.engine.Reject(ctx, stepID, userID, comment)
}

// CheckApproval summarizes every instance of the entity. Only COMPLETED
// instances count as completed, and an entity without instances is complete.
func (s *Instances) CheckApproval(ctx context.Context, entityType, entityID string) (*ApprovalStatus, error) {
	instances, err := s.persistence.InstanceRepository().ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	status := &ApprovalStatus{AllCompleted: true}

	for _, instance := range instances {
		if instance.Status != models.InstanceCompleted {
			status.AllCompleted = false
		}

		if instance.Status == models.InstanceRejected {
			status.AnyRejected = true
		}
	}

	status.CanApprove = status.AllCompleted && !status.AnyRejected

	return status, nil
}

// MyApprovals lists the steps the user can decide on right now.
func (s *Instances) MyApprovals(ctx context.Context, userID string) ([]*PendingApproval, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, NewValidationError("MyApprovals", "USER_REQUIRED", "userId is required", ErrUserRequired)
	}

	steps, err := s.persistence.InstanceRepository().PendingSteps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending steps: %w", err)
	}

	names := make(map[string]string)
	pending := make([]*PendingApproval, 0, len(steps))

	for _, step := range steps {
		instance, err := s.persistence.InstanceRepository().GetByID(ctx, step.InstanceID)
		if err != nil {
			return nil, err
		}

		if instance.Status.Terminal() {
			continue
		}

		pending = append(pending, &PendingApproval{
			Step:         step,
			InstanceID:   instance.ID,
			WorkflowID:   instance.WorkflowID,
			WorkflowName: s.workflowName(ctx, names, instance.WorkflowID),
			EntityType:   instance.EntityType,
			EntityID:     instance.EntityID,
			EntityData:   instance.EntityData,
		})
	}

	return pending, nil
}

func (s *Instances) workflowName(ctx context.Context, cache map[string]string, workflowID string) string {
	if name, ok := cache[workflowID]; ok {
		return name
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		s.logger.WarnContext(ctx, "Workflow of pending step unavailable", "workflow_id", workflowID, "error", err)
		cache[workflowID] = ""

		return ""
	}

	cache[workflowID] = workflow.Name

	return workflow.Name
}

// Test walks the workflow against entity data without persisting anything.
// Without explicit data the newest snapshot of the entity is used, if any.
func (s *Instances) Test(ctx context.Context, workflowID string, req TestRequest) (*engine.DryRunResult, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if req.EntityType == "" {
		req.EntityType = InvoiceEntity
	}

	data := req.EntityData
	if data == nil && req.EntityID != "" {
		instances, err := s.persistence.InstanceRepository().ListByEntity(ctx, req.EntityType, req.EntityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity snapshot: %w", err)
		}

		if len(instances) > 0 {
			data = instances[0].EntityData
		}
	}

	if data == nil {
		data = map[string]any{}
	}

	return s.engine.DryRun(ctx, workflow, req.EntityType, req.EntityID, data)
}
