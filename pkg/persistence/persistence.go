// Package persistence provides the data storage abstraction layer for workflows,
// triggers, actions and workflow instances.
package persistence

import (
	"context"
	"time"

	"github.com/cflux/flow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TriggerRepository() TriggerRepository
	ActionRepository() ActionRepository
	InstanceRepository() InstanceRepository
	TemplateLinkRepository() TemplateLinkRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. GetByID returns
// ErrWorkflowNotFound for unknown ids.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

type TriggerRepository interface {
	GetAll(ctx context.Context) ([]*models.WorkflowTrigger, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTrigger, error)
	GetByActionKey(ctx context.Context, actionKey string) ([]*models.WorkflowTrigger, error)
	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error)
	Save(ctx context.Context, trigger *models.WorkflowTrigger) error
	Delete(ctx context.Context, id string) error
}

// LogQuery filters action logs. A zero Limit means no limit.
type LogQuery struct {
	ActionKey string
	Limit     int
}

type ActionRepository interface {
	GetAll(ctx context.Context) ([]*models.SystemAction, error)
	GetByKey(ctx context.Context, actionKey string) (*models.SystemAction, error)
	Save(ctx context.Context, action *models.SystemAction) error
	Delete(ctx context.Context, actionKey string) error

	SaveLog(ctx context.Context, log *models.ActionLog) error
	// Logs returns action logs, newest first.
	Logs(ctx context.Context, query LogQuery) ([]*models.ActionLog, error)
}

// InstanceRepository stores workflow instances and their materialized steps.
//
// Save writes an instance together with the steps changed alongside it. A
// record with Version 0 is inserted; any other record is updated only if the
// stored version still equals Version, otherwise ErrVersionConflict is
// returned and nothing is written. On success every saved record's Version
// is incremented.
type InstanceRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	// ListByEntity returns the instances of one entity, newest first.
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.WorkflowInstance, error)
	// ListDue returns IN_PROGRESS instances whose delay expired at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error)
	Save(ctx context.Context, instance *models.WorkflowInstance, steps ...*models.WorkflowInstanceStep) error

	Step(ctx context.Context, id string) (*models.WorkflowInstanceStep, error)
	// Steps returns the steps of an instance in creation order.
	Steps(ctx context.Context, instanceID string) ([]*models.WorkflowInstanceStep, error)
	// PendingSteps returns the PENDING steps the user may decide.
	PendingSteps(ctx context.Context, userID string) ([]*models.WorkflowInstanceStep, error)
}

type TemplateLinkRepository interface {
	Save(ctx context.Context, link *models.TemplateLink) error
	Delete(ctx context.Context, templateID, workflowID string) error
	ByTemplate(ctx context.Context, templateID string) ([]*models.TemplateLink, error)
	ByWorkflow(ctx context.Context, workflowID string) ([]*models.TemplateLink, error)
}
