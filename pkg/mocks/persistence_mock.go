package mocks

import (
	"context"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

func result[T any](args mock.Arguments) (T, error) {
	var zero T
	if args.Get(0) == nil {
		return zero, args.Error(1)
	}

	return args.Get(0).(T), args.Error(1)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

var _ persistence.WorkflowRepository = (*MockWorkflowRepository)(nil)

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	return result[[]*models.Workflow](m.Called(ctx))
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return result[*models.Workflow](m.Called(ctx, id))
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	return m.Called(ctx, workflow).Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockTriggerRepository is a mock implementation of persistence.TriggerRepository interface.
type MockTriggerRepository struct {
	mock.Mock
}

var _ persistence.TriggerRepository = (*MockTriggerRepository)(nil)

func (m *MockTriggerRepository) GetAll(ctx context.Context) ([]*models.WorkflowTrigger, error) {
	return result[[]*models.WorkflowTrigger](m.Called(ctx))
}

func (m *MockTriggerRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTrigger, error) {
	return result[*models.WorkflowTrigger](m.Called(ctx, id))
}

func (m *MockTriggerRepository) GetByActionKey(ctx context.Context, actionKey string) ([]*models.WorkflowTrigger, error) {
	return result[[]*models.WorkflowTrigger](m.Called(ctx, actionKey))
}

func (m *MockTriggerRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	return result[[]*models.WorkflowTrigger](m.Called(ctx, workflowID))
}

func (m *MockTriggerRepository) Save(ctx context.Context, trigger *models.WorkflowTrigger) error {
	return m.Called(ctx, trigger).Error(0)
}

func (m *MockTriggerRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockActionRepository is a mock implementation of persistence.ActionRepository interface.
type MockActionRepository struct {
	mock.Mock
}

var _ persistence.ActionRepository = (*MockActionRepository)(nil)

func (m *MockActionRepository) GetAll(ctx context.Context) ([]*models.SystemAction, error) {
	return result[[]*models.SystemAction](m.Called(ctx))
}

func (m *MockActionRepository) GetByKey(ctx context.Context, actionKey string) (*models.SystemAction, error) {
	return result[*models.SystemAction](m.Called(ctx, actionKey))
}

func (m *MockActionRepository) Save(ctx context.Context, action *models.SystemAction) error {
	return m.Called(ctx, action).Error(0)
}

func (m *MockActionRepository) Delete(ctx context.Context, actionKey string) error {
	return m.Called(ctx, actionKey).Error(0)
}

func (m *MockActionRepository) SaveLog(ctx context.Context, log *models.ActionLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockActionRepository) Logs(ctx context.Context, query persistence.LogQuery) ([]*models.ActionLog, error) {
	return result[[]*models.ActionLog](m.Called(ctx, query))
}

// MockInstanceRepository is a mock implementation of persistence.InstanceRepository interface.
type MockInstanceRepository struct {
	mock.Mock
}

var _ persistence.InstanceRepository = (*MockInstanceRepository)(nil)

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return result[*models.WorkflowInstance](m.Called(ctx, id))
}

func (m *MockInstanceRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.WorkflowInstance, error) {
	return result[[]*models.WorkflowInstance](m.Called(ctx, entityType, entityID))
}

func (m *MockInstanceRepository) ListDue(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error) {
	return result[[]*models.WorkflowInstance](m.Called(ctx, now))
}

func (m *MockInstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance, steps ...*models.WorkflowInstanceStep) error {
	return m.Called(ctx, instance, steps).Error(0)
}

func (m *MockInstanceRepository) Step(ctx context.Context, id string) (*models.WorkflowInstanceStep, error) {
	return result[*models.WorkflowInstanceStep](m.Called(ctx, id))
}

func (m *MockInstanceRepository) Steps(ctx context.Context, instanceID string) ([]*models.WorkflowInstanceStep, error) {
	return result[[]*models.WorkflowInstanceStep](m.Called(ctx, instanceID))
}

func (m *MockInstanceRepository) PendingSteps(ctx context.Context, userID string) ([]*models.WorkflowInstanceStep, error) {
	return result[[]*models.WorkflowInstanceStep](m.Called(ctx, userID))
}

// MockTemplateLinkRepository is a mock implementation of persistence.TemplateLinkRepository interface.
type MockTemplateLinkRepository struct {
	mock.Mock
}

var _ persistence.TemplateLinkRepository = (*MockTemplateLinkRepository)(nil)

func (m *MockTemplateLinkRepository) Save(ctx context.Context, link *models.TemplateLink) error {
	return m.Called(ctx, link).Error(0)
}

func (m *MockTemplateLinkRepository) Delete(ctx context.Context, templateID, workflowID string) error {
	return m.Called(ctx, templateID, workflowID).Error(0)
}

func (m *MockTemplateLinkRepository) ByTemplate(ctx context.Context, templateID string) ([]*models.TemplateLink, error) {
	return result[[]*models.TemplateLink](m.Called(ctx, templateID))
}

func (m *MockTemplateLinkRepository) ByWorkflow(ctx context.Context, workflowID string) ([]*models.TemplateLink, error) {
	return result[[]*models.TemplateLink](m.Called(ctx, workflowID))
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	Workflows     *MockWorkflowRepository
	Triggers      *MockTriggerRepository
	Actions       *MockActionRepository
	Instances     *MockInstanceRepository
	TemplateLinks *MockTemplateLinkRepository
}

var _ persistence.Persistence = (*MockPersistence)(nil)

// NewMockPersistence returns a persistence whose repositories are fresh mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Workflows:     &MockWorkflowRepository{},
		Triggers:      &MockTriggerRepository{},
		Actions:       &MockActionRepository{},
		Instances:     &MockInstanceRepository{},
		TemplateLinks: &MockTemplateLinkRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.Workflows
}

func (m *MockPersistence) TriggerRepository() persistence.TriggerRepository {
	return m.Triggers
}

func (m *MockPersistence) ActionRepository() persistence.ActionRepository {
	return m.Actions
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	return m.Instances
}

func (m *MockPersistence) TemplateLinkRepository() persistence.TemplateLinkRepository {
	return m.TemplateLinks
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
