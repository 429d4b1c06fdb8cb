package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/google/uuid"
)

// InstanceRepository stores workflow instances and their steps. Saves are
// serialized so the version check and the write happen atomically within the
// process.
type InstanceRepository struct {
	mu        sync.Mutex
	instances jsonDir[models.WorkflowInstance]
	steps     jsonDir[models.WorkflowInstanceStep]
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{
		instances: newJSONDir[models.WorkflowInstance](root, "instances"),
		steps:     newJSONDir[models.WorkflowInstanceStep](root, "instance_steps"),
	}
}

func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := ir.instances.get(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance %s: %w", id, err)
	}

	return instance, nil
}

func (ir *InstanceRepository) ListByEntity(_ context.Context, entityType, entityID string) ([]*models.WorkflowInstance, error) {
	return ir.filter(func(i *models.WorkflowInstance) bool {
		return i.EntityType == entityType && i.EntityID == entityID
	})
}

func (ir *InstanceRepository) ListDue(_ context.Context, now time.Time) ([]*models.WorkflowInstance, error) {
	return ir.filter(func(i *models.WorkflowInstance) bool {
		return i.Status == models.InstanceInProgress && i.DueAt != nil && !i.DueAt.After(now)
	})
}

func (ir *InstanceRepository) filter(keep func(*models.WorkflowInstance) bool) ([]*models.WorkflowInstance, error) {
	all, err := ir.instances.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(all))

	for _, i := range all {
		if keep(i) {
			instances = append(instances, i)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		if !instances[i].StartedAt.Equal(instances[j].StartedAt) {
			return instances[i].StartedAt.After(instances[j].StartedAt)
		}

		return instances[i].ID > instances[j].ID
	})

	return instances, nil
}

func (ir *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance, steps ...*models.WorkflowInstanceStep) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	if instance.ID == "" {
		instance.ID = uuid.New().String()
	}

	err := checkVersion(ir.instances, "instance", instance.ID, instance.Version)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.InstanceID = instance.ID

		err := checkVersion(ir.steps, "instance step", step.ID, step.Version)
		if err != nil {
			return err
		}
	}

	instance.Version++
	for _, step := range steps {
		step.Version++
	}

	err = ir.write(instance, steps)
	if err != nil {
		instance.Version--
		for _, step := range steps {
			step.Version--
		}

		return err
	}

	return nil
}

// write stores the steps, then the instance. When any write fails the step
// documents already written are put back so the store keeps the old versions.
func (ir *InstanceRepository) write(instance *models.WorkflowInstance, steps []*models.WorkflowInstanceStep) error {
	previous := make([][]byte, len(steps))

	for i, step := range steps {
		data, err := ir.steps.raw(step.ID)
		if err != nil {
			return fmt.Errorf("failed to read instance step %s: %w", step.ID, err)
		}

		previous[i] = data
	}

	for i, step := range steps {
		err := ir.steps.put(step.ID, step)
		if err != nil {
			return ir.rollback(steps[:i], previous, fmt.Errorf("failed to save instance step %s: %w", step.ID, err))
		}
	}

	err := ir.instances.put(instance.ID, instance)
	if err != nil {
		return ir.rollback(steps, previous, fmt.Errorf("failed to save instance %s: %w", instance.ID, err))
	}

	return nil
}

func (ir *InstanceRepository) rollback(written []*models.WorkflowInstanceStep, previous [][]byte, cause error) error {
	errs := []error{cause}

	for i := len(written) - 1; i >= 0; i-- {
		err := ir.steps.restore(written[i].ID, previous[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to restore instance step %s: %w", written[i].ID, err))
		}
	}

	return errors.Join(errs...)
}

type versioned interface {
	models.WorkflowInstance | models.WorkflowInstanceStep
}

func checkVersion[T versioned](files jsonDir[T], entity, id string, expected int) error {
	stored, err := files.get(id)
	if errors.Is(err, fs.ErrNotExist) {
		if expected == 0 {
			return nil
		}

		return persistence.NewEntityError("Save", entity, id, persistence.ErrVersionConflict)
	}

	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", entity, id, err)
	}

	if version(stored) != expected {
		return persistence.NewEntityError("Save", entity, id, persistence.ErrVersionConflict)
	}

	return nil
}

func version(record any) int {
	switch r := record.(type) {
	case *models.WorkflowInstance:
		return r.Version
	case *models.WorkflowInstanceStep:
		return r.Version
	default:
		return -1
	}
}

func (ir *InstanceRepository) Step(_ context.Context, id string) (*models.WorkflowInstanceStep, error) {
	step, err := ir.steps.get(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("Step", "instance step", id, persistence.ErrStepNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance step %s: %w", id, err)
	}

	return step, nil
}

func (ir *InstanceRepository) Steps(_ context.Context, instanceID string) ([]*models.WorkflowInstanceStep, error) {
	return ir.filterSteps(func(s *models.WorkflowInstanceStep) bool { return s.InstanceID == instanceID })
}

func (ir *InstanceRepository) PendingSteps(_ context.Context, userID string) ([]*models.WorkflowInstanceStep, error) {
	return ir.filterSteps(func(s *models.WorkflowInstanceStep) bool {
		return s.Status == models.StepPending && s.IsApprover(userID) && !s.HasApproved(userID)
	})
}

func (ir *InstanceRepository) filterSteps(keep func(*models.WorkflowInstanceStep) bool) ([]*models.WorkflowInstanceStep, error) {
	all, err := ir.steps.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list instance steps: %w", err)
	}

	steps := make([]*models.WorkflowInstanceStep, 0, len(all))

	for _, s := range all {
		if keep(s) {
			steps = append(steps, s)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		if !steps[i].CreatedAt.Equal(steps[j].CreatedAt) {
			return steps[i].CreatedAt.Before(steps[j].CreatedAt)
		}

		if steps[i].InstanceID != steps[j].InstanceID {
			return steps[i].InstanceID < steps[j].InstanceID
		}

		return steps[i].Sequence < steps[j].Sequence
	})

	return steps, nil
}
