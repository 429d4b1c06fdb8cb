package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/google/uuid"
)

// TriggerRepository handles trigger-related file operations.
type TriggerRepository struct {
	files jsonDir[models.WorkflowTrigger]
}

func NewTriggerRepository(root string) *TriggerRepository {
	return &TriggerRepository{files: newJSONDir[models.WorkflowTrigger](root, "triggers")}
}

// GetAll returns all triggers ordered by priority, then id.
func (tr *TriggerRepository) GetAll(_ context.Context) ([]*models.WorkflowTrigger, error) {
	triggers, err := tr.files.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].Priority != triggers[j].Priority {
			return triggers[i].Priority < triggers[j].Priority
		}

		return triggers[i].ID < triggers[j].ID
	})

	return triggers, nil
}

func (tr *TriggerRepository) GetByID(_ context.Context, id string) (*models.WorkflowTrigger, error) {
	trigger, err := tr.files.get(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("GetByID", "trigger", id, persistence.ErrTriggerNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch trigger %s: %w", id, err)
	}

	return trigger, nil
}

func (tr *TriggerRepository) GetByActionKey(ctx context.Context, actionKey string) ([]*models.WorkflowTrigger, error) {
	return tr.filter(ctx, func(t *models.WorkflowTrigger) bool { return t.ActionKey == actionKey })
}

func (tr *TriggerRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	return tr.filter(ctx, func(t *models.WorkflowTrigger) bool { return t.WorkflowID == workflowID })
}

func (tr *TriggerRepository) filter(ctx context.Context, keep func(*models.WorkflowTrigger) bool) ([]*models.WorkflowTrigger, error) {
	all, err := tr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	triggers := make([]*models.WorkflowTrigger, 0, len(all))

	for _, t := range all {
		if keep(t) {
			triggers = append(triggers, t)
		}
	}

	return triggers, nil
}

func (tr *TriggerRepository) Save(_ context.Context, trigger *models.WorkflowTrigger) error {
	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	return tr.files.put(trigger.ID, trigger)
}

func (tr *TriggerRepository) Delete(_ context.Context, id string) error {
	deleted, err := tr.files.remove(id)
	if err != nil {
		return err
	}

	if !deleted {
		return persistence.NewEntityError("Delete", "trigger", id, persistence.ErrTriggerNotFound)
	}

	return nil
}
