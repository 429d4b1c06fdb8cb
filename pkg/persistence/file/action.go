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

// ActionRepository stores system actions and their execution logs.
type ActionRepository struct {
	actions jsonDir[models.SystemAction]
	logs    jsonDir[models.ActionLog]
}

func NewActionRepository(root string) *ActionRepository {
	return &ActionRepository{
		actions: newJSONDir[models.SystemAction](root, "actions"),
		logs:    newJSONDir[models.ActionLog](root, "action_logs"),
	}
}

// GetAll returns all actions ordered by category, then key.
func (ar *ActionRepository) GetAll(_ context.Context) ([]*models.SystemAction, error) {
	actions, err := ar.actions.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Category != actions[j].Category {
			return actions[i].Category < actions[j].Category
		}

		return actions[i].ActionKey < actions[j].ActionKey
	})

	return actions, nil
}

func (ar *ActionRepository) GetByKey(_ context.Context, actionKey string) (*models.SystemAction, error) {
	action, err := ar.actions.get(actionKey)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("GetByKey", "action", actionKey, persistence.ErrActionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch action %s: %w", actionKey, err)
	}

	return action, nil
}

func (ar *ActionRepository) Save(_ context.Context, action *models.SystemAction) error {
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	return ar.actions.put(action.ActionKey, action)
}

func (ar *ActionRepository) Delete(_ context.Context, actionKey string) error {
	deleted, err := ar.actions.remove(actionKey)
	if err != nil {
		return err
	}

	if !deleted {
		return persistence.NewEntityError("Delete", "action", actionKey, persistence.ErrActionNotFound)
	}

	return nil
}

func (ar *ActionRepository) SaveLog(_ context.Context, log *models.ActionLog) error {
	if log.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate action log ID: %w", err)
		}

		log.ID = id.String()
	}

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	return ar.logs.put(log.ID, log)
}

func (ar *ActionRepository) Logs(_ context.Context, query persistence.LogQuery) ([]*models.ActionLog, error) {
	all, err := ar.logs.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}

	logs := make([]*models.ActionLog, 0, len(all))

	for _, l := range all {
		if query.ActionKey == "" || l.ActionKey == query.ActionKey {
			logs = append(logs, l)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].CreatedAt.After(logs[j].CreatedAt)
		}

		return logs[i].ID > logs[j].ID
	})

	if query.Limit > 0 && len(logs) > query.Limit {
		logs = logs[:query.Limit]
	}

	return logs, nil
}
