package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/google/uuid"
)

// TriggerRepository handles trigger-related database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

const triggerSelect = `
	SELECT
		id
	  , workflow_id
	  , action_key
	  , timing
	  , priority
	  , condition
	  , is_active
	  , created_at
	  , updated_at
	FROM workflow_triggers
`

const triggerOrder = ` ORDER BY priority ASC, id ASC`

func (r *TriggerRepository) GetAll(ctx context.Context) ([]*models.WorkflowTrigger, error) {
	return r.query(ctx, triggerSelect+triggerOrder)
}

func (r *TriggerRepository) GetByActionKey(ctx context.Context, actionKey string) ([]*models.WorkflowTrigger, error) {
	return r.query(ctx, triggerSelect+` WHERE action_key = $1`+triggerOrder, actionKey)
}

func (r *TriggerRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	return r.query(ctx, triggerSelect+` WHERE workflow_id = $1`+triggerOrder, workflowID)
}

func (r *TriggerRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTrigger, error) {
	trigger, err := scanTrigger(r.db.QueryRowContext(ctx, triggerSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "trigger", id, persistence.ErrTriggerNotFound)
		}

		return nil, fmt.Errorf("failed to scan trigger: %w", err)
	}

	return trigger, nil
}

func (r *TriggerRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowTrigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.WorkflowTrigger) error {
	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	var conditionJSON []byte

	if trigger.Condition != nil {
		var err error

		conditionJSON, err = json.Marshal(trigger.Condition)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger condition: %w", err)
		}
	}

	query := `
		INSERT INTO workflow_triggers (id, workflow_id, action_key, timing, priority, condition, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			action_key = EXCLUDED.action_key,
			timing = EXCLUDED.timing,
			priority = EXCLUDED.priority,
			condition = EXCLUDED.condition,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.WorkflowID,
		trigger.ActionKey,
		trigger.Timing,
		trigger.Priority,
		conditionJSON,
		trigger.IsActive,
		trigger.CreatedAt,
		trigger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}

func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError("Delete", "trigger", id, persistence.ErrTriggerNotFound)
	}

	return nil
}

func scanTrigger(row scanner) (*models.WorkflowTrigger, error) {
	var (
		trigger       models.WorkflowTrigger
		conditionJSON []byte
	)

	err := row.Scan(
		&trigger.ID,
		&trigger.WorkflowID,
		&trigger.ActionKey,
		&trigger.Timing,
		&trigger.Priority,
		&conditionJSON,
		&trigger.IsActive,
		&trigger.CreatedAt,
		&trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if conditionJSON != nil {
		err := json.Unmarshal(conditionJSON, &trigger.Condition)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger condition: %w", err)
		}
	}

	return &trigger, nil
}
