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
	"github.com/lib/pq"
)

// ActionRepository handles system actions and their execution logs.
type ActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewActionRepository(db *sql.DB, logger *slog.Logger) *ActionRepository {
	return &ActionRepository{db: db, logger: logger}
}

const actionSelect = `
	SELECT
		action_key
	  , display_name
	  , description
	  , category
	  , context_schema
	  , is_system
	  , is_active
	  , created_at
	  , updated_at
	FROM system_actions
`

func (r *ActionRepository) GetAll(ctx context.Context) ([]*models.SystemAction, error) {
	rows, err := r.db.QueryContext(ctx, actionSelect+` ORDER BY category, action_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.SystemAction, 0)

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		actions = append(actions, action)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

func (r *ActionRepository) GetByKey(ctx context.Context, actionKey string) (*models.SystemAction, error) {
	action, err := scanAction(r.db.QueryRowContext(ctx, actionSelect+` WHERE action_key = $1`, actionKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByKey", "action", actionKey, persistence.ErrActionNotFound)
		}

		return nil, fmt.Errorf("failed to scan action: %w", err)
	}

	return action, nil
}

func (r *ActionRepository) Save(ctx context.Context, action *models.SystemAction) error {
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	schemaJSON, err := marshalJSON(action.ContextSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal context schema: %w", err)
	}

	query := `
		INSERT INTO system_actions (action_key, display_name, description, category, context_schema, is_system, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (action_key) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			context_schema = EXCLUDED.context_schema,
			is_system = EXCLUDED.is_system,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		action.ActionKey,
		action.DisplayName,
		action.Description,
		action.Category,
		schemaJSON,
		action.IsSystem,
		action.IsActive,
		action.CreatedAt,
		action.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save action: %w", err)
	}

	return nil
}

func (r *ActionRepository) Delete(ctx context.Context, actionKey string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM system_actions WHERE action_key = $1`, actionKey)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError("Delete", "action", actionKey, persistence.ErrActionNotFound)
	}

	return nil
}

func (r *ActionRepository) SaveLog(ctx context.Context, log *models.ActionLog) error {
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

	contextJSON, err := marshalJSON(log.ContextData)
	if err != nil {
		return fmt.Errorf("failed to marshal context data: %w", err)
	}

	triggered := log.TriggeredWorkflows
	if triggered == nil {
		triggered = []string{}
	}

	query := `
		INSERT INTO action_logs (id, action_key, entity_type, entity_id, user_id, context_data, triggered_workflows, success, error_message, execution_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID,
		log.ActionKey,
		log.EntityType,
		log.EntityID,
		nullString(log.UserID),
		contextJSON,
		pq.Array(triggered),
		log.Success,
		nullString(log.ErrorMessage),
		log.ExecutionTimeMs,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save action log: %w", err)
	}

	return nil
}

func (r *ActionRepository) Logs(ctx context.Context, query persistence.LogQuery) ([]*models.ActionLog, error) {
	sqlQuery := `
		SELECT id, action_key, entity_type, entity_id, user_id, context_data, triggered_workflows,
		       success, error_message, execution_time_ms, created_at
		FROM action_logs
		WHERE ($1::text = '' OR action_key = $1::text)
		ORDER BY created_at DESC, id DESC
	`

	args := []any{query.ActionKey}

	if query.Limit > 0 {
		sqlQuery += ` LIMIT $2`

		args = append(args, query.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query action logs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	logs := make([]*models.ActionLog, 0)

	for rows.Next() {
		var (
			log                models.ActionLog
			userID, errMessage sql.NullString
			contextJSON        []byte
			triggeredWorkflows pq.StringArray
		)

		err := rows.Scan(
			&log.ID,
			&log.ActionKey,
			&log.EntityType,
			&log.EntityID,
			&userID,
			&contextJSON,
			&triggeredWorkflows,
			&log.Success,
			&errMessage,
			&log.ExecutionTimeMs,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action log: %w", err)
		}

		log.UserID = userID.String
		log.ErrorMessage = errMessage.String
		log.TriggeredWorkflows = triggeredWorkflows

		if contextJSON != nil {
			err := json.Unmarshal(contextJSON, &log.ContextData)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal context data: %w", err)
			}
		}

		logs = append(logs, &log)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating action logs: %w", err)
	}

	return logs, nil
}

func scanAction(row scanner) (*models.SystemAction, error) {
	var (
		action     models.SystemAction
		schemaJSON []byte
	)

	err := row.Scan(
		&action.ActionKey,
		&action.DisplayName,
		&action.Description,
		&action.Category,
		&schemaJSON,
		&action.IsSystem,
		&action.IsActive,
		&action.CreatedAt,
		&action.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if schemaJSON != nil {
		err := json.Unmarshal(schemaJSON, &action.ContextSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal context schema: %w", err)
		}
	}

	return &action, nil
}
