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

// InstanceRepository handles workflow instances and their steps. Writes use
// optimistic concurrency on the version column.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceSelect = `
	SELECT
		id
	  , workflow_id
	  , trigger_id
	  , entity_type
	  , entity_id
	  , entity_data
	  , status
	  , current_step_id
	  , plan
	  , decisions
	  , due_at
	  , comment
	  , started_at
	  , completed_at
	  , version
	FROM workflow_instances
`

const stepSelect = `
	SELECT
		id
	  , instance_id
	  , step_id
	  , step_name
	  , step_type
	  , sequence
	  , status
	  , approver_user_ids
	  , require_all_approvers
	  , approvals
	  , approved_by_id
	  , approved_at
	  , comment
	  , result
	  , created_at
	  , version
	FROM workflow_instance_steps
`

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := scanInstance(r.db.QueryRowContext(ctx, instanceSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "instance", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

func (r *InstanceRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.WorkflowInstance, error) {
	return r.queryInstances(ctx,
		instanceSelect+` WHERE entity_type = $1 AND entity_id = $2 ORDER BY started_at DESC, id DESC`,
		entityType, entityID)
}

func (r *InstanceRepository) ListDue(ctx context.Context, now time.Time) ([]*models.WorkflowInstance, error) {
	return r.queryInstances(ctx,
		instanceSelect+` WHERE status = 'IN_PROGRESS' AND due_at IS NOT NULL AND due_at <= $1 ORDER BY due_at, id`,
		now)
}

func (r *InstanceRepository) queryInstances(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// Save writes the instance and its changed steps in one transaction.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance, steps ...*models.WorkflowInstanceStep) error {
	if instance.ID == "" {
		instance.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = r.saveInstance(ctx, tx, instance)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.InstanceID = instance.ID

		err = r.saveStep(ctx, tx, step)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	instance.Version++
	for _, step := range steps {
		step.Version++
	}

	return nil
}

func (r *InstanceRepository) saveInstance(ctx context.Context, tx *sql.Tx, instance *models.WorkflowInstance) error {
	entityJSON, err := marshalJSON(instance.EntityData)
	if err != nil {
		return fmt.Errorf("failed to marshal entity data: %w", err)
	}

	var planJSON []byte

	if instance.Plan != nil {
		planJSON, err = json.Marshal(instance.Plan)
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
	}

	decisions := instance.Decisions
	if decisions == nil {
		decisions = []models.Decision{}
	}

	decisionsJSON, err := json.Marshal(decisions)
	if err != nil {
		return fmt.Errorf("failed to marshal decisions: %w", err)
	}

	args := []any{
		instance.ID,
		instance.WorkflowID,
		nullString(instance.TriggerID),
		instance.EntityType,
		instance.EntityID,
		entityJSON,
		instance.Status,
		instance.CurrentStepID,
		planJSON,
		decisionsJSON,
		instance.DueAt,
		nullString(instance.Comment),
		instance.StartedAt,
		instance.CompletedAt,
		instance.Version + 1,
	}

	var query string

	if instance.Version == 0 {
		query = `
			INSERT INTO workflow_instances (id, workflow_id, trigger_id, entity_type, entity_id, entity_data, status,
				current_step_id, plan, decisions, due_at, comment, started_at, completed_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (id) DO NOTHING
		`
	} else {
		query = `
			UPDATE workflow_instances SET
				workflow_id = $2, trigger_id = $3, entity_type = $4, entity_id = $5, entity_data = $6, status = $7,
				current_step_id = $8, plan = $9, decisions = $10, due_at = $11, comment = $12, started_at = $13,
				completed_at = $14, version = $15
			WHERE id = $1 AND version = $16
		`
		args = append(args, instance.Version)
	}

	return execVersioned(ctx, tx, "instance", instance.ID, query, args...)
}

func (r *InstanceRepository) saveStep(ctx context.Context, tx *sql.Tx, step *models.WorkflowInstanceStep) error {
	approvals := step.Approvals
	if approvals == nil {
		approvals = []models.Approval{}
	}

	approvalsJSON, err := json.Marshal(approvals)
	if err != nil {
		return fmt.Errorf("failed to marshal approvals: %w", err)
	}

	resultJSON, err := marshalJSON(step.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal step result: %w", err)
	}

	approvers := step.ApproverUserIDs
	if approvers == nil {
		approvers = []string{}
	}

	args := []any{
		step.ID,
		step.InstanceID,
		step.StepID,
		step.StepName,
		step.StepType,
		step.Sequence,
		step.Status,
		pq.Array(approvers),
		step.RequireAllApprovers,
		approvalsJSON,
		step.ApprovedByID,
		step.ApprovedAt,
		nullString(step.Comment),
		resultJSON,
		step.CreatedAt,
		step.Version + 1,
	}

	var query string

	if step.Version == 0 {
		query = `
			INSERT INTO workflow_instance_steps (id, instance_id, step_id, step_name, step_type, sequence, status,
				approver_user_ids, require_all_approvers, approvals, approved_by_id, approved_at, comment, result,
				created_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO NOTHING
		`
	} else {
		query = `
			UPDATE workflow_instance_steps SET
				instance_id = $2, step_id = $3, step_name = $4, step_type = $5, sequence = $6, status = $7,
				approver_user_ids = $8, require_all_approvers = $9, approvals = $10, approved_by_id = $11,
				approved_at = $12, comment = $13, result = $14, created_at = $15, version = $16
			WHERE id = $1 AND version = $17
		`
		args = append(args, step.Version)
	}

	return execVersioned(ctx, tx, "instance step", step.ID, query, args...)
}

// execVersioned runs an insert or a version-guarded update; zero affected rows
// means another writer got there first.
func execVersioned(ctx context.Context, tx *sql.Tx, entity, id, query string, args ...any) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", entity, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError("Save", entity, id, persistence.ErrVersionConflict)
	}

	return nil
}

func (r *InstanceRepository) Step(ctx context.Context, id string) (*models.WorkflowInstanceStep, error) {
	step, err := scanStep(r.db.QueryRowContext(ctx, stepSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("Step", "instance step", id, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance step: %w", err)
	}

	return step, nil
}

func (r *InstanceRepository) Steps(ctx context.Context, instanceID string) ([]*models.WorkflowInstanceStep, error) {
	return r.querySteps(ctx, stepSelect+` WHERE instance_id = $1 ORDER BY sequence`, instanceID)
}

func (r *InstanceRepository) PendingSteps(ctx context.Context, userID string) ([]*models.WorkflowInstanceStep, error) {
	query := stepSelect + `
		WHERE status = 'PENDING'
		  AND $1::text = ANY(approver_user_ids)
		  AND NOT approvals @> jsonb_build_array(jsonb_build_object('userId', $1::text))
		ORDER BY created_at, instance_id, sequence
	`

	return r.querySteps(ctx, query, userID)
}

func (r *InstanceRepository) querySteps(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstanceStep, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instance steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.WorkflowInstanceStep, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instance steps: %w", err)
	}

	return steps, nil
}

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance                            models.WorkflowInstance
		triggerID, comment                  sql.NullString
		entityJSON, planJSON, decisionsJSON []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&triggerID,
		&instance.EntityType,
		&instance.EntityID,
		&entityJSON,
		&instance.Status,
		&instance.CurrentStepID,
		&planJSON,
		&decisionsJSON,
		&instance.DueAt,
		&comment,
		&instance.StartedAt,
		&instance.CompletedAt,
		&instance.Version,
	)
	if err != nil {
		return nil, err
	}

	instance.TriggerID = triggerID.String
	instance.Comment = comment.String

	columns := []struct {
		name   string
		raw    []byte
		target any
	}{
		{"entity data", entityJSON, &instance.EntityData},
		{"plan", planJSON, &instance.Plan},
		{"decisions", decisionsJSON, &instance.Decisions},
	}

	for _, c := range columns {
		if c.raw == nil {
			continue
		}

		err := json.Unmarshal(c.raw, c.target)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", c.name, err)
		}
	}

	return &instance, nil
}

func scanStep(row scanner) (*models.WorkflowInstanceStep, error) {
	var (
		step                      models.WorkflowInstanceStep
		comment                   sql.NullString
		approvers                 pq.StringArray
		approvalsJSON, resultJSON []byte
	)

	err := row.Scan(
		&step.ID,
		&step.InstanceID,
		&step.StepID,
		&step.StepName,
		&step.StepType,
		&step.Sequence,
		&step.Status,
		&approvers,
		&step.RequireAllApprovers,
		&approvalsJSON,
		&step.ApprovedByID,
		&step.ApprovedAt,
		&comment,
		&resultJSON,
		&step.CreatedAt,
		&step.Version,
	)
	if err != nil {
		return nil, err
	}

	step.ApproverUserIDs = approvers
	step.Comment = comment.String

	if approvalsJSON != nil {
		err := json.Unmarshal(approvalsJSON, &step.Approvals)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal approvals: %w", err)
		}
	}

	if resultJSON != nil {
		err := json.Unmarshal(resultJSON, &step.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step result: %w", err)
		}
	}

	return &step, nil
}
