package services

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cflux/flow/pkg/actionbus"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/trigger"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed seed_actions.yaml
var seedActions []byte

// DefaultActions returns the built-in system actions.
func DefaultActions() ([]*models.SystemAction, error) {
	var actions []*models.SystemAction

	err := yaml.Unmarshal(seedActions, &actions)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed actions: %w", err)
	}

	return actions, nil
}

type Actions struct {
	persistence persistence.Persistence
	registry    *trigger.Registry
	bus         actionbus.Bus
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewActions(p persistence.Persistence, registry *trigger.Registry, bus actionbus.Bus, logger *slog.Logger) *Actions {
	return &Actions{
		persistence: p,
		registry:    registry,
		bus:         bus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

func (a *Actions) List(ctx context.Context) ([]*models.SystemAction, error) {
	actions, err := a.persistence.ActionRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}

	return actions, nil
}

func (a *Actions) Get(ctx context.Context, actionKey string) (*models.SystemAction, error) {
	return a.persistence.ActionRepository().GetByKey(ctx, actionKey)
}

func (a *Actions) Create(ctx context.Context, action *models.SystemAction) (*models.SystemAction, error) {
	err := a.check("CreateAction", action)
	if err != nil {
		return nil, err
	}

	_, err = a.persistence.ActionRepository().GetByKey(ctx, action.ActionKey)
	if err == nil {
		return nil, &ServiceError{Op: "CreateAction", Code: "ACTION_EXISTS", Message: "action " + action.ActionKey + " already exists", Err: ErrActionExists}
	}

	if !persistence.IsNotFound(err) {
		return nil, err
	}

	err = a.persistence.ActionRepository().Save(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("failed to save action: %w", err)
	}

	a.logger.InfoContext(ctx, "Created action", "action_key", action.ActionKey)

	return action, nil
}

// Update replaces the mutable fields of an action. The key is immutable and
// a system action stays a system action.
func (a *Actions) Update(ctx context.Context, actionKey string, action *models.SystemAction) (*models.SystemAction, error) {
	existing, err := a.persistence.ActionRepository().GetByKey(ctx, actionKey)
	if err != nil {
		return nil, err
	}

	action.ActionKey = existing.ActionKey
	action.IsSystem = existing.IsSystem
	action.CreatedAt = existing.CreatedAt

	err = a.check("UpdateAction", action)
	if err != nil {
		return nil, err
	}

	err = a.persistence.ActionRepository().Save(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("failed to save action: %w", err)
	}

	return action, nil
}

func (a *Actions) Delete(ctx context.Context, actionKey string) error {
	action, err := a.persistence.ActionRepository().GetByKey(ctx, actionKey)
	if err != nil {
		return err
	}

	if action.IsSystem {
		return &ServiceError{Op: "DeleteAction", Code: "SYSTEM_ACTION", Message: "action " + actionKey + " is a system action", Err: ErrSystemAction}
	}

	return a.persistence.ActionRepository().Delete(ctx, actionKey)
}

// Seed inserts the given actions that do not exist yet. Existing actions are
// left untouched so that operator edits survive a restart.
func (a *Actions) Seed(ctx context.Context, actions []*models.SystemAction) (int, error) {
	created := 0

	for _, action := range actions {
		_, err := a.persistence.ActionRepository().GetByKey(ctx, action.ActionKey)
		if err == nil {
			continue
		}

		if !persistence.IsNotFound(err) {
			return created, err
		}

		err = a.persistence.ActionRepository().Save(ctx, action)
		if err != nil {
			return created, fmt.Errorf("failed to seed action %s: %w", action.ActionKey, err)
		}

		created++
	}

	if created > 0 {
		a.logger.InfoContext(ctx, "Seeded system actions", "count", created)
	}

	return created, nil
}

// Trigger validates the entity data against the action's context schema and
// fires the action.
func (a *Actions) Trigger(ctx context.Context, req actionbus.Request) (*actionbus.Result, error) {
	err := a.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("TriggerAction", "INVALID_TRIGGER_REQUEST", err.Error(), ErrInvalidRequest)
	}

	action, err := a.persistence.ActionRepository().GetByKey(ctx, req.ActionKey)
	if err != nil {
		return nil, err
	}

	if !action.IsActive {
		return nil, &ServiceError{Op: "TriggerAction", Code: "ACTION_INACTIVE", Message: "action " + req.ActionKey + " is not active", Err: ErrActionInactive}
	}

	err = ValidateContext(action, req.EntityData)
	if err != nil {
		return nil, err
	}

	return a.bus.Fire(ctx, req)
}

// Test reports which triggers of the action would fire for the entity data
// without starting anything.
func (a *Actions) Test(ctx context.Context, actionKey string, entityData map[string]any) (*trigger.TestResult, error) {
	_, err := a.persistence.ActionRepository().GetByKey(ctx, actionKey)
	if err != nil {
		return nil, err
	}

	return a.registry.Test(ctx, actionKey, trigger.Payload("", "", "", entityData))
}

func (a *Actions) Logs(ctx context.Context, query persistence.LogQuery) ([]*models.ActionLog, error) {
	logs, err := a.persistence.ActionRepository().Logs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}

	return logs, nil
}

func (a *Actions) Statistics(ctx context.Context, actionKey string) (models.ActionStatistics, error) {
	logs, err := a.Logs(ctx, persistence.LogQuery{ActionKey: actionKey})
	if err != nil {
		return models.ActionStatistics{}, err
	}

	return models.NewActionStatistics(logs), nil
}

func (a *Actions) check(op string, action *models.SystemAction) error {
	err := a.validate.Struct(action)
	if err != nil {
		return NewValidationError(op, "INVALID_ACTION", err.Error(), ErrInvalidRequest)
	}

	if len(action.ContextSchema) == 0 {
		return nil
	}

	_, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(action.ContextSchema))
	if err != nil {
		return NewValidationError(op, "INVALID_SCHEMA", err.Error(), ErrInvalidSchema)
	}

	return nil
}

// ValidateContext checks entity data against the action's context schema.
// Actions without a schema accept any data.
func ValidateContext(action *models.SystemAction, entityData map[string]any) error {
	if len(action.ContextSchema) == 0 {
		return nil
	}

	if entityData == nil {
		entityData = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(action.ContextSchema), gojsonschema.NewGoLoader(entityData))
	if err != nil {
		return NewValidationError("ValidateContext", "INVALID_SCHEMA", err.Error(), ErrInvalidSchema)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}

	return NewValidationError("ValidateContext", "INVALID_CONTEXT", strings.Join(details, "; "), ErrInvalidContext)
}
