package actionbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cflux/flow/pkg/engine"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/otelhelper"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/trigger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Direct matches and dispatches actions in the calling goroutine. Every call
// writes an action log, whether it succeeds or not.
type Direct struct {
	actions   persistence.ActionRepository
	workflows persistence.WorkflowRepository
	registry  *trigger.Registry
	engine    *engine.Engine
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewDirect(p persistence.Persistence, registry *trigger.Registry, eng *engine.Engine, tracer trace.Tracer, logger *slog.Logger) *Direct {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Direct{
		actions:   p.ActionRepository(),
		workflows: p.WorkflowRepository(),
		registry:  registry,
		engine:    eng,
		tracer:    tracer,
		logger:    logger,
	}
}

func (d *Direct) Fire(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "actionbus.fire",
		attribute.String(otelhelper.ActionKeyKey, req.ActionKey),
		attribute.String(otelhelper.EntityTypeKey, req.EntityType),
		attribute.String(otelhelper.EntityIDKey, req.EntityID),
	)
	defer span.End()

	started := time.Now()
	result := &Result{ActionKey: req.ActionKey, Instances: []*models.WorkflowInstance{}, TriggeredWorkflows: []string{}}

	err := d.dispatch(ctx, req, result)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	d.writeLog(ctx, req, result, err, time.Since(started))

	if err != nil {
		return result, err
	}

	return result, nil
}

func (d *Direct) dispatch(ctx context.Context, req Request, result *Result) error {
	action, err := d.actions.GetByKey(ctx, req.ActionKey)
	if err != nil {
		return err
	}

	if !action.IsActive {
		d.logger.InfoContext(ctx, "Action is inactive, nothing dispatched", "action_key", req.ActionKey)

		return nil
	}

	match, err := d.registry.Match(ctx, req.ActionKey, trigger.Payload(req.EntityType, req.EntityID, req.UserID, req.EntityData))
	if err != nil {
		return err
	}

	result.Instead = match.Instead

	var errs []error

	for _, t := range match.Triggers {
		instance, err := d.start(ctx, req, t)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to start triggered workflow",
				"action_key", req.ActionKey, "trigger_id", t.ID, "workflow_id", t.WorkflowID, "error", err)
			errs = append(errs, fmt.Errorf("trigger %s: %w", t.ID, err))

			continue
		}

		result.Instances = append(result.Instances, instance)
		result.TriggeredWorkflows = append(result.TriggeredWorkflows, t.WorkflowID)
	}

	d.logger.InfoContext(ctx, "Dispatched action",
		"action_key", req.ActionKey,
		"entity_type", req.EntityType,
		"entity_id", req.EntityID,
		"matched", len(match.Triggers),
		"started", len(result.Instances),
		"instead", match.Instead,
	)

	return errors.Join(errs...)
}

func (d *Direct) start(ctx context.Context, req Request, t *models.WorkflowTrigger) (*models.WorkflowInstance, error) {
	workflow, err := d.workflows.GetByID(ctx, t.WorkflowID)
	if err != nil {
		return nil, err
	}

	return d.engine.Start(ctx, engine.StartRequest{
		Workflow:   workflow,
		TriggerID:  t.ID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		EntityData: req.EntityData,
	})
}

func (d *Direct) writeLog(ctx context.Context, req Request, result *Result, dispatchErr error, elapsed time.Duration) {
	entry := &models.ActionLog{
		ID:                 uuid.New().String(),
		ActionKey:          req.ActionKey,
		EntityType:         req.EntityType,
		EntityID:           req.EntityID,
		UserID:             req.UserID,
		ContextData:        req.EntityData,
		TriggeredWorkflows: result.TriggeredWorkflows,
		Success:            dispatchErr == nil,
		ExecutionTimeMs:    elapsed.Milliseconds(),
	}

	if dispatchErr != nil {
		entry.ErrorMessage = dispatchErr.Error()
	}

	err := d.actions.SaveLog(ctx, entry)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to write action log", "action_key", req.ActionKey, "error", err)
	}
}
