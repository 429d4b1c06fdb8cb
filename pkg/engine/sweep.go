package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cflux/flow/pkg/locker"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Sweep resumes every instance whose delay expired at or before now and
// returns how many it resumed. Resuming is idempotent, so overlapping sweeps
// and sweepers in several processes are safe.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveSweep(time.Since(started)) }()

	due, err := e.instances.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due instances: %w", err)
	}

	var (
		resumed atomic.Int64
		g       errgroup.Group
	)

	g.SetLimit(e.sweepWorkers)

	for _, instance := range due {
		g.Go(func() error {
			ok, err := e.resume(ctx, instance.ID, now)
			if err != nil {
				e.logger.ErrorContext(ctx, "Failed to resume delayed instance", "instance_id", instance.ID, "error", err)

				return nil
			}

			if ok {
				resumed.Add(1)
			}

			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return int(resumed.Load()), err
	}

	if len(due) > 0 {
		e.logger.InfoContext(ctx, "Swept delayed instances", "due", len(due), "resumed", resumed.Load())
	}

	return int(resumed.Load()), nil
}

func (e *Engine) resume(ctx context.Context, instanceID string, now time.Time) (bool, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer span.End()

	unlock, err := e.locker.Lock(ctx, locker.InstanceKey(instanceID))
	if err != nil {
		otelhelper.SetError(span, err)

		return false, fmt.Errorf("failed to lock instance %s: %w", instanceID, err)
	}
	defer unlock()

	r, err := e.load(ctx, instanceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return false, err
	}

	instance := r.instance
	if instance.Status != models.InstanceInProgress || instance.DueAt == nil || instance.DueAt.After(now) || instance.CurrentStepID == nil {
		return false, nil
	}

	stepID := *instance.CurrentStepID
	approvedAt := e.now().UTC()

	for _, step := range r.steps {
		if step.StepID == stepID && step.StepType == models.StepTypeDelay && step.Status == models.StepPending {
			step.Status = models.StepApproved
			step.ApprovedAt = &approvedAt
			r.touch(step)
		}
	}

	instance.DueAt = nil

	next, _ := instance.Plan.Next(stepID, models.TagDefault)
	if e.advance(r, next) {
		err = e.tick(ctx, r)
		if err != nil {
			otelhelper.SetError(span, err)

			return false, err
		}
	}

	err = e.commit(ctx, r)
	if err != nil {
		otelhelper.SetError(span, err)

		return false, err
	}

	return true, nil
}
