package actionbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cflux/flow/pkg/eventbus"
	"github.com/cflux/flow/pkg/events"
	"github.com/cflux/flow/pkg/models"
)

// Watermill publishes actions onto the actions topic. A dispatcher process
// consumes them and dispatches through Direct.
type Watermill struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewWatermill(publisher eventbus.EventPublisher, logger *slog.Logger) *Watermill {
	return &Watermill{publisher: publisher, logger: logger}
}

func (w *Watermill) Fire(ctx context.Context, req Request) (*Result, error) {
	event := events.NewActionFired(req.ActionKey, req.EntityType, req.EntityID, req.EntityData, req.UserID)

	err := w.publisher.Publish(ctx, req.EntityType+":"+req.EntityID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to publish action %s: %w", req.ActionKey, err)
	}

	w.logger.DebugContext(ctx, "Queued action", "action_key", req.ActionKey, "event_id", event.ID)

	return &Result{
		ActionKey:          req.ActionKey,
		Queued:             true,
		Instances:          []*models.WorkflowInstance{},
		TriggeredWorkflows: []string{},
	}, nil
}

// Dispatcher consumes queued actions and dispatches them.
type Dispatcher struct {
	subscriber eventbus.EventSubscriber
	direct     Bus
	logger     *slog.Logger
}

func NewDispatcher(subscriber eventbus.EventSubscriber, direct Bus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{subscriber: subscriber, direct: direct, logger: logger}
}

// Start registers the handler and begins consuming. It returns once the
// subscription is established; consumption stops when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	err := d.subscriber.Handle(events.ActionFiredEvent, d.handle)
	if err != nil {
		return fmt.Errorf("failed to register action handler: %w", err)
	}

	err = d.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to actions: %w", err)
	}

	d.logger.InfoContext(ctx, "Dispatcher consuming actions", "topic", events.ActionsTopic)

	return nil
}

// handle dispatches one action. Failures are recorded in the action log by
// Direct, so the message is acknowledged rather than redelivered.
func (d *Dispatcher) handle(ctx context.Context, event any) error {
	fired, ok := event.(*events.ActionFired)
	if !ok {
		d.logger.WarnContext(ctx, "Unexpected event on actions topic", "event", fmt.Sprintf("%T", event))

		return nil
	}

	result, err := d.direct.Fire(ctx, Request{
		ActionKey:  fired.ActionKey,
		EntityType: fired.EntityType,
		EntityID:   fired.EntityID,
		EntityData: fired.EntityData,
		UserID:     fired.UserID,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to dispatch action", "action_key", fired.ActionKey, "event_id", fired.ID, "error", err)

		return nil
	}

	d.logger.InfoContext(ctx, "Dispatched queued action",
		"action_key", fired.ActionKey, "event_id", fired.ID, "instances", len(result.Instances))

	return nil
}
