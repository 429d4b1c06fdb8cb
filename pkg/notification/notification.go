// Package notification delivers the messages of EMAIL and NOTIFICATION steps.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cflux/flow/pkg/eventbus"
	"github.com/cflux/flow/pkg/events"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/template"
)

// Message is a rendered notification.
type Message struct {
	WorkflowID string
	InstanceID string
	StepID     string
	Channel    models.StepType
	Recipients []string
	Subject    string
	Body       string
}

// Notifier delivers a message. Implementations are called synchronously by the
// engine; a returned error is recorded on the step and never blocks the workflow.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Render builds the message of a step from its config and the instance snapshot.
// The body falls back to the plain message and then to the template name.
func Render(instance *models.WorkflowInstance, step *models.WorkflowStep) (Message, error) {
	cfg, ok := step.Config.(*models.MessageConfig)
	if !ok || cfg == nil {
		return Message{}, fmt.Errorf("step %s has no message config", step.ID)
	}

	data := template.InstanceData(instance)

	subject, err := template.Render(cfg.Subject, data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to render subject: %w", err)
	}

	bodyTemplate := cfg.Body
	if bodyTemplate == "" {
		bodyTemplate = cfg.Message
	}

	if bodyTemplate == "" {
		bodyTemplate = cfg.Template
	}

	body, err := template.Render(bodyTemplate, data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to render body: %w", err)
	}

	return Message{
		WorkflowID: instance.WorkflowID,
		InstanceID: instance.ID,
		StepID:     step.ID,
		Channel:    step.Type,
		Recipients: cfg.Recipients,
		Subject:    subject,
		Body:       body,
	}, nil
}

// Log writes messages to the logger. It is the default when no delivery
// service is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "Notification",
		"instance_id", msg.InstanceID,
		"step_id", msg.StepID,
		"channel", msg.Channel,
		"recipients", msg.Recipients,
		"subject", msg.Subject,
		"body", msg.Body,
	)

	return nil
}

// EventBus publishes messages for an external delivery service.
type EventBus struct {
	publisher eventbus.EventPublisher
}

func NewEventBus(publisher eventbus.EventPublisher) *EventBus {
	return &EventBus{publisher: publisher}
}

func (e *EventBus) Notify(ctx context.Context, msg Message) error {
	event := &events.NotificationRequested{
		BaseEvent:  events.NewBaseEvent(events.NotificationRequestedEvent, msg.WorkflowID),
		InstanceID: msg.InstanceID,
		StepID:     msg.StepID,
		Channel:    string(msg.Channel),
		Recipients: msg.Recipients,
		Subject:    msg.Subject,
		Body:       msg.Body,
	}

	err := e.publisher.Publish(ctx, msg.InstanceID, event)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}
