// Package message provides the email and notification node factories.
package message

import (
	"errors"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/protocol"
)

var ErrNoContent = errors.New("message requires a subject, body or message")

// MessageNodeFactory handles both email and notification nodes, which share a
// config shape and differ only in the step type they compile to.
type MessageNodeFactory struct {
	nodeType models.NodeType
	stepType models.StepType
}

func (f *MessageNodeFactory) Parse(config map[string]any) (models.StepType, models.StepConfig, error) {
	cfg := &models.MessageConfig{}

	err := protocol.DecodeConfig(config, cfg)
	if err != nil {
		return "", nil, err
	}

	if cfg.Subject == "" && cfg.Body == "" && cfg.Message == "" {
		return "", nil, ErrNoContent
	}

	return f.stepType, cfg, nil
}

func (f *MessageNodeFactory) ID() models.NodeType {
	return f.nodeType
}

func (f *MessageNodeFactory) Name() string {
	if f.stepType == models.StepTypeEmail {
		return "Email"
	}

	return "Notification"
}

func (f *MessageNodeFactory) Description() string {
	if f.stepType == models.StepTypeEmail {
		return "Sends an email to the recipients and continues. Delivery failures do not block the workflow."
	}

	return "Sends an in-app notification to the recipients and continues."
}

func (f *MessageNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"recipients": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject template, rendered against the entity data.",
				"examples":    []string{"Invoice {{.invoiceNumber}} needs approval"},
			},
			"body":     map[string]any{"type": "string"},
			"template": map[string]any{"type": "string"},
			"message":  map[string]any{"type": "string"},
		},
	}
}

func NewEmailNodeFactory() protocol.NodeFactory {
	return &MessageNodeFactory{nodeType: models.NodeTypeEmail, stepType: models.StepTypeEmail}
}

func NewNotificationNodeFactory() protocol.NodeFactory {
	return &MessageNodeFactory{nodeType: models.NodeTypeNotification, stepType: models.StepTypeNotification}
}
