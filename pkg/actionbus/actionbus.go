// Package actionbus carries fired business actions to the trigger registry and
// starts the workflows they match, either in-process or through the event bus.
package actionbus

import (
	"context"

	"github.com/cflux/flow/pkg/models"
)

// Request is one occurrence of a business action.
type Request struct {
	ActionKey  string         `json:"actionKey"  validate:"required"`
	EntityType string         `json:"entityType" validate:"required"`
	EntityID   string         `json:"entityId"   validate:"required"`
	EntityData map[string]any `json:"entityData"`
	UserID     string         `json:"userId,omitempty"`
}

// Result reports what firing an action did. Queued is set when the action was
// handed to a dispatcher and no workflow has started yet.
type Result struct {
	ActionKey          string                     `json:"actionKey"`
	Queued             bool                       `json:"queued"`
	Instead            bool                       `json:"instead"`
	Instances          []*models.WorkflowInstance `json:"instances"`
	TriggeredWorkflows []string                   `json:"triggeredWorkflows"`
}

// Bus fires business actions.
type Bus interface {
	Fire(ctx context.Context, req Request) (*Result, error)
}
