package web

import (
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/protocol"
)

// WorkflowRequest is the body of workflow create and update. A workflow has
// either a graph definition or manual steps.
type WorkflowRequest struct {
	Name        string                 `json:"name"                 validate:"required,min=1,max=255"`
	Description string                 `json:"description"`
	Definition  *models.Definition     `json:"definition,omitempty"`
	IsActive    bool                   `json:"isActive"`
	Steps       []*models.WorkflowStep `json:"steps,omitempty"`
}

func (r *WorkflowRequest) Workflow() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Definition:  r.Definition,
		IsActive:    r.IsActive,
		Steps:       r.Steps,
	}
}

type TemplateLinkRequest struct {
	TemplateID string `json:"templateId" validate:"required"`
	WorkflowID string `json:"workflowId" validate:"required"`
	Order      int    `json:"order"      validate:"min=0"`
}

type ApproveRequest struct {
	UserID  string `json:"userId"  validate:"required"`
	Comment string `json:"comment"`
}

// RejectRequest requires a comment. Whitespace-only comments are refused by
// the engine.
type RejectRequest struct {
	UserID  string `json:"userId"  validate:"required"`
	Comment string `json:"comment" validate:"required"`
}

type CancelRequest struct {
	Comment string `json:"comment"`
}

// ActionRequest is the body of action create and update. IsActive defaults to
// true.
type ActionRequest struct {
	ActionKey     string         `json:"actionKey"               validate:"required,max=100"`
	DisplayName   string         `json:"displayName"             validate:"required"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category"                validate:"required"`
	ContextSchema map[string]any `json:"contextSchema,omitempty"`
	IsActive      *bool          `json:"isActive,omitempty"`
}

func (r *ActionRequest) Action() *models.SystemAction {
	return &models.SystemAction{
		ActionKey:     r.ActionKey,
		DisplayName:   r.DisplayName,
		Description:   r.Description,
		Category:      r.Category,
		ContextSchema: r.ContextSchema,
		IsActive:      r.IsActive == nil || *r.IsActive,
	}
}

type TriggerActionRequest struct {
	EntityType string         `json:"entityType" validate:"required"`
	EntityID   string         `json:"entityId"   validate:"required"`
	EntityData map[string]any `json:"entityData"`
	UserID     string         `json:"userId"`
}

type TestActionRequest struct {
	EntityData map[string]any `json:"entityData"`
}

// TriggerRequest is the body of trigger create and update. Timing defaults to
// AFTER, priority to 100 and IsActive to true.
type TriggerRequest struct {
	WorkflowID string                   `json:"workflowId"          validate:"required"`
	ActionKey  string                   `json:"actionKey"           validate:"required"`
	Timing     models.Timing            `json:"timing,omitempty"    validate:"omitempty,oneof=BEFORE AFTER INSTEAD"`
	Priority   int                      `json:"priority,omitempty"  validate:"min=0"`
	Condition  *models.TriggerCondition `json:"condition,omitempty"`
	IsActive   *bool                    `json:"isActive,omitempty"`
}

func (r *TriggerRequest) Trigger() *models.WorkflowTrigger {
	return &models.WorkflowTrigger{
		WorkflowID: r.WorkflowID,
		ActionKey:  r.ActionKey,
		Timing:     r.Timing,
		Priority:   r.Priority,
		Condition:  r.Condition,
		IsActive:   r.IsActive == nil || *r.IsActive,
	}
}

// NodeTypeResponse describes one node type of the editor catalog.
type NodeTypeResponse struct {
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema"`
}

func TransformNodeType(f protocol.NodeFactory) NodeTypeResponse {
	return NodeTypeResponse{
		Type:        f.ID(),
		Name:        f.Name(),
		Description: f.Description(),
		Schema:      f.Schema(),
	}
}
