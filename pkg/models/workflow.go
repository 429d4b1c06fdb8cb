// Package models defines the domain models for graph-based approval workflows.
package models

import "time"

// NodeType identifies the kind of a node in a workflow graph as produced by the editor.
type NodeType string

const (
	NodeTypeStart          NodeType = "start"
	NodeTypeEnd            NodeType = "end"
	NodeTypeApproval       NodeType = "approval"
	NodeTypeEmail          NodeType = "email"
	NodeTypeNotification   NodeType = "notification"
	NodeTypeDelay          NodeType = "delay"
	NodeTypeCondition      NodeType = "condition"
	NodeTypeDateCondition  NodeType = "dateCondition"
	NodeTypeValueCondition NodeType = "valueCondition"
	NodeTypeLogic          NodeType = "logic"
)

// StartNodeID is the id the editor assigns to the undeletable start node.
const StartNodeID = "start_node"

// Workflow is an approval workflow definition.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"                 validate:"required,min=1,max=255"`
	Description string          `json:"description"`
	Definition  *Definition     `json:"definition,omitempty"`
	IsActive    bool            `json:"isActive"`
	Steps       []*WorkflowStep `json:"steps"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// IsGraph reports whether the workflow is defined as a node graph rather than manual steps.
func (w *Workflow) IsGraph() bool {
	return w.Definition != nil && len(w.Definition.Nodes) > 0
}

// Definition is the node/edge graph of a workflow.
type Definition struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Node returns the node with the given id.
func (d *Definition) Node(id string) (*Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}

	return nil, false
}

// Position is the editor canvas position. It carries no runtime meaning.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID       string   `json:"id"       validate:"required"`
	Type     NodeType `json:"type"     validate:"required"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

type NodeData struct {
	Label  string         `json:"label,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Name returns the configured step name, falling back to the label and then the id.
func (n *Node) Name() string {
	if name, ok := n.Data.Config["name"].(string); ok && name != "" {
		return name
	}

	if n.Data.Label != "" {
		return n.Data.Label
	}

	return n.ID
}

// Edge connects two nodes. SourceHandle carries the branch tag and TargetHandle
// the input slot of a logic node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"                 validate:"required"`
	Target       string `json:"target"                 validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// TemplateLink associates a workflow with a document template.
type TemplateLink struct {
	TemplateID string    `json:"templateId" validate:"required"`
	WorkflowID string    `json:"workflowId" validate:"required"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"createdAt"`
}
