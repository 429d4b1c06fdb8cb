// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"

	"github.com/cflux/flow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a graph node with default values that can be overridden.
func CreateTestNode(id string, nodeType models.NodeType, overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:   id,
		Type: nodeType,
		Data: models.NodeData{Label: id, Config: map[string]any{}},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Data.Config = config
	}
}

// WithPosition sets the node position.
func WithPosition(x, y float64) func(*models.Node) {
	return func(n *models.Node) {
		n.Position = models.Position{X: x, Y: y}
	}
}

// GraphBuilder assembles workflow definitions for tests.
type GraphBuilder struct {
	def *models.Definition
}

// NewGraph starts a definition containing the start node.
func NewGraph() *GraphBuilder {
	return &GraphBuilder{def: &models.Definition{
		Nodes: []*models.Node{CreateTestNode(models.StartNodeID, models.NodeTypeStart)},
	}}
}

func (g *GraphBuilder) Node(id string, nodeType models.NodeType, config map[string]any) *GraphBuilder {
	g.def.Nodes = append(g.def.Nodes, CreateTestNode(id, nodeType, WithConfig(config)))

	return g
}

func (g *GraphBuilder) End(id string) *GraphBuilder {
	g.def.Nodes = append(g.def.Nodes, CreateTestNode(id, models.NodeTypeEnd))

	return g
}

func (g *GraphBuilder) Approval(id string, requireAll bool, approvers ...string) *GraphBuilder {
	ids := make([]any, len(approvers))
	for i, a := range approvers {
		ids[i] = a
	}

	return g.Node(id, models.NodeTypeApproval, map[string]any{
		"name":                id,
		"approverUserIds":     ids,
		"requireAllApprovers": requireAll,
	})
}

func (g *GraphBuilder) ValueCondition(id, field, operator string, value float64) *GraphBuilder {
	return g.Node(id, models.NodeTypeValueCondition, map[string]any{
		"field":    field,
		"operator": operator,
		"value":    value,
	})
}

func (g *GraphBuilder) Notification(id, message string, recipients ...string) *GraphBuilder {
	rs := make([]any, len(recipients))
	for i, r := range recipients {
		rs[i] = r
	}

	return g.Node(id, models.NodeTypeNotification, map[string]any{
		"recipients": rs,
		"message":    message,
	})
}

func (g *GraphBuilder) Delay(id string, unit models.DelayUnit, value int) *GraphBuilder {
	return g.Node(id, models.NodeTypeDelay, map[string]any{
		"delayType":  string(unit),
		"delayValue": value,
	})
}

// Edge connects source to target with an optional branch handle.
func (g *GraphBuilder) Edge(source, target, sourceHandle string) *GraphBuilder {
	return g.EdgeTo(source, target, sourceHandle, "")
}

// EdgeTo connects source to a specific input of target.
func (g *GraphBuilder) EdgeTo(source, target, sourceHandle, targetHandle string) *GraphBuilder {
	g.def.Edges = append(g.def.Edges, &models.Edge{
		ID:           fmt.Sprintf("e%d-%s-%s", len(g.def.Edges)+1, source, target),
		Source:       source,
		Target:       target,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
	})

	return g
}

func (g *GraphBuilder) Build() *models.Definition {
	return g.def
}

// CreateTestWorkflow creates an active workflow with default values that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		IsActive:    true,
		Definition:  NewGraph().Approval("approve", false, "u1").End("end").Edge(models.StartNodeID, "approve", "").Edge("approve", "end", "").Build(),
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithDefinition sets the workflow graph.
func WithDefinition(def *models.Definition) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Definition = def
	}
}

// WithID sets the workflow ID.
func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithInactive marks the workflow inactive.
func WithInactive() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.IsActive = false
	}
}

// ThresholdDefinition builds START -> valueCondition(field > threshold) ->
// [true: approval by approver] / [false: END].
func ThresholdDefinition(field string, threshold float64, approver string) *models.Definition {
	return NewGraph().
		ValueCondition("check", field, models.OpGreater, threshold).
		Approval("approve", false, approver).
		End("end").
		Edge(models.StartNodeID, "check", "").
		Edge("check", "approve", "true").
		Edge("check", "end", "false").
		Edge("approve", "end", "").
		Build()
}

// CreateTestTrigger creates an active trigger with default values that can be overridden.
func CreateTestTrigger(workflowID, actionKey string, overrides ...func(*models.WorkflowTrigger)) *models.WorkflowTrigger {
	trigger := &models.WorkflowTrigger{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		ActionKey:  actionKey,
		Timing:     models.TimingAfter,
		Priority:   models.DefaultTriggerPriority,
		IsActive:   true,
	}

	for _, override := range overrides {
		override(trigger)
	}

	return trigger
}

// WithPriority sets the trigger priority.
func WithPriority(priority int) func(*models.WorkflowTrigger) {
	return func(t *models.WorkflowTrigger) {
		t.Priority = priority
	}
}

// WithTiming sets the trigger timing.
func WithTiming(timing models.Timing) func(*models.WorkflowTrigger) {
	return func(t *models.WorkflowTrigger) {
		t.Timing = timing
	}
}

// WithCondition sets the trigger condition.
func WithCondition(field, operator string, value any) func(*models.WorkflowTrigger) {
	return func(t *models.WorkflowTrigger) {
		t.Condition = &models.TriggerCondition{Field: field, Operator: operator, Value: value}
	}
}
