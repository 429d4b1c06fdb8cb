// Package graph compiles workflow node graphs into executable plans.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/registry"
)

const defaultCacheSize = 1024

// Compiler turns workflow definitions into plans. Plans are cached by content
// hash, so each distinct graph is compiled once; cached plans are shared and
// must be treated as read-only.
type Compiler struct {
	registry *registry.Registry
	logger   *slog.Logger

	mu       sync.RWMutex
	cache    map[string]*models.Plan
	maxCache int
}

func NewCompiler(logger *slog.Logger, reg *registry.Registry) *Compiler {
	return &Compiler{
		registry: reg,
		logger:   logger,
		cache:    make(map[string]*models.Plan),
		maxCache: defaultCacheSize,
	}
}

// Compile validates the workflow and returns its plan. Graph workflows compile
// from their definition; workflows without a graph compile their manual steps
// into a linear plan.
func (c *Compiler) Compile(workflow *models.Workflow) (*models.Plan, error) {
	hash, err := Hash(workflow)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	cached, ok := c.cache[hash]
	c.mu.RUnlock()

	if ok {
		return cached, nil
	}

	var plan *models.Plan

	switch {
	case workflow.IsGraph():
		plan, err = c.compileGraph(workflow.ID, workflow.Definition)
	case len(workflow.Steps) > 0:
		plan, err = compileLinear(workflow.ID, workflow.Steps)
	default:
		err = definitionError(workflow.ID, "", ErrEmptyWorkflow)
	}

	if err != nil {
		return nil, err
	}

	plan.Hash = hash

	c.mu.Lock()
	if len(c.cache) >= c.maxCache {
		clear(c.cache)
	}

	c.cache[hash] = plan
	c.mu.Unlock()

	c.logger.Debug("compiled workflow", "workflow_id", workflow.ID, "hash", hash, "steps", len(plan.Order))

	return plan, nil
}

// StepID derives the stable id of the step compiled from a node.
func StepID(workflowID, nodeID string) string {
	return workflowID + ":" + nodeID
}

type canonicalNode struct {
	ID     string          `json:"id"`
	Type   models.NodeType `json:"type"`
	Name   string          `json:"name"`
	Config map[string]any  `json:"config"`
}

type canonicalGraph struct {
	WorkflowID string                 `json:"workflowId"`
	Nodes      []canonicalNode        `json:"nodes,omitempty"`
	Edges      []models.Edge          `json:"edges,omitempty"`
	Steps      []*models.WorkflowStep `json:"steps,omitempty"`
}

// Hash returns the content hash of the executable parts of a workflow. Canvas
// positions and edge ids do not contribute.
func Hash(workflow *models.Workflow) (string, error) {
	g := canonicalGraph{WorkflowID: workflow.ID}

	if workflow.IsGraph() {
		for _, n := range workflow.Definition.Nodes {
			g.Nodes = append(g.Nodes, canonicalNode{ID: n.ID, Type: n.Type, Name: n.Name(), Config: n.Data.Config})
		}

		for _, e := range workflow.Definition.Edges {
			g.Edges = append(g.Edges, models.Edge{Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle})
		}

		sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
		sort.Slice(g.Edges, func(i, j int) bool { return edgeKey(g.Edges[i]) < edgeKey(g.Edges[j]) })
	} else {
		g.Steps = sortedSteps(workflow.Steps)
	}

	raw, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("failed to hash workflow %s: %w", workflow.ID, err)
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:]), nil
}

func edgeKey(e models.Edge) string {
	return e.Source + "\x00" + e.Target + "\x00" + e.SourceHandle + "\x00" + e.TargetHandle
}

func sortedSteps(steps []*models.WorkflowStep) []*models.WorkflowStep {
	out := make([]*models.WorkflowStep, len(steps))
	copy(out, steps)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}

		return out[i].ID < out[j].ID
	})

	return out
}

// compileLinear builds a plan from manual steps: each step continues with the
// next by order, and a condition that evaluates false ends the workflow.
func compileLinear(workflowID string, steps []*models.WorkflowStep) (*models.Plan, error) {
	ordered := sortedSteps(steps)

	plan := &models.Plan{
		WorkflowID:  workflowID,
		Steps:       make(map[string]*models.WorkflowStep, len(ordered)),
		Transitions: make(map[string]map[models.Tag]string, len(ordered)),
	}

	for i, s := range ordered {
		step := *s
		step.WorkflowID = workflowID

		if step.ID == "" {
			step.ID = StepID(workflowID, fmt.Sprintf("step-%d", i+1))
		}

		if _, dup := plan.Steps[step.ID]; dup {
			return nil, definitionError(workflowID, step.ID, ErrDuplicateNode)
		}

		err := validateLinearStep(&step)
		if err != nil {
			return nil, definitionError(workflowID, step.ID, err)
		}

		plan.Steps[step.ID] = &step
		plan.Order = append(plan.Order, step.ID)
	}

	for i, id := range plan.Order {
		next := models.EndStep
		if i+1 < len(plan.Order) {
			next = plan.Order[i+1]
		}

		if plan.Steps[id].Type.IsBranch() {
			plan.Transitions[id] = map[models.Tag]string{models.TagTrue: next, models.TagFalse: models.EndStep}
		} else {
			plan.Transitions[id] = map[models.Tag]string{models.TagDefault: next}
		}
	}

	plan.Entry = plan.Order[0]

	return plan, nil
}

func validateLinearStep(step *models.WorkflowStep) error {
	if !step.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidStep, models.ErrUnknownStepType, step.Type)
	}

	if step.Type.IsLogic() {
		return fmt.Errorf("%w: logic steps need a graph definition", ErrInvalidStep)
	}

	if step.Config == nil {
		cfg, err := models.NewStepConfig(step.Type)
		if err != nil {
			return err
		}

		step.Config = cfg
	}

	step.Normalize()

	if step.Type == models.StepTypeApproval && len(step.ApproverUserIDs) == 0 {
		return fmt.Errorf("%w: approval step has no approvers", ErrInvalidStep)
	}

	return nil
}
