package graph

import (
	"fmt"
	"sort"

	"github.com/cflux/flow/pkg/models"
)

// tagOrder fixes the traversal order of outgoing transitions so compilation is
// deterministic.
var tagOrder = map[models.Tag]int{
	models.TagTrue:    0,
	models.TagFalse:   1,
	models.TagDefault: 2,
}

type builder struct {
	workflowID string
	nodes      map[string]*models.Node
	nodeIDs    []string
	outgoing   map[string][]*models.Edge
	incoming   map[string][]*models.Edge
	start      *models.Node
	plan       *models.Plan
}

func (c *Compiler) compileGraph(workflowID string, def *models.Definition) (*models.Plan, error) {
	b := &builder{
		workflowID: workflowID,
		nodes:      make(map[string]*models.Node, len(def.Nodes)),
		outgoing:   make(map[string][]*models.Edge),
		incoming:   make(map[string][]*models.Edge),
		plan: &models.Plan{
			WorkflowID:  workflowID,
			Steps:       make(map[string]*models.WorkflowStep),
			Transitions: make(map[string]map[models.Tag]string),
			LogicInputs: make(map[string][]models.LogicInput),
		},
	}

	steps := []func() error{
		func() error { return b.index(def) },
		func() error { return c.parseSteps(b) },
		b.resolve,
		b.checkCycles,
		b.order,
	}

	for _, step := range steps {
		err := step()
		if err != nil {
			return nil, err
		}
	}

	return b.plan, nil
}

func (b *builder) fail(nodeID string, err error) error {
	return definitionError(b.workflowID, nodeID, err)
}

func (b *builder) index(def *models.Definition) error {
	for _, n := range def.Nodes {
		if n.ID == "" {
			return b.fail("", fmt.Errorf("%w: empty id", ErrDuplicateNode))
		}

		if _, dup := b.nodes[n.ID]; dup {
			return b.fail(n.ID, ErrDuplicateNode)
		}

		b.nodes[n.ID] = n
		b.nodeIDs = append(b.nodeIDs, n.ID)

		if n.Type == models.NodeTypeStart {
			if b.start != nil {
				return b.fail(n.ID, ErrMultipleStarts)
			}

			b.start = n
		}
	}

	sort.Strings(b.nodeIDs)

	if b.start == nil {
		return b.fail("", ErrNoStart)
	}

	for _, e := range def.Edges {
		if _, ok := b.nodes[e.Source]; !ok {
			return b.fail(e.Source, fmt.Errorf("%w: edge %s source %q", ErrUnknownNode, e.ID, e.Source))
		}

		if _, ok := b.nodes[e.Target]; !ok {
			return b.fail(e.Target, fmt.Errorf("%w: edge %s target %q", ErrUnknownNode, e.ID, e.Target))
		}

		b.outgoing[e.Source] = append(b.outgoing[e.Source], e)
		b.incoming[e.Target] = append(b.incoming[e.Target], e)
	}

	if len(b.incoming[b.start.ID]) > 0 {
		return b.fail(b.start.ID, ErrStartPredecessor)
	}

	if len(b.outgoing[b.start.ID]) != 1 {
		return b.fail(b.start.ID, ErrStartEdges)
	}

	return nil
}

func (c *Compiler) parseSteps(b *builder) error {
	for _, id := range b.nodeIDs {
		n := b.nodes[id]
		if n.Type == models.NodeTypeStart || n.Type == models.NodeTypeEnd {
			continue
		}

		stepType, cfg, err := c.registry.Parse(n.Type, n.Data.Config)
		if err != nil {
			return b.fail(id, err)
		}

		step := &models.WorkflowStep{
			ID:         StepID(b.workflowID, id),
			WorkflowID: b.workflowID,
			NodeID:     id,
			Name:       n.Name(),
			Type:       stepType,
			Config:     cfg,
		}
		step.Normalize()

		b.plan.Steps[step.ID] = step
	}

	return nil
}

// target maps a node to its transition target.
func (b *builder) target(nodeID string) string {
	if b.nodes[nodeID].Type == models.NodeTypeEnd {
		return models.EndStep
	}

	return StepID(b.workflowID, nodeID)
}

func (b *builder) stepOf(nodeID string) *models.WorkflowStep {
	return b.plan.Steps[StepID(b.workflowID, nodeID)]
}

func branchTag(handle string) (models.Tag, error) {
	switch handle {
	case "", string(models.TagTrue):
		return models.TagTrue, nil
	case string(models.TagFalse):
		return models.TagFalse, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
}

func (b *builder) resolve() error {
	b.plan.Entry = b.target(b.outgoing[b.start.ID][0].Target)

	for _, id := range b.nodeIDs {
		n := b.nodes[id]
		out := b.outgoing[id]

		if n.Type == models.NodeTypeStart {
			continue
		}

		if n.Type == models.NodeTypeEnd {
			if len(out) > 0 {
				return b.fail(id, ErrEndEdges)
			}

			continue
		}

		if len(out) == 0 {
			return b.fail(id, ErrMissingEdge)
		}

		step := b.stepOf(id)

		var err error

		switch {
		case step.Type.IsBranch():
			err = b.resolveBranch(step, out)
		case step.Type.IsLogic():
			err = b.resolveLogic(step, out)
		default:
			if len(out) > 1 {
				err = ErrAmbiguousEdge
			} else {
				b.plan.Transitions[step.ID] = map[models.Tag]string{models.TagDefault: b.target(out[0].Target)}
			}
		}

		if err != nil {
			return b.fail(id, err)
		}
	}

	return nil
}

func (b *builder) resolveBranch(step *models.WorkflowStep, out []*models.Edge) error {
	transitions := make(map[models.Tag]string, 2)
	feedsLogicOnly := true

	for _, e := range out {
		tag, err := branchTag(e.SourceHandle)
		if err != nil {
			return err
		}

		if _, dup := transitions[tag]; dup {
			return fmt.Errorf("%w: %s", ErrAmbiguousEdge, tag)
		}

		transitions[tag] = b.target(e.Target)

		if b.nodes[e.Target].Type != models.NodeTypeLogic {
			feedsLogicOnly = false
		}
	}

	if _, ok := transitions[models.TagTrue]; !ok {
		return fmt.Errorf("%w: missing true edge", ErrMissingBranch)
	}

	if _, ok := transitions[models.TagFalse]; !ok {
		// A condition wired only into logic inputs is an operand: both outcomes
		// continue to the logic node, which reads the outcome itself.
		if !feedsLogicOnly {
			return fmt.Errorf("%w: missing false edge", ErrMissingBranch)
		}

		transitions[models.TagFalse] = transitions[models.TagTrue]
	}

	b.plan.Transitions[step.ID] = transitions

	return nil
}

func (b *builder) resolveLogic(step *models.WorkflowStep, out []*models.Edge) error {
	in := b.incoming[step.NodeID]
	if len(in) != 2 {
		return fmt.Errorf("%w: got %d", ErrLogicInputs, len(in))
	}

	slots := make(map[models.Tag]*models.Edge, 2)

	var untagged []*models.Edge

	for _, e := range in {
		switch models.Tag(e.TargetHandle) {
		case models.TagInput1, models.TagInput2:
			if _, dup := slots[models.Tag(e.TargetHandle)]; dup {
				return fmt.Errorf("%w: duplicate %s", ErrLogicInputs, e.TargetHandle)
			}

			slots[models.Tag(e.TargetHandle)] = e
		case "":
			untagged = append(untagged, e)
		default:
			return fmt.Errorf("%w: %q", ErrInvalidHandle, e.TargetHandle)
		}
	}

	for _, slot := range []models.Tag{models.TagInput1, models.TagInput2} {
		if _, ok := slots[slot]; !ok && len(untagged) > 0 {
			slots[slot] = untagged[0]
			untagged = untagged[1:]
		}
	}

	for _, slot := range []models.Tag{models.TagInput1, models.TagInput2} {
		e := slots[slot]
		input := models.LogicInput{Slot: slot, When: models.TagDefault}

		source := b.nodes[e.Source]
		if source.Type == models.NodeTypeEnd {
			return ErrEndEdges
		}

		if source.Type != models.NodeTypeStart {
			input.From = StepID(b.workflowID, source.ID)

			if b.stepOf(source.ID).Type.IsBranch() {
				tag, err := branchTag(e.SourceHandle)
				if err != nil {
					return err
				}

				input.When = tag
			}
		}

		b.plan.LogicInputs[step.ID] = append(b.plan.LogicInputs[step.ID], input)
	}

	transitions := make(map[models.Tag]string, 2)

	for _, e := range out {
		tag, err := branchTag(e.SourceHandle)
		if err != nil {
			return err
		}

		if _, dup := transitions[tag]; dup {
			return fmt.Errorf("%w: %s", ErrAmbiguousEdge, tag)
		}

		transitions[tag] = b.target(e.Target)
	}

	if _, ok := transitions[models.TagTrue]; !ok {
		return fmt.Errorf("%w: logic node needs an outgoing edge", ErrMissingEdge)
	}

	if _, ok := transitions[models.TagFalse]; !ok {
		transitions[models.TagFalse] = models.EndStep
	}

	b.plan.Transitions[step.ID] = transitions

	return nil
}

func sortedTags(out map[models.Tag]string) []models.Tag {
	tags := make([]models.Tag, 0, len(out))
	for t := range out {
		tags = append(tags, t)
	}

	sort.Slice(tags, func(i, j int) bool {
		oi, iok := tagOrder[tags[i]]
		oj, jok := tagOrder[tags[j]]

		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return tags[i] < tags[j]
		}
	})

	return tags
}

func (b *builder) sortedStepIDs() []string {
	ids := make([]string, 0, len(b.plan.Steps))
	for id := range b.plan.Steps {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// checkCycles runs a colored depth-first search over every step, so cycles are
// found wherever they are, including self loops.
func (b *builder) checkCycles() error {
	const (
		white = iota
		grey
		black
	)

	color := make(map[string]int, len(b.plan.Steps))

	var visit func(id string, path []string) error

	visit = func(id string, path []string) error {
		color[id] = grey
		path = append(path, id)

		out := b.plan.Transitions[id]
		for _, tag := range sortedTags(out) {
			next := out[tag]
			if next == models.EndStep {
				continue
			}

			switch color[next] {
			case grey:
				return b.fail(b.plan.Steps[next].NodeID, fmt.Errorf("%w: %v -> %s", ErrCycle, path, next))
			case white:
				err := visit(next, path)
				if err != nil {
					return err
				}
			}
		}

		color[id] = black

		return nil
	}

	for _, id := range b.sortedStepIDs() {
		if color[id] == white {
			err := visit(id, nil)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// order computes the step order by depth-first traversal from the entry step.
// Conditions that are only used as logic operands are appended after the
// reachable steps; any other unreachable node is an error.
func (b *builder) order() error {
	visited := make(map[string]bool, len(b.plan.Steps))

	var visit func(id string)

	visit = func(id string) {
		if id == models.EndStep || visited[id] {
			return
		}

		visited[id] = true
		b.plan.Order = append(b.plan.Order, id)

		out := b.plan.Transitions[id]
		for _, tag := range sortedTags(out) {
			visit(out[tag])
		}
	}

	visit(b.plan.Entry)

	var operands []string

	for _, id := range b.plan.Order {
		for _, input := range b.plan.LogicInputs[id] {
			if input.From == "" || visited[input.From] {
				continue
			}

			if b.plan.Steps[input.From].Type.IsBranch() {
				visited[input.From] = true
				operands = append(operands, input.From)
			}
		}
	}

	sort.Strings(operands)
	b.plan.Order = append(b.plan.Order, operands...)

	for _, id := range b.sortedStepIDs() {
		if !visited[id] {
			return b.fail(b.plan.Steps[id].NodeID, ErrUnreachable)
		}
	}

	for i, id := range b.plan.Order {
		b.plan.Steps[id].Order = i + 1
	}

	return nil
}
