package models

// Tag labels the outcome an edge carries.
type Tag string

const (
	TagDefault Tag = "default"
	TagTrue    Tag = "true"
	TagFalse   Tag = "false"
	TagInput1  Tag = "input1"
	TagInput2  Tag = "input2"
)

// EndStep is the transition target meaning the workflow is finished.
const EndStep = "$end"

// Plan is the compiled, immutable form of a workflow. Instances capture a copy
// at creation and execute against it regardless of later edits.
type Plan struct {
	WorkflowID  string                    `json:"workflowId"`
	Hash        string                    `json:"hash"`
	Entry       string                    `json:"entry"`
	Order       []string                  `json:"order"`
	Steps       map[string]*WorkflowStep  `json:"steps"`
	Transitions map[string]map[Tag]string `json:"transitions"`
	LogicInputs map[string][]LogicInput   `json:"logicInputs,omitempty"`
}

// LogicInput is one operand of a logic step: the outcome of From, where an edge
// leaving From on the false branch contributes the negated outcome.
type LogicInput struct {
	Slot Tag    `json:"slot"`
	From string `json:"from"`
	When Tag    `json:"when"`
}

// Step returns the step with the given id.
func (p *Plan) Step(id string) (*WorkflowStep, bool) {
	s, ok := p.Steps[id]

	return s, ok
}

// Next resolves the successor of a step for an outcome tag. Steps without a
// branch fall back to their default successor.
func (p *Plan) Next(stepID string, tag Tag) (string, bool) {
	out, ok := p.Transitions[stepID]
	if !ok {
		return "", false
	}

	if next, ok := out[tag]; ok {
		return next, true
	}

	next, ok := out[TagDefault]

	return next, ok
}

// OrderedSteps returns the steps in compiled order.
func (p *Plan) OrderedSteps() []*WorkflowStep {
	steps := make([]*WorkflowStep, 0, len(p.Order))
	for _, id := range p.Order {
		if s, ok := p.Steps[id]; ok {
			steps = append(steps, s)
		}
	}

	return steps
}

// StepIDs returns the ordered step ids.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Order))
	copy(ids, p.Order)

	return ids
}
