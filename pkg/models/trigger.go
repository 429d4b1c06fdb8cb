package models

import "time"

// Timing decides when a triggered workflow runs relative to the business action.
type Timing string

const (
	TimingBefore  Timing = "BEFORE"
	TimingAfter   Timing = "AFTER"
	TimingInstead Timing = "INSTEAD"
)

const DefaultTriggerPriority = 100

func (t Timing) Valid() bool {
	return t == TimingBefore || t == TimingAfter || t == TimingInstead
}

// WorkflowTrigger binds a workflow to an action key.
type WorkflowTrigger struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflowId" validate:"required"`
	ActionKey  string            `json:"actionKey"  validate:"required"`
	Timing     Timing            `json:"timing"`
	Priority   int               `json:"priority"`
	Condition  *TriggerCondition `json:"condition,omitempty"`
	IsActive   bool              `json:"isActive"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// ApplyDefaults fills the timing and priority left empty by callers.
func (t *WorkflowTrigger) ApplyDefaults() {
	if t.Timing == "" {
		t.Timing = TimingAfter
	}

	if t.Priority == 0 {
		t.Priority = DefaultTriggerPriority
	}
}

// TriggerCondition is a single comparison over the event payload. Field is a
// dotted path such as "invoice.totalAmount".
type TriggerCondition struct {
	Field    string `json:"field"    validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=eq ne gt gte lt lte contains startsWith endsWith in"`
	Value    any    `json:"value"`
}
