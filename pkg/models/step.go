package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StepType is the executable kind of a compiled workflow step.
type StepType string

const (
	StepTypeApproval       StepType = "APPROVAL"
	StepTypeEmail          StepType = "EMAIL"
	StepTypeNotification   StepType = "NOTIFICATION"
	StepTypeDelay          StepType = "DELAY"
	StepTypeCondition      StepType = "CONDITION"
	StepTypeDateCondition  StepType = "DATE_CONDITION"
	StepTypeValueCondition StepType = "VALUE_CONDITION"
	StepTypeLogicAnd       StepType = "LOGIC_AND"
	StepTypeLogicOr        StepType = "LOGIC_OR"
)

var ErrUnknownStepType = errors.New("unknown step type")

// IsBranch reports whether the step routes on a boolean outcome of a condition.
func (t StepType) IsBranch() bool {
	return t == StepTypeCondition || t == StepTypeDateCondition || t == StepTypeValueCondition
}

func (t StepType) IsLogic() bool {
	return t == StepTypeLogicAnd || t == StepTypeLogicOr
}

// IsMessage reports whether the step sends an email or notification.
func (t StepType) IsMessage() bool {
	return t == StepTypeEmail || t == StepTypeNotification
}

// Materialized reports whether visiting the step creates a WorkflowInstanceStep row.
// Condition and logic outcomes are recorded as instance decisions instead.
func (t StepType) Materialized() bool {
	return t == StepTypeApproval || t.IsMessage() || t == StepTypeDelay
}

func (t StepType) Valid() bool {
	switch t {
	case StepTypeApproval, StepTypeEmail, StepTypeNotification, StepTypeDelay,
		StepTypeCondition, StepTypeDateCondition, StepTypeValueCondition,
		StepTypeLogicAnd, StepTypeLogicOr:
		return true
	default:
		return false
	}
}

// WorkflowStep is one compiled step. Graph workflows derive their steps from the
// definition; manual workflows store them directly.
type WorkflowStep struct {
	ID                  string     `json:"id"`
	WorkflowID          string     `json:"workflowId"`
	NodeID              string     `json:"nodeId,omitempty"`
	Name                string     `json:"name"`
	Type                StepType   `json:"type"`
	Order               int        `json:"order"`
	ApproverUserIDs     []string   `json:"approverUserIds"`
	RequireAllApprovers bool       `json:"requireAllApprovers"`
	Config              StepConfig `json:"-"`
}

type stepJSON struct {
	ID                  string          `json:"id"`
	WorkflowID          string          `json:"workflowId"`
	NodeID              string          `json:"nodeId,omitempty"`
	Name                string          `json:"name"`
	Type                StepType        `json:"type"`
	Order               int             `json:"order"`
	ApproverUserIDs     []string        `json:"approverUserIds"`
	RequireAllApprovers bool            `json:"requireAllApprovers"`
	Config              json.RawMessage `json:"config,omitempty"`
}

func (s WorkflowStep) MarshalJSON() ([]byte, error) {
	out := stepJSON{
		ID:                  s.ID,
		WorkflowID:          s.WorkflowID,
		NodeID:              s.NodeID,
		Name:                s.Name,
		Type:                s.Type,
		Order:               s.Order,
		ApproverUserIDs:     s.ApproverUserIDs,
		RequireAllApprovers: s.RequireAllApprovers,
	}

	if out.ApproverUserIDs == nil {
		out.ApproverUserIDs = []string{}
	}

	if s.Config != nil {
		raw, err := json.Marshal(s.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s config: %w", s.Type, err)
		}

		out.Config = raw
	}

	return json.Marshal(out)
}

func (s *WorkflowStep) UnmarshalJSON(data []byte) error {
	var in stepJSON

	err := json.Unmarshal(data, &in)
	if err != nil {
		return err
	}

	*s = WorkflowStep{
		ID:                  in.ID,
		WorkflowID:          in.WorkflowID,
		NodeID:              in.NodeID,
		Name:                in.Name,
		Type:                in.Type,
		Order:               in.Order,
		ApproverUserIDs:     in.ApproverUserIDs,
		RequireAllApprovers: in.RequireAllApprovers,
	}

	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStepType, in.Type)
	}

	cfg, err := DecodeStepConfig(in.Type, in.Config)
	if err != nil {
		return err
	}

	s.Config = cfg
	s.Normalize()

	return nil
}

// Normalize keeps the legacy approver fields and the approval config in agreement.
func (s *WorkflowStep) Normalize() {
	if s.Type != StepTypeApproval {
		return
	}

	cfg, ok := s.Config.(*ApprovalConfig)
	if !ok || cfg == nil {
		cfg = &ApprovalConfig{}
		s.Config = cfg
	}

	if len(cfg.ApproverUserIDs) == 0 && len(s.ApproverUserIDs) > 0 {
		cfg.ApproverUserIDs = s.ApproverUserIDs
		cfg.RequireAllApprovers = s.RequireAllApprovers
	}

	s.ApproverUserIDs = cfg.ApproverUserIDs
	s.RequireAllApprovers = cfg.RequireAllApprovers
}

// StepConfig is the type-specific configuration of a step. The concrete type is
// determined by the step type.
type StepConfig interface {
	stepConfig()
}

// NewStepConfig returns an empty config variant for the step type.
func NewStepConfig(t StepType) (StepConfig, error) {
	switch t {
	case StepTypeApproval:
		return &ApprovalConfig{}, nil
	case StepTypeEmail, StepTypeNotification:
		return &MessageConfig{}, nil
	case StepTypeDelay:
		return &DelayConfig{}, nil
	case StepTypeCondition:
		return &ConditionConfig{}, nil
	case StepTypeDateCondition:
		return &DateConditionConfig{}, nil
	case StepTypeValueCondition:
		return &ValueConditionConfig{}, nil
	case StepTypeLogicAnd:
		return &LogicConfig{LogicType: LogicAnd}, nil
	case StepTypeLogicOr:
		return &LogicConfig{LogicType: LogicOr}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, t)
	}
}

// DecodeStepConfig decodes raw JSON into the config variant for the step type.
func DecodeStepConfig(t StepType, raw []byte) (StepConfig, error) {
	cfg, err := NewStepConfig(t)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}

	err = json.Unmarshal(raw, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", t, err)
	}

	return cfg, nil
}

type ApprovalConfig struct {
	ApproverUserIDs     []string `json:"approverUserIds"`
	RequireAllApprovers bool     `json:"requireAllApprovers"`
}

// MessageConfig configures EMAIL and NOTIFICATION steps. Subject, Body and
// Message are text/template strings rendered against the entity snapshot.
type MessageConfig struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body,omitempty"`
	Template   string   `json:"template,omitempty"`
	Message    string   `json:"message,omitempty"`
}

type DelayUnit string

const (
	DelayMinutes DelayUnit = "minutes"
	DelayHours   DelayUnit = "hours"
	DelayDays    DelayUnit = "days"
)

type DelayConfig struct {
	DelayType  DelayUnit `json:"delayType"`
	DelayValue int       `json:"delayValue"`
}

// Duration converts the configured delay into a time.Duration.
func (c *DelayConfig) Duration() time.Duration {
	value := time.Duration(c.DelayValue)

	switch c.DelayType {
	case DelayMinutes:
		return value * time.Minute
	case DelayDays:
		return value * 24 * time.Hour
	default:
		return value * time.Hour
	}
}

// Comparison operators shared by value and date conditions.
const (
	OpGreater        = "greater"
	OpLess           = "less"
	OpEquals         = "equals"
	OpGreaterOrEqual = "greaterOrEqual"
	OpLessOrEqual    = "lessOrEqual"
	OpBetween        = "between"
)

// ConditionConfig is a generic condition. When Expression is set it is of the
// form "x <op> <literal>" with x bound to the numeric value of Field; otherwise
// Field is compared to Value for equality.
type ConditionConfig struct {
	Field      string `json:"field"`
	Operator   string `json:"operator,omitempty"`
	Value      any    `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// Range is an inclusive pair of bounds.
type Range struct {
	Low  Number `json:"low"`
	High Number `json:"high"`
}

// ValueConditionConfig compares a numeric field. Monetary fields are expected in
// integer minor units; equality is exact.
type ValueConditionConfig struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    Number `json:"value"`
	Range    *Range `json:"range,omitempty"`
}

func (c *ValueConditionConfig) UnmarshalJSON(data []byte) error {
	var in struct {
		Field    string          `json:"field"`
		Operator string          `json:"operator"`
		Value    json.RawMessage `json:"value"`
		Range    *Range          `json:"range"`
		Low      *Number         `json:"low"`
		High     *Number         `json:"high"`
	}

	err := json.Unmarshal(data, &in)
	if err != nil {
		return err
	}

	*c = ValueConditionConfig{Field: in.Field, Operator: in.Operator, Range: in.Range}

	raw := strings.TrimSpace(string(in.Value))

	switch {
	case strings.HasPrefix(raw, "{"):
		var r Range

		err = json.Unmarshal(in.Value, &r)
		if err != nil {
			return fmt.Errorf("invalid range value: %w", err)
		}

		c.Range = &r
	case raw != "" && raw != "null" && raw != `""`:
		err = json.Unmarshal(in.Value, &c.Value)
		if err != nil {
			return err
		}
	}

	if c.Range == nil && in.Low != nil && in.High != nil {
		c.Range = &Range{Low: *in.Low, High: *in.High}
	}

	return nil
}

// DateCompareType selects between a date relative to now and a fixed date.
type DateCompareType string

const (
	CompareRelative DateCompareType = "relative"
	CompareAbsolute DateCompareType = "absolute"
)

type DateConditionConfig struct {
	Field           string          `json:"field"`
	Operator        string          `json:"operator"`
	CompareType     DateCompareType `json:"compareType"`
	RelativeDays    int             `json:"relativeDays"`
	AbsoluteDate    string          `json:"absoluteDate,omitempty"`
	AbsoluteDateEnd string          `json:"absoluteDateEnd,omitempty"`
}

type LogicType string

const (
	LogicAnd LogicType = "AND"
	LogicOr  LogicType = "OR"
)

type LogicConfig struct {
	LogicType LogicType `json:"logicType"`
}

func (*ApprovalConfig) stepConfig()       {}
func (*MessageConfig) stepConfig()        {}
func (*DelayConfig) stepConfig()          {}
func (*ConditionConfig) stepConfig()      {}
func (*ValueConditionConfig) stepConfig() {}
func (*DateConditionConfig) stepConfig()  {}
func (*LogicConfig) stepConfig()          {}

// Number is a float64 that also accepts numeric strings when decoded, since the
// editor submits form values as text.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}

	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*n = 0

		return nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", raw, err)
	}

	*n = Number(v)

	return nil
}
