// Package conditional provides the branching condition node factories: generic
// condition, value condition and date condition. Each routes to a true or a
// false edge.
package conditional

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/protocol"
)

var (
	ErrFieldRequired   = errors.New("condition field is required")
	ErrInvalidOperator = errors.New("invalid condition operator")
	ErrRangeRequired   = errors.New("between requires low and high bounds")
	ErrValueRequired   = errors.New("condition value is required")
	ErrDateRequired    = errors.New("absolute comparison requires a date")
)

var comparisonOperators = []string{
	models.OpGreater,
	models.OpLess,
	models.OpEquals,
	models.OpGreaterOrEqual,
	models.OpLessOrEqual,
	models.OpBetween,
}

// ConditionalNodeFactory creates generic condition steps.
type ConditionalNodeFactory struct{}

func (f *ConditionalNodeFactory) Parse(config map[string]any) (models.StepType, models.StepConfig, error) {
	cfg := &models.ConditionConfig{}

	err := protocol.DecodeConfig(config, cfg)
	if err != nil {
		return "", nil, err
	}

	if cfg.Field == "" {
		return "", nil, ErrFieldRequired
	}

	if strings.TrimSpace(cfg.Expression) != "" {
		_, err := condition.ParseExpression(cfg.Expression)
		if err != nil {
			return "", nil, err
		}
	} else if cfg.Operator != "" && cfg.Operator != models.OpEquals {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidOperator, cfg.Operator)
	}

	return models.StepTypeCondition, cfg, nil
}

func (f *ConditionalNodeFactory) ID() models.NodeType {
	return models.NodeTypeCondition
}

func (f *ConditionalNodeFactory) Name() string {
	return "Condition"
}

func (f *ConditionalNodeFactory) Description() string {
	return "Evaluates an expression such as \"x > 1000\" against a field, or compares the field for equality. Routes to the true or false path."
}

func (f *ConditionalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":     map[string]any{"type": "string"},
			"field":    map[string]any{"type": "string", "minLength": 1},
			"operator": map[string]any{"type": "string", "enum": []string{"equals", ""}},
			"value":    map[string]any{},
			"expression": map[string]any{
				"type":        "string",
				"description": "Comparison where x is bound to the field value.",
				"examples":    []string{"x > 1000", "x != 0"},
			},
		},
		"required": []string{"field"},
	}
}

func NewConditionalNodeFactory() protocol.NodeFactory {
	return &ConditionalNodeFactory{}
}

// ValueConditionNodeFactory creates numeric comparison steps.
type ValueConditionNodeFactory struct{}

func (f *ValueConditionNodeFactory) Parse(config map[string]any) (models.StepType, models.StepConfig, error) {
	cfg := &models.ValueConditionConfig{}

	err := protocol.DecodeConfig(config, cfg)
	if err != nil {
		return "", nil, err
	}

	if cfg.Field == "" {
		return "", nil, ErrFieldRequired
	}

	if !slices.Contains(comparisonOperators, cfg.Operator) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidOperator, cfg.Operator)
	}

	switch {
	case cfg.Operator == models.OpBetween && cfg.Range == nil:
		return "", nil, ErrRangeRequired
	case cfg.Operator != models.OpBetween && !hasValue(config):
		return "", nil, fmt.Errorf("%w for operator %q", ErrValueRequired, cfg.Operator)
	}

	return models.StepTypeValueCondition, cfg, nil
}

// hasValue reports whether config carries a comparison value. Blank strings
// count as missing.
func hasValue(config map[string]any) bool {
	v, ok := config["value"]
	if !ok || v == nil {
		return false
	}

	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}

	return true
}

func (f *ValueConditionNodeFactory) ID() models.NodeType {
	return models.NodeTypeValueCondition
}

func (f *ValueConditionNodeFactory) Name() string {
	return "Value condition"
}

func (f *ValueConditionNodeFactory) Description() string {
	return "Compares a numeric field such as totalAmount. Amounts are compared exactly and should be sent in minor units."
}

func (f *ValueConditionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":     map[string]any{"type": "string"},
			"field":    map[string]any{"type": "string", "minLength": 1, "examples": []string{"totalAmount", "netAmount", "taxAmount", "discountAmount"}},
			"operator": map[string]any{"type": "string", "enum": comparisonOperators},
			"value":    map[string]any{"type": []string{"number", "string", "object"}},
			"low":      map[string]any{"type": []string{"number", "string"}},
			"high":     map[string]any{"type": []string{"number", "string"}},
		},
		"required": []string{"field", "operator"},
	}
}

func NewValueConditionNodeFactory() protocol.NodeFactory {
	return &ValueConditionNodeFactory{}
}

// DateConditionNodeFactory creates date comparison steps.
type DateConditionNodeFactory struct{}

func (f *DateConditionNodeFactory) Parse(config map[string]any) (models.StepType, models.StepConfig, error) {
	cfg := &models.DateConditionConfig{CompareType: models.CompareRelative}

	err := protocol.DecodeConfig(config, cfg)
	if err != nil {
		return "", nil, err
	}

	if cfg.Field == "" {
		return "", nil, ErrFieldRequired
	}

	if !slices.Contains(comparisonOperators, cfg.Operator) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidOperator, cfg.Operator)
	}

	switch {
	case cfg.Operator == models.OpBetween:
		if cfg.AbsoluteDate == "" || cfg.AbsoluteDateEnd == "" {
			return "", nil, ErrRangeRequired
		}
	case cfg.CompareType == models.CompareAbsolute && cfg.AbsoluteDate == "":
		return "", nil, ErrDateRequired
	}

	return models.StepTypeDateCondition, cfg, nil
}

func (f *DateConditionNodeFactory) ID() models.NodeType {
	return models.NodeTypeDateCondition
}

func (f *DateConditionNodeFactory) Name() string {
	return "Date condition"
}

func (f *DateConditionNodeFactory) Description() string {
	return "Compares a date field against today shifted by a number of days, or against a fixed date."
}

func (f *DateConditionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":            map[string]any{"type": "string"},
			"field":           map[string]any{"type": "string", "minLength": 1, "examples": []string{"invoiceDate", "dueDate", "createdAt"}},
			"operator":        map[string]any{"type": "string", "enum": comparisonOperators},
			"compareType":     map[string]any{"type": "string", "enum": []string{"relative", "absolute"}},
			"relativeDays":    map[string]any{"type": "integer"},
			"absoluteDate":    map[string]any{"type": []string{"string", "null"}},
			"absoluteDateEnd": map[string]any{"type": []string{"string", "null"}},
		},
		"required": []string{"field", "operator"},
	}
}

func NewDateConditionNodeFactory() protocol.NodeFactory {
	return &DateConditionNodeFactory{}
}
