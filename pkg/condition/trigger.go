package condition

import (
	"fmt"
	"strings"

	"github.com/cflux/flow/pkg/models"
)

// Trigger evaluates a trigger condition against an action payload. A nil
// condition always matches.
func (e *Evaluator) Trigger(cond *models.TriggerCondition, payload map[string]any) (bool, error) {
	if cond == nil {
		return true, nil
	}

	raw, ok := Lookup(payload, cond.Field)
	if !ok {
		return false, newError(cond.Field, "lookup", ErrFieldMissing)
	}

	switch cond.Operator {
	case "eq":
		return equalValues(raw, cond.Value), nil
	case "ne":
		return !equalValues(raw, cond.Value), nil
	case "gt", "gte", "lt", "lte":
		v, err := toFloat(raw)
		if err != nil {
			return false, newError(cond.Field, "numeric conversion", err)
		}

		ref, err := toFloat(cond.Value)
		if err != nil {
			return false, newError(cond.Field, "comparison value", err)
		}

		return map[string]bool{
			"gt":  v > ref,
			"gte": v >= ref,
			"lt":  v < ref,
			"lte": v <= ref,
		}[cond.Operator], nil
	case "contains":
		return strings.Contains(toString(raw), toString(cond.Value)), nil
	case "startsWith":
		return strings.HasPrefix(toString(raw), toString(cond.Value)), nil
	case "endsWith":
		return strings.HasSuffix(toString(raw), toString(cond.Value)), nil
	case "in":
		values, ok := cond.Value.([]any)
		if !ok {
			return false, newError(cond.Field, "in requires a list", ErrMalformed)
		}

		for _, candidate := range values {
			if equalValues(raw, candidate) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, newError(cond.Field, "operator", fmt.Errorf("%w: %q", ErrUnsupportedOperator, cond.Operator))
	}
}
