// Package condition evaluates value, date, expression and logic conditions
// against a read-only entity data snapshot.
package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cflux/flow/pkg/models"
)

type Evaluator struct {
	now func() time.Time
}

type Option func(*Evaluator)

// WithClock overrides the clock used for relative date conditions.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

func New(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Step evaluates a branch step. Logic steps are combined by the caller through
// Logic since their operands come from other steps.
func (e *Evaluator) Step(step *models.WorkflowStep, data map[string]any) (bool, error) {
	switch cfg := step.Config.(type) {
	case *models.ValueConditionConfig:
		return e.Value(cfg, data)
	case *models.DateConditionConfig:
		return e.Date(cfg, data)
	case *models.ConditionConfig:
		return e.Generic(cfg, data)
	default:
		return false, newError("", fmt.Sprintf("step %s", step.ID), fmt.Errorf("%w: %T", ErrUnsupportedConfig, step.Config))
	}
}

// Value compares a numeric field. Equality is exact; monetary amounts should be
// supplied as integer minor units.
func (e *Evaluator) Value(cfg *models.ValueConditionConfig, data map[string]any) (bool, error) {
	raw, ok := Lookup(data, cfg.Field)
	if !ok {
		return false, newError(cfg.Field, "lookup", ErrFieldMissing)
	}

	v, err := toFloat(raw)
	if err != nil {
		return false, newError(cfg.Field, "numeric conversion", err)
	}

	if cfg.Operator == models.OpBetween {
		if cfg.Range == nil {
			return false, newError(cfg.Field, "between requires low and high bounds", ErrMalformed)
		}

		return v >= float64(cfg.Range.Low) && v <= float64(cfg.Range.High), nil
	}

	result, err := compareFloat(cfg.Operator, v, float64(cfg.Value))
	if err != nil {
		return false, newError(cfg.Field, "compare", err)
	}

	return result, nil
}

// Date compares a date field at day granularity, either against now shifted by
// RelativeDays or against an absolute date.
func (e *Evaluator) Date(cfg *models.DateConditionConfig, data map[string]any) (bool, error) {
	raw, ok := Lookup(data, cfg.Field)
	if !ok {
		return false, newError(cfg.Field, "lookup", ErrFieldMissing)
	}

	value, err := toDate(raw)
	if err != nil {
		return false, newError(cfg.Field, "date conversion", err)
	}

	day := truncateDay(value)

	if cfg.Operator == models.OpBetween {
		low, err := toDate(cfg.AbsoluteDate)
		if err != nil {
			return false, newError(cfg.Field, "between lower bound", err)
		}

		high, err := toDate(cfg.AbsoluteDateEnd)
		if err != nil {
			return false, newError(cfg.Field, "between upper bound", err)
		}

		return !day.Before(truncateDay(low)) && !day.After(truncateDay(high)), nil
	}

	var reference time.Time

	switch cfg.CompareType {
	case models.CompareAbsolute:
		reference, err = toDate(cfg.AbsoluteDate)
		if err != nil {
			return false, newError(cfg.Field, "absolute date", err)
		}
	case models.CompareRelative, "":
		reference = e.now().AddDate(0, 0, cfg.RelativeDays)
	default:
		return false, newError(cfg.Field, "compare type", fmt.Errorf("%w: %q", ErrUnsupportedOperator, cfg.CompareType))
	}

	ref := truncateDay(reference)

	result, err := compareFloat(cfg.Operator, float64(day.Unix()), float64(ref.Unix()))
	if err != nil {
		return false, newError(cfg.Field, "compare", err)
	}

	return result, nil
}

// Generic evaluates "x <op> literal" when an expression is configured, and
// plain equality of the field against Value otherwise.
func (e *Evaluator) Generic(cfg *models.ConditionConfig, data map[string]any) (bool, error) {
	raw, ok := Lookup(data, cfg.Field)
	if !ok {
		return false, newError(cfg.Field, "lookup", ErrFieldMissing)
	}

	if strings.TrimSpace(cfg.Expression) == "" {
		switch cfg.Operator {
		case "", models.OpEquals:
			return equalValues(raw, cfg.Value), nil
		default:
			return false, newError(cfg.Field, "operator", fmt.Errorf("%w: %q", ErrUnsupportedOperator, cfg.Operator))
		}
	}

	expr, err := ParseExpression(cfg.Expression)
	if err != nil {
		return false, newError(cfg.Field, "parse", err)
	}

	x, err := toFloat(raw)
	if err != nil {
		return false, newError(cfg.Field, "numeric conversion", err)
	}

	return expr.Eval(x), nil
}

// Logic combines two boolean operands.
func Logic(t models.LogicType, a, b bool) (bool, error) {
	switch t {
	case models.LogicAnd:
		return a && b, nil
	case models.LogicOr:
		return a || b, nil
	default:
		return false, newError("", "logic", fmt.Errorf("%w: %q", ErrUnsupportedOperator, t))
	}
}

// Expression is a parsed "x <op> literal" comparison.
type Expression struct {
	Op      string
	Literal float64
}

var expressionPattern = regexp.MustCompile(`^\s*x\s*(>=|<=|==|!=|>|<)\s*(-?[0-9]+(?:\.[0-9]+)?)\s*$`)

func ParseExpression(s string) (Expression, error) {
	m := expressionPattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	lit, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Expression{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	return Expression{Op: m[1], Literal: lit}, nil
}

func (x Expression) Eval(v float64) bool {
	switch x.Op {
	case ">":
		return v > x.Literal
	case "<":
		return v < x.Literal
	case ">=":
		return v >= x.Literal
	case "<=":
		return v <= x.Literal
	case "==":
		return v == x.Literal
	default:
		return v != x.Literal
	}
}

func compareFloat(op string, v, ref float64) (bool, error) {
	switch op {
	case models.OpGreater:
		return v > ref, nil
	case models.OpLess:
		return v < ref, nil
	case models.OpEquals:
		return v == ref, nil
	case models.OpGreaterOrEqual:
		return v >= ref, nil
	case models.OpLessOrEqual:
		return v <= ref, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
	}
}

func equalValues(a, b any) bool {
	fa, errA := toFloat(a)
	fb, errB := toFloat(b)

	if errA == nil && errB == nil {
		return fa == fb
	}

	return toString(a) == toString(b)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
