package condition_test

import (
	"testing"
	"time"

	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_ValueGreaterBoundary(t *testing.T) {
	eval := condition.New()
	cfg := &models.ValueConditionConfig{Field: "totalAmount", Operator: models.OpGreater, Value: 5000}

	tests := []struct {
		amount any
		want   bool
	}{
		{6000, true},
		{4000, false},
		{5000, false},
		{"6000", true},
	}

	for _, tt := range tests {
		got, err := eval.Value(cfg, map[string]any{"totalAmount": tt.amount})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "amount %v", tt.amount)
	}
}

func TestEvaluator_ValueOperators(t *testing.T) {
	eval := condition.New()
	data := map[string]any{"netAmount": float64(1000)}

	tests := []struct {
		op    string
		value models.Number
		rng   *models.Range
		want  bool
	}{
		{models.OpEquals, 1000, nil, true},
		{models.OpLess, 1000, nil, false},
		{models.OpGreaterOrEqual, 1000, nil, true},
		{models.OpLessOrEqual, 999, nil, false},
		{models.OpBetween, 0, &models.Range{Low: 1000, High: 2000}, true},
		{models.OpBetween, 0, &models.Range{Low: 1001, High: 2000}, false},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			got, err := eval.Value(&models.ValueConditionConfig{Field: "netAmount", Operator: tt.op, Value: tt.value, Range: tt.rng}, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_ValueErrors(t *testing.T) {
	eval := condition.New()

	_, err := eval.Value(&models.ValueConditionConfig{Field: "totalAmount", Operator: models.OpGreater}, map[string]any{})
	require.Error(t, err)
	assert.True(t, condition.IsEvaluationError(err))
	assert.ErrorIs(t, err, condition.ErrFieldMissing)

	_, err = eval.Value(&models.ValueConditionConfig{Field: "totalAmount", Operator: models.OpGreater}, map[string]any{"totalAmount": "abc"})
	assert.ErrorIs(t, err, condition.ErrNotNumeric)

	_, err = eval.Value(&models.ValueConditionConfig{Field: "totalAmount", Operator: "approximately"}, map[string]any{"totalAmount": 1})
	assert.ErrorIs(t, err, condition.ErrUnsupportedOperator)

	_, err = eval.Value(&models.ValueConditionConfig{Field: "totalAmount", Operator: models.OpBetween}, map[string]any{"totalAmount": 1})
	assert.ErrorIs(t, err, condition.ErrMalformed)
}

func TestEvaluator_Date(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	eval := condition.New(condition.WithClock(func() time.Time { return now }))

	data := map[string]any{
		"dueDate":     "2024-03-20",
		"invoiceDate": "2024-03-15T08:00:00Z",
	}

	got, err := eval.Date(&models.DateConditionConfig{Field: "dueDate", Operator: models.OpGreater, CompareType: models.CompareRelative, RelativeDays: 3}, data)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = eval.Date(&models.DateConditionConfig{Field: "invoiceDate", Operator: models.OpEquals, CompareType: models.CompareRelative}, data)
	require.NoError(t, err)
	assert.True(t, got, "same calendar day is equal")

	got, err = eval.Date(&models.DateConditionConfig{Field: "dueDate", Operator: models.OpLess, CompareType: models.CompareAbsolute, AbsoluteDate: "2024-03-01"}, data)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = eval.Date(&models.DateConditionConfig{Field: "dueDate", Operator: models.OpBetween, AbsoluteDate: "2024-03-01", AbsoluteDateEnd: "2024-03-20"}, data)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = eval.Date(&models.DateConditionConfig{Field: "dueDate", Operator: models.OpBetween, AbsoluteDate: "2024-03-01"}, data)
	assert.ErrorIs(t, err, condition.ErrNotDate)

	_, err = eval.Date(&models.DateConditionConfig{Field: "createdAt", Operator: models.OpGreater}, data)
	assert.ErrorIs(t, err, condition.ErrFieldMissing)
}

func TestEvaluator_GenericExpression(t *testing.T) {
	eval := condition.New()
	data := map[string]any{"amount": 1500, "status": "open"}

	tests := []struct {
		expr string
		want bool
	}{
		{"x > 1000", true},
		{"x < 1000", false},
		{"x >= 1500", true},
		{"x <= 1499.5", false},
		{"x == 1500", true},
		{"x != 1500", false},
		{"  x>-1 ", true},
	}

	for _, tt := range tests {
		got, err := eval.Generic(&models.ConditionConfig{Field: "amount", Expression: tt.expr}, data)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}

	got, err := eval.Generic(&models.ConditionConfig{Field: "status", Operator: models.OpEquals, Value: "open"}, data)
	require.NoError(t, err)
	assert.True(t, got)

	for _, bad := range []string{"y > 1", "x => 1", "x > abc", "x >"} {
		_, err := eval.Generic(&models.ConditionConfig{Field: "amount", Expression: bad}, data)
		assert.ErrorIs(t, err, condition.ErrMalformed, bad)
	}
}

func TestLogic(t *testing.T) {
	got, err := condition.Logic(models.LogicAnd, true, false)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = condition.Logic(models.LogicOr, true, false)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = condition.Logic("XOR", true, false)
	assert.Error(t, err)
}

func TestEvaluator_Trigger(t *testing.T) {
	eval := condition.New()
	payload := map[string]any{
		"invoice": map[string]any{
			"totalAmount": 2500.0,
			"customer":    "ACME GmbH",
			"country":     "DE",
		},
	}

	tests := []struct {
		cond *models.TriggerCondition
		want bool
	}{
		{nil, true},
		{&models.TriggerCondition{Field: "invoice.totalAmount", Operator: "gt", Value: 2000}, true},
		{&models.TriggerCondition{Field: "invoice.totalAmount", Operator: "lte", Value: "2000"}, false},
		{&models.TriggerCondition{Field: "invoice.customer", Operator: "startsWith", Value: "ACME"}, true},
		{&models.TriggerCondition{Field: "invoice.customer", Operator: "endsWith", Value: "AG"}, false},
		{&models.TriggerCondition{Field: "invoice.customer", Operator: "contains", Value: "GmbH"}, true},
		{&models.TriggerCondition{Field: "invoice.country", Operator: "in", Value: []any{"AT", "DE"}}, true},
		{&models.TriggerCondition{Field: "invoice.country", Operator: "ne", Value: "DE"}, false},
		{&models.TriggerCondition{Field: "invoice.totalAmount", Operator: "eq", Value: "2500"}, true},
	}

	for _, tt := range tests {
		got, err := eval.Trigger(tt.cond, payload)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%+v", tt.cond)
	}

	_, err := eval.Trigger(&models.TriggerCondition{Field: "invoice.missing", Operator: "eq", Value: 1}, payload)
	assert.ErrorIs(t, err, condition.ErrFieldMissing)
}
