package services_test

import (
	"testing"

	"github.com/cflux/flow/pkg/actionbus"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/services"
	"github.com/cflux/flow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceAction() *models.SystemAction {
	return &models.SystemAction{
		ActionKey:   "invoice.review",
		DisplayName: "Invoice review",
		Category:    "INVOICES",
		IsActive:    true,
		ContextSchema: map[string]any{
			"type":     "object",
			"required": []any{"totalAmount"},
			"properties": map[string]any{
				"totalAmount": map[string]any{"type": "number"},
			},
		},
	}
}

func TestDefaultActions(t *testing.T) {
	actions, err := services.DefaultActions()
	require.NoError(t, err)
	require.NotEmpty(t, actions)

	keys := make(map[string]bool, len(actions))

	for _, a := range actions {
		assert.False(t, keys[a.ActionKey], "duplicate action %s", a.ActionKey)
		keys[a.ActionKey] = true

		assert.True(t, a.IsSystem, a.ActionKey)
		assert.True(t, a.IsActive, a.ActionKey)
		assert.NotEmpty(t, a.DisplayName, a.ActionKey)
	}

	assert.True(t, keys["invoice.created"])
}

func TestActions_Seed(t *testing.T) {
	f := newFixture(t)

	defaults, err := services.DefaultActions()
	require.NoError(t, err)

	created, err := f.actions.Seed(t.Context(), defaults)
	require.NoError(t, err)
	assert.Equal(t, len(defaults), created)

	again, err := f.actions.Seed(t.Context(), defaults)
	require.NoError(t, err)
	assert.Zero(t, again)

	err = f.actions.Delete(t.Context(), "invoice.created")
	require.ErrorIs(t, err, services.ErrSystemAction)
	assert.True(t, services.IsConflictError(err))
}

func TestActions_CRUD(t *testing.T) {
	f := newFixture(t)

	created, err := f.actions.Create(t.Context(), invoiceAction())
	require.NoError(t, err)
	assert.Equal(t, "invoice.review", created.ActionKey)

	_, err = f.actions.Create(t.Context(), invoiceAction())
	require.ErrorIs(t, err, services.ErrActionExists)

	update := invoiceAction()
	update.ActionKey = "renamed"
	update.DisplayName = "Invoice review (v2)"
	update.IsSystem = true

	updated, err := f.actions.Update(t.Context(), "invoice.review", update)
	require.NoError(t, err)
	assert.Equal(t, "invoice.review", updated.ActionKey)
	assert.False(t, updated.IsSystem)

	got, err := f.actions.Get(t.Context(), "invoice.review")
	require.NoError(t, err)
	assert.Equal(t, "Invoice review (v2)", got.DisplayName)

	all, err := f.actions.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, f.actions.Delete(t.Context(), "invoice.review"))

	_, err = f.actions.Get(t.Context(), "invoice.review")
	assert.True(t, services.IsNotFound(err))
}

func TestActions_CreateRejectsInvalidSchema(t *testing.T) {
	f := newFixture(t)

	action := invoiceAction()
	action.ContextSchema = map[string]any{"type": 12}

	_, err := f.actions.Create(t.Context(), action)
	require.ErrorIs(t, err, services.ErrInvalidSchema)

	_, err = f.actions.Create(t.Context(), &models.SystemAction{ActionKey: "x"})
	require.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestActions_Trigger(t *testing.T) {
	f := newFixture(t)

	_, err := f.actions.Create(t.Context(), invoiceAction())
	require.NoError(t, err)

	workflow, err := f.workflows.Create(t.Context(), graphWorkflow("Large invoices"))
	require.NoError(t, err)

	_, err = f.registry.Register(t.Context(), testutil.CreateTestTrigger(workflow.ID, "invoice.review"))
	require.NoError(t, err)

	req := actionbus.Request{
		ActionKey:  "invoice.review",
		EntityType: "invoice",
		EntityID:   "inv-9",
		EntityData: map[string]any{"totalAmount": 2500.0},
	}

	result, err := f.actions.Trigger(t.Context(), req)
	require.NoError(t, err)
	require.Len(t, result.Instances, 1)
	assert.Equal(t, models.InstanceInProgress, result.Instances[0].Status)

	invalid := req
	invalid.EntityData = map[string]any{"totalAmount": "lots"}

	_, err = f.actions.Trigger(t.Context(), invalid)
	require.ErrorIs(t, err, services.ErrInvalidContext)
	assert.True(t, services.IsValidationError(err))

	_, err = f.actions.Trigger(t.Context(), actionbus.Request{ActionKey: "invoice.review"})
	require.ErrorIs(t, err, services.ErrInvalidRequest)

	logs, err := f.actions.Logs(t.Context(), persistence.LogQuery{ActionKey: "invoice.review"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, []string{workflow.ID}, logs[0].TriggeredWorkflows)

	stats, err := f.actions.Statistics(t.Context(), "invoice.review")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.InDelta(t, 100.0, stats.SuccessRate, 0.001)
}

func TestActions_TriggerInactive(t *testing.T) {
	f := newFixture(t)

	action := invoiceAction()
	action.IsActive = false

	_, err := f.actions.Create(t.Context(), action)
	require.NoError(t, err)

	_, err = f.actions.Trigger(t.Context(), actionbus.Request{
		ActionKey:  "invoice.review",
		EntityType: "invoice",
		EntityID:   "inv-1",
		EntityData: map[string]any{"totalAmount": 1.0},
	})
	require.ErrorIs(t, err, services.ErrActionInactive)
}

func TestActions_Test(t *testing.T) {
	f := newFixture(t)

	_, err := f.actions.Create(t.Context(), invoiceAction())
	require.NoError(t, err)

	workflow, err := f.workflows.Create(t.Context(), graphWorkflow("Large invoices"))
	require.NoError(t, err)

	_, err = f.registry.Register(t.Context(), testutil.CreateTestTrigger(workflow.ID, "invoice.review",
		testutil.WithCondition("totalAmount", "gte", 1000)))
	require.NoError(t, err)

	report, err := f.actions.Test(t.Context(), "invoice.review", map[string]any{"totalAmount": 999.0})
	require.NoError(t, err)
	require.Len(t, report.Triggers, 1)
	assert.Zero(t, report.WouldFire)
	assert.False(t, report.Triggers[0].WouldFire)

	report, err = f.actions.Test(t.Context(), "invoice.review", map[string]any{"totalAmount": 1000.0})
	require.NoError(t, err)
	assert.Equal(t, 1, report.WouldFire)

	_, err = f.actions.Test(t.Context(), "missing", nil)
	assert.True(t, services.IsNotFound(err))
}
