package services_test

import (
	"testing"

	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/services"
	"github.com/cflux/flow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name:       name,
		IsActive:   true,
		Definition: testutil.ThresholdDefinition("totalAmount", 1000, "u1"),
	}
}

func TestWorkflow_HealthCheck(t *testing.T) {
	f := newFixture(t)

	msg, ok := f.workflows.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", msg)
}

func TestWorkflow_Create(t *testing.T) {
	f := newFixture(t)

	created, err := f.workflows.Create(t.Context(), graphWorkflow("  Large invoices  "))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Large invoices", created.Name)
	assert.False(t, created.CreatedAt.IsZero())
	require.NotEmpty(t, created.Steps)

	types := make([]models.StepType, 0, len(created.Steps))
	for _, s := range created.Steps {
		types = append(types, s.Type)
	}

	assert.Contains(t, types, models.StepTypeApproval)
	assert.Contains(t, types, models.StepTypeValueCondition)

	fetched, err := f.workflows.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Steps, fetched.Steps)
}

func TestWorkflow_CreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflows.Create(t.Context(), nil)
	require.ErrorIs(t, err, services.ErrWorkflowNil)

	_, err = f.workflows.Create(t.Context(), &models.Workflow{Name: "   "})
	require.ErrorIs(t, err, services.ErrWorkflowNameRequired)
	assert.True(t, services.IsValidationError(err))

	cyclic := &models.Workflow{
		Name: "Cyclic",
		Definition: testutil.NewGraph().
			Approval("a", false, "u1").
			Edge(models.StartNodeID, "a", "").
			Edge("a", "a", "").
			Build(),
	}

	_, err = f.workflows.Create(t.Context(), cyclic)
	require.Error(t, err)
	assert.True(t, graph.IsDefinitionError(err))

	all, err := f.workflows.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkflow_Update(t *testing.T) {
	f := newFixture(t)

	created, err := f.workflows.Create(t.Context(), graphWorkflow("Original"))
	require.NoError(t, err)

	replacement := graphWorkflow("Renamed")
	replacement.Definition = testutil.ThresholdDefinition("totalAmount", 5000, "u2")

	updated, err := f.workflows.Update(t.Context(), created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, created.CreatedAt.Unix(), updated.CreatedAt.Unix())

	_, err = f.workflows.Update(t.Context(), "missing", graphWorkflow("x"))
	require.Error(t, err)
	assert.True(t, services.IsNotFound(err))
}

func TestWorkflow_DeleteLinkedWorkflow(t *testing.T) {
	f := newFixture(t)

	created, err := f.workflows.Create(t.Context(), graphWorkflow("Linked"))
	require.NoError(t, err)

	_, err = f.workflows.LinkTemplate(t.Context(), &models.TemplateLink{TemplateID: "tpl-1", WorkflowID: created.ID})
	require.NoError(t, err)

	err = f.workflows.Delete(t.Context(), created.ID)
	require.ErrorIs(t, err, services.ErrWorkflowInUse)
	assert.True(t, services.IsConflictError(err))

	require.NoError(t, f.workflows.UnlinkTemplate(t.Context(), "tpl-1", created.ID))
	require.NoError(t, f.workflows.Delete(t.Context(), created.ID))

	_, err = f.workflows.FetchByID(t.Context(), created.ID)
	assert.True(t, services.IsNotFound(err))
}

func TestWorkflow_TemplateLinks(t *testing.T) {
	f := newFixture(t)

	first, err := f.workflows.Create(t.Context(), graphWorkflow("First"))
	require.NoError(t, err)

	second, err := f.workflows.Create(t.Context(), graphWorkflow("Second"))
	require.NoError(t, err)

	_, err = f.workflows.LinkTemplate(t.Context(), &models.TemplateLink{TemplateID: "tpl", WorkflowID: second.ID, Order: 2})
	require.NoError(t, err)
	_, err = f.workflows.LinkTemplate(t.Context(), &models.TemplateLink{TemplateID: "tpl", WorkflowID: first.ID, Order: 1})
	require.NoError(t, err)

	linked, err := f.workflows.ForTemplate(t.Context(), "tpl")
	require.NoError(t, err)
	require.Len(t, linked, 2)
	assert.Equal(t, first.ID, linked[0].ID)
	assert.Equal(t, second.ID, linked[1].ID)

	_, err = f.workflows.LinkTemplate(t.Context(), &models.TemplateLink{TemplateID: "tpl"})
	assert.True(t, services.IsValidationError(err))

	_, err = f.workflows.LinkTemplate(t.Context(), &models.TemplateLink{TemplateID: "tpl", WorkflowID: "missing"})
	assert.True(t, services.IsNotFound(err))
}

func TestWorkflow_Activation(t *testing.T) {
	f := newFixture(t)

	empty, err := f.workflows.Create(t.Context(), &models.Workflow{Name: "Empty"})
	require.NoError(t, err)
	assert.Empty(t, empty.Steps)

	_, err = f.workflows.Activate(t.Context(), empty.ID)
	require.ErrorIs(t, err, graph.ErrEmptyWorkflow)

	inactive := graphWorkflow("Inactive")
	inactive.IsActive = false

	created, err := f.workflows.Create(t.Context(), inactive)
	require.NoError(t, err)

	activated, err := f.workflows.Activate(t.Context(), created.ID)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	deactivated, err := f.workflows.Deactivate(t.Context(), created.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
}

func TestWorkflow_ActiveWorkflowNeedsSteps(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflows.Create(t.Context(), &models.Workflow{Name: "Empty", IsActive: true})
	require.ErrorIs(t, err, graph.ErrEmptyWorkflow)
	assert.True(t, graph.IsDefinitionError(err))

	all, err := f.workflows.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)

	created, err := f.workflows.Create(t.Context(), &models.Workflow{Name: "Empty"})
	require.NoError(t, err)

	_, err = f.workflows.Update(t.Context(), created.ID, &models.Workflow{Name: "Empty", IsActive: true})
	require.ErrorIs(t, err, graph.ErrEmptyWorkflow)

	stored, err := f.workflows.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}
