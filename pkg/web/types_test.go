package web_test

import (
	"errors"
	"testing"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedFields(t *testing.T, err error) []string {
	t.Helper()

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fieldErr.Field())
	}

	return fields
}

func TestWorkflowRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name      string
		request   web.WorkflowRequest
		errFields []string
	}{
		{
			name:    "valid request",
			request: web.WorkflowRequest{Name: "Large invoices", Description: "Over 1000"},
		},
		{
			name:      "missing name",
			request:   web.WorkflowRequest{Description: "Over 1000"},
			errFields: []string{"Name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if len(tt.errFields) == 0 {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.errFields, failedFields(t, err))
		})
	}
}

func TestRejectRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	err := v.Struct(web.RejectRequest{UserID: "u1"})
	require.Error(t, err)
	assert.Equal(t, []string{"Comment"}, failedFields(t, err))

	require.NoError(t, v.Struct(web.RejectRequest{UserID: "u1", Comment: "no"}))
	require.NoError(t, v.Struct(web.ApproveRequest{UserID: "u1"}))
}

func TestTriggerRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name      string
		request   web.TriggerRequest
		errFields []string
	}{
		{
			name:    "defaults",
			request: web.TriggerRequest{WorkflowID: "wf", ActionKey: "invoice.created"},
		},
		{
			name:      "unknown timing",
			request:   web.TriggerRequest{WorkflowID: "wf", ActionKey: "invoice.created", Timing: "LATER"},
			errFields: []string{"Timing"},
		},
		{
			name:      "negative priority",
			request:   web.TriggerRequest{WorkflowID: "wf", ActionKey: "invoice.created", Priority: -1},
			errFields: []string{"Priority"},
		},
		{
			name:      "missing keys",
			request:   web.TriggerRequest{},
			errFields: []string{"WorkflowID", "ActionKey"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if len(tt.errFields) == 0 {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.errFields, failedFields(t, err))
		})
	}
}

func TestTriggerRequest_Trigger(t *testing.T) {
	t.Parallel()

	inactive := false

	active := (&web.TriggerRequest{WorkflowID: "wf", ActionKey: "a"}).Trigger()
	assert.True(t, active.IsActive)
	assert.Empty(t, active.ID)

	disabled := (&web.TriggerRequest{WorkflowID: "wf", ActionKey: "a", IsActive: &inactive}).Trigger()
	assert.False(t, disabled.IsActive)
}

func TestActionRequest_Action(t *testing.T) {
	t.Parallel()

	action := (&web.ActionRequest{
		ActionKey:   "invoice.created",
		DisplayName: "Invoice created",
		Category:    "INVOICES",
	}).Action()

	assert.True(t, action.IsActive)
	assert.False(t, action.IsSystem)
	assert.Equal(t, "INVOICES", action.Category)
}

func TestWorkflowRequest_Workflow(t *testing.T) {
	t.Parallel()

	req := &web.WorkflowRequest{
		Name:     "Manual",
		IsActive: true,
		Steps: []*models.WorkflowStep{
			{Name: "Manager", Type: models.StepTypeApproval, ApproverUserIDs: []string{"u1"}},
		},
	}

	workflow := req.Workflow()
	assert.Empty(t, workflow.ID)
	assert.True(t, workflow.IsActive)
	require.Len(t, workflow.Steps, 1)
	assert.Nil(t, workflow.Definition)
}
