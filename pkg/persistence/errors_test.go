package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cflux/flow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("not found classification", func(t *testing.T) {
		for _, err := range []error{
			persistence.ErrWorkflowNotFound,
			persistence.ErrTriggerNotFound,
			persistence.ErrActionNotFound,
			persistence.ErrInstanceNotFound,
			persistence.ErrStepNotFound,
			persistence.ErrTemplateLinkNotFound,
		} {
			wrapped := persistence.NewEntityError("GetByID", "record", "id-1", err)
			assert.True(t, persistence.IsNotFound(wrapped), err.Error())
		}

		assert.False(t, persistence.IsNotFound(persistence.ErrVersionConflict))
		assert.False(t, persistence.IsNotFound(errors.New("disk full")))
	})

	t.Run("entity error unwraps", func(t *testing.T) {
		err := fmt.Errorf("approve: %w", persistence.NewEntityError("Save", "instance", "inst-1", persistence.ErrVersionConflict))

		assert.True(t, persistence.IsVersionConflict(err))
		assert.ErrorIs(t, err, persistence.ErrVersionConflict)

		var entityErr *persistence.EntityError
		assert.ErrorAs(t, err, &entityErr)
		assert.Equal(t, "inst-1", entityErr.ID)
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewEntityError("Delete", "workflow", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.Contains(t, err.Error(), "Delete")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
		assert.True(t, persistence.IsWorkflowNotFound(err))
	})

	t.Run("entity error without id", func(t *testing.T) {
		err := persistence.NewEntityError("GetAll", "trigger", "", errors.New("boom"))

		assert.Equal(t, "GetAll operation failed for trigger: boom", err.Error())
	})
}
