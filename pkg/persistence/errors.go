package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTriggerNotFound indicates a trigger was not found by the given identifier.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrActionNotFound indicates no system action exists for the given key.
	ErrActionNotFound = errors.New("action not found")

	// ErrInstanceNotFound indicates a workflow instance was not found.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrStepNotFound indicates a workflow instance step was not found.
	ErrStepNotFound = errors.New("workflow instance step not found")

	// ErrWorkflowStepNotFound indicates no workflow defines a manual step with the given id.
	ErrWorkflowStepNotFound = errors.New("workflow step not found")

	// ErrTemplateLinkNotFound indicates no link exists between the template and the workflow.
	ErrTemplateLinkNotFound = errors.New("template link not found")

	// ErrVersionConflict indicates the record changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
)

var notFound = []error{
	ErrWorkflowNotFound,
	ErrTriggerNotFound,
	ErrActionNotFound,
	ErrInstanceNotFound,
	ErrStepNotFound,
	ErrWorkflowStepNotFound,
	ErrTemplateLinkNotFound,
}

// EntityError wraps a persistence failure with the operation and the record it concerned.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	Entity string // Kind of record (e.g., "workflow", "instance")
	ID     string // Record identifier if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsVersionConflict checks if an error indicates a lost compare-and-set.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
