// Package services implements the business operations behind the REST API:
// workflow definitions, actions, template links, instances and approvals.
package services

import (
	"errors"
	"fmt"

	"github.com/cflux/flow/pkg/engine"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/trigger"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrGraphWorkflowSteps   = errors.New("steps of a graph workflow are derived from its definition")
	ErrInvalidContext       = errors.New("entity data does not match the action context schema")
	ErrInvalidSchema        = errors.New("invalid context schema")
	ErrUserRequired         = errors.New("user id is required")
	ErrCommentRequired      = engine.ErrCommentRequired

	// Authorization Errors (403 Forbidden).
	ErrUnauthorizedApprover = engine.ErrUnauthorizedApprover

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowInUse  = errors.New("workflow is linked to templates")
	ErrSystemAction   = errors.New("system actions cannot be deleted")
	ErrActionExists   = errors.New("action already exists")
	ErrActionInactive = errors.New("action is not active")
)

var conflicts = []error{
	ErrWorkflowInUse,
	ErrSystemAction,
	ErrActionExists,
	ErrActionInactive,
	engine.ErrStepNotPending,
	engine.ErrNotApprovalStep,
	engine.ErrAlreadyDecided,
	engine.ErrInstanceTerminal,
	trigger.ErrTimingConflict,
	trigger.ErrWorkflowInactive,
	persistence.ErrVersionConflict,
}

var validations = []error{
	ErrInvalidRequest,
	ErrWorkflowNil,
	ErrWorkflowNameRequired,
	ErrGraphWorkflowSteps,
	ErrInvalidContext,
	ErrInvalidSchema,
	ErrUserRequired,
	ErrCommentRequired,
	trigger.ErrInvalidTrigger,
}

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return matchesAny(err, validations)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return matchesAny(err, conflicts)
}

// IsAuthorizationError checks if an error should return HTTP 403.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorizedApprover)
}

// IsNotFound checks if an error should return HTTP 404.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
