package engine

import "errors"

var (
	// ErrStepNotPending is returned when deciding a step that was already decided.
	ErrStepNotPending = errors.New("step is not pending")
	// ErrNotApprovalStep is returned when approving or rejecting a step that
	// waits for something other than a person, such as a delay.
	ErrNotApprovalStep = errors.New("step does not accept approvals")
	// ErrAlreadyDecided is returned when an approver approves the same step twice.
	ErrAlreadyDecided       = errors.New("approver already decided this step")
	ErrInstanceTerminal     = errors.New("workflow instance is already finished")
	ErrUnauthorizedApprover = errors.New("user is not an approver of this step")
	ErrCommentRequired      = errors.New("a comment is required to reject")
)

// SystemCommentPrefix marks comments written by the engine rather than a person.
const SystemCommentPrefix = "system: "
