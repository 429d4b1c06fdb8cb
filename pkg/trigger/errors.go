package trigger

import "errors"

var (
	// ErrTimingConflict is returned by Match when an INSTEAD trigger matches
	// together with BEFORE or AFTER triggers for the same action.
	ErrTimingConflict   = errors.New("INSTEAD trigger matched alongside BEFORE/AFTER triggers")
	ErrInvalidTrigger   = errors.New("invalid trigger")
	ErrWorkflowInactive = errors.New("workflow is not active")
)
