package graph

import (
	"errors"
	"fmt"
)

var (
	ErrNoStart          = errors.New("graph has no start node")
	ErrMultipleStarts   = errors.New("graph has more than one start node")
	ErrStartEdges       = errors.New("start node must have exactly one outgoing edge")
	ErrStartPredecessor = errors.New("start node cannot have incoming edges")
	ErrDuplicateNode    = errors.New("duplicate node id")
	ErrUnknownNode      = errors.New("edge references an unknown node")
	ErrMissingEdge      = errors.New("node has no outgoing edge")
	ErrAmbiguousEdge    = errors.New("node has more than one successor for the same outcome")
	ErrMissingBranch    = errors.New("branch node needs both a true and a false edge")
	ErrInvalidHandle    = errors.New("edge carries an unsupported handle")
	ErrLogicInputs      = errors.New("logic node needs exactly two inputs")
	ErrEndEdges         = errors.New("end node cannot have outgoing edges")
	ErrCycle            = errors.New("graph contains a cycle")
	ErrUnreachable      = errors.New("node is not reachable from start")
	ErrInvalidStep      = errors.New("invalid step")
	ErrEmptyWorkflow    = errors.New("workflow has neither a definition nor steps")
)

// DefinitionError reports a structurally invalid workflow. It is raised at
// compile time so an invalid graph can never be activated.
type DefinitionError struct {
	WorkflowID string
	NodeID     string
	Err        error
}

func (e *DefinitionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("invalid workflow %s at node %s: %v", e.WorkflowID, e.NodeID, e.Err)
	}

	return fmt.Sprintf("invalid workflow %s: %v", e.WorkflowID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func (e *DefinitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsDefinitionError reports whether err is or wraps a DefinitionError.
func IsDefinitionError(err error) bool {
	var target *DefinitionError

	return errors.As(err, &target)
}

func definitionError(workflowID, nodeID string, err error) *DefinitionError {
	return &DefinitionError{WorkflowID: workflowID, NodeID: nodeID, Err: err}
}
