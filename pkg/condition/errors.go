package condition

import (
	"errors"
	"fmt"
)

var (
	ErrFieldMissing        = errors.New("field missing")
	ErrNotNumeric          = errors.New("value is not numeric")
	ErrNotDate             = errors.New("value is not a date")
	ErrMalformed           = errors.New("malformed expression")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrUnsupportedConfig   = errors.New("step has no condition config")
)

// EvaluationError reports a condition that could not be evaluated. It is never
// a false outcome in disguise: the engine rejects the instance when it sees one.
type EvaluationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("condition evaluation failed: %s: %v", e.Detail, e.Err)
	}

	return fmt.Sprintf("condition evaluation failed on %q: %s: %v", e.Field, e.Detail, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(field, detail string, err error) *EvaluationError {
	return &EvaluationError{Field: field, Detail: detail, Err: err}
}

// IsEvaluationError reports whether err is or wraps an EvaluationError.
func IsEvaluationError(err error) bool {
	var target *EvaluationError

	return errors.As(err, &target)
}
