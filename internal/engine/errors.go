package engine

import (
	"errors"
	"fmt"

	"devterminal/internal/repo"
)

// ErrInvalidInput marks malformed or missing request fields and operations
// the request's current status does not allow.
var ErrInvalidInput = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// GenerationError reports the build step that aborted a build.
type GenerationError struct {
	RequestID string
	StepID    string
	StepType  string
	StepOrder int
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.StepOrder, e.StepType, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	var genErr *GenerationError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, repo.ErrNotFound):
		return "not_found"
	case errors.As(err, &genErr):
		return "generation_failed"
	default:
		return "error"
	}
}
