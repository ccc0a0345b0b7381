package pipeline

import (
	"errors"
	"fmt"

	"github.com/driftdb/driftdb/pkg/fieldpath"
)

var (
	// ErrInterrupted if cooperative cancellation was observed at an Advance
	// checkpoint.
	ErrInterrupted = errors.New("operation was interrupted")

	// ErrContractViolation marks programmer errors, such as attaching a
	// source to a leaf stage or requesting the field set of an open
	// dependency set. Not user-recoverable.
	ErrContractViolation = errors.New("pipeline contract violation")
)

// UnsatisfiedDependencyError is the user-facing planning error raised when a
// stage requires a field that no earlier stage supplies.
type UnsatisfiedDependencyError struct {
	Path           fieldpath.FieldPath
	NeedingStage   string
	NeedingIndex   int
	ExcludingStage string
	ExcludingIndex int
}

func (e *UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf(
		"unable to satisfy dependency on %s in pipeline[%d].%s, because pipeline[%d].%s does not include it",
		e.Path.Path(true),
		e.NeedingIndex, e.NeedingStage,
		e.ExcludingIndex, e.ExcludingStage,
	)
}
