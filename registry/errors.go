package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateWorkflow is matched by DuplicateWorkflowError.
	ErrDuplicateWorkflow = errors.New("duplicate workflow")

	// ErrRegistryNotTracked is returned by Loaded when load tracking is off.
	ErrRegistryNotTracked = errors.New("registry is not tracking loaded workflows")

	// ErrNoMatchingWorkflow is returned when no workflow supports a subject.
	ErrNoMatchingWorkflow = errors.New("no matching workflow")

	// ErrAmbiguousWorkflow is returned when several workflows support a
	// subject and no name narrows the choice.
	ErrAmbiguousWorkflow = errors.New("ambiguous workflow")

	// ErrWorkflowNotFound is returned for lookups by an unknown name.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// DuplicateWorkflowError reports a workflow registered twice for the same
// subject type while duplicates are not ignored.
type DuplicateWorkflowError struct {
	Workflow string
	Supports string
}

func (e *DuplicateWorkflowError) Error() string {
	return fmt.Sprintf("duplicate workflow (%s) attempting to be loaded for %s", e.Workflow, e.Supports)
}

// Is matches ErrDuplicateWorkflow.
func (e *DuplicateWorkflowError) Is(target error) bool {
	return target == ErrDuplicateWorkflow
}
