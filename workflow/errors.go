package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransitionNotEnabled is returned when a transition exists but the
	// marking, a guard listener or the system-handled policy blocks it.
	ErrTransitionNotEnabled = errors.New("transition not enabled")

	// ErrUndefinedTransition is returned when the workflow has no transition
	// with the requested name.
	ErrUndefinedTransition = errors.New("undefined transition")

	// ErrInvalidDefinition is returned when places, transitions or initial
	// places are inconsistent.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrUnknownPlace is returned when a persisted marking references a place
	// the definition does not declare.
	ErrUnknownPlace = errors.New("unknown place")

	// ErrMarkingConflict is returned by compare-and-swap marking stores when
	// the persisted marking changed since it was read.
	ErrMarkingConflict = errors.New("marking changed concurrently")

	// ErrNotGuardEvent is returned when blocking or context mutation is
	// attempted on a non-guard event.
	ErrNotGuardEvent = errors.New("only guard events are mutable")

	// ErrUnsupportedSubject is returned when a marking store cannot read or
	// write the given subject.
	ErrUnsupportedSubject = errors.New("unsupported subject")
)

// TransitionError reports a failed transition attempt with its blockers.
type TransitionError struct {
	Workflow   string
	Transition string
	Blockers   []Blocker
	Err        error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("transition %q in workflow %q: %v", e.Transition, e.Workflow, e.Err)
	if len(e.Blockers) > 0 {
		codes := make([]string, 0, len(e.Blockers))
		for _, b := range e.Blockers {
			codes = append(codes, b.Code)
		}
		msg += " (" + strings.Join(codes, ", ") + ")"
	}
	return msg
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *TransitionError) Unwrap() error {
	return e.Err
}

func definitionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
