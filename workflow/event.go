package workflow

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// Kind discriminates the lifecycle point an Event was emitted at.
type Kind string

const (
	KindGuard      Kind = "guard"
	KindLeave      Kind = "leave"
	KindTransition Kind = "transition"
	KindEnter      Kind = "enter"
	KindEntered    Kind = "entered"
	KindCompleted  Kind = "completed"
	KindAnnounce   Kind = "announce"
)

// EventPrefix starts every lifecycle event name.
const EventPrefix = "workflow"

var kinds = []Kind{KindGuard, KindLeave, KindTransition, KindEnter, KindEntered, KindCompleted, KindAnnounce}

// Kinds returns every lifecycle kind in emission order.
func Kinds() []Kind {
	return slices.Clone(kinds)
}

// Valid reports whether k is a known lifecycle kind.
func (k Kind) Valid() bool {
	return slices.Contains(kinds, k)
}

// EventName returns the generic event name, e.g. "workflow.guard".
func (k Kind) EventName() string {
	return EventPrefix + "." + string(k)
}

// ParseKind accepts a bare kind ("enter") or a generic event name
// ("workflow.enter").
func ParseKind(value string) (Kind, bool) {
	k := Kind(strings.TrimPrefix(strings.TrimSpace(value), EventPrefix+"."))
	return k, k.Valid()
}

// Blocker codes.
const (
	BlockedByMarking  = "blocked_by_marking"
	BlockedByListener = "blocked_by_listener"
	BlockedBySystem   = "blocked_by_system_policy"
)

// Blocker explains why a transition is not enabled.
type Blocker struct {
	Code       string
	Message    string
	Parameters map[string]any
}

// Event is a lifecycle notification. Every kind shares the same accessors;
// blocking and context mutation are only accepted on guard events.
type Event struct {
	kind       Kind
	subject    any
	marking    Marking
	transition *Transition
	workflow   *Workflow
	payload    map[string]any
	blockers   []Blocker
}

// NewEvent builds a notification. The marking is copied; transition and
// workflow may be nil.
func NewEvent(kind Kind, subject any, marking Marking, transition *Transition, wf *Workflow, payload map[string]any) *Event {
	return &Event{
		kind:       kind,
		subject:    subject,
		marking:    marking.Clone(),
		transition: transition,
		workflow:   wf,
		payload:    maps.Clone(payload),
	}
}

// Kind returns the lifecycle point the notification was emitted at.
func (e *Event) Kind() Kind {
	return e.kind
}

// Subject returns the object the transition is attempted on.
func (e *Event) Subject() any {
	return e.subject
}

// Marking returns the marking snapshot taken when the event was emitted.
func (e *Event) Marking() Marking {
	return e.marking.Clone()
}

// Transition returns the transition involved, nil for the entered event
// emitted when a marking is initialised.
func (e *Event) Transition() *Transition {
	return e.transition
}

// Workflow returns the workflow that emitted the notification.
func (e *Event) Workflow() *Workflow {
	return e.workflow
}

// WorkflowName returns the owning workflow name, empty when anonymous.
func (e *Event) WorkflowName() string {
	if e.workflow == nil {
		return ""
	}
	return e.workflow.Name()
}

// Context returns a copy of the caller supplied context.
func (e *Event) Context() map[string]any {
	return maps.Clone(e.payload)
}

// SetContext replaces the context payload of a guard event.
func (e *Event) SetContext(payload map[string]any) error {
	if e.kind != KindGuard {
		return ErrNotGuardEvent
	}
	e.payload = maps.Clone(payload)
	return nil
}

// IsBlocked reports whether any blocker was recorded.
func (e *Event) IsBlocked() bool {
	return len(e.blockers) > 0
}

// SetBlocked blocks or unblocks a guard event. Unblocking clears every
// blocker recorded so far.
func (e *Event) SetBlocked(blocked bool, message string) error {
	if e.kind != KindGuard {
		return ErrNotGuardEvent
	}
	if !blocked {
		e.blockers = nil
		return nil
	}
	if message == "" {
		message = "The transition has been blocked by a guard listener."
	}
	e.blockers = append(e.blockers, Blocker{Code: BlockedByListener, Message: message})
	return nil
}

// AddBlocker records a specific blocker on a guard event.
func (e *Event) AddBlocker(b Blocker) error {
	if e.kind != KindGuard {
		return ErrNotGuardEvent
	}
	e.blockers = append(e.blockers, b)
	return nil
}

// Blockers returns the recorded blockers.
func (e *Event) Blockers() []Blocker {
	return slices.Clone(e.blockers)
}

// Dispatcher receives notifications while a transition is attempted.
// targets name what the notification is about: the transition for guard,
// transition and completed; the places left or entered for leave, enter and
// entered; the newly enabled transitions for announce.
//
// A returned error aborts the transition attempt and reaches the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *Event, targets ...string) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, event *Event, targets ...string) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, event *Event, targets ...string) error {
	return f(ctx, event, targets...)
}
