package events

import (
	"github.com/google/uuid"

	"github.com/tailored-agentic-units/workflow/workflow"
)

// Type identifiers of wrapped events. A notification published under a
// generic name is also published under its type identifier.
const (
	TypeGuard      = "events.GuardEvent"
	TypeLeave      = "events.LeaveEvent"
	TypeTransition = "events.TransitionEvent"
	TypeEnter      = "events.EnterEvent"
	TypeEntered    = "events.EnteredEvent"
	TypeCompleted  = "events.CompletedEvent"
	TypeAnnounce   = "events.AnnounceEvent"

	// TypeWorkflowEvent identifies events whose kind could not be derived
	// from the publish name.
	TypeWorkflowEvent = "events.WorkflowEvent"
)

var typeNames = map[workflow.Kind]string{
	workflow.KindGuard:      TypeGuard,
	workflow.KindLeave:      TypeLeave,
	workflow.KindTransition: TypeTransition,
	workflow.KindEnter:      TypeEnter,
	workflow.KindEntered:    TypeEntered,
	workflow.KindCompleted:  TypeCompleted,
	workflow.KindAnnounce:   TypeAnnounce,
}

// TypeName returns the wrapped type identifier of kind.
func TypeName(kind workflow.Kind) string {
	if name, ok := typeNames[kind]; ok {
		return name
	}
	return TypeWorkflowEvent
}

var notificationTypeNames = map[workflow.Kind]string{
	workflow.KindGuard:      "workflow.GuardEvent",
	workflow.KindLeave:      "workflow.LeaveEvent",
	workflow.KindTransition: "workflow.TransitionEvent",
	workflow.KindEnter:      "workflow.EnterEvent",
	workflow.KindEntered:    "workflow.EnteredEvent",
	workflow.KindCompleted:  "workflow.CompletedEvent",
	workflow.KindAnnounce:   "workflow.AnnounceEvent",
}

// NotificationTypeName returns the type identifier of an engine
// notification, used when a notification is dispatched without a name.
func NotificationTypeName(kind workflow.Kind) string {
	if name, ok := notificationTypeNames[kind]; ok {
		return name
	}
	return "workflow.Event"
}

// Event wraps a lifecycle notification for bus subscribers. Accessors and
// guard mutators delegate to the notification, so a block set through any
// wrapper reaches the transition attempt.
type Event struct {
	ID           uuid.UUID
	kind         workflow.Kind
	typeName     string
	notification *workflow.Event
}

// Wrap creates the typed event for a notification.
func Wrap(n *workflow.Event) *Event {
	return wrap(n, n.Kind(), TypeName(n.Kind()))
}

// WrapGeneric creates an event with the generic type identifier.
func WrapGeneric(n *workflow.Event) *Event {
	return wrap(n, "", TypeWorkflowEvent)
}

func wrap(n *workflow.Event, kind workflow.Kind, typeName string) *Event {
	return &Event{
		ID:           uuid.New(),
		kind:         kind,
		typeName:     typeName,
		notification: n,
	}
}

// Kind returns the wrapped kind, empty for generic events.
func (e *Event) Kind() workflow.Kind {
	return e.kind
}

// TypeName returns the type identifier, such as events.TypeGuard. Generic
// names are published under it before any dot name.
func (e *Event) TypeName() string {
	return e.typeName
}

// Notification returns the underlying engine notification.
func (e *Event) Notification() *workflow.Event {
	return e.notification
}

// Subject returns the object the transition is attempted on.
func (e *Event) Subject() any {
	return e.notification.Subject()
}

// Marking returns the marking snapshot of the notification.
func (e *Event) Marking() workflow.Marking {
	return e.notification.Marking()
}

// Transition returns the transition involved, nil when there is none.
func (e *Event) Transition() *workflow.Transition {
	return e.notification.Transition()
}

// TransitionName returns the transition name, empty when there is none.
func (e *Event) TransitionName() string {
	if t := e.notification.Transition(); t != nil {
		return t.Name
	}
	return ""
}

// Workflow returns the emitting workflow.
func (e *Event) Workflow() *workflow.Workflow {
	return e.notification.Workflow()
}

// WorkflowName returns the emitting workflow's name.
func (e *Event) WorkflowName() string {
	return e.notification.WorkflowName()
}

// Context returns the payload the caller passed to Apply.
func (e *Event) Context() map[string]any {
	return e.notification.Context()
}

// SetContext replaces the payload. Only guard notifications accept it.
func (e *Event) SetContext(payload map[string]any) error {
	return e.notification.SetContext(payload)
}

// IsBlocked reports whether any listener blocked the transition.
func (e *Event) IsBlocked() bool {
	return e.notification.IsBlocked()
}

// SetBlocked blocks the transition. Only guard notifications accept it.
func (e *Event) SetBlocked(blocked bool, message string) error {
	return e.notification.SetBlocked(blocked, message)
}

// AddBlocker records a blocker with its own code and message. Only guard
// notifications accept it.
func (e *Event) AddBlocker(b workflow.Blocker) error {
	return e.notification.AddBlocker(b)
}

// Blockers returns the blockers recorded so far.
func (e *Event) Blockers() []workflow.Blocker {
	return e.notification.Blockers()
}
