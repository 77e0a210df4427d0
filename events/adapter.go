package events

import (
	"context"
	"strings"

	"github.com/tailored-agentic-units/workflow/observability"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// EventPublish is emitted for every bus publish made by an Adapter.
const EventPublish observability.EventType = "event.publish"

// Adapter translates engine notifications into bus publishes. It implements
// workflow.Dispatcher.
//
// Each notification is wrapped once and the same *Event is published under
// every derived name: "workflow.<kind>", "workflow.<name>.<kind>" and, per
// target, "workflow.<name>.<kind>.<target>". Listeners therefore see each
// other's guard blocks.
//
// Example:
//
//	bus := events.NewDispatcher()
//	bus.Listen("workflow.article.guard.publish", func(ctx context.Context, name string, e *events.Event) error {
//	    if !reviewed(e.Subject()) {
//	        return e.SetBlocked(true, "article has not been reviewed")
//	    }
//	    return nil
//	})
//
//	wf, err := workflow.New("article", def, store, workflow.WithDispatcher(events.NewAdapter(bus)))
type Adapter struct {
	bus      Bus
	observer observability.Observer
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithObserver reports every publish to o.
func WithObserver(o observability.Observer) AdapterOption {
	return func(a *Adapter) {
		if o != nil {
			a.observer = o
		}
	}
}

// NewAdapter creates an adapter publishing on bus.
func NewAdapter(bus Bus, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		bus:      bus,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Names derives the publish names of a notification: the generic name, the
// per-workflow name and one per-target name for each target. Anonymous
// workflows only get the generic name.
func Names(kind workflow.Kind, workflowName string, targets []string) []string {
	names := []string{kind.EventName()}
	if workflowName == "" {
		return names
	}

	perWorkflow := workflow.EventPrefix + "." + workflowName + "." + string(kind)
	names = append(names, perWorkflow)
	for _, target := range targets {
		names = append(names, perWorkflow+"."+target)
	}
	return names
}

// ParseName returns the kind encoded in a publish name. Workflow and
// transition names may contain dots; when workflowName is known it is
// matched first, otherwise the first kind segment after the workflow part
// wins.
func ParseName(name, workflowName string) (workflow.Kind, bool) {
	rest, ok := strings.CutPrefix(name, workflow.EventPrefix+".")
	if !ok {
		return "", false
	}
	if kind := workflow.Kind(rest); kind.Valid() {
		return kind, true
	}

	if workflowName != "" {
		if tail, ok := strings.CutPrefix(rest, workflowName+"."); ok {
			head, _, _ := strings.Cut(tail, ".")
			if kind := workflow.Kind(head); kind.Valid() {
				return kind, true
			}
		}
	}

	parts := strings.Split(rest, ".")
	for i := 1; i < len(parts); i++ {
		if kind := workflow.Kind(parts[i]); kind.Valid() {
			return kind, true
		}
	}
	return "", false
}

func isGeneric(name string) bool {
	rest, ok := strings.CutPrefix(name, workflow.EventPrefix+".")
	return ok && workflow.Kind(rest).Valid()
}

// Dispatch publishes n under every derived name using a single wrapped
// event. Kinds silenced by the workflow's events to dispatch are skipped;
// guard notifications are always published.
func (a *Adapter) Dispatch(ctx context.Context, n *workflow.Event, targets ...string) error {
	if wf := n.Workflow(); wf != nil && !wf.ShouldDispatch(n.Kind()) {
		return nil
	}

	event := Wrap(n)
	for _, name := range Names(n.Kind(), n.WorkflowName(), targets) {
		if err := a.publishNamed(ctx, name, event); err != nil {
			return err
		}
	}
	return nil
}

// DispatchNamed publishes n once under name. The wrapped kind is parsed
// from name and falls back to the generic type. A generic name is also
// published under the wrapped type identifier. An empty name publishes a
// generic event under the notification type identifier.
func (a *Adapter) DispatchNamed(ctx context.Context, n *workflow.Event, name string) (*Event, error) {
	if name == "" {
		event := WrapGeneric(n)
		return event, a.publish(ctx, NotificationTypeName(n.Kind()), event)
	}

	var event *Event
	if kind, ok := ParseName(name, n.WorkflowName()); ok {
		event = wrap(n, kind, TypeName(kind))
	} else {
		event = WrapGeneric(n)
	}
	return event, a.publishNamed(ctx, name, event)
}

func (a *Adapter) publishNamed(ctx context.Context, name string, event *Event) error {
	if isGeneric(name) {
		if err := a.publish(ctx, event.TypeName(), event); err != nil {
			return err
		}
	}
	return a.publish(ctx, name, event)
}

func (a *Adapter) publish(ctx context.Context, name string, event *Event) error {
	observability.Emit(ctx, a.observer, observability.Event{
		Type:   EventPublish,
		Level:  observability.LevelVerbose,
		Source: "events.adapter",
		Data: map[string]any{
			"name":     name,
			"type":     event.TypeName(),
			"event_id": event.ID.String(),
			"workflow": event.WorkflowName(),
		},
	})
	return a.bus.Publish(ctx, name, event)
}
