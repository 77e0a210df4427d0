// Package events republishes workflow lifecycle notifications on a
// publish/subscribe bus under dot-separated names.
//
// For a workflow named W, a notification of kind K about target T is
// published under:
//
//	workflow.K
//	workflow.W.K
//	workflow.W.K.T
//
// together with the wrapped event's type identifier (for example
// "events.GuardEvent"). Every publish of one notification carries the same
// *Event, so a guard listener blocking on any name blocks the transition.
//
// Targets depend on the kind: the transition name for guard, transition and
// completed; the places left or entered for leave, enter and entered; the
// newly enabled transitions for announce.
//
// # Usage
//
//	bus := events.NewDispatcher()
//	bus.Listen("workflow.straight.guard.t1", func(ctx context.Context, name string, e *events.Event) error {
//	    return e.SetBlocked(true, "not today")
//	})
//
//	wf, err := workflow.New("straight", def, store,
//	    workflow.WithDispatcher(events.NewAdapter(bus)))
package events
