package events_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/workflow/events"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// eventSets lists the names published for each kind of the straight
// workflow; %s is replaced by the target.
var eventSets = map[string][]string{
	"workflow_enter": {events.TypeEntered, "workflow.entered", "workflow.straight.entered"},
	"guard":          {events.TypeGuard, "workflow.guard", "workflow.straight.guard", "workflow.straight.guard.%s"},
	"leave":          {events.TypeLeave, "workflow.leave", "workflow.straight.leave", "workflow.straight.leave.%s"},
	"transition":     {events.TypeTransition, "workflow.transition", "workflow.straight.transition", "workflow.straight.transition.%s"},
	"enter":          {events.TypeEnter, "workflow.enter", "workflow.straight.enter", "workflow.straight.enter.%s"},
	"entered":        {events.TypeEntered, "workflow.entered", "workflow.straight.entered", "workflow.straight.entered.%s"},
	"completed":      {events.TypeCompleted, "workflow.completed", "workflow.straight.completed", "workflow.straight.completed.%s"},
	"announce":       {events.TypeAnnounce, "workflow.announce", "workflow.straight.announce"},
}

func assertEventSet(t *testing.T, rec *events.Recorder, set, arg string, expected bool) {
	t.Helper()

	for _, pattern := range eventSets[set] {
		name := pattern
		if arg != "" {
			name = fmt.Sprintf(pattern, arg)
		}
		if expected {
			assert.True(t, rec.Dispatched(name), "expected %s to be dispatched", name)
		} else {
			assert.False(t, rec.Dispatched(name), "expected %s not to be dispatched", name)
		}
	}
}

func TestWorkflowEmitsEvents(t *testing.T) {
	rec := events.NewRecorder(nil)
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(rec)))

	_, err := wf.Apply(context.Background(), &testObject{}, "t1", nil)
	require.NoError(t, err)

	assertEventSet(t, rec, "workflow_enter", "", true)
	assert.True(t, rec.Dispatched("workflow.straight.entered.a"))
	assertEventSet(t, rec, "guard", "t1", true)
	assertEventSet(t, rec, "leave", "a", true)
	assertEventSet(t, rec, "transition", "t1", true)
	assertEventSet(t, rec, "enter", "b", true)
	assertEventSet(t, rec, "entered", "b", true)
	assertEventSet(t, rec, "completed", "t1", true)
	assertEventSet(t, rec, "announce", "", true)
	assert.True(t, rec.Dispatched("workflow.straight.announce.t2"))
	assertEventSet(t, rec, "guard", "t2", true)
}

func TestWorkflowEmitsEventsInOrder(t *testing.T) {
	rec := events.NewRecorder(nil)
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(rec)))

	_, err := wf.Apply(context.Background(), &testObject{Marking: []string{"a"}}, "t1", nil)
	require.NoError(t, err)

	var generic []string
	for _, name := range rec.Names() {
		if _, ok := workflow.ParseKind(name); ok && name != "workflow.guard" {
			generic = append(generic, name)
		}
	}
	assert.Equal(t, []string{
		"workflow.leave",
		"workflow.transition",
		"workflow.enter",
		"workflow.entered",
		"workflow.completed",
		"workflow.announce",
	}, generic)
}

func TestWorkflowOnlyEmitsSpecificEvents(t *testing.T) {
	all := []workflow.Kind{
		workflow.KindEnter,
		workflow.KindLeave,
		workflow.KindTransition,
		workflow.KindEntered,
		workflow.KindCompleted,
		workflow.KindAnnounce,
	}

	type scenario struct {
		name     string
		dispatch []workflow.Kind
		expect   []workflow.Kind
	}
	scenarios := []scenario{
		{name: "nil events dispatches all", dispatch: nil, expect: all},
		{name: "empty events dispatches none", dispatch: []workflow.Kind{}, expect: nil},
	}
	for _, kind := range all {
		scenarios = append(scenarios, scenario{
			name:     "silences all but " + string(kind),
			dispatch: []workflow.Kind{kind},
			expect:   []workflow.Kind{kind},
		})
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			rec := events.NewRecorder(nil)
			wf := newWorkflow(t, "straight",
				workflow.WithDispatcher(events.NewAdapter(rec)),
				workflow.WithEventsToDispatch(sc.dispatch))

			_, err := wf.Apply(context.Background(), &testObject{}, "t1", nil)
			require.NoError(t, err)

			expects := func(k workflow.Kind) bool {
				for _, e := range sc.expect {
					if e == k {
						return true
					}
				}
				return false
			}

			assertEventSet(t, rec, "workflow_enter", "", expects(workflow.KindEntered))
			assertEventSet(t, rec, "leave", "a", expects(workflow.KindLeave))
			assertEventSet(t, rec, "transition", "t1", expects(workflow.KindTransition))
			assertEventSet(t, rec, "enter", "b", expects(workflow.KindEnter))
			assertEventSet(t, rec, "entered", "b", expects(workflow.KindEntered))
			assertEventSet(t, rec, "completed", "t1", expects(workflow.KindCompleted))
			assertEventSet(t, rec, "announce", "", expects(workflow.KindAnnounce))
			assertEventSet(t, rec, "guard", "t1", true)
			assert.Equal(t, expects(workflow.KindAnnounce), rec.Dispatched("workflow.straight.guard.t2"))
		})
	}
}

func TestWorkflowSilencedAnnounceSkipsGuards(t *testing.T) {
	bus := events.NewDispatcher()
	wf := newWorkflow(t, "straight",
		workflow.WithDispatcher(events.NewAdapter(bus)),
		workflow.WithEventsToDispatch([]workflow.Kind{}))

	calls := 0
	bus.Listen("workflow.straight.guard.t2", func(ctx context.Context, name string, e *events.Event) error {
		calls++
		return errors.New("t2 guard unavailable")
	})

	subject := &testObject{Marking: []string{"a"}}
	marking, err := wf.Apply(context.Background(), subject, "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, []string{"b"}, marking.Places())
	assert.Equal(t, []string{"b"}, subject.Marking)
}

func TestWorkflowEmitsEventsWithContext(t *testing.T) {
	rec := events.NewRecorder(nil)
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(rec)))
	payload := map[string]any{"context1": 42, "context2": "banana"}

	_, err := wf.Apply(context.Background(), &testObject{}, "t1", payload)
	require.NoError(t, err)

	for _, name := range []string{
		"workflow.leave",
		"workflow.transition",
		"workflow.enter",
		"workflow.completed",
		"workflow.announce",
	} {
		got := rec.Events(name)
		require.NotEmpty(t, got, name)
		assert.Equal(t, payload, got[0].Context(), name)
	}

	entered := rec.Events("workflow.straight.entered.b")
	require.Len(t, entered, 1)
	assert.Equal(t, payload, entered[0].Context())
}

func TestWorkflowGuardEventsBlockTransition(t *testing.T) {
	bus := events.NewDispatcher()
	rec := events.NewRecorder(bus)
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(rec)))

	bus.Listen("workflow.straight.guard.t1", func(ctx context.Context, name string, e *events.Event) error {
		return e.SetBlocked(true, "")
	})

	subject := &testObject{}
	can, err := wf.Can(context.Background(), subject, "t1")
	require.NoError(t, err)
	assert.False(t, can)

	rec.Reset()
	_, err = wf.Apply(context.Background(), subject, "t1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrTransitionNotEnabled)

	for _, kind := range []string{"leave", "transition", "enter", "entered", "completed", "announce"} {
		assert.False(t, rec.Dispatched("workflow."+kind), "%s must not be published", kind)
	}
	assert.Equal(t, []string{"a"}, subject.Marking)
}

func TestWorkflowEventsShareInstance(t *testing.T) {
	rec := events.NewRecorder(nil)
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(rec)))

	_, err := wf.Apply(context.Background(), &testObject{Marking: []string{"a"}}, "t1", nil)
	require.NoError(t, err)

	generic := rec.Events("workflow.guard")
	perWorkflow := rec.Events("workflow.straight.guard")
	perTransition := rec.Events("workflow.straight.guard.t1")
	typed := rec.Events(events.TypeGuard)
	require.NotEmpty(t, perTransition)

	assert.Same(t, generic[0], perWorkflow[0])
	assert.Same(t, generic[0], perTransition[0])
	assert.Same(t, generic[0], typed[0])
}

func TestWorkflowGuardBlockVisibleAcrossNames(t *testing.T) {
	bus := events.NewDispatcher()
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(bus)))

	var seen []bool
	bus.Listen("workflow.guard", func(ctx context.Context, name string, e *events.Event) error {
		if e.TransitionName() == "t1" {
			return e.SetBlocked(true, "generic listener")
		}
		return nil
	})
	bus.Listen("workflow.straight.guard.t1", func(ctx context.Context, name string, e *events.Event) error {
		seen = append(seen, e.IsBlocked())
		return nil
	})

	_, err := wf.Apply(context.Background(), &testObject{Marking: []string{"a"}}, "t1", nil)
	require.ErrorIs(t, err, workflow.ErrTransitionNotEnabled)
	assert.Equal(t, []bool{true}, seen)
}

func TestWorkflowListenerErrorAbortsTransition(t *testing.T) {
	bus := events.NewDispatcher()
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(bus)))
	boom := errors.New("audit log unavailable")

	bus.Listen("workflow.straight.transition.t1", func(ctx context.Context, name string, e *events.Event) error {
		return boom
	})

	subject := &testObject{Marking: []string{"a"}}
	_, err := wf.Apply(context.Background(), subject, "t1", nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, subject.Marking)
}

func TestNonGuardEventsRejectBlocking(t *testing.T) {
	bus := events.NewDispatcher()
	wf := newWorkflow(t, "straight", workflow.WithDispatcher(events.NewAdapter(bus)))

	bus.Listen("workflow.leave", func(ctx context.Context, name string, e *events.Event) error {
		return e.SetBlocked(true, "")
	})

	_, err := wf.Apply(context.Background(), &testObject{Marking: []string{"a"}}, "t1", nil)
	assert.ErrorIs(t, err, workflow.ErrNotGuardEvent)
}
