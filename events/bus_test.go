package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/workflow/events"
	"github.com/tailored-agentic-units/workflow/workflow"
)

func testEvent() *events.Event {
	return events.Wrap(workflow.NewEvent(workflow.KindEnter, &testObject{}, workflow.NewMarking("a"), nil, nil, nil))
}

func TestDispatcher_ExactBeforeWildcard(t *testing.T) {
	d := events.NewDispatcher()
	var order []string

	d.Listen("workflow.*", func(ctx context.Context, name string, e *events.Event) error {
		order = append(order, "wildcard:"+name)
		return nil
	})
	d.Listen("workflow.enter", func(ctx context.Context, name string, e *events.Event) error {
		order = append(order, "exact-1")
		return nil
	})
	d.Listen("workflow.enter", func(ctx context.Context, name string, e *events.Event) error {
		order = append(order, "exact-2")
		return nil
	})
	d.Listen("*", func(ctx context.Context, name string, e *events.Event) error {
		order = append(order, "all")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), "workflow.enter", testEvent()))
	assert.Equal(t, []string{"exact-1", "exact-2", "wildcard:workflow.enter", "all"}, order)

	order = nil
	require.NoError(t, d.Publish(context.Background(), "orders.shipped", testEvent()))
	assert.Equal(t, []string{"all"}, order)
}

func TestDispatcher_HasListenersAndForget(t *testing.T) {
	d := events.NewDispatcher()
	noop := func(ctx context.Context, name string, e *events.Event) error { return nil }

	assert.False(t, d.HasListeners("workflow.guard"))

	d.Listen("workflow.straight.*", noop)
	assert.True(t, d.HasListeners("workflow.straight.guard.t1"))
	assert.False(t, d.HasListeners("workflow.guard"))

	d.Listen("workflow.guard", noop)
	assert.True(t, d.HasListeners("workflow.guard"))

	d.Forget("workflow.straight.*")
	d.Forget("workflow.guard")
	assert.False(t, d.HasListeners("workflow.straight.guard.t1"))
	assert.False(t, d.HasListeners("workflow.guard"))
}

func TestDispatcher_ErrorStopsDelivery(t *testing.T) {
	d := events.NewDispatcher()
	boom := errors.New("boom")
	calls := 0

	d.Listen("n", func(ctx context.Context, name string, e *events.Event) error {
		calls++
		return boom
	})
	d.Listen("n", func(ctx context.Context, name string, e *events.Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), "n", testEvent())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDispatcher_StopPropagation(t *testing.T) {
	d := events.NewDispatcher()
	calls := 0

	d.Listen("n", func(ctx context.Context, name string, e *events.Event) error {
		calls++
		return events.ErrStopPropagation
	})
	d.Listen("n", func(ctx context.Context, name string, e *events.Event) error {
		calls++
		return nil
	})

	assert.NoError(t, d.Publish(context.Background(), "n", testEvent()))
	assert.Equal(t, 1, calls)
}

func TestRecorder_Forwards(t *testing.T) {
	d := events.NewDispatcher()
	forwarded := 0
	d.Listen("*", func(ctx context.Context, name string, e *events.Event) error {
		forwarded++
		return nil
	})

	rec := events.NewRecorder(d)
	event := testEvent()
	require.NoError(t, rec.Publish(context.Background(), "a", event))
	require.NoError(t, rec.Publish(context.Background(), "b", event))
	require.NoError(t, rec.Publish(context.Background(), "a", event))

	assert.Equal(t, 3, forwarded)
	assert.Equal(t, []string{"a", "b", "a"}, rec.Names())
	assert.Equal(t, 2, rec.Count("a"))
	assert.Same(t, event, rec.Published()[1].Event)

	rec.Reset()
	assert.Empty(t, rec.Names())
}

func TestMultiBus(t *testing.T) {
	first := events.NewRecorder(nil)
	second := events.NewRecorder(nil)
	bus := events.NewMultiBus(first, nil, second)

	require.NoError(t, bus.Publish(context.Background(), "workflow.enter", testEvent()))
	assert.True(t, first.Dispatched("workflow.enter"))
	assert.True(t, second.Dispatched("workflow.enter"))
}

func TestEvent_Delegates(t *testing.T) {
	tr := workflow.NewTransition("t1", []string{"a"}, []string{"b"})
	n := workflow.NewEvent(workflow.KindGuard, &testObject{}, workflow.NewMarking("a"), tr, nil, map[string]any{"k": 1})
	first := events.Wrap(n)
	second := events.WrapGeneric(n)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, events.TypeGuard, first.TypeName())
	assert.Equal(t, "t1", first.TransitionName())
	assert.Equal(t, []string{"a"}, first.Marking().Places())

	require.NoError(t, first.SetBlocked(true, "stop"))
	assert.True(t, second.IsBlocked(), "wrappers share the notification")
	require.NoError(t, second.SetContext(map[string]any{"k": 2}))
	assert.Equal(t, map[string]any{"k": 2}, first.Context())
}
