package events_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/workflow/events"
	"github.com/tailored-agentic-units/workflow/workflow"
)

type testObject struct {
	Marking []string
}

func newWorkflow(t *testing.T, name string, opts ...workflow.Option) *workflow.Workflow {
	t.Helper()

	def, err := workflow.NewDefinitionBuilder("a", "b", "c").
		AddTransition(workflow.NewTransition("t1", []string{"a"}, []string{"b"})).
		AddTransition(workflow.NewTransition("t2", []string{"b"}, []string{"c"})).
		Build()
	require.NoError(t, err)

	wf, err := workflow.New(name, def, workflow.NewPropertyMarkingStore(false, ""), opts...)
	require.NoError(t, err)
	return wf
}

func TestNames(t *testing.T) {
	tests := []struct {
		name     string
		kind     workflow.Kind
		workflow string
		targets  []string
		want     []string
	}{
		{
			name:     "named workflow",
			kind:     workflow.KindGuard,
			workflow: "straight",
			targets:  []string{"t1"},
			want:     []string{"workflow.guard", "workflow.straight.guard", "workflow.straight.guard.t1"},
		},
		{
			name:     "several targets",
			kind:     workflow.KindLeave,
			workflow: "parallel",
			targets:  []string{"left", "right"},
			want:     []string{"workflow.leave", "workflow.parallel.leave", "workflow.parallel.leave.left", "workflow.parallel.leave.right"},
		},
		{
			name:     "no targets",
			kind:     workflow.KindAnnounce,
			workflow: "straight",
			want:     []string{"workflow.announce", "workflow.straight.announce"},
		},
		{
			name:    "anonymous workflow",
			kind:    workflow.KindEnter,
			targets: []string{"b"},
			want:    []string{"workflow.enter"},
		},
		{
			name:     "dots are kept",
			kind:     workflow.KindCompleted,
			workflow: "orders.v2",
			targets:  []string{"ship.now"},
			want:     []string{"workflow.completed", "workflow.orders.v2.completed", "workflow.orders.v2.completed.ship.now"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, events.Names(tt.kind, tt.workflow, tt.targets))
		})
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		workflow string
		want     workflow.Kind
		ok       bool
	}{
		{name: "generic", input: "workflow.guard", want: workflow.KindGuard, ok: true},
		{name: "per workflow", input: "workflow.straight.leave", workflow: "straight", want: workflow.KindLeave, ok: true},
		{name: "per transition", input: "workflow.straight.enter.t1", workflow: "straight", want: workflow.KindEnter, ok: true},
		{name: "dotted workflow", input: "workflow.quia.est.dolor.entered.x", workflow: "quia.est.dolor", want: workflow.KindEntered, ok: true},
		{name: "dotted transition", input: "workflow.alpha.announce.one.two", workflow: "alpha", want: workflow.KindAnnounce, ok: true},
		{name: "workflow named like a kind", input: "workflow.enter.leave.t1", workflow: "enter", want: workflow.KindLeave, ok: true},
		{name: "unknown workflow", input: "workflow.other.completed.t1", workflow: "straight", want: workflow.KindCompleted, ok: true},
		{name: "no prefix", input: "orders.guard", ok: false},
		{name: "no kind", input: "workflow.straight.finished", workflow: "straight", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := events.ParseName(tt.input, tt.workflow)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAdapter_DispatchNamed(t *testing.T) {
	scenarios := []struct {
		name       string
		workflow   string
		transition string
	}{
		{name: "no dots", workflow: "quiaestdolor", transition: "velitsedut"},
		{name: "transition dot", workflow: "quiaestdolor", transition: "velit.sed.ut"},
		{name: "name dot", workflow: "quia.est.dolor", transition: "velitsedut"},
		{name: "both dot", workflow: "quia.est.dolor", transition: "velit.sed.ut"},
	}

	for _, sc := range scenarios {
		for _, kind := range workflow.Kinds() {
			wf := newWorkflow(t, sc.workflow)
			n := workflow.NewEvent(kind, &testObject{}, workflow.Marking{},
				workflow.NewTransition(sc.transition, nil, nil), wf, nil)

			names := []string{
				"workflow." + string(kind),
				"workflow." + sc.workflow + "." + string(kind),
				"workflow." + sc.workflow + "." + string(kind) + "." + sc.transition,
			}

			for i, name := range names {
				t.Run(fmt.Sprintf("%s (%s)", name, sc.name), func(t *testing.T) {
					rec := events.NewRecorder(nil)
					adapter := events.NewAdapter(rec)

					event, err := adapter.DispatchNamed(context.Background(), n, name)
					require.NoError(t, err)

					assert.Equal(t, kind, event.Kind())
					assert.Equal(t, events.TypeName(kind), event.TypeName())
					assert.Same(t, n, event.Notification())

					if i == 0 {
						assert.Equal(t, []string{events.TypeName(kind), name}, rec.Names())
					} else {
						assert.Equal(t, []string{name}, rec.Names())
					}
				})
			}

			t.Run(fmt.Sprintf("no event name %s (%s)", kind, sc.name), func(t *testing.T) {
				rec := events.NewRecorder(nil)
				adapter := events.NewAdapter(rec)

				event, err := adapter.DispatchNamed(context.Background(), n, "")
				require.NoError(t, err)

				assert.Equal(t, events.TypeWorkflowEvent, event.TypeName())
				assert.Equal(t, []string{events.NotificationTypeName(kind)}, rec.Names())
			})
		}
	}
}

func TestAdapter_DispatchNamed_UnknownName(t *testing.T) {
	rec := events.NewRecorder(nil)
	adapter := events.NewAdapter(rec)
	n := workflow.NewEvent(workflow.KindEnter, &testObject{}, workflow.Marking{}, nil, nil, nil)

	event, err := adapter.DispatchNamed(context.Background(), n, "orders.shipped")
	require.NoError(t, err)
	assert.Equal(t, events.TypeWorkflowEvent, event.TypeName())
	assert.Empty(t, event.Kind())
	assert.Equal(t, []string{"orders.shipped"}, rec.Names())
}

func TestAdapter_AnonymousWorkflow(t *testing.T) {
	rec := events.NewRecorder(nil)
	wf := newWorkflow(t, "", workflow.WithDispatcher(events.NewAdapter(rec)))

	_, err := wf.Apply(context.Background(), &testObject{}, "t1", nil)
	require.NoError(t, err)

	assert.True(t, rec.Dispatched(events.TypeEnter))
	assert.True(t, rec.Dispatched("workflow.enter"))
	for _, name := range rec.Names() {
		assert.NotContains(t, name, "workflow..", "anonymous workflows have no per-workflow names")
	}
}
