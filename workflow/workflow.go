package workflow

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/workflow/observability"
)

const instrumentationName = "github.com/tailored-agentic-units/workflow"

// Workflow binds a Definition to a MarkingStore and emits lifecycle
// notifications through an optional Dispatcher.
//
// A Workflow is immutable after construction and safe for concurrent use.
// Concurrent Apply calls on the same subject are only serialised when the
// marking store implements CompareAndSwapper; otherwise the last write wins.
//
// Example:
//
//	def, err := workflow.NewDefinitionBuilder("draft", "review", "published").
//	    AddTransition(workflow.NewTransition("submit", []string{"draft"}, []string{"review"})).
//	    AddTransition(workflow.NewTransition("publish", []string{"review"}, []string{"published"})).
//	    Build()
//	if err != nil {
//	    return err
//	}
//
//	wf, err := workflow.New("article", def, workflow.NewPropertyMarkingStore(false, "marking"),
//	    workflow.WithDispatcher(events.NewAdapter(bus)))
//	if err != nil {
//	    return err
//	}
//
//	marking, err := wf.Apply(ctx, article, "submit", nil)
type Workflow struct {
	name             string
	definition       *Definition
	store            MarkingStore
	dispatcher       Dispatcher
	eventsToDispatch []Kind
	filterEvents     bool
	stateMachine     bool
	systemPolicy     bool
	observer         observability.Observer
	tracer           trace.Tracer
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithDispatcher sets the receiver of lifecycle notifications.
func WithDispatcher(d Dispatcher) Option {
	return func(w *Workflow) {
		w.dispatcher = d
	}
}

// WithEventsToDispatch restricts which kinds listeners are told about.
// A nil slice allows every kind; an empty slice silences everything except
// guard events, which are always published.
func WithEventsToDispatch(kinds []Kind) Option {
	return func(w *Workflow) {
		if kinds == nil {
			w.eventsToDispatch = nil
			w.filterEvents = false
			return
		}
		w.eventsToDispatch = slices.Clone(kinds)
		w.filterEvents = true
	}
}

// WithSystemHandledPolicy enables blocking HandledBySystem transitions when
// the context carries an authenticated actor.
func WithSystemHandledPolicy(enabled bool) Option {
	return func(w *Workflow) {
		w.systemPolicy = enabled
	}
}

// WithObserver sets the diagnostic observer. Nil keeps the no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(w *Workflow) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithTracer overrides the tracer taken from the global OTel provider.
func WithTracer(t trace.Tracer) Option {
	return func(w *Workflow) {
		if t != nil {
			w.tracer = t
		}
	}
}

// New creates a workflow (multiple active places allowed).
func New(name string, def *Definition, store MarkingStore, opts ...Option) (*Workflow, error) {
	if def == nil {
		return nil, fmt.Errorf("definition cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("marking store cannot be nil")
	}

	w := &Workflow{
		name:       name,
		definition: def,
		store:      store,
		observer:   observability.NoOpObserver{},
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewStateMachine creates a workflow whose definition passes
// ValidateStateMachine.
func NewStateMachine(name string, def *Definition, store MarkingStore, opts ...Option) (*Workflow, error) {
	if def != nil {
		if err := ValidateStateMachine(def); err != nil {
			return nil, fmt.Errorf("state machine %q: %w", name, err)
		}
	}
	w, err := New(name, def, store, opts...)
	if err != nil {
		return nil, err
	}
	w.stateMachine = true
	return w, nil
}

// Name returns the registration name. Events of anonymous workflows are
// published under their type identifier only.
func (w *Workflow) Name() string {
	return w.name
}

// Definition returns the immutable place and transition graph.
func (w *Workflow) Definition() *Definition {
	return w.definition
}

// MarkingStore returns the store the workflow reads and persists markings
// through.
//
// Reading the store directly does not initialise an unmarked subject; use
// Marking for that.
func (w *Workflow) MarkingStore() MarkingStore {
	return w.store
}

// Metadata returns the definition's metadata store.
func (w *Workflow) Metadata() *MetadataStore {
	return w.definition.Metadata()
}

// IsStateMachine reports whether the workflow was built by NewStateMachine.
func (w *Workflow) IsStateMachine() bool {
	return w.stateMachine
}

// EventsToDispatch returns the configured allow-list. ok is false when no
// list was configured, meaning every kind is published.
func (w *Workflow) EventsToDispatch() (kinds []Kind, ok bool) {
	return slices.Clone(w.eventsToDispatch), w.filterEvents
}

// ShouldDispatch reports whether listeners are told about kind. Guard
// events always pass so blocking logic keeps working.
func (w *Workflow) ShouldDispatch(kind Kind) bool {
	if kind == KindGuard || !w.filterEvents {
		return true
	}
	return slices.Contains(w.eventsToDispatch, kind)
}

// Marking returns the subject's marking. An unmarked subject is put in the
// initial places, persisted, and announced with an entered event that has
// no transition.
func (w *Workflow) Marking(ctx context.Context, subject any) (Marking, error) {
	marking, err := w.store.Marking(ctx, subject)
	if err != nil {
		return Marking{}, fmt.Errorf("read marking: %w", err)
	}

	if marking.IsEmpty() {
		initial := w.definition.InitialPlaces()
		if len(initial) == 0 {
			return Marking{}, definitionError("workflow %q has no initial place", w.name)
		}
		for _, p := range initial {
			marking.Mark(p)
		}

		if err := w.persist(ctx, subject, Marking{}, marking, nil); err != nil {
			return Marking{}, err
		}

		observability.Emit(ctx, w.observer, observability.Event{
			Type:   EventMarkingInitialize,
			Level:  observability.LevelVerbose,
			Source: w.source(),
			Data: map[string]any{
				"subject": TypeOf(subject),
				"places":  initial,
			},
		})

		if _, err := w.dispatch(ctx, KindEntered, subject, marking, nil, nil, initial); err != nil {
			return Marking{}, err
		}
	}

	for _, p := range marking.Places() {
		if !w.definition.HasPlace(p) {
			return Marking{}, fmt.Errorf("%w: place %q is not valid for workflow %q", ErrUnknownPlace, p, w.name)
		}
	}

	return marking, nil
}

// Can reports whether the transition is enabled for subject. An unknown
// transition name yields false.
func (w *Workflow) Can(ctx context.Context, subject any, name string) (bool, error) {
	marking, err := w.Marking(ctx, subject)
	if err != nil {
		return false, err
	}

	for _, t := range w.definition.TransitionsNamed(name) {
		blockers, err := w.blockers(ctx, subject, marking, t, nil)
		if err != nil {
			return false, err
		}
		if len(blockers) == 0 {
			return true, nil
		}
	}
	return false, nil
}

// TransitionBlockers lists why name is not enabled. An empty result means
// the transition can be applied.
func (w *Workflow) TransitionBlockers(ctx context.Context, subject any, name string) ([]Blocker, error) {
	marking, err := w.Marking(ctx, subject)
	if err != nil {
		return nil, err
	}

	candidates := w.definition.TransitionsNamed(name)
	if len(candidates) == 0 {
		return nil, &TransitionError{Workflow: w.name, Transition: name, Err: ErrUndefinedTransition}
	}

	var all []Blocker
	for _, t := range candidates {
		blockers, err := w.blockers(ctx, subject, marking, t, nil)
		if err != nil {
			return nil, err
		}
		if len(blockers) == 0 {
			return nil, nil
		}
		all = append(all, blockers...)
	}
	return all, nil
}

// EnabledTransitions returns every transition enabled in the subject's
// current marking. Each candidate emits a guard event.
func (w *Workflow) EnabledTransitions(ctx context.Context, subject any) ([]*Transition, error) {
	marking, err := w.Marking(ctx, subject)
	if err != nil {
		return nil, err
	}
	return w.enabled(ctx, subject, marking)
}

// EnabledTransition returns the first enabled transition carrying name, or
// nil when none is enabled.
func (w *Workflow) EnabledTransition(ctx context.Context, subject any, name string) (*Transition, error) {
	marking, err := w.Marking(ctx, subject)
	if err != nil {
		return nil, err
	}

	for _, t := range w.definition.TransitionsNamed(name) {
		blockers, err := w.blockers(ctx, subject, marking, t, nil)
		if err != nil {
			return nil, err
		}
		if len(blockers) == 0 {
			return t, nil
		}
	}
	return nil, nil
}

// Apply fires the transition named name and returns the resulting marking.
//
// Every transition carrying the name whose guards pass is applied in
// declaration order. When none passes, Apply returns a *TransitionError
// wrapping ErrTransitionNotEnabled and the marking is left untouched.
//
// Notifications are dispatched in this order for each applied transition:
//
//  1. guard, once per candidate transition
//  2. leave, for the vacated places
//  3. transition
//  4. enter, for the destination places
//  5. entered, after the marking is persisted
//  6. completed
//  7. announce, for the transitions enabled by the new marking
//
// A dispatcher error before the marking is persisted aborts the attempt
// with the marking unchanged. Announce, and the guard events it computes,
// are skipped when the workflow does not dispatch announce.
func (w *Workflow) Apply(ctx context.Context, subject any, name string, payload map[string]any) (Marking, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Apply", trace.WithAttributes(
		attribute.String("workflow.name", w.name),
		attribute.String("workflow.transition", name),
	))
	defer span.End()

	marking, err := w.apply(ctx, subject, name, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return marking, err
	}

	span.SetAttributes(attribute.StringSlice("workflow.marking", marking.Places()))
	return marking, nil
}

func (w *Workflow) apply(ctx context.Context, subject any, name string, payload map[string]any) (Marking, error) {
	marking, err := w.Marking(ctx, subject)
	if err != nil {
		return Marking{}, err
	}

	observability.Emit(ctx, w.observer, observability.Event{
		Type:   EventTransitionApply,
		Level:  observability.LevelVerbose,
		Source: w.source(),
		Data: map[string]any{
			"transition": name,
			"marking":    marking.Places(),
		},
	})

	candidates := w.definition.TransitionsNamed(name)
	if len(candidates) == 0 {
		return marking, &TransitionError{Workflow: w.name, Transition: name, Err: ErrUndefinedTransition}
	}

	var approved []*Transition
	var blocked []Blocker
	for _, t := range candidates {
		blockers, err := w.blockers(ctx, subject, marking, t, payload)
		if err != nil {
			return marking, err
		}
		if len(blockers) == 0 {
			approved = append(approved, t)
			continue
		}
		blocked = append(blocked, blockers...)
	}

	if len(approved) == 0 {
		observability.Emit(ctx, w.observer, observability.Event{
			Type:   EventTransitionBlocked,
			Level:  observability.LevelInfo,
			Source: w.source(),
			Data: map[string]any{
				"transition": name,
				"blockers":   len(blocked),
			},
		})
		return marking, &TransitionError{
			Workflow:   w.name,
			Transition: name,
			Blockers:   blocked,
			Err:        ErrTransitionNotEnabled,
		}
	}

	persisted := marking.Clone()
	for _, t := range approved {
		if _, err := w.dispatch(ctx, KindLeave, subject, marking, t, payload, t.Froms); err != nil {
			return persisted, err
		}
		for _, p := range t.Froms {
			marking.Unmark(p)
		}

		if _, err := w.dispatch(ctx, KindTransition, subject, marking, t, payload, []string{t.Name}); err != nil {
			return persisted, err
		}

		if _, err := w.dispatch(ctx, KindEnter, subject, marking, t, payload, t.Tos); err != nil {
			return persisted, err
		}
		for _, p := range t.Tos {
			marking.Mark(p)
		}

		if err := w.persist(ctx, subject, persisted, marking, payload); err != nil {
			return persisted, err
		}
		persisted = marking.Clone()

		if _, err := w.dispatch(ctx, KindEntered, subject, marking, t, payload, t.Tos); err != nil {
			return marking, err
		}

		if _, err := w.dispatch(ctx, KindCompleted, subject, marking, t, payload, []string{t.Name}); err != nil {
			return marking, err
		}

		// Computing enabled transitions emits guard events, so a silenced
		// announce skips the computation entirely.
		if !w.ShouldDispatch(KindAnnounce) {
			continue
		}
		enabled, err := w.enabled(ctx, subject, marking)
		if err != nil {
			return marking, err
		}
		if _, err := w.dispatch(ctx, KindAnnounce, subject, marking, t, payload, transitionNames(enabled)); err != nil {
			return marking, err
		}
	}

	observability.Emit(ctx, w.observer, observability.Event{
		Type:   EventTransitionDone,
		Level:  observability.LevelInfo,
		Source: w.source(),
		Data: map[string]any{
			"transition": name,
			"marking":    marking.Places(),
		},
	})

	return marking, nil
}

func (w *Workflow) enabled(ctx context.Context, subject any, marking Marking) ([]*Transition, error) {
	var enabled []*Transition
	for _, t := range w.definition.transitions {
		blockers, err := w.blockers(ctx, subject, marking, t, nil)
		if err != nil {
			return nil, err
		}
		if len(blockers) == 0 {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

// blockers evaluates the marking, then the system-handled policy, then the
// guard listeners. Guard events are only emitted for transitions whose
// source places are all marked and that the policy allows.
func (w *Workflow) blockers(ctx context.Context, subject any, marking Marking, t *Transition, payload map[string]any) ([]Blocker, error) {
	for _, p := range t.Froms {
		if !marking.Has(p) {
			return []Blocker{{
				Code:       BlockedByMarking,
				Message:    "The marking does not enable the transition.",
				Parameters: map[string]any{"place": p},
			}}, nil
		}
	}

	if w.systemPolicy && t.HandledBySystem {
		if actor, ok := ActorFrom(ctx); ok {
			return []Blocker{{
				Code:       BlockedBySystem,
				Message:    "The transition is handled by the system.",
				Parameters: map[string]any{"actor": actor},
			}}, nil
		}
	}

	event, err := w.dispatch(ctx, KindGuard, subject, marking, t, payload, []string{t.Name})
	if err != nil {
		return nil, err
	}
	return event.Blockers(), nil
}

func (w *Workflow) dispatch(ctx context.Context, kind Kind, subject any, marking Marking, t *Transition, payload map[string]any, targets []string) (*Event, error) {
	event := NewEvent(kind, subject, marking, t, w, payload)
	if w.dispatcher == nil {
		return event, nil
	}
	if err := w.dispatcher.Dispatch(ctx, event, targets...); err != nil {
		return event, fmt.Errorf("dispatch %s event: %w", kind, err)
	}
	return event, nil
}

func (w *Workflow) persist(ctx context.Context, subject any, old, next Marking, payload map[string]any) error {
	if cas, ok := w.store.(CompareAndSwapper); ok {
		if err := cas.CompareAndSwap(ctx, subject, old, next, payload); err != nil {
			return fmt.Errorf("persist marking: %w", err)
		}
		return nil
	}
	if err := w.store.SetMarking(ctx, subject, next, payload); err != nil {
		return fmt.Errorf("persist marking: %w", err)
	}
	return nil
}

func (w *Workflow) source() string {
	return "workflow." + w.name
}
