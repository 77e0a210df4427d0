// Package workflow implements the place/transition engine behind the
// registry: definitions, markings, guard evaluation and the ordered
// lifecycle notifications emitted while a transition is applied.
//
// # Definitions
//
// A Definition is an immutable set of places and transitions built with
// DefinitionBuilder:
//
//	builder := workflow.NewDefinitionBuilder("draft", "review", "published")
//	builder.AddTransition(workflow.NewTransition("submit", []string{"draft"}, []string{"review"}))
//	builder.AddTransition(workflow.NewTransition("publish", []string{"review"}, []string{"published"}))
//	def, err := builder.Build()
//
// # Applying transitions
//
// A Workflow binds a definition to a MarkingStore and an optional Dispatcher:
//
//	wf, err := workflow.New("article", def, workflow.NewPropertyMarkingStore(true, "status"),
//	    workflow.WithDispatcher(adapter))
//	marking, err := wf.Apply(ctx, article, "submit", nil)
//
// Apply emits, in order: guard (per candidate transition), leave, transition,
// enter, entered, completed and announce. A guard listener that blocks the
// event makes Apply return ErrTransitionNotEnabled before the marking changes.
//
// # System-handled transitions
//
// Transitions flagged HandledBySystem are reserved for unattended callers.
// When the context carries an authenticated actor (see WithActor) such a
// transition is never enabled, whatever its guards say.
package workflow
