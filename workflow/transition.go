package workflow

import "slices"

// Transition is a named move from a set of source places to a set of
// destination places. Definitions compare transitions by pointer, so the
// same name may appear on several transitions (one per source place when
// loaded from configuration).
type Transition struct {
	Name  string
	Froms []string
	Tos   []string

	// HandledBySystem marks transitions that only unattended callers may fire.
	HandledBySystem bool
}

// TransitionOption customizes a Transition built with NewTransition.
type TransitionOption func(*Transition)

// HandledBySystem flags the transition as system handled.
func HandledBySystem(handled bool) TransitionOption {
	return func(t *Transition) {
		t.HandledBySystem = handled
	}
}

// NewTransition creates a transition, copying froms and tos.
func NewTransition(name string, froms, tos []string, opts ...TransitionOption) *Transition {
	t := &Transition{
		Name:  name,
		Froms: slices.Clone(froms),
		Tos:   slices.Clone(tos),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func transitionNames(transitions []*Transition) []string {
	names := make([]string, 0, len(transitions))
	for _, t := range transitions {
		names = append(names, t.Name)
	}
	return names
}
