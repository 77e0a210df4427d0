package workflow

import "slices"

// Definition is the immutable structure of a workflow.
type Definition struct {
	places        []string
	transitions   []*Transition
	initialPlaces []string
	metadata      *MetadataStore
}

// Places returns the places in declaration order.
func (d *Definition) Places() []string {
	return slices.Clone(d.places)
}

// HasPlace reports whether place is declared.
func (d *Definition) HasPlace(place string) bool {
	return slices.Contains(d.places, place)
}

// Transitions returns the transitions in declaration order.
func (d *Definition) Transitions() []*Transition {
	return slices.Clone(d.transitions)
}

// TransitionsNamed returns every transition carrying name.
func (d *Definition) TransitionsNamed(name string) []*Transition {
	var found []*Transition
	for _, t := range d.transitions {
		if t.Name == name {
			found = append(found, t)
		}
	}
	return found
}

// InitialPlaces returns the places marked when a subject has no marking.
func (d *Definition) InitialPlaces() []string {
	return slices.Clone(d.initialPlaces)
}

// Metadata returns the metadata store. Never nil.
func (d *Definition) Metadata() *MetadataStore {
	return d.metadata
}

// DefinitionBuilder accumulates places and transitions and validates them
// in Build.
type DefinitionBuilder struct {
	places        []string
	transitions   []*Transition
	initialPlaces []string
	metadata      *MetadataStore
}

// NewDefinitionBuilder creates a builder seeded with places.
func NewDefinitionBuilder(places ...string) *DefinitionBuilder {
	b := &DefinitionBuilder{}
	b.AddPlaces(places...)
	return b
}

// AddPlaces declares places. Duplicates are ignored.
func (b *DefinitionBuilder) AddPlaces(places ...string) *DefinitionBuilder {
	for _, p := range places {
		if !slices.Contains(b.places, p) {
			b.places = append(b.places, p)
		}
	}
	return b
}

// AddTransition appends a transition.
func (b *DefinitionBuilder) AddTransition(t *Transition) *DefinitionBuilder {
	b.transitions = append(b.transitions, t)
	return b
}

// SetInitialPlaces overrides the default initial place (the first place).
func (b *DefinitionBuilder) SetInitialPlaces(places ...string) *DefinitionBuilder {
	b.initialPlaces = slices.Clone(places)
	return b
}

// SetMetadataStore attaches metadata to the definition being built.
func (b *DefinitionBuilder) SetMetadataStore(store *MetadataStore) *DefinitionBuilder {
	b.metadata = store
	return b
}

// Build validates the accumulated structure and returns the definition.
func (b *DefinitionBuilder) Build() (*Definition, error) {
	for _, p := range b.places {
		if p == "" {
			return nil, definitionError("place names cannot be empty")
		}
	}

	for _, t := range b.transitions {
		if t == nil {
			return nil, definitionError("transition cannot be nil")
		}
		if t.Name == "" {
			return nil, definitionError("transition names cannot be empty")
		}
		if len(t.Froms) == 0 || len(t.Tos) == 0 {
			return nil, definitionError("transition %q needs at least one source and one destination place", t.Name)
		}
		for _, p := range slices.Concat(t.Froms, t.Tos) {
			if !slices.Contains(b.places, p) {
				return nil, definitionError("place %q referenced in transition %q does not exist", p, t.Name)
			}
		}
	}

	initial := slices.Clone(b.initialPlaces)
	if len(initial) == 0 && len(b.places) > 0 {
		initial = []string{b.places[0]}
	}
	for _, p := range initial {
		if !slices.Contains(b.places, p) {
			return nil, definitionError("initial place %q does not exist", p)
		}
	}

	metadata := b.metadata
	if metadata == nil {
		metadata = NewMetadataStore(nil, nil, nil)
	}

	return &Definition{
		places:        slices.Clone(b.places),
		transitions:   slices.Clone(b.transitions),
		initialPlaces: initial,
		metadata:      metadata,
	}, nil
}

// ValidateStateMachine checks that def can drive a state machine: one source
// and one destination per transition, transition names unique per source
// place, and a single initial place.
func ValidateStateMachine(def *Definition) error {
	seen := make(map[string]bool)
	for _, t := range def.transitions {
		if len(t.Froms) != 1 {
			return definitionError("state machine transition %q must have exactly one source place, got %d", t.Name, len(t.Froms))
		}
		if len(t.Tos) != 1 {
			return definitionError("state machine transition %q must have exactly one destination place, got %d", t.Name, len(t.Tos))
		}
		key := t.Froms[0] + "\x00" + t.Name
		if seen[key] {
			return definitionError("state machine transition %q is declared twice from place %q", t.Name, t.Froms[0])
		}
		seen[key] = true
	}

	if len(def.initialPlaces) > 1 {
		return definitionError("state machine can only have one initial place, got %d", len(def.initialPlaces))
	}
	return nil
}
