package workflow

import (
	"slices"
	"strings"
)

// Marking is the ordered set of places currently active for a subject.
// A state machine holds at most one place.
type Marking struct {
	places []string
}

// NewMarking creates a marking with the given places marked.
func NewMarking(places ...string) Marking {
	var m Marking
	for _, p := range places {
		m.Mark(p)
	}
	return m
}

// Mark activates place. Marking an active place is a no-op.
func (m *Marking) Mark(place string) {
	if !m.Has(place) {
		m.places = append(m.places, place)
	}
}

// Unmark deactivates place.
func (m *Marking) Unmark(place string) {
	m.places = slices.DeleteFunc(m.places, func(p string) bool { return p == place })
}

// Has reports whether place is active.
func (m Marking) Has(place string) bool {
	return slices.Contains(m.places, place)
}

// Places returns a copy of the active places in marking order.
func (m Marking) Places() []string {
	return slices.Clone(m.places)
}

// Len returns the number of active places.
func (m Marking) Len() int {
	return len(m.places)
}

// IsEmpty reports whether no place is active. An empty marking is
// initialised with the initial places on first access.
func (m Marking) IsEmpty() bool {
	return len(m.places) == 0
}

// Clone returns an independent copy.
func (m Marking) Clone() Marking {
	return Marking{places: slices.Clone(m.places)}
}

// Equal reports whether both markings hold the same places, ignoring order.
func (m Marking) Equal(other Marking) bool {
	if len(m.places) != len(other.places) {
		return false
	}
	for _, p := range m.places {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// String renders the places in braces, e.g. {a,b}.
func (m Marking) String() string {
	return "{" + strings.Join(m.places, ",") + "}"
}
