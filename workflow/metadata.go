package workflow

import "maps"

// MetadataStore holds free-form metadata attached to the workflow itself,
// to places and to individual transitions.
type MetadataStore struct {
	workflow    map[string]any
	places      map[string]map[string]any
	transitions map[*Transition]map[string]any
}

// NewMetadataStore creates a store. Nil maps are treated as empty.
func NewMetadataStore(
	workflowMetadata map[string]any,
	placesMetadata map[string]map[string]any,
	transitionsMetadata map[*Transition]map[string]any,
) *MetadataStore {
	s := &MetadataStore{
		workflow:    maps.Clone(workflowMetadata),
		places:      make(map[string]map[string]any, len(placesMetadata)),
		transitions: make(map[*Transition]map[string]any, len(transitionsMetadata)),
	}
	for place, md := range placesMetadata {
		s.places[place] = maps.Clone(md)
	}
	for t, md := range transitionsMetadata {
		s.transitions[t] = maps.Clone(md)
	}
	if s.workflow == nil {
		s.workflow = map[string]any{}
	}
	return s
}

// WorkflowMetadata returns the workflow level metadata.
func (s *MetadataStore) WorkflowMetadata() map[string]any {
	return maps.Clone(s.workflow)
}

// PlaceMetadata returns the metadata of one place, nil when it has none.
func (s *MetadataStore) PlaceMetadata(place string) map[string]any {
	return maps.Clone(s.places[place])
}

// TransitionMetadata returns the metadata of one transition. Expanded
// transitions are keyed by pointer, so each source place has its own entry.
func (s *MetadataStore) TransitionMetadata(t *Transition) map[string]any {
	return maps.Clone(s.transitions[t])
}

// Get looks up key on the workflow (subject nil), a place (subject string)
// or a transition (subject *Transition).
func (s *MetadataStore) Get(key string, subject any) any {
	switch v := subject.(type) {
	case nil:
		return s.workflow[key]
	case string:
		return s.places[v][key]
	case *Transition:
		return s.transitions[v][key]
	default:
		return nil
	}
}
