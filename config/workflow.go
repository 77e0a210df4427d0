package config

import (
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/workflow/workflow"
)

// Marking store types.
const (
	SingleState   = "single_state"
	MultipleState = "multiple_state"
)

// MarkingStore selects how subject markings are persisted.
type MarkingStore struct {
	// Type is single_state or multiple_state. Empty derives it from the
	// workflow type.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Property is the subject field holding the marking.
	Property string `yaml:"property,omitempty" json:"property,omitempty"`

	// Class names a registered marking store factory.
	Class string `yaml:"class,omitempty" json:"class,omitempty"`
}

// Workflow is the configuration record of a single workflow.
type Workflow struct {
	Name             string         `yaml:"name,omitempty" json:"name,omitempty"`
	Type             string         `yaml:"type,omitempty" json:"type,omitempty"`
	MarkingStore     MarkingStore   `yaml:"marking_store,omitempty" json:"marking_store,omitempty"`
	Supports         StringList     `yaml:"supports" json:"supports"`
	Places           Places         `yaml:"places" json:"places"`
	Transitions      Transitions    `yaml:"transitions" json:"transitions"`
	InitialPlaces    StringList     `yaml:"initial_places,omitempty" json:"initial_places,omitempty"`
	Metadata         map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	EventsToDispatch *[]string      `yaml:"events_to_dispatch,omitempty" json:"events_to_dispatch,omitempty"`
	Class            string         `yaml:"class,omitempty" json:"class,omitempty"`
	FinalPlace       string         `yaml:"final_place,omitempty" json:"final_place,omitempty"`
	LastPlaces       StringList     `yaml:"last_places,omitempty" json:"last_places,omitempty"`
	Extra            map[string]any `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// WorkflowType returns Type, defaulting to workflow.TypeWorkflow.
func (w *Workflow) WorkflowType() string {
	if w.Type == "" {
		return workflow.TypeWorkflow
	}
	return w.Type
}

// SingleState reports whether the marking store holds exactly one place.
// An explicit marking_store.type wins; otherwise state machines are single
// state and workflows are multiple state.
func (w *Workflow) SingleState() bool {
	if w.MarkingStore.Type != "" {
		return w.MarkingStore.Type == SingleState
	}
	return w.WorkflowType() == workflow.TypeStateMachine
}

// MarkingProperty returns the marking property, defaulting to "marking".
func (w *Workflow) MarkingProperty() string {
	if w.MarkingStore.Property == "" {
		return workflow.DefaultMarkingProperty
	}
	return w.MarkingStore.Property
}

// PlaceNames returns the place names in declaration order.
func (w *Workflow) PlaceNames() []string {
	names := make([]string, 0, len(w.Places))
	for _, p := range w.Places {
		names = append(names, p.Name)
	}
	return names
}

// Label returns the label of place, or an empty string when it has none.
func (w *Workflow) Label(place string) string {
	for _, p := range w.Places {
		if p.Name == place {
			return p.Label
		}
	}
	return ""
}

// ParseEventsToDispatch converts EventsToDispatch to kinds. nil means every
// kind is dispatched.
func (w *Workflow) ParseEventsToDispatch() ([]workflow.Kind, error) {
	return ParseEventsToDispatch(w.EventsToDispatch)
}

// ParseEventsToDispatch converts configured event names ("enter" or
// "workflow.enter") to kinds.
func ParseEventsToDispatch(names *[]string) ([]workflow.Kind, error) {
	if names == nil {
		return nil, nil
	}
	kinds := make([]workflow.Kind, 0, len(*names))
	for _, name := range *names {
		kind, ok := workflow.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown event kind %q", ErrInvalidConfiguration, name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Place is a named state with an optional label and metadata.
type Place struct {
	Name     string         `yaml:"name,omitempty" json:"name,omitempty"`
	Label    string         `yaml:"label,omitempty" json:"label,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

func (p *Place) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*p = Place{Name: node.Value}
		return nil
	}
	type plain Place
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*p = Place(decoded)
	return nil
}

// Places is the ordered place list of a workflow.
type Places []Place

// UnmarshalYAML accepts a sequence of places or a mapping keyed by place
// name (or by label, with the place name as the value).
func (ps *Places) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var places []Place
		if err := node.Decode(&places); err != nil {
			return err
		}
		*ps = places
		return nil
	case yaml.MappingNode:
		places := make(Places, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i].Value, node.Content[i+1]
			if value.Kind == yaml.ScalarNode && (value.Tag == "!!null" || value.Value == "") {
				places = append(places, Place{Name: key})
				continue
			}
			if value.Kind == yaml.ScalarNode {
				places = append(places, Place{Name: value.Value, Label: key})
				continue
			}
			var p Place
			if err := value.Decode(&p); err != nil {
				return fmt.Errorf("place %q: %w", key, err)
			}
			if p.Name == "" {
				p.Name = key
			}
			places = append(places, p)
		}
		*ps = places
		return nil
	default:
		return fmt.Errorf("%w: places must be a sequence or a mapping (line %d)", ErrInvalidConfiguration, node.Line)
	}
}

// Transition is a named move between places. A transition with several
// source places is expanded into one engine transition per source.
type Transition struct {
	Name            string         `yaml:"name,omitempty" json:"name,omitempty"`
	Title           string         `yaml:"title,omitempty" json:"title,omitempty"`
	From            StringList     `yaml:"from" json:"from"`
	To              StringList     `yaml:"to" json:"to"`
	Permission      string         `yaml:"permission,omitempty" json:"permission,omitempty"`
	HandledBySystem bool           `yaml:"handle_by_system,omitempty" json:"handle_by_system,omitempty"`
	Metadata        map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Transitions is the ordered transition list of a workflow.
type Transitions []Transition

// UnmarshalYAML accepts a sequence of transitions or a mapping keyed by
// transition name, preserving declaration order.
func (ts *Transitions) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var transitions []Transition
		if err := node.Decode(&transitions); err != nil {
			return err
		}
		*ts = transitions
		return nil
	case yaml.MappingNode:
		transitions := make(Transitions, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			var t Transition
			if err := node.Content[i+1].Decode(&t); err != nil {
				return fmt.Errorf("transition %q: %w", key, err)
			}
			if t.Name == "" {
				t.Name = key
			}
			transitions = append(transitions, t)
		}
		*ts = transitions
		return nil
	default:
		return fmt.Errorf("%w: transitions must be a sequence or a mapping (line %d)", ErrInvalidConfiguration, node.Line)
	}
}

// Names returns the distinct transition names in declaration order.
func (ts Transitions) Names() []string {
	seen := make(map[string]bool, len(ts))
	var names []string
	for _, t := range ts {
		if !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}
	return names
}

// StringList decodes from a single scalar or a sequence of scalars.
type StringList []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*l = nil
			return nil
		}
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var values []string
		if err := node.Decode(&values); err != nil {
			return err
		}
		*l = values
		return nil
	default:
		return fmt.Errorf("%w: expected a string or a list of strings (line %d)", ErrInvalidConfiguration, node.Line)
	}
}

// Clone returns a deep enough copy for callers that mutate the record.
func (w *Workflow) Clone() Workflow {
	out := *w
	out.Supports = cloneList(w.Supports)
	out.InitialPlaces = cloneList(w.InitialPlaces)
	out.LastPlaces = cloneList(w.LastPlaces)
	out.Metadata = maps.Clone(w.Metadata)
	out.Extra = maps.Clone(w.Extra)
	if w.EventsToDispatch != nil {
		events := append([]string{}, *w.EventsToDispatch...)
		out.EventsToDispatch = &events
	}
	if w.Places != nil {
		out.Places = make(Places, len(w.Places))
		for i, p := range w.Places {
			p.Metadata = maps.Clone(p.Metadata)
			out.Places[i] = p
		}
	}
	if w.Transitions != nil {
		out.Transitions = make(Transitions, len(w.Transitions))
		for i, t := range w.Transitions {
			t.From = cloneList(t.From)
			t.To = cloneList(t.To)
			t.Metadata = maps.Clone(t.Metadata)
			out.Transitions[i] = t
		}
	}
	return out
}

func cloneList(l StringList) StringList {
	if l == nil {
		return nil
	}
	return append(StringList{}, l...)
}
