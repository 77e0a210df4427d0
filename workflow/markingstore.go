package workflow

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
)

// MarkingStore reads and writes the marking of a subject.
//
// Implementations are shared by every subject of a workflow and must be
// safe for concurrent use.
type MarkingStore interface {
	// Marking returns the persisted marking. An unmarked subject yields an
	// empty marking, not an error.
	Marking(ctx context.Context, subject any) (Marking, error)

	// SetMarking persists marking. payload is the context given to Apply.
	SetMarking(ctx context.Context, subject any, marking Marking, payload map[string]any) error
}

// CompareAndSwapper is implemented by stores that can reject a write when
// the persisted marking is no longer old. Workflow prefers it over
// SetMarking so concurrent attempts on one subject cannot lose updates.
type CompareAndSwapper interface {
	CompareAndSwap(ctx context.Context, subject any, old, next Marking, payload map[string]any) error
}

// PropertyMarkingStore keeps the marking in a field of the subject struct.
//
// The field is found by a `workflow:"<property>"` tag or, failing that, by
// a case-insensitive name match. Single-state stores use a string field;
// multiple-state stores use a []string or map[string]int field.
type PropertyMarkingStore struct {
	singleState bool
	property    string
}

// NewPropertyMarkingStore creates a store. An empty property defaults to
// "marking".
func NewPropertyMarkingStore(singleState bool, property string) *PropertyMarkingStore {
	if property == "" {
		property = DefaultMarkingProperty
	}
	return &PropertyMarkingStore{singleState: singleState, property: property}
}

// DefaultMarkingProperty is the subject field used when none is configured.
const DefaultMarkingProperty = "marking"

// SingleState reports whether the subject field holds one place.
func (s *PropertyMarkingStore) SingleState() bool {
	return s.singleState
}

// Property returns the subject field name.
func (s *PropertyMarkingStore) Property() string {
	return s.property
}

// Marking reads the marking from the subject field. A string field yields
// at most one place; a []string or map[string]int field yields a set.
func (s *PropertyMarkingStore) Marking(ctx context.Context, subject any) (Marking, error) {
	field, err := s.field(subject)
	if err != nil {
		return Marking{}, err
	}

	switch field.Kind() {
	case reflect.String:
		if field.String() == "" {
			return Marking{}, nil
		}
		return NewMarking(field.String()), nil
	case reflect.Slice:
		if s.singleState {
			break
		}
		places, ok := field.Interface().([]string)
		if !ok {
			break
		}
		return NewMarking(places...), nil
	case reflect.Map:
		if s.singleState {
			break
		}
		tokens, ok := field.Interface().(map[string]int)
		if !ok {
			break
		}
		places := slices.Collect(maps.Keys(tokens))
		sort.Strings(places)
		return NewMarking(places...), nil
	}

	return Marking{}, s.unsupportedField(subject, field)
}

// SetMarking writes marking into the subject field. subject must be a
// pointer. A string field rejects markings with more than one place.
func (s *PropertyMarkingStore) SetMarking(ctx context.Context, subject any, marking Marking, payload map[string]any) error {
	field, err := s.field(subject)
	if err != nil {
		return err
	}

	places := marking.Places()
	switch field.Kind() {
	case reflect.String:
		if len(places) > 1 {
			return fmt.Errorf("%w: single-state property %q cannot hold %d places", ErrUnsupportedSubject, s.property, len(places))
		}
		value := ""
		if len(places) == 1 {
			value = places[0]
		}
		field.SetString(value)
		return nil
	case reflect.Slice:
		if !s.singleState && field.Type() == reflect.TypeOf([]string(nil)) {
			field.Set(reflect.ValueOf(places))
			return nil
		}
	case reflect.Map:
		if !s.singleState && field.Type() == reflect.TypeOf(map[string]int(nil)) {
			tokens := make(map[string]int, len(places))
			for _, p := range places {
				tokens[p] = 1
			}
			field.Set(reflect.ValueOf(tokens))
			return nil
		}
	}

	return s.unsupportedField(subject, field)
}

func (s *PropertyMarkingStore) field(subject any) (reflect.Value, error) {
	v := reflect.ValueOf(subject)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %T must be a non-nil pointer to a struct", ErrUnsupportedSubject, subject)
	}
	v = v.Elem()
	t := v.Type()

	for i := range t.NumField() {
		if tag, ok := t.Field(i).Tag.Lookup("workflow"); ok && tag == s.property {
			return s.settable(subject, v.Field(i))
		}
	}
	for i := range t.NumField() {
		if strings.EqualFold(t.Field(i).Name, s.property) {
			return s.settable(subject, v.Field(i))
		}
	}

	return reflect.Value{}, fmt.Errorf("%w: %T has no %q property", ErrUnsupportedSubject, subject, s.property)
}

func (s *PropertyMarkingStore) settable(subject any, field reflect.Value) (reflect.Value, error) {
	if !field.CanSet() {
		return reflect.Value{}, fmt.Errorf("%w: %T property %q is not exported", ErrUnsupportedSubject, subject, s.property)
	}
	return field, nil
}

func (s *PropertyMarkingStore) unsupportedField(subject any, field reflect.Value) error {
	mode := "multiple-state"
	if s.singleState {
		mode = "single-state"
	}
	return fmt.Errorf("%w: %T property %q of type %s cannot hold a %s marking",
		ErrUnsupportedSubject, subject, s.property, field.Type(), mode)
}

// MemoryMarkingStore keeps markings in process memory keyed by subject type,
// subject id and property. Subjects must implement SubjectIdentifier.
//
// Markings are lost when the process exits; use it for tests and for
// subjects whose lifecycle is process-bound.
type MemoryMarkingStore struct {
	property string
	markings map[string]Marking
	mu       sync.RWMutex
}

// NewMemoryMarkingStore creates an empty store.
func NewMemoryMarkingStore(property string) *MemoryMarkingStore {
	if property == "" {
		property = DefaultMarkingProperty
	}
	return &MemoryMarkingStore{
		property: property,
		markings: make(map[string]Marking),
	}
}

func (m *MemoryMarkingStore) key(subject any) (string, error) {
	id, err := IDOf(subject)
	if err != nil {
		return "", err
	}
	return TypeOf(subject) + "/" + id + "/" + m.property, nil
}

// Marking returns a copy of the stored marking, empty when none is stored.
func (m *MemoryMarkingStore) Marking(ctx context.Context, subject any) (Marking, error) {
	key, err := m.key(subject)
	if err != nil {
		return Marking{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.markings[key].Clone(), nil
}

// SetMarking stores marking unconditionally.
func (m *MemoryMarkingStore) SetMarking(ctx context.Context, subject any, marking Marking, payload map[string]any) error {
	key, err := m.key(subject)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.markings[key] = marking.Clone()
	return nil
}

// CompareAndSwap stores next only while the stored marking still equals
// old, returning ErrMarkingConflict otherwise.
func (m *MemoryMarkingStore) CompareAndSwap(ctx context.Context, subject any, old, next Marking, payload map[string]any) error {
	key, err := m.key(subject)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.markings[key].Equal(old) {
		return fmt.Errorf("%w: %s", ErrMarkingConflict, key)
	}
	m.markings[key] = next.Clone()
	return nil
}

// MarkingStoreFactory builds a marking store for one workflow.
type MarkingStoreFactory func(singleState bool, property string) (MarkingStore, error)

// markingStores is the global registry of marking store factories keyed by
// the configuration tag found in marking_store.class.
var (
	markingStores = map[string]MarkingStoreFactory{
		"property": func(singleState bool, property string) (MarkingStore, error) {
			return NewPropertyMarkingStore(singleState, property), nil
		},
		"memory": func(singleState bool, property string) (MarkingStore, error) {
			return NewMemoryMarkingStore(property), nil
		},
	}
	markingStoresMu sync.RWMutex
)

// DefaultMarkingStore is the tag used when marking_store.class is unset.
const DefaultMarkingStore = "property"

// MarkingStoreFactoryFor resolves a factory by tag.
func MarkingStoreFactoryFor(tag string) (MarkingStoreFactory, error) {
	markingStoresMu.RLock()
	defer markingStoresMu.RUnlock()

	factory, exists := markingStores[tag]
	if !exists {
		return nil, fmt.Errorf("unknown marking store: %s", tag)
	}
	return factory, nil
}

// RegisterMarkingStore adds or replaces a named factory. Call it before
// loading workflows that reference the tag.
func RegisterMarkingStore(tag string, factory MarkingStoreFactory) {
	markingStoresMu.Lock()
	defer markingStoresMu.Unlock()

	markingStores[tag] = factory
}
