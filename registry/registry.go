package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/workflow/config"
	"github.com/tailored-agentic-units/workflow/events"
	"github.com/tailored-agentic-units/workflow/observability"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// Observability event types emitted by the registry.
const (
	EventRegistryAdd       observability.EventType = "registry.add"
	EventRegistryDuplicate observability.EventType = "registry.duplicate"
	EventRegistryLoad      observability.EventType = "registry.load"
)

const source = "registry"

// entry is one (workflow, supported subject type) registration.
type entry struct {
	workflow *workflow.Workflow
	supports string
}

// Registry holds loaded workflows and matches them to subjects by exact
// subject type. Thread-safe for concurrent access.
type Registry struct {
	mu         sync.RWMutex
	cfg        config.RegistryConfig
	entries    []entry
	workflows  map[string]*workflow.Workflow
	configs    map[string]config.Workflow
	loaded     map[string][]string
	bus        events.Bus
	dispatcher workflow.Dispatcher
	observer   observability.Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus sets the bus lifecycle events are published on. The default is a
// fresh events.Dispatcher.
func WithBus(bus events.Bus) Option {
	return func(r *Registry) {
		if bus != nil {
			r.bus = bus
		}
	}
}

// WithDispatcher replaces the events.Adapter that loaded workflows report
// their notifications to.
func WithDispatcher(d workflow.Dispatcher) Option {
	return func(r *Registry) {
		r.dispatcher = d
	}
}

// WithObserver overrides the default no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// New creates an empty registry.
func New(cfg config.RegistryConfig, opts ...Option) *Registry {
	r := &Registry{
		cfg:       cfg,
		workflows: make(map[string]*workflow.Workflow),
		configs:   make(map[string]config.Workflow),
		loaded:    make(map[string][]string),
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bus == nil {
		r.bus = events.NewDispatcher()
	}
	if r.dispatcher == nil {
		r.dispatcher = events.NewAdapter(r.bus, events.WithObserver(r.observer))
	}
	return r
}

// Bus returns the bus lifecycle events are published on.
func (r *Registry) Bus() events.Bus {
	return r.bus
}

// Dispatcher returns the dispatcher handed to workflows built from
// configuration.
func (r *Registry) Dispatcher() workflow.Dispatcher {
	return r.dispatcher
}

// Add registers wf for subjects whose type identifier equals supports.
//
// With load tracking enabled a repeated (name, supports) pair is either
// skipped or rejected with a *DuplicateWorkflowError, depending on
// ignore_duplicates.
func (r *Registry) Add(wf *workflow.Workflow, supports string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.add(wf, supports)
}

func (r *Registry) add(wf *workflow.Workflow, supports string) error {
	if wf == nil {
		return fmt.Errorf("workflow cannot be nil")
	}
	name := wf.Name()

	if r.isLoaded(name, supports) {
		observability.Emit(context.Background(), r.observer, observability.Event{
			Type:   EventRegistryDuplicate,
			Level:  observability.LevelWarning,
			Source: source,
			Data: map[string]any{
				"workflow": name,
				"supports": supports,
				"ignored":  r.cfg.IgnoreDuplicates(),
			},
		})
		if !r.cfg.IgnoreDuplicates() {
			return &DuplicateWorkflowError{Workflow: name, Supports: supports}
		}
		return nil
	}

	r.entries = append(r.entries, entry{workflow: wf, supports: supports})
	if _, exists := r.workflows[name]; !exists {
		r.workflows[name] = wf
	}
	r.setLoaded(name, supports)

	observability.Emit(context.Background(), r.observer, observability.Event{
		Type:   EventRegistryAdd,
		Level:  observability.LevelVerbose,
		Source: source,
		Data: map[string]any{
			"workflow": name,
			"supports": supports,
		},
	})
	return nil
}

// checkDuplicates rejects a registration for several subject types before
// any of them is added, so a duplicate never leaves a workflow registered
// for only part of its list.
func (r *Registry) checkDuplicates(name string, supports []string) error {
	if !r.cfg.TrackLoaded || r.cfg.IgnoreDuplicates() {
		return nil
	}

	seen := make(map[string]bool, len(supports))
	for _, s := range supports {
		if seen[s] || r.isLoaded(name, s) {
			observability.Emit(context.Background(), r.observer, observability.Event{
				Type:   EventRegistryDuplicate,
				Level:  observability.LevelWarning,
				Source: source,
				Data: map[string]any{
					"workflow": name,
					"supports": s,
					"ignored":  false,
				},
			})
			return &DuplicateWorkflowError{Workflow: name, Supports: s}
		}
		seen[s] = true
	}
	return nil
}

func (r *Registry) isLoaded(name, supports string) bool {
	if !r.cfg.TrackLoaded {
		return false
	}
	return slices.Contains(r.loaded[supports], name)
}

func (r *Registry) setLoaded(name, supports string) {
	if !r.cfg.TrackLoaded {
		return
	}
	r.loaded[supports] = append(r.loaded[supports], name)
}

// Loaded returns the workflow names recorded per subject type.
func (r *Registry) Loaded() (map[string][]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.cfg.TrackLoaded {
		return nil, ErrRegistryNotTracked
	}

	out := make(map[string][]string, len(r.loaded))
	for supports, names := range r.loaded {
		out[supports] = slices.Clone(names)
	}
	return out, nil
}

// LoadedFor returns the workflow names recorded for one subject type.
func (r *Registry) LoadedFor(supports string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.cfg.TrackLoaded {
		return nil, ErrRegistryNotTracked
	}
	return slices.Clone(r.loaded[supports]), nil
}

// matches returns the distinct workflows supporting subject in registration
// order, narrowed to name when it is not empty.
func (r *Registry) matches(subject any, name string) []*workflow.Workflow {
	subjectType := workflow.TypeOf(subject)

	var found []*workflow.Workflow
	for _, e := range r.entries {
		if e.supports != subjectType {
			continue
		}
		if name != "" && e.workflow.Name() != name {
			continue
		}
		if !slices.Contains(found, e.workflow) {
			found = append(found, e.workflow)
		}
	}
	return found
}

// Get returns the workflow supporting subject. An empty name requires the
// subject type to be supported by exactly one workflow.
func (r *Registry) Get(subject any, name string) (*workflow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.get(subject, name)
}

func (r *Registry) get(subject any, name string) (*workflow.Workflow, error) {
	found := r.matches(subject, name)
	switch len(found) {
	case 0:
		if name != "" {
			return nil, fmt.Errorf("%w: %s for %s", ErrNoMatchingWorkflow, name, workflow.TypeOf(subject))
		}
		return nil, fmt.Errorf("%w: %s", ErrNoMatchingWorkflow, workflow.TypeOf(subject))
	case 1:
		return found[0], nil
	default:
		names := make([]string, 0, len(found))
		for _, wf := range found {
			names = append(names, wf.Name())
		}
		return nil, fmt.Errorf("%w: %s matches %s", ErrAmbiguousWorkflow, workflow.TypeOf(subject), strings.Join(names, ", "))
	}
}

// Has reports whether a workflow (named name, when not empty) supports
// subject.
func (r *Registry) Has(subject any, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.matches(subject, name)) > 0
}

// All returns every workflow supporting subject in registration order.
func (r *Registry) All(subject any) []*workflow.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.matches(subject, "")
}

// Workflow returns a loaded workflow by name.
func (r *Registry) Workflow(name string) (*workflow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, exists := r.workflows[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return wf, nil
}

// Names returns the loaded workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports returns the subject types a workflow is registered for.
func (r *Registry) Supports(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.supports(name)
}

func (r *Registry) supports(name string) []string {
	var out []string
	for _, e := range r.entries {
		if e.workflow.Name() == name && !slices.Contains(out, e.supports) {
			out = append(out, e.supports)
		}
	}
	return out
}

// Config returns the configuration record a workflow was loaded from.
// Workflows registered directly with Add have none.
func (r *Registry) Config(name string) (config.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.configs[name]
	if !exists {
		return config.Workflow{}, false
	}
	return cfg.Clone(), true
}
