package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/tailored-agentic-units/workflow/config"
	"github.com/tailored-agentic-units/workflow/observability"
	"github.com/tailored-agentic-units/workflow/storage"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// StatusProperty is the subject field stored workflows keep their marking in.
const StatusProperty = "status"

// AddFromConfig builds a workflow from one configuration record and
// registers it for every supported subject type.
func (r *Registry) AddFromConfig(name string, cfg config.Workflow) error {
	if name == "" {
		name = cfg.Name
	}
	if name == "" {
		return fmt.Errorf("%w: workflow name is required", config.ErrInvalidConfiguration)
	}

	wf, err := r.build(name, &cfg)
	if err != nil {
		return fmt.Errorf("workflow %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkDuplicates(name, cfg.Supports); err != nil {
		return err
	}
	for _, supports := range cfg.Supports {
		if err := r.add(wf, supports); err != nil {
			return err
		}
	}

	if _, exists := r.configs[name]; !exists {
		stored := cfg.Clone()
		stored.Name = name
		r.configs[name] = stored
	}
	return nil
}

func (r *Registry) build(name string, cfg *config.Workflow) (*workflow.Workflow, error) {
	md, places, err := config.ExtractMetadata(cfg)
	if err != nil {
		return nil, err
	}

	builder := workflow.NewDefinitionBuilder(places...)
	transitionMetadata := make(map[*workflow.Transition]map[string]any)
	for i, t := range cfg.Transitions {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: unknown name for transition at index %d", config.ErrInvalidConfiguration, i)
		}
		if len(t.From) == 0 {
			return nil, fmt.Errorf("%w: transition %q has no source place", config.ErrInvalidConfiguration, t.Name)
		}
		// One engine transition per source place, all sharing the name.
		for _, from := range t.From {
			transition := workflow.NewTransition(t.Name, []string{from}, t.To, workflow.HandledBySystem(t.HandledBySystem))
			builder.AddTransition(transition)
			if len(t.Metadata) > 0 {
				transitionMetadata[transition] = t.Metadata
			}
		}
	}
	builder.SetMetadataStore(workflow.NewMetadataStore(md.Workflow, md.Places, transitionMetadata))

	if len(cfg.InitialPlaces) > 0 {
		builder.SetInitialPlaces(cfg.InitialPlaces...)
	}

	kinds, err := cfg.ParseEventsToDispatch()
	if err != nil {
		return nil, err
	}

	def, err := builder.Build()
	if err != nil {
		return nil, err
	}

	storeTag := cfg.MarkingStore.Class
	if storeTag == "" {
		storeTag = workflow.DefaultMarkingStore
	}
	factory, err := workflow.MarkingStoreFactoryFor(storeTag)
	if err != nil {
		return nil, err
	}
	store, err := factory(cfg.SingleState(), cfg.MarkingProperty())
	if err != nil {
		return nil, fmt.Errorf("create marking store: %w", err)
	}

	class := cfg.Class
	if class == "" {
		class = cfg.WorkflowType()
	}
	construct, err := workflow.ConstructorFor(class)
	if err != nil {
		return nil, err
	}

	opts := []workflow.Option{
		workflow.WithDispatcher(r.dispatcher),
		workflow.WithObserver(r.observer),
	}
	if cfg.EventsToDispatch != nil {
		opts = append(opts, workflow.WithEventsToDispatch(kinds))
	}
	return construct(name, def, store, opts...)
}

// LoadConfigs adds every record of set. A failing record does not stop the
// others from loading; all failures are returned joined.
func (r *Registry) LoadConfigs(set config.Set) error {
	var errs []error
	for _, cfg := range set {
		if err := r.AddFromConfig(cfg.Name, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadFromSource reads every stored workflow with its transitions and adds
// it through FromRecord.
func (r *Registry) LoadFromSource(ctx context.Context, src storage.WorkflowSource, defaults config.SourceDefaults) error {
	records, err := src.ListWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("list stored workflows: %w", err)
	}

	var errs []error
	for _, record := range records {
		if err := r.AddFromConfig(record.Name, FromRecord(record, defaults)); err != nil {
			errs = append(errs, err)
		}
	}

	observability.Emit(ctx, r.observer, observability.Event{
		Type:   EventRegistryLoad,
		Level:  observability.LevelInfo,
		Source: source,
		Data: map[string]any{
			"workflows": len(records),
			"failed":    len(errs),
		},
	})
	return errors.Join(errs...)
}

// FromRecord maps a stored workflow to a configuration record.
//
// Stored workflows are multiple-place workflows whose marking lives in a
// single-state "status" property. The start place is listed first so it
// becomes the initial place. Transitions sharing a name collapse into the
// last one, kept at the position of the first. Only guard events publish
// unless defaults say otherwise.
func FromRecord(record storage.WorkflowRecord, defaults config.SourceDefaults) config.Workflow {
	cfg := config.Workflow{
		Name: record.Name,
		Type: workflow.TypeWorkflow,
		MarkingStore: config.MarkingStore{
			Type:     config.SingleState,
			Property: StatusProperty,
			Class:    defaults.MarkingStore,
		},
		Supports:   slices.Clone(record.Supports),
		FinalPlace: record.FinalPlace,
		LastPlaces: slices.Clone(record.LastPlaces),
	}

	labels := make(map[string]string, len(record.Places))
	for _, p := range record.Places {
		if _, exists := labels[p.Name]; !exists {
			labels[p.Name] = p.Label
		}
	}
	if record.StartPlace != "" {
		cfg.Places = append(cfg.Places, config.Place{Name: record.StartPlace, Label: labels[record.StartPlace]})
	}
	for _, p := range record.Places {
		if !slices.ContainsFunc(cfg.Places, func(existing config.Place) bool { return existing.Name == p.Name }) {
			cfg.Places = append(cfg.Places, config.Place{Name: p.Name, Label: p.Label})
		}
	}

	position := make(map[string]int, len(record.Transitions))
	for _, t := range record.Transitions {
		transition := config.Transition{
			Name:            t.Name,
			Title:           t.Label,
			From:            slices.Clone(t.From),
			To:              slices.Clone(t.To),
			Permission:      t.Permission,
			HandledBySystem: t.HandleBySystem,
		}
		if i, exists := position[t.Name]; exists {
			cfg.Transitions[i] = transition
			continue
		}
		position[t.Name] = len(cfg.Transitions)
		cfg.Transitions = append(cfg.Transitions, transition)
	}

	events := []string{}
	if defaults.EventsToDispatch != nil {
		events = slices.Clone(*defaults.EventsToDispatch)
	}
	cfg.EventsToDispatch = &events

	for _, field := range defaults.ExtraFields {
		value, exists := record.Extra[field]
		if !exists {
			continue
		}
		if cfg.Extra == nil {
			cfg.Extra = make(map[string]any, len(defaults.ExtraFields))
		}
		cfg.Extra[field] = value
	}

	return cfg
}

// ToRecord maps a configuration record to a stored workflow, the inverse of
// FromRecord. The start place is the first initial place, or the first
// place when none is configured.
func ToRecord(cfg config.Workflow) storage.WorkflowRecord {
	record := storage.WorkflowRecord{
		Name:       cfg.Name,
		Supports:   slices.Clone([]string(cfg.Supports)),
		FinalPlace: cfg.FinalPlace,
		LastPlaces: slices.Clone([]string(cfg.LastPlaces)),
	}

	switch {
	case len(cfg.InitialPlaces) > 0:
		record.StartPlace = cfg.InitialPlaces[0]
	case len(cfg.Places) > 0:
		record.StartPlace = cfg.Places[0].Name
	}

	for _, p := range cfg.Places {
		record.Places = append(record.Places, storage.PlaceRecord{Name: p.Name, Label: p.Label})
	}
	for _, t := range cfg.Transitions {
		record.Transitions = append(record.Transitions, storage.TransitionRecord{
			Name:           t.Name,
			Label:          t.Title,
			From:           slices.Clone([]string(t.From)),
			To:             slices.Clone([]string(t.To)),
			Permission:     t.Permission,
			HandleBySystem: t.HandledBySystem,
		})
	}
	if len(cfg.Extra) > 0 {
		record.Extra = maps.Clone(cfg.Extra)
	}
	return record
}
