package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Set is an ordered collection of workflow records. It decodes from a
// mapping keyed by workflow name or from a sequence of named records.
type Set []Workflow

// UnmarshalYAML decodes a sequence of workflows or a mapping in document
// order, naming each mapped workflow after its key unless it sets a name.
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var workflows []Workflow
		if err := node.Decode(&workflows); err != nil {
			return err
		}
		*s = workflows
		return nil
	case yaml.MappingNode:
		workflows := make(Set, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			var w Workflow
			if err := node.Content[i+1].Decode(&w); err != nil {
				return fmt.Errorf("workflow %q: %w", key, err)
			}
			if w.Name == "" {
				w.Name = key
			}
			workflows = append(workflows, w)
		}
		*s = workflows
		return nil
	default:
		return fmt.Errorf("%w: workflows must be a sequence or a mapping (line %d)", ErrInvalidConfiguration, node.Line)
	}
}

// Get returns the record named name.
func (s Set) Get(name string) (Workflow, bool) {
	for _, w := range s {
		if w.Name == name {
			return w, true
		}
	}
	return Workflow{}, false
}

// Names returns the workflow names in declaration order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for _, w := range s {
		names = append(names, w.Name)
	}
	return names
}

// Validate reports unnamed workflows and subject types supported by more
// than one workflow.
func (s Set) Validate() error {
	var errs []error
	claims := make(map[string][]string)
	var order []string

	for i, w := range s {
		if w.Name == "" {
			errs = append(errs, fmt.Errorf("%w: workflow at index %d has no name", ErrInvalidConfiguration, i))
			continue
		}
		for _, subject := range w.Supports {
			if _, seen := claims[subject]; !seen {
				order = append(order, subject)
			}
			if !slices.Contains(claims[subject], w.Name) {
				claims[subject] = append(claims[subject], w.Name)
			}
		}
	}

	for _, subject := range order {
		if names := claims[subject]; len(names) > 1 {
			errs = append(errs, fmt.Errorf("%w: %s is supported by %s", ErrAmbiguousSupport, subject, strings.Join(names, ", ")))
		}
	}

	return errors.Join(errs...)
}

// SourceDefaults holds the settings applied to workflows loaded from
// storage rather than from configuration records.
type SourceDefaults struct {
	// EventsToDispatch is applied to every stored workflow. nil publishes
	// only guard events.
	EventsToDispatch *[]string `yaml:"events_to_dispatch" json:"events_to_dispatch"`

	// ExtraFields lists stored workflow attributes copied into Workflow.Extra.
	ExtraFields []string `yaml:"extra_fields" json:"extra_fields"`

	// MarkingStore names the registered marking store factory used by
	// stored workflows. Empty uses the property store.
	MarkingStore string `yaml:"marking_store" json:"marking_store"`
}

// Merge overlays the non-zero fields of source.
func (c *SourceDefaults) Merge(source *SourceDefaults) {
	if source.EventsToDispatch != nil {
		c.EventsToDispatch = source.EventsToDispatch
	}

	if len(source.ExtraFields) > 0 {
		c.ExtraFields = source.ExtraFields
	}

	if source.MarkingStore != "" {
		c.MarkingStore = source.MarkingStore
	}
}

// File is the top-level configuration document.
//
// Example YAML:
//
//	observer: slog
//	registry:
//	  track_loaded: true
//	source:
//	  events_to_dispatch: [completed]
//	  extra_fields: [department]
//	workflows:
//	  straight: {...}
type File struct {
	// Observer names a registered observability observer, or a comma
	// separated list of them.
	Observer string `yaml:"observer" json:"observer"`

	Registry RegistryConfig `yaml:"registry" json:"registry"`
	Source   SourceDefaults `yaml:"source" json:"source"`

	Workflows Set `yaml:"workflows" json:"workflows"`
}

// DefaultFile returns a configuration with the slog observer, duplicate
// tracking disabled and no workflows.
func DefaultFile() File {
	return File{
		Observer: "slog",
		Registry: DefaultRegistryConfig(),
	}
}

// Merge overlays source onto c. Workflows of source are appended.
func (c *File) Merge(source *File) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}

	c.Registry.Merge(&source.Registry)
	c.Source.Merge(&source.Source)

	if len(source.Workflows) > 0 {
		c.Workflows = append(c.Workflows, source.Workflows...)
	}
}

// Env holds the environment overrides applied by Load.
type Env struct {
	TrackLoaded      *bool  `env:"WORKFLOW_TRACK_LOADED"`
	IgnoreDuplicates *bool  `env:"WORKFLOW_IGNORE_DUPLICATES"`
	Observer         string `env:"WORKFLOW_OBSERVER"`
}

// ParseEnv reads the environment overrides.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply writes the overrides that were set into c.
func (e Env) Apply(c *File) {
	if e.TrackLoaded != nil {
		c.Registry.TrackLoaded = *e.TrackLoaded
	}
	if e.IgnoreDuplicates != nil {
		c.Registry.IgnoreDuplicatesNil = e.IgnoreDuplicates
	}
	if e.Observer != "" {
		c.Observer = e.Observer
	}
}

// Parse decodes a YAML (or JSON) document and merges it over defaults.
func Parse(data []byte) (*File, error) {
	cfg := DefaultFile()

	var loaded File
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// Load reads a config file, merges it with defaults, and applies
// environment overrides.
func Load(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	overrides, err := ParseEnv()
	if err != nil {
		return nil, err
	}
	overrides.Apply(cfg)

	return cfg, nil
}
