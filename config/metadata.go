package config

import (
	"fmt"
	"maps"
)

// Metadata is the workflow and place metadata extracted from a record.
type Metadata struct {
	Workflow map[string]any
	Places   map[string]map[string]any
}

// ExtractMetadata separates metadata from the place list. It returns the
// metadata and the normalized place names and never modifies cfg.
func ExtractMetadata(cfg *Workflow) (Metadata, []string, error) {
	md := Metadata{
		Workflow: maps.Clone(cfg.Metadata),
		Places:   make(map[string]map[string]any),
	}
	if md.Workflow == nil {
		md.Workflow = map[string]any{}
	}

	places := make([]string, 0, len(cfg.Places))
	for i, p := range cfg.Places {
		if p.Name == "" {
			return Metadata{}, nil, fmt.Errorf("%w: unknown name for place at index %d", ErrInvalidConfiguration, i)
		}
		if len(p.Metadata) > 0 {
			md.Places[p.Name] = maps.Clone(p.Metadata)
		}
		places = append(places, p.Name)
	}

	return md, places, nil
}
