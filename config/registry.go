package config

// RegistryConfig controls duplicate tracking in the workflow registry.
//
// Example YAML:
//
//	registry:
//	  track_loaded: true
//	  ignore_duplicates: false
type RegistryConfig struct {
	// TrackLoaded records every (workflow, subject type) registration.
	// Duplicates are only detected while tracking.
	TrackLoaded bool `yaml:"track_loaded" json:"track_loaded"`

	// IgnoreDuplicatesNil turns a duplicate registration into a no-op
	// instead of an error. nil defaults to true.
	IgnoreDuplicatesNil *bool `yaml:"ignore_duplicates" json:"ignore_duplicates"`
}

// DefaultRegistryConfig returns a configuration with tracking disabled.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{}
}

// IgnoreDuplicates returns whether duplicate registrations are ignored.
// Defaults to true if not explicitly set.
func (c *RegistryConfig) IgnoreDuplicates() bool {
	if c.IgnoreDuplicatesNil == nil {
		return true
	}
	return *c.IgnoreDuplicatesNil
}

// Merge overlays the values source sets. IgnoreDuplicatesNil is copied only
// when source sets it, so an explicit false survives.
func (c *RegistryConfig) Merge(source *RegistryConfig) {
	if source.TrackLoaded {
		c.TrackLoaded = source.TrackLoaded
	}

	if source.IgnoreDuplicatesNil != nil {
		c.IgnoreDuplicatesNil = source.IgnoreDuplicatesNil
	}
}
