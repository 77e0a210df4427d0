// Package config provides configuration structures for workflow definitions
// and the registry that loads them.
//
// Configuration follows the Default/Merge layering used across the module:
// a loaded file is merged over defaults, then environment overrides are
// applied.
//
//	file, err := config.Load("workflows.yaml")
//	if err != nil {
//	    return err
//	}
//	reg, err := registry.New(file.Registry)
//	reg.LoadConfigs(file.Workflows)
//
// # Workflow Records
//
// A Workflow mirrors one entry of the workflows mapping:
//
//	workflows:
//	  straight:
//	    type: workflow
//	    marking_store:
//	      type: single_state
//	      property: status
//	    supports: [orders.Order]
//	    places: [a, b, c]
//	    transitions:
//	      t1: {from: a, to: b}
//	      t2: {from: b, to: c}
//
// Places accept a plain sequence, a sequence of records, or a mapping. A
// mapping whose values are scalars maps labels to place names; a mapping
// whose values are records maps place names to their metadata. Transitions
// accept a sequence of named records or a mapping keyed by name. Mapping
// order is preserved.
//
// # Boolean Fields with Non-False Defaults
//
// RegistryConfig.IgnoreDuplicatesNil follows the *bool convention: nil means
// "not specified" and the IgnoreDuplicates accessor returns the default.
//
// # Events To Dispatch
//
// Workflow.EventsToDispatch is a pointer. nil publishes every kind, an empty
// list publishes only guard events.
package config
