// Package registry loads workflow definitions and resolves which workflow
// applies to a subject.
//
// Workflows come from configuration records (config.Set) or from stored
// rows (storage.WorkflowSource). Each is registered once per supported
// subject type, and every loaded workflow publishes its lifecycle
// notifications on the registry's event bus through an events.Adapter.
//
//	reg := registry.New(cfg.Registry, registry.WithBus(bus))
//	if err := reg.LoadConfigs(cfg.Workflows); err != nil {
//		return err
//	}
//	sel, err := reg.Resolve(order, "")
//	marking, err := sel.Apply(ctx, "pay", nil)
package registry
