package registry

import (
	"fmt"
	"slices"

	"github.com/tailored-agentic-units/workflow/config"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// Export rebuilds the configuration record of a loaded workflow from its
// definition. Expanded transitions sharing a name and destinations are
// merged back into one record with several source places. Labels, titles,
// permissions and storage fields come from the record the workflow was
// loaded from, when there is one.
func (r *Registry) Export(name string) (config.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, exists := r.workflows[name]
	if !exists {
		return config.Workflow{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	loaded, hasConfig := r.configs[name]

	def := wf.Definition()
	md := def.Metadata()

	out := config.Workflow{
		Name:     name,
		Type:     workflow.TypeWorkflow,
		Supports: r.supports(name),
	}
	if wf.IsStateMachine() {
		out.Type = workflow.TypeStateMachine
	}
	if hasConfig {
		out.Type = loaded.Type
		out.MarkingStore = loaded.MarkingStore
		out.Class = loaded.Class
		out.FinalPlace = loaded.FinalPlace
		out.LastPlaces = slices.Clone(loaded.LastPlaces)
		out.Extra = loaded.Clone().Extra
		if len(loaded.InitialPlaces) > 0 {
			out.InitialPlaces = def.InitialPlaces()
		}
	}

	if workflowMetadata := md.WorkflowMetadata(); len(workflowMetadata) > 0 {
		out.Metadata = workflowMetadata
	}

	if kinds, ok := wf.EventsToDispatch(); ok {
		names := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			names = append(names, string(kind))
		}
		out.EventsToDispatch = &names
	}

	for _, place := range def.Places() {
		p := config.Place{Name: place, Metadata: md.PlaceMetadata(place)}
		if hasConfig {
			p.Label = loaded.Label(place)
		}
		out.Places = append(out.Places, p)
	}

	for _, t := range def.Transitions() {
		i := slices.IndexFunc(out.Transitions, func(existing config.Transition) bool {
			return existing.Name == t.Name && slices.Equal([]string(existing.To), t.Tos)
		})
		if i >= 0 {
			for _, from := range t.Froms {
				if !slices.Contains(out.Transitions[i].From, from) {
					out.Transitions[i].From = append(out.Transitions[i].From, from)
				}
			}
			continue
		}

		transition := config.Transition{
			Name:            t.Name,
			From:            slices.Clone(t.Froms),
			To:              slices.Clone(t.Tos),
			HandledBySystem: t.HandledBySystem,
			Metadata:        md.TransitionMetadata(t),
		}
		if hasConfig {
			if j := slices.IndexFunc(loaded.Transitions, func(c config.Transition) bool { return c.Name == t.Name }); j >= 0 {
				transition.Title = loaded.Transitions[j].Title
				transition.Permission = loaded.Transitions[j].Permission
			}
		}
		out.Transitions = append(out.Transitions, transition)
	}

	return out, nil
}
