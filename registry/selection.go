package registry

import (
	"context"

	"github.com/tailored-agentic-units/workflow/config"
	"github.com/tailored-agentic-units/workflow/workflow"
)

// Selection is the workflow resolved for one subject. It is a value handed
// to callers, never stored on the registry, so concurrent requests cannot
// observe each other's subjects.
//
// Example:
//
//	sel, err := reg.Resolve(leave, "")
//	if err != nil {
//	    return err
//	}
//	label, err := sel.LabelStatus(ctx)
//	if err != nil {
//	    return err
//	}
//	if ok, _ := sel.Can(ctx, "approve"); ok {
//	    _, err = sel.Apply(ctx, "approve", map[string]any{"by": user})
//	}
type Selection struct {
	workflow *workflow.Workflow
	config   config.Workflow
	subject  any
}

// Resolve selects the workflow for subject, as Get does, and binds it to
// the subject and its configuration record.
func (r *Registry) Resolve(subject any, name string) (*Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, err := r.get(subject, name)
	if err != nil {
		return nil, err
	}

	cfg, exists := r.configs[wf.Name()]
	if !exists {
		cfg = config.Workflow{Name: wf.Name()}
	}
	return &Selection{workflow: wf, config: cfg.Clone(), subject: subject}, nil
}

// Workflow returns the resolved workflow.
func (s *Selection) Workflow() *workflow.Workflow {
	return s.workflow
}

// Config returns a copy of the configuration the workflow was loaded from.
// Workflows added directly with Add yield a record holding only the name.
func (s *Selection) Config() config.Workflow {
	return s.config.Clone()
}

// Subject returns the subject the selection was resolved for.
func (s *Selection) Subject() any {
	return s.subject
}

// LabelStatus returns the label of the subject's first active place, or an
// empty string when the subject is unmarked or the place has no label.
// The stored marking is read as is; an unmarked subject is not initialized.
func (s *Selection) LabelStatus(ctx context.Context) (string, error) {
	marking, err := s.workflow.MarkingStore().Marking(ctx, s.subject)
	if err != nil {
		return "", err
	}
	places := marking.Places()
	if len(places) == 0 {
		return "", nil
	}
	return s.config.Label(places[0]), nil
}

// FinalStatus returns the configured final place.
func (s *Selection) FinalStatus() string {
	return s.config.FinalPlace
}

// LastPlaces returns the configured last places.
func (s *Selection) LastPlaces() []string {
	return append([]string(nil), s.config.LastPlaces...)
}

// Transitions returns the configured transition records.
func (s *Selection) Transitions() config.Transitions {
	return s.config.Clone().Transitions
}

// HasTransition reports whether any configured transition is enabled for
// the subject.
func (s *Selection) HasTransition(ctx context.Context) (bool, error) {
	for _, name := range s.config.Transitions.Names() {
		ok, err := s.workflow.Can(ctx, s.subject, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Can reports whether transition is enabled for the subject.
func (s *Selection) Can(ctx context.Context, transition string) (bool, error) {
	return s.workflow.Can(ctx, s.subject, transition)
}

// Apply fires transition on the subject. payload is visible to listeners
// through the event context.
func (s *Selection) Apply(ctx context.Context, transition string, payload map[string]any) (workflow.Marking, error) {
	return s.workflow.Apply(ctx, s.subject, transition, payload)
}
