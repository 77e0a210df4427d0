package workflow

import (
	"fmt"
	"sync"
)

// Constructor builds a workflow of one flavour. Registered constructors are
// selected by configuration tag once, when the workflow is loaded.
type Constructor func(name string, def *Definition, store MarkingStore, opts ...Option) (*Workflow, error)

// Built-in constructor tags. Both built-ins enable the system-handled
// policy; callers of New and NewStateMachine opt in with
// WithSystemHandledPolicy.
const (
	TypeWorkflow     = "workflow"
	TypeStateMachine = "state_machine"
)

var (
	constructors = map[string]Constructor{
		TypeWorkflow: func(name string, def *Definition, store MarkingStore, opts ...Option) (*Workflow, error) {
			return New(name, def, store, append([]Option{WithSystemHandledPolicy(true)}, opts...)...)
		},
		TypeStateMachine: func(name string, def *Definition, store MarkingStore, opts ...Option) (*Workflow, error) {
			return NewStateMachine(name, def, store, append([]Option{WithSystemHandledPolicy(true)}, opts...)...)
		},
	}
	constructorsMu sync.RWMutex
)

// ConstructorFor resolves a constructor by tag.
func ConstructorFor(tag string) (Constructor, error) {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()

	c, exists := constructors[tag]
	if !exists {
		return nil, fmt.Errorf("unknown workflow class: %s", tag)
	}
	return c, nil
}

// RegisterConstructor adds or replaces a named constructor.
func RegisterConstructor(tag string, c Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	constructors[tag] = c
}
