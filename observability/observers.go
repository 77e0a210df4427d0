package observability

import "context"

// NoOpObserver discards all events. It is the default for engines and
// registries constructed without an observer.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}

// MultiObserver forwards each event to a fixed list of observers, typically
// the slog observer for operators and the Prometheus observer for dashboards.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver drops nil and no-op observers and inlines the members of
// nested MultiObservers, so each observer sees an event once per emission.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range observers {
		m.add(obs)
	}
	return m
}

func (m *MultiObserver) add(obs Observer) {
	switch o := obs.(type) {
	case nil, NoOpObserver, *NoOpObserver:
	case *MultiObserver:
		if o == nil {
			return
		}
		for _, inner := range o.observers {
			m.add(inner)
		}
	default:
		m.observers = append(m.observers, obs)
	}
}

// Len reports how many observers receive events.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
