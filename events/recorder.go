package events

import (
	"context"
	"sync"
)

// Published is one recorded publish.
type Published struct {
	Name  string
	Event *Event
}

// Recorder remembers every publish and optionally forwards it.
type Recorder struct {
	next      Bus
	published []Published
	mu        sync.Mutex
}

// NewRecorder creates a recorder. A nil next swallows events after
// recording them.
func NewRecorder(next Bus) *Recorder {
	return &Recorder{next: next}
}

// Publish records the call, then forwards it to the wrapped bus when one
// is set.
func (r *Recorder) Publish(ctx context.Context, name string, event *Event) error {
	r.mu.Lock()
	r.published = append(r.published, Published{Name: name, Event: event})
	r.mu.Unlock()

	if r.next == nil {
		return nil
	}
	return r.next.Publish(ctx, name, event)
}

// Published returns every publish in order.
func (r *Recorder) Published() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Published, len(r.published))
	copy(out, r.published)
	return out
}

// Names returns the publish names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.published))
	for _, p := range r.published {
		names = append(names, p.Name)
	}
	return names
}

// Dispatched reports whether anything was published under name.
func (r *Recorder) Dispatched(name string) bool {
	return r.Count(name) > 0
}

// Count returns how many times name was published.
func (r *Recorder) Count(name string) int {
	return len(r.Events(name))
}

// Events returns the events published under name.
func (r *Recorder) Events(name string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Event
	for _, p := range r.published {
		if p.Name == name {
			out = append(out, p.Event)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.published = nil
}
