package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Bus publishes events under a name.
//
// Implementations deliver synchronously: Publish returns after every
// subscriber has run, and a subscriber error is returned to the caller.
type Bus interface {
	Publish(ctx context.Context, name string, event *Event) error
}

// Listener handles an event published under name.
type Listener func(ctx context.Context, name string, event *Event) error

// ErrStopPropagation may be returned by a listener to skip the remaining
// listeners of the same publish without reporting an error.
var ErrStopPropagation = errors.New("stop propagation")

// Dispatcher is the in-process bus. Listeners registered for an exact name
// run first in registration order, then wildcard listeners whose pattern
// matches. A pattern ending in "*" matches every name with that prefix.
type Dispatcher struct {
	listeners map[string][]Listener
	wildcards []wildcard
	mu        sync.RWMutex
}

type wildcard struct {
	pattern  string
	prefix   string
	listener Listener
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[string][]Listener),
	}
}

// Listen registers listener for pattern.
func (d *Dispatcher) Listen(pattern string, listener Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		d.wildcards = append(d.wildcards, wildcard{pattern: pattern, prefix: prefix, listener: listener})
		return
	}
	d.listeners[pattern] = append(d.listeners[pattern], listener)
}

// Forget removes every listener registered for pattern.
func (d *Dispatcher) Forget(pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.listeners, pattern)
	d.wildcards = slices.DeleteFunc(d.wildcards, func(w wildcard) bool {
		return w.pattern == pattern
	})
}

// HasListeners reports whether publishing name would reach a listener.
func (d *Dispatcher) HasListeners(name string) bool {
	return len(d.match(name)) > 0
}

func (d *Dispatcher) match(name string) []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()

	matched := slices.Clone(d.listeners[name])
	for _, w := range d.wildcards {
		if strings.HasPrefix(name, w.prefix) {
			matched = append(matched, w.listener)
		}
	}
	return matched
}

// Publish runs the matching listeners in order. The first error stops
// delivery and is returned.
func (d *Dispatcher) Publish(ctx context.Context, name string, event *Event) error {
	for _, listener := range d.match(name) {
		if err := listener(ctx, name, event); err != nil {
			if errors.Is(err, ErrStopPropagation) {
				return nil
			}
			return fmt.Errorf("listener for %s: %w", name, err)
		}
	}
	return nil
}

// MultiBus publishes to every bus in order.
type MultiBus struct {
	buses []Bus
}

// NewMultiBus creates a bus fanning out to buses. Nil entries are skipped.
func NewMultiBus(buses ...Bus) *MultiBus {
	m := &MultiBus{}
	for _, b := range buses {
		if b != nil {
			m.buses = append(m.buses, b)
		}
	}
	return m
}

// Publish forwards to every bus in order and stops at the first error.
func (m *MultiBus) Publish(ctx context.Context, name string, event *Event) error {
	for _, b := range m.buses {
		if err := b.Publish(ctx, name, event); err != nil {
			return err
		}
	}
	return nil
}
