package observability

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex
)

// GetObserver resolves an observer setting. The setting is one registered
// name or a comma separated list of names, which resolves to a
// MultiObserver. Pre-registered names are "noop" and "slog".
func GetObserver(setting string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	names := strings.Split(setting, ",")
	resolved := make([]Observer, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		obs, exists := observers[name]
		if !exists {
			return nil, fmt.Errorf("unknown observer: %s", name)
		}
		resolved = append(resolved, obs)
	}

	if len(resolved) == 1 {
		return resolved[0], nil
	}
	return NewMultiObserver(resolved...), nil
}

// RegisterObserver adds or replaces a named observer. Names may not contain
// commas.
func RegisterObserver(name string, observer Observer) {
	if strings.Contains(name, ",") {
		panic(fmt.Sprintf("observability: observer name %q contains a comma", name))
	}

	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// ObserverNames lists the registered observer names in sorted order.
func ObserverNames() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	names := make([]string, 0, len(observers))
	for name := range observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
