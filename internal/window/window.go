// Package window holds the process-wide Window Registry: a mapping from
// action to the four scheduling-hint windows sourced from activation
// messages (spec.md §2, §4.4).
package window

import (
	"sync"
	"time"
)

// Windows holds the per-action timing parameters that drive pre-warming,
// keep-alive, pre-loading, and off-loading decisions.
type Windows struct {
	PreWarm   time.Duration
	KeepAlive time.Duration
	PreLoad   time.Duration
	OffLoad   time.Duration
}

// Registry is a concurrency-safe action -> Windows map. It is written on
// every activation and read by the pool's pre-load/off-load handlers; it
// uses a plain RWMutex rather than sync.Map: unlike the pool's per-configuration maps, the key set here is small and
// bounded by the number of deployed actions.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Windows
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{m: make(map[string]Windows)}
}

// Update records the windows carried by an activation message for the
// given action key (typically Action.FullyQualifiedName()). Called on
// every Run per spec.md §4.4.
func (r *Registry) Update(actionKey string, w Windows) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[actionKey] = w
}

// Get returns the current windows for an action, or the zero value and
// false if none have been recorded yet.
func (r *Registry) Get(actionKey string) (Windows, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.m[actionKey]
	return w, ok
}
