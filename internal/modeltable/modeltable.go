// Package modeltable is the in-memory catalog of known inference models:
// size, loading latency, arrival rate, and the derived arrival probability
// and expected-saved-latency the bin-packing planner maximizes (spec.md
// §3, §4.4).
package modeltable

import (
	"math"
	"sync"
)

// Model describes one ML model known to the catalog. Backend is purely
// descriptive metadata (the runtime library the model loads under),
// never consulted by scheduling — display purposes only.
type Model struct {
	ActionName           string
	ModelName            string
	Backend              string // "onnxruntime", "torch", "tensorrt"
	ModelLoadingLatency   float64 // milliseconds
	ModelSizeMB          int
	Lambda               float64 // arrival rate, updated per invocation
	ArrivalProbability   float64 // derived: 1 - exp(-lambda*window)
	ExpectedSavedLatency float64 // derived: ArrivalProbability * ModelLoadingLatency
}

// Table is the process-wide model catalog, keyed by ActionName. Reads
// happen on every scheduling decision and bin-packing pass; writes happen
// once per StartRunMessage/ContainerIdle tick, so a single RWMutex
// covering the whole map is sufficient at this scale.
type Table struct {
	mu sync.RWMutex
	m  map[string]*Model
}

// New constructs an empty Table.
func New() *Table {
	return &Table{m: make(map[string]*Model)}
}

// Register adds or replaces a model's static descriptor.
func (t *Table) Register(m Model) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := m
	t.m[m.ActionName] = &cp
}

// FindByActionName returns the model mapped to an action, if any.
func (t *Table) FindByActionName(actionName string) (Model, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.m[actionName]
	if !ok {
		return Model{}, false
	}
	return *m, true
}

// All returns a snapshot of every registered model, for the bin-packing
// planner's "for every model not yet assigned anywhere" scan.
func (t *Table) All() []Model {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Model, 0, len(t.m))
	for _, m := range t.m {
		out = append(out, *m)
	}
	return out
}

// UpdateLambda records a fresh arrival-rate observation for an action's
// model.
func (t *Table) UpdateLambda(actionName string, lambda float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.m[actionName]; ok {
		m.Lambda = lambda
	}
}

// UpdateAllDerived recomputes ArrivalProbability and ExpectedSavedLatency
// for every model over the given window, per spec.md invariant 6:
// arrivalProbability = 1 - exp(-lambda*window);
// expectedSavedLatency = arrivalProbability * modelLoadingLatency.
func (t *Table) UpdateAllDerived(window float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.m {
		m.ArrivalProbability = 1 - math.Exp(-m.Lambda*window)
		m.ExpectedSavedLatency = m.ArrivalProbability * m.ModelLoadingLatency
	}
}
