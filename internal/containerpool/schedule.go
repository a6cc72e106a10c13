package containerpool

import (
	"sort"
	"time"

	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
)

// placement pairs a proxy ID with whether one was found. schedule returns
// these two values directly rather than as a placement.
type placement struct {
	proxyID string
	found   bool
}

// schedule implements spec.md §4.2's decision order, tried in turn:
// exact warmed match, exact warming match, pre-load hit, exact
// warming-cold match. Fallback (prewarm/cold-create/evict) is handled by
// the caller (onRun) since it has side effects beyond a pure lookup.
func (p *Pool) schedule(ns string, action domain.Action) (string, bool) {
	for id, d := range p.freePool {
		if d.Kind == containerdata.KindWarmed && d.Matches(ns, action) && d.HasCapacity() {
			return id, true
		}
	}
	for id, d := range p.busyPool {
		if d.Kind == containerdata.KindWarmed && d.Matches(ns, action) && d.HasCapacity() {
			return id, true
		}
	}
	for id, d := range p.freePool {
		if d.Kind == containerdata.KindWarming && d.Matches(ns, action) {
			return id, true
		}
	}
	for id, d := range p.busyPool {
		if d.Kind == containerdata.KindWarming && d.Matches(ns, action) {
			return id, true
		}
	}

	if id, ok := p.preloadHit(action); ok {
		return id, true
	}

	for id, d := range p.freePool {
		if d.Kind == containerdata.KindWarmingCold && d.Matches(ns, action) {
			return id, true
		}
	}
	for id, d := range p.busyPool {
		if d.Kind == containerdata.KindWarmingCold && d.Matches(ns, action) {
			return id, true
		}
	}

	return "", false
}

// preloadHit finds the sharedPool container whose preload table already
// contains action's inference model, preferring the smallest total
// resident model size (tie-break arbitrary — map iteration order).
func (p *Pool) preloadHit(action domain.Action) (string, bool) {
	if !action.InferenceEligible() {
		return "", false
	}
	model, ok := p.models.FindByActionName(action.FullyQualifiedName())
	if !ok {
		return "", false
	}

	best := ""
	bestSize := 0
	for id := range p.sharedPool {
		if !p.hostsModel(id, model.ModelName) {
			continue
		}
		size := p.residentSize(id)
		if best == "" || size < bestSize {
			best, bestSize = id, size
		}
	}
	return best, best != ""
}

// remove implements the eviction fallback: from warm, currently-idle
// (activeCount == 0) containers in freePool, remove the oldest by
// lastUsed ascending, repeatedly, until the cumulative freed memory meets
// target or no candidate remains. Returns the ids to remove; the caller
// is responsible for destroying them.
func (p *Pool) remove(targetMemoryMB int) []string {
	type candidate struct {
		id       string
		lastUsed time.Time
		memoryMB int
	}
	var candidates []candidate
	for id, d := range p.freePool {
		if d.Kind == containerdata.KindWarmed && d.ActiveCount == 0 {
			candidates = append(candidates, candidate{id: id, lastUsed: d.LastUsed, memoryMB: d.Action.Limits.MemoryMB})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastUsed.Before(candidates[j].lastUsed)
	})

	var chosen []string
	freed := 0
	for _, c := range candidates {
		if freed >= targetMemoryMB {
			break
		}
		chosen = append(chosen, c.id)
		freed += c.memoryMB
	}
	return chosen
}
