package containerpool

import (
	"sort"

	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/modeltable"
)

// residentSize returns the total size in MB of models already resident on
// container id.
func (p *Pool) residentSize(id string) int {
	total := 0
	for _, m := range p.preloadTable[id] {
		total += m.ModelSizeMB
	}
	return total
}

func (p *Pool) capacity(id string) int {
	return p.cfg.ModelMemoryBudgetMB - p.residentSize(id)
}

func (p *Pool) hostsModel(id, modelName string) bool {
	for _, m := range p.preloadTable[id] {
		if m.ModelName == modelName {
			return true
		}
	}
	return false
}

// binPacking implements spec.md §4.2's planner: first fit among
// containers that don't already hold a model with the same name,
// preferring largest remaining capacity; failing that, evict resident
// models in ascending expected-saved-latency order on each candidate
// until one fits; otherwise return "".
func (p *Pool) binPacking(model modeltable.Model) string {
	candidates := make([]string, 0, len(p.sharedPool))
	for id := range p.sharedPool {
		if !p.hostsModel(id, model.ModelName) {
			candidates = append(candidates, id)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return p.capacity(candidates[i]) > p.capacity(candidates[j])
	})

	for _, id := range candidates {
		if p.capacity(id) >= model.ModelSizeMB {
			return id
		}
	}

	// No immediate fit: try evicting the lowest-expected-saved-latency
	// resident model on each candidate, ascending, until one fits.
	for _, id := range candidates {
		residents := append([]modeltable.Model(nil), p.preloadTable[id]...)
		sort.Slice(residents, func(i, j int) bool {
			return residents[i].ExpectedSavedLatency < residents[j].ExpectedSavedLatency
		})
		for _, victim := range residents {
			if victim.ExpectedSavedLatency >= model.ExpectedSavedLatency {
				break
			}
			p.evictModel(id, victim)
			if p.metrics != nil {
				p.metrics.OffloadsTotal.Inc()
			}
			if p.capacity(id) >= model.ModelSizeMB {
				return id
			}
		}
	}

	if p.metrics != nil {
		p.metrics.BinPackingMisses.Inc()
	}
	return ""
}

// evictModel removes a model from a container's preload-table entry and
// fires an OffLoadModelSignal to the container's proxy.
func (p *Pool) evictModel(containerID string, victim modeltable.Model) {
	list := p.preloadTable[containerID]
	for i, m := range list {
		if m.ModelName == victim.ModelName {
			p.preloadTable[containerID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if proxy, ok := p.proxies[containerID]; ok {
		proxy.OffLoadModelSignal(modelOwnerAction(victim), domain.ActivationMessage{})
	}
	p.publishPreLoadTable()
}

// modelOwnerAction synthesizes the Action reference a LoadModelSignal/
// OffLoadModelSignal carries: enough for the container-side agent to
// identify which model to (un)load.
func modelOwnerAction(m modeltable.Model) domain.Action {
	return domain.Action{
		Name:           m.ActionName,
		InferenceModel: m.ModelName,
	}
}

// placeModel records a successful placement in the preload table and
// fires LoadModelSignal to the chosen container's proxy.
func (p *Pool) placeModel(containerID string, model modeltable.Model) {
	p.preloadTable[containerID] = append(p.preloadTable[containerID], model)
	if proxy, ok := p.proxies[containerID]; ok {
		proxy.LoadModelSignal(modelOwnerAction(model), domain.ActivationMessage{})
	}
	if p.metrics != nil {
		p.metrics.PreloadsTotal.Inc()
	}
	p.publishPreLoadTable()
}
