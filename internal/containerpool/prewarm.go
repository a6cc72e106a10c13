package containerpool

import (
	"time"

	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
)

// takePrewarmContainer picks from prewarmedPool the container with
// earliest expires whose (kind, memory) match action's requirements,
// moves it to freePool, and schedules a replacement prewarm of the same
// shape (spec.md §4.3).
func (p *Pool) takePrewarmContainer(action domain.Action) (string, bool) {
	kind := action.Kind
	memoryMB := action.Limits.MemoryMB

	best := ""
	var bestExpires time.Time
	for id, d := range p.prewarmedPool {
		if d.Kind_ != kind || d.MemoryMB != memoryMB {
			continue
		}
		if best == "" || d.Expires.Before(bestExpires) {
			best, bestExpires = id, d.Expires
		}
	}
	if best == "" {
		return "", false
	}

	d := p.prewarmedPool[best]
	delete(p.prewarmedPool, best)
	p.freePool[best] = d

	p.startPrewarm(prewarmShape{kind: kind, memoryMB: memoryMB})
	return best, true
}

// prewarmShape identifies one (kind, memory) prewarm configuration.
type prewarmShape struct {
	kind     domain.Kind
	memoryMB int
}

// backfillPrewarms tops up every configured shape to at least
// max(minCount, initialCount), per spec.md §4.3's post-removal backfill
// rule.
func (p *Pool) backfillPrewarms() {
	for _, cfg := range p.prewarmConfigs {
		desired := cfg.InitialCount
		if cfg.Reactive != nil && cfg.Reactive.MinCount > desired {
			desired = cfg.Reactive.MinCount
		}
		p.topUpPrewarm(cfg, desired)
	}
}

// removeExpiredPrewarms sends Remove to every prewarmedPool container
// whose TTL has elapsed, per spec.md §4.3's periodic sweep.
func (p *Pool) removeExpiredPrewarms() {
	now := time.Now()
	for id, d := range p.prewarmedPool {
		if !d.Expires.IsZero() && now.After(d.Expires) {
			delete(p.prewarmedPool, id)
			if proxy, ok := p.proxies[id]; ok {
				proxy.Remove()
			}
		}
	}
}

// onAdjustPrewarmedContainer implements spec.md §4.3's desired-count
// formula for each configured shape, starts the shortfall, and resets
// coldStartCount after a scheduled tick.
func (p *Pool) onAdjustPrewarmedContainer(adjustInit, adjustReactive bool) {
	if adjustReactive {
		p.removeExpiredPrewarms()
	}
	for _, cfg := range p.prewarmConfigs {
		var desired int
		switch {
		case adjustInit:
			desired = cfg.InitialCount
		case adjustReactive && cfg.Reactive != nil:
			r := cfg.Reactive
			desired = clamp(r.MinCount, (p.coldStartCount/maxInt(r.Threshold, 1))*r.Increment, r.MaxCount)
		default:
			continue
		}
		p.topUpPrewarm(cfg, desired)
	}
	if adjustReactive {
		p.coldStartCount = 0
	}
}

func (p *Pool) topUpPrewarm(cfg PrewarmingConfig, desired int) {
	current := 0
	for _, d := range p.prewarmedPool {
		if d.Kind_ == cfg.Kind && d.MemoryMB == cfg.MemoryMB {
			current++
		}
	}
	for _, d := range p.prewarmStarting {
		if d.Kind_ == cfg.Kind && d.MemoryMB == cfg.MemoryMB {
			current++
		}
	}
	for i := 0; i < desired-current; i++ {
		p.startPrewarm(prewarmShape{kind: cfg.Kind, memoryMB: cfg.MemoryMB})
	}
}

// startPrewarm creates one new prewarm proxy for shape and registers it
// in prewarmStarting, keyed by actor, moving to prewarmedPool on
// PreWarmCompleted.
func (p *Pool) startPrewarm(shape prewarmShape) {
	if !p.budgetAllows(shape.memoryMB) {
		return
	}
	id := newProxyID()
	proxy := p.newProxyFor(id)
	p.proxies[id] = proxy
	p.prewarmStarting[id] = containerdata.Data{Kind: containerdata.KindMemoryData, Kind_: shape.kind, MemoryMB: shape.memoryMB}
	go proxy.Run()
	proxy.Start(shape.kind, shape.memoryMB, 0)
}

// onPreWarmCompleted moves a newly-ready prewarm from prewarmStarting to
// prewarmedPool.
func (p *Pool) onPreWarmCompleted(proxyID string, data containerdata.Data) {
	delete(p.prewarmStarting, proxyID)
	p.prewarmedPool[proxyID] = data
}

func clamp(lo, v, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
