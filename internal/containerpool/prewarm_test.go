package containerpool

import (
	"testing"
	"time"

	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
)

func TestTakePrewarmContainerPicksEarliestExpires(t *testing.T) {
	p := newTestPoolWithBackend()
	now := time.Now()
	p.prewarmedPool["late"] = containerdata.Data{Kind: containerdata.KindPreWarmed, Kind_: domain.KindPython, MemoryMB: 256, Expires: now.Add(time.Hour)}
	p.prewarmedPool["early"] = containerdata.Data{Kind: containerdata.KindPreWarmed, Kind_: domain.KindPython, MemoryMB: 256, Expires: now.Add(time.Minute)}

	action := domain.Action{Kind: domain.KindPython, Limits: domain.Limits{MemoryMB: 256}}
	id, ok := p.takePrewarmContainer(action)
	if !ok || id != "early" {
		t.Fatalf("expected 'early' (earliest expires), got %q ok=%v", id, ok)
	}
	if _, stillPrewarmed := p.prewarmedPool["early"]; stillPrewarmed {
		t.Fatalf("expected taken container removed from prewarmedPool")
	}
	if _, inFree := p.freePool["early"]; !inFree {
		t.Fatalf("expected taken container moved to freePool")
	}
}

func TestTakePrewarmContainerRequiresShapeMatch(t *testing.T) {
	p := newTestPoolWithBackend()
	p.prewarmedPool["node256"] = containerdata.Data{Kind: containerdata.KindPreWarmed, Kind_: domain.KindNode, MemoryMB: 256}

	action := domain.Action{Kind: domain.KindPython, Limits: domain.Limits{MemoryMB: 256}}
	if _, ok := p.takePrewarmContainer(action); ok {
		t.Fatalf("expected no match across mismatched kind")
	}
}

func TestOnAdjustPrewarmedContainerInitUsesInitialCount(t *testing.T) {
	p := newTestPoolWithBackend()
	p.prewarmConfigs = []PrewarmingConfig{{InitialCount: 2, Kind: domain.KindPython, MemoryMB: 128}}

	p.onAdjustPrewarmedContainer(true, false)

	if len(p.prewarmStarting) != 2 {
		t.Fatalf("expected 2 starting prewarms, got %d", len(p.prewarmStarting))
	}
}

func TestOnAdjustPrewarmedContainerReactiveClamps(t *testing.T) {
	p := newTestPoolWithBackend()
	p.coldStartCount = 100
	p.prewarmConfigs = []PrewarmingConfig{{
		Kind:     domain.KindPython,
		MemoryMB: 128,
		Reactive: &ReactivePrewarmingConfig{MinCount: 1, MaxCount: 3, Threshold: 10, Increment: 1},
	}}

	p.onAdjustPrewarmedContainer(false, true)

	// desired = clamp(1, (100/10)*1, 3) = clamp(1, 10, 3) = 3
	if len(p.prewarmStarting) != 3 {
		t.Fatalf("expected 3 starting prewarms (clamped to maxCount), got %d", len(p.prewarmStarting))
	}
	if p.coldStartCount != 0 {
		t.Fatalf("expected coldStartCount reset after scheduled tick, got %d", p.coldStartCount)
	}
}
