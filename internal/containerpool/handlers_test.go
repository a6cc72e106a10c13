package containerpool

import (
	"testing"
	"time"

	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/modeltable"
	"github.com/oriys/zygote/internal/window"
)

func testRun(name string) domain.ActivationMessage {
	return domain.ActivationMessage{
		Namespace: "ns",
		Action:    domain.Action{Namespace: "ns", Name: name, Limits: domain.Limits{MemoryMB: 256, MaxConcurrent: 1}},
	}
}

func TestOnRunDispatchesToExactWarmedMatch(t *testing.T) {
	p := newTestPoolForHandlers()
	run := testRun("f")
	p.freePool["c1"] = containerdata.WarmedData(nil, "ns", run.Action, time.Now(), 0, nil)
	p.proxies["c1"] = p.newProxyFor("c1")

	p.onRun(run)

	if len(p.buf) != 0 {
		t.Fatalf("expected no buffering when an exact match exists, buf=%v", p.buf)
	}
	if _, stillFree := p.freePool["c1"]; stillFree {
		t.Fatalf("expected dispatched container moved out of freePool")
	}
	if _, busy := p.busyPool["c1"]; !busy {
		t.Fatalf("expected dispatched container moved into busyPool")
	}
}

func TestOnRunFallsBackToColdCreateThenBuffersWhenBudgetExhausted(t *testing.T) {
	p := newTestPoolForHandlers()
	p.cfg.UserMemoryMB = 256
	run := testRun("f")

	p.onRun(run)
	if len(p.busyPool) != 1 {
		t.Fatalf("expected one cold-created container reserved in busyPool, got %d", len(p.busyPool))
	}

	// Budget is now exhausted; a second distinct run with no eviction
	// candidates should land in the buffer.
	run2 := testRun("g")
	p.onRun(run2)
	if len(p.buf) != 1 {
		t.Fatalf("expected second run buffered once budget is exhausted, buf=%v", p.buf)
	}
}

func TestOnRunEvictsIdleWarmContainerWhenNoCapacity(t *testing.T) {
	p := newTestPoolForHandlers()
	p.cfg.UserMemoryMB = 256
	idle := domain.Action{Namespace: "ns", Name: "idle", Limits: domain.Limits{MemoryMB: 256}}
	p.freePool["old"] = containerdata.WarmedData(nil, "ns", idle, time.Now().Add(-time.Hour), 0, nil)
	p.proxies["old"] = p.newProxyFor("old")

	run := testRun("new")
	p.onRun(run)

	if _, stillThere := p.freePool["old"]; stillThere {
		t.Fatalf("expected idle container evicted to make room")
	}
	if len(p.buf) != 0 {
		t.Fatalf("expected eviction to free enough room to dispatch, buf=%v", p.buf)
	}
}

func TestOnNeedWorkReturnsContainerToFreePoolAndClearsSharing(t *testing.T) {
	p := newTestPoolForHandlers()
	action := domain.Action{Namespace: "ns", Name: "f", Limits: domain.Limits{MemoryMB: 256, MaxConcurrent: 1}}
	data := containerdata.WarmedData(nil, "ns", action, time.Now(), 0, nil)
	p.busyPool["c1"] = data
	p.sharedPool["c1"] = struct{}{}
	p.preloadTable["c1"] = []modeltable.Model{{ModelName: "M", ModelSizeMB: 10}}

	p.onNeedWork("c1", data)

	if _, free := p.freePool["c1"]; !free {
		t.Fatalf("expected container with capacity returned to freePool")
	}
	if _, busy := p.busyPool["c1"]; busy {
		t.Fatalf("expected container removed from busyPool")
	}
	if _, shared := p.sharedPool["c1"]; shared {
		t.Fatalf("expected container dropped from sharedPool")
	}
	if _, ok := p.preloadTable["c1"]; ok {
		t.Fatalf("expected preloadTable entry removed")
	}
}

func TestOnNeedWorkKeepsOverCapacityContainerInBusyPool(t *testing.T) {
	p := newTestPoolForHandlers()
	action := domain.Action{Namespace: "ns", Name: "f", Limits: domain.Limits{MemoryMB: 256, MaxConcurrent: 1}}
	data := containerdata.WarmedData(nil, "ns", action, time.Now(), 1, nil) // activeCount == MaxConcurrent
	p.busyPool["c1"] = data

	p.onNeedWork("c1", data)

	if _, busy := p.busyPool["c1"]; !busy {
		t.Fatalf("expected over-capacity container to remain in busyPool")
	}
	if _, free := p.freePool["c1"]; free {
		t.Fatalf("expected over-capacity container not placed in freePool")
	}
}

func TestOnContainerIdleMovesToZygoteAndSharedPool(t *testing.T) {
	p := newTestPoolForHandlers()
	action := domain.Action{Namespace: "ns", Name: "f", Limits: domain.Limits{MemoryMB: 256}}
	data := containerdata.WarmedData(nil, "ns", action, time.Now(), 0, nil)
	p.freePool["c1"] = data

	p.onContainerIdle("c1", data)

	if _, free := p.freePool["c1"]; free {
		t.Fatalf("expected container removed from freePool")
	}
	if _, zygote := p.zygotePool["c1"]; !zygote {
		t.Fatalf("expected container placed in zygotePool")
	}
	if _, shared := p.sharedPool["c1"]; !shared {
		t.Fatalf("expected container placed in sharedPool")
	}
	if entries, ok := p.preloadTable["c1"]; !ok || entries != nil {
		t.Fatalf("expected an empty preloadTable entry seeded, got %v ok=%v", entries, ok)
	}
}

func TestOnStartRunMessageRehomesOrphanedModels(t *testing.T) {
	p := newTestPoolForHandlers()
	p.models.Register(modeltable.Model{ActionName: "ns/f", ModelName: "M", Lambda: 1})
	p.sharedPool["sender"] = struct{}{}
	p.sharedPool["other"] = struct{}{}
	p.preloadTable["sender"] = []modeltable.Model{{ModelName: "Orphan", ModelSizeMB: 10}}
	p.preloadTable["other"] = nil

	action := domain.Action{Namespace: "ns", Name: "f", InferenceModel: "M"}
	p.onStartRunMessage("sender", containerdata.Data{}, action)

	if _, ok := p.preloadTable["sender"]; ok {
		t.Fatalf("expected sender's preloadTable entry removed")
	}
	if _, shared := p.sharedPool["sender"]; shared {
		t.Fatalf("expected sender dropped from sharedPool")
	}
	found := false
	for _, m := range p.preloadTable["other"] {
		if m.ModelName == "Orphan" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected orphaned model re-homed onto the remaining shared container, got %v", p.preloadTable["other"])
	}
	if m, ok := p.models.FindByActionName("ns/f"); !ok || m.Lambda == 0 {
		t.Fatalf("expected lambda updated for ns/f, got %+v ok=%v", m, ok)
	}
}

func TestOnOffLoadSignalRehomesOrphanedModels(t *testing.T) {
	p := newTestPoolForHandlers()
	p.sharedPool["sender"] = struct{}{}
	p.sharedPool["other"] = struct{}{}
	p.preloadTable["sender"] = []modeltable.Model{{ModelName: "M", ModelSizeMB: 10}}
	p.preloadTable["other"] = nil

	action := domain.Action{Namespace: "ns", Name: "f"}
	p.windows.Update(action.FullyQualifiedName(), window.Windows{})

	p.onOffLoadSignal("sender", containerdata.Data{Action: action})

	if _, ok := p.preloadTable["sender"]; ok {
		t.Fatalf("expected sender's preloadTable entry removed")
	}
	found := false
	for _, m := range p.preloadTable["other"] {
		if m.ModelName == "M" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected model re-homed onto the remaining shared container, got %v", p.preloadTable["other"])
	}
}
