package containerdata

import (
	"testing"
	"time"

	"github.com/oriys/zygote/internal/domain"
)

func TestHasCapacityVariants(t *testing.T) {
	if !NoData().HasCapacity() {
		t.Fatalf("NoData should always have capacity")
	}
	if !MemoryData(512).HasCapacity() {
		t.Fatalf("MemoryData should always have capacity")
	}

	action := domain.Action{Namespace: "ns", Name: "a1", Limits: domain.Limits{MaxConcurrent: 2}}
	warmed := WarmedData(nil, "ns", action, time.Now(), 1, nil)
	if !warmed.HasCapacity() {
		t.Fatalf("expected capacity at 1/2 active")
	}
	warmed.ActiveCount = 2
	if warmed.HasCapacity() {
		t.Fatalf("expected no capacity at 2/2 active")
	}
}

func TestMatches(t *testing.T) {
	action := domain.Action{Namespace: "ns", Name: "a1"}
	warmed := WarmedData(nil, "ns", action, time.Now(), 0, nil)
	if !warmed.Matches("ns", action) {
		t.Fatalf("expected match")
	}
	other := domain.Action{Namespace: "ns", Name: "a2"}
	if warmed.Matches("ns", other) {
		t.Fatalf("expected no match for different action")
	}
}

func TestNextRunClearsResumeRun(t *testing.T) {
	action := domain.Action{Namespace: "ns", Name: "a1"}
	msg := &domain.ActivationMessage{ActivationID: "act-1"}
	warmed := WarmedData(nil, "ns", action, time.Now(), 0, msg)

	run, next := warmed.NextRun()
	if run == nil || run.ActivationID != "act-1" {
		t.Fatalf("expected resume run act-1, got %+v", run)
	}
	if run2, _ := next.NextRun(); run2 != nil {
		t.Fatalf("expected resume run cleared after first NextRun call")
	}
}
