package modeltable

import (
	"math"
	"testing"
)

func TestUpdateAllDerived(t *testing.T) {
	tb := New()
	tb.Register(Model{ActionName: "ptest04", ModelName: "ResNet50", ModelLoadingLatency: 800, Lambda: 0.1})
	tb.Register(Model{ActionName: "ptest05", ModelName: "BERT", ModelLoadingLatency: 1200, Lambda: 0.05})

	tb.UpdateAllDerived(1.0)

	m, ok := tb.FindByActionName("ptest04")
	if !ok {
		t.Fatalf("expected ptest04 registered")
	}
	wantProb := 1 - math.Exp(-0.1*1.0)
	if math.Abs(m.ArrivalProbability-wantProb) > 1e-9 {
		t.Fatalf("ArrivalProbability = %v, want %v", m.ArrivalProbability, wantProb)
	}
	wantLatency := wantProb * 800
	if math.Abs(m.ExpectedSavedLatency-wantLatency) > 1e-9 {
		t.Fatalf("ExpectedSavedLatency = %v, want %v", m.ExpectedSavedLatency, wantLatency)
	}
}

func TestUpdateLambdaThenDerive(t *testing.T) {
	tb := New()
	tb.Register(Model{ActionName: "a1", ModelLoadingLatency: 500, Lambda: 0})
	tb.UpdateLambda("a1", 0.2)
	tb.UpdateAllDerived(2.0)

	m, _ := tb.FindByActionName("a1")
	want := 1 - math.Exp(-0.2*2.0)
	if math.Abs(m.ArrivalProbability-want) > 1e-9 {
		t.Fatalf("ArrivalProbability = %v, want %v", m.ArrivalProbability, want)
	}
}

func TestFindByActionNameMissing(t *testing.T) {
	tb := New()
	if _, ok := tb.FindByActionName("nope"); ok {
		t.Fatalf("expected missing model to report ok=false")
	}
}
