// Package containerdata implements the tagged-variant ContainerData the
// Design Notes call for in place of a deep inheritance hierarchy
// (spec.md §9): NoData | MemoryData | PreWarmedData | WarmingData |
// WarmingColdData | WarmedData, each carrying its own fields explicitly.
// hasCapacity and nextRun are pure functions over the variant.
package containerdata

import (
	"time"

	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/domain"
)

// Kind tags which variant a Data value holds.
type Kind int

const (
	KindNoData Kind = iota
	KindMemoryData
	KindPreWarmed
	KindWarming
	KindWarmingCold
	KindWarmed
)

func (k Kind) String() string {
	switch k {
	case KindNoData:
		return "NoData"
	case KindMemoryData:
		return "MemoryData"
	case KindPreWarmed:
		return "PreWarmedData"
	case KindWarming:
		return "WarmingData"
	case KindWarmingCold:
		return "WarmingColdData"
	case KindWarmed:
		return "WarmedData"
	default:
		return "Unknown"
	}
}

// Data is the algebraic state of a managed container. Only the fields
// relevant to Kind are meaningful; the others are zero. An explicit
// struct reads better than interface-based polymorphism when the
// variant set is small and closed.
type Data struct {
	Kind Kind

	Container     backend.Container // nil for NoData/MemoryData
	Kind_         domain.Kind       // exec kind, for PreWarmedData/WarmingData shape matching
	MemoryMB      int
	Expires       time.Time // PreWarmedData TTL; zero means no expiry
	Namespace     string
	Action        domain.Action
	LastUsed      time.Time
	ActiveCount   int
	ResumeRun     *domain.ActivationMessage // WarmedData: a buffered run to resume immediately after becoming warm
}

// NoData is the cold/unstarted state: no container exists yet.
func NoData() Data { return Data{Kind: KindNoData} }

// MemoryData reserves a memory allotment without a container, used while
// a cold-create is in flight so the memory budget accounts for it.
func MemoryData(memoryMB int) Data {
	return Data{Kind: KindMemoryData, MemoryMB: memoryMB}
}

// PreWarmedData is a started-but-unspecialized container, possibly with a
// TTL after which it is recycled.
func PreWarmedData(c backend.Container, kind domain.Kind, memoryMB int, expires time.Time) Data {
	return Data{Kind: KindPreWarmed, Container: c, Kind_: kind, MemoryMB: memoryMB, Expires: expires}
}

// WarmingData is a container in the process of being initialized for a
// specific (namespace, action).
func WarmingData(c backend.Container, ns string, action domain.Action) Data {
	return Data{Kind: KindWarming, Container: c, Namespace: ns, Action: action}
}

// WarmingColdData is WarmingData reached via the cold-create path
// (no pre-existing container was reused).
func WarmingColdData(c backend.Container, ns string, action domain.Action) Data {
	return Data{Kind: KindWarmingCold, Container: c, Namespace: ns, Action: action}
}

// WarmedData is a specialized, reusable container for ns+action.
func WarmedData(c backend.Container, ns string, action domain.Action, lastUsed time.Time, activeCount int, resumeRun *domain.ActivationMessage) Data {
	return Data{
		Kind:        KindWarmed,
		Container:   c,
		Namespace:   ns,
		Action:      action,
		LastUsed:    lastUsed,
		ActiveCount: activeCount,
		ResumeRun:   resumeRun,
	}
}

// HasCapacity reports whether this container can accept another
// concurrent Run, per spec.md §3's "activeActivationCount ≤
// action.limits.maxConcurrent" invariant. Cold variants always report
// capacity (a new container will be created to serve the request).
func (d Data) HasCapacity() bool {
	switch d.Kind {
	case KindNoData, KindMemoryData:
		return true
	case KindWarmed:
		return d.ActiveCount < d.Action.Limits.MaxConcurrent
	default:
		// PreWarmedData/WarmingData/WarmingColdData are mid-transition;
		// the proxy buffers concurrent runs against them until they
		// settle into WarmedData.
		return false
	}
}

// NextRun returns the buffered resume run attached to a WarmedData
// variant, if any, together with a copy of the Data with that run
// cleared.
func (d Data) NextRun() (*domain.ActivationMessage, Data) {
	if d.Kind != KindWarmed || d.ResumeRun == nil {
		return nil, d
	}
	run := d.ResumeRun
	d.ResumeRun = nil
	return run, d
}

// Matches reports whether this container is a WarmedData, WarmingData or
// WarmingColdData for the exact (namespace, action) pair schedule() is looking for.
func (d Data) Matches(ns string, action domain.Action) bool {
	switch d.Kind {
	case KindWarmed, KindWarming, KindWarmingCold:
		return d.Namespace == ns && d.Action.FullyQualifiedName() == action.FullyQualifiedName()
	default:
		return false
	}
}
