package containerproxy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/healthprobe"
)

// fakeContainer is a backend.Container whose Run call can be held open
// (to simulate an in-flight run) and whose per-call outcome is scripted
// by index, mirroring containerpool/fakes_test.go's fakeContainer.
type fakeContainer struct {
	id string

	mu       sync.Mutex
	runCalls int
	holdCall int           // index of the Run call to block until released; -1 disables
	holdAll  bool          // if true every Run call blocks until released, not just holdCall
	hold     chan struct{} // closed to release held call(s)
	errAt    map[int]error // call index -> error to return from Run
}

func (c *fakeContainer) ID() string   { return c.id }
func (c *fakeContainer) Addr() string { return "127.0.0.1:0" }

func (c *fakeContainer) Initialize(ctx context.Context, body []byte, timeout time.Duration, maxConcurrent int, action *domain.Action) (backend.Interval, error) {
	return backend.Interval{Start: time.Now(), End: time.Now()}, nil
}

func (c *fakeContainer) Run(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int, reschedule bool) (backend.Interval, backend.ActivationResponse, error) {
	c.mu.Lock()
	idx := c.runCalls
	c.runCalls++
	hold := c.hold
	shouldHold := c.holdAll || c.holdCall == idx
	err := c.errAt[idx]
	c.mu.Unlock()

	if shouldHold && hold != nil {
		<-hold
	}

	if err != nil {
		return backend.Interval{}, backend.ActivationResponse{}, err
	}
	return backend.Interval{Start: time.Now(), End: time.Now()}, backend.ActivationResponse{Output: json.RawMessage("{}")}, nil
}

func (c *fakeContainer) Load(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error {
	return nil
}

func (c *fakeContainer) Offload(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error {
	return nil
}

func (c *fakeContainer) Destroy(ctx context.Context) error { return nil }

func (c *fakeContainer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runCalls
}

type fakeFactory struct {
	container *fakeContainer
}

func (f *fakeFactory) Create(ctx context.Context, tid, name, image string, pull bool, memoryMB int, cpuShare, cpuLimit float64, action *domain.Action) (backend.Container, error) {
	return f.container, nil
}

type fakeAcker struct{}

func (fakeAcker) SendActiveAck(ctx context.Context, transactionID string, activation domain.Activation, blocking bool, kind domain.AckKind) error {
	return nil
}

type fakeStore struct{}

func (fakeStore) StoreActivation(ctx context.Context, activation domain.Activation) error { return nil }

type fakeLogs struct{}

func (fakeLogs) LogsToBeCollected(action domain.Action) bool { return false }

func (fakeLogs) CollectLogs(ctx context.Context, transactionID string, activation domain.Activation) (backend.ActivationResponse, error) {
	return backend.ActivationResponse{}, nil
}

// fakePool records every PoolNotifier call a Proxy under test makes, so
// tests can assert on fan-out without a real containerpool.Pool.
type fakePool struct {
	mu sync.Mutex

	needWork        int
	containerIdle   int
	preWarmComplete int
	startRun        int
	preLoad         int
	offLoadSignal   int
	removed         []bool
	rescheduled     []domain.ActivationMessage
}

func (p *fakePool) NeedWork(proxyID string, data containerdata.Data) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.needWork++
}

func (p *fakePool) ContainerIdle(proxyID string, data containerdata.Data) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.containerIdle++
}

func (p *fakePool) PreWarmCompleted(proxyID string, data containerdata.Data) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preWarmComplete++
}

func (p *fakePool) StartRunMessage(proxyID string, data containerdata.Data, action domain.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startRun++
}

func (p *fakePool) PreLoadMessage(proxyID string, data containerdata.Data) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preLoad++
}

func (p *fakePool) OffLoadSignal(proxyID string, data containerdata.Data) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offLoadSignal++
}

func (p *fakePool) ContainerRemoved(proxyID string, replacePrewarm bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, replacePrewarm)
}

func (p *fakePool) RescheduleJob(proxyID string, msg domain.ActivationMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rescheduled = append(p.rescheduled, msg)
}

func (p *fakePool) removedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.removed)
}

func (p *fakePool) rescheduledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rescheduled)
}

func noProbeConfig() Config {
	// CheckPeriod longer than any test's wall-clock budget keeps
	// healthprobe.Watch's ticker from ever firing during the test.
	return Config{MaxConcurrent: 1, HealthProbe: healthprobe.Config{CheckPeriod: time.Hour}}
}

func newTestProxy(container *fakeContainer, pool *fakePool, cfg Config) *Proxy {
	p := New("proxy-1", &fakeFactory{container: container}, pool, fakeAcker{}, fakeStore{}, fakeLogs{}, cfg)
	go p.Run()
	return p
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func testAction() domain.Action {
	return domain.Action{Namespace: "ns", Name: "fn", Limits: domain.Limits{MaxConcurrent: 4}}
}

func testRun(id string) domain.ActivationMessage {
	return domain.ActivationMessage{
		ActivationID:  id,
		TransactionID: id,
		Namespace:     "ns",
		Action:        testAction(),
	}
}

// A cold SubmitRun on an Uninitialized proxy creates a container, runs
// the activation, and settles into RunningToUser once it drains.
func TestColdRunReachesRunningToUser(t *testing.T) {
	container := &fakeContainer{id: "c1", holdCall: -1}
	pool := &fakePool{}
	cfg := noProbeConfig()
	p := newTestProxy(container, pool, cfg)

	p.SubmitRun(testRun("a1"))

	waitUntil(t, time.Second, func() bool { return p.State() == StateRunningToUser })

	if got := container.callCount(); got != 1 {
		t.Fatalf("expected 1 Run call, got %d", got)
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if pool.needWork != 1 {
		t.Fatalf("expected NeedWork called once, got %d", pool.needWork)
	}
}

// The idle timer chain drives RunningToUser -> Zygote -> Removing, firing
// ContainerIdle on the first hop and OffLoadSignal before teardown.
func TestIdleTimeoutDrivesZygoteThenRemoving(t *testing.T) {
	container := &fakeContainer{id: "c1", holdCall: -1}
	pool := &fakePool{}
	cfg := noProbeConfig()
	cfg.UnusedTimeout = 15 * time.Millisecond
	p := newTestProxy(container, pool, cfg)

	p.SubmitRun(testRun("a1"))
	waitUntil(t, time.Second, func() bool { return p.State() == StateRunningToUser })

	waitUntil(t, time.Second, func() bool { return p.State() == StateZygote })
	pool.mu.Lock()
	if pool.containerIdle != 1 {
		t.Fatalf("expected ContainerIdle called once entering Zygote, got %d", pool.containerIdle)
	}
	pool.mu.Unlock()

	waitUntil(t, time.Second, func() bool { return p.State() == StateRemoving })
	pool.mu.Lock()
	offloads := pool.offLoadSignal
	pool.mu.Unlock()
	if offloads != 1 {
		t.Fatalf("expected OffLoadSignal fired before teardown, got %d", offloads)
	}
	waitUntil(t, time.Second, func() bool { return pool.removedCount() == 1 })
}

// Three runs queued against a MaxConcurrent=1 container must all
// eventually execute: the active run, then the buffer head resent once
// per capacity event, then (after the fix) the next buffered run once the
// previous resend resolves. Before the fix, resolveHead was never called,
// resent latched true forever, and the third run was silently stranded.
func TestBufferedRunsAllDispatchedAcrossCapacityEvents(t *testing.T) {
	container := &fakeContainer{id: "c1", holdCall: 0, hold: make(chan struct{})}
	pool := &fakePool{}
	cfg := noProbeConfig()
	cfg.MaxConcurrent = 1
	p := newTestProxy(container, pool, cfg)

	p.SubmitRun(testRun("a1"))
	waitUntil(t, time.Second, func() bool { return p.State() == StateRunning })

	// a2 and a3 arrive while a1 is still held in Run(); both must queue
	// into the buffer since activeCount already equals MaxConcurrent.
	p.SubmitRun(testRun("a2"))
	p.SubmitRun(testRun("a3"))
	time.Sleep(30 * time.Millisecond)

	close(container.hold)

	waitUntil(t, time.Second, func() bool { return p.State() == StateRunningToUser })

	if got := container.callCount(); got != 3 {
		t.Fatalf("expected all 3 runs to reach Run(), got %d (buffered runs beyond the first were stranded)", got)
	}
	if n := p.buf.len(); n != 0 {
		t.Fatalf("expected run buffer drained to empty, got %d items left", n)
	}
	if p.buf.resent {
		t.Fatalf("expected resent latch cleared once the buffer drains")
	}
}

// An ordinary Run() error on the container's only in-flight run
// reschedules that run and destroys the container once activeCount has
// drained to zero.
func TestRunErrorReschedulesAndTearsDownOnceDrained(t *testing.T) {
	runErr := errors.New("whisk error")
	container := &fakeContainer{
		id:       "c1",
		holdCall: -1,
		errAt:    map[int]error{0: runErr},
	}
	pool := &fakePool{}
	cfg := noProbeConfig()
	cfg.MaxConcurrent = 1
	p := newTestProxy(container, pool, cfg)

	p.SubmitRun(testRun("a1"))

	waitUntil(t, time.Second, func() bool { return pool.rescheduledCount() == 1 })
	waitUntil(t, time.Second, func() bool { return p.State() == StateRemoving })

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if len(pool.rescheduled) != 1 || pool.rescheduled[0].ActivationID != "a1" {
		t.Fatalf("expected a1 to be rescheduled after its run error, got %+v", pool.rescheduled)
	}
}

// A health-probe failure tears the container all the way down immediately
// even with two runs still in flight, unlike an ordinary run-level
// failure message, which defers teardown until the container drains.
func TestHealthFailureDestroysImmediatelyRegardlessOfInFlightRuns(t *testing.T) {
	container := &fakeContainer{id: "c1", holdCall: -1, holdAll: true, hold: make(chan struct{})}
	pool := &fakePool{}
	cfg := noProbeConfig()
	cfg.MaxConcurrent = 2
	p := newTestProxy(container, pool, cfg)

	p.SubmitRun(testRun("a1"))
	waitUntil(t, time.Second, func() bool { return p.State() == StateRunning })

	// a2 takes the second concurrency slot; both a1 and a2 now sit
	// blocked inside Run(), so activeCount is 2 when the health failure
	// arrives.
	p.SubmitRun(testRun("a2"))
	time.Sleep(20 * time.Millisecond)

	p.ReportHealthFailure(errors.New("ping timeout"))

	waitUntil(t, time.Second, func() bool { return p.State() == StateRemoving })
	waitUntil(t, time.Second, func() bool { return pool.removedCount() == 1 })

	close(container.hold) // release a1/a2 so their goroutines don't leak past the test
}

// An ordinary FailureRunError on a container with two in-flight runs
// defers teardown: the Proxy stays put until FailureMessage's own
// bookkeeping (activeCount <= 1) says it is safe to destroy, in contrast
// with the health-failure case above which never waits.
func TestOrdinaryFailureMessageDefersWhileOtherRunInFlight(t *testing.T) {
	container := &fakeContainer{id: "c1", holdCall: -1, holdAll: true, hold: make(chan struct{})}
	pool := &fakePool{}
	cfg := noProbeConfig()
	cfg.MaxConcurrent = 2
	p := newTestProxy(container, pool, cfg)

	p.SubmitRun(testRun("a1"))
	waitUntil(t, time.Second, func() bool { return p.State() == StateRunning })
	p.SubmitRun(testRun("a2"))
	time.Sleep(20 * time.Millisecond)

	p.FailureMessage(FailureRunError, errors.New("agent reported a fault"))

	// activeCount is still 2 (neither run has completed), so the default
	// branch of onFailure must defer rather than destroy.
	time.Sleep(20 * time.Millisecond)
	if p.State() == StateRemoving {
		t.Fatalf("expected teardown to defer while a second run is still in flight")
	}

	close(container.hold)
	waitUntil(t, time.Second, func() bool { return p.State() == StateRunningToUser })
}
