// Package containerpool implements the singleton per-invoker Container
// Pool of spec.md §4.2: the pool maps, run buffer, cold-start counters,
// and the pre-load planner. Mechanism: the Pool is a single actor
// goroutine with a buffered mailbox channel, turning a map-of-containers
// design into message-driven ownership — no pool map is ever touched
// outside the Pool's own goroutine, satisfying spec.md §5's "no shared
// mutable maps between Pool and Proxies".
package containerpool

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/zygote/internal/activationack"
	"github.com/oriys/zygote/internal/activationfeed"
	"github.com/oriys/zygote/internal/activationstore"
	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/containerproxy"
	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/fleetstate"
	"github.com/oriys/zygote/internal/healthprobe"
	"github.com/oriys/zygote/internal/logcollect"
	"github.com/oriys/zygote/internal/metrics"
	"github.com/oriys/zygote/internal/modeltable"
	"github.com/oriys/zygote/internal/window"
)

// Config bundles the Pool's tunables, sourced from internal/config.
type Config struct {
	UnusedTimeout                  time.Duration
	PrewarmExpirationCheckInterval time.Duration
	PrewarmExpirationVariance      time.Duration
	UserMemoryMB                   int
	ModelMemoryBudgetMB            int
	ColdStartThreshold             int
	RunBufferWarnInterval          time.Duration
	InvokerID                      string
	HealthProbe                    healthprobe.Config
}

// Pool owns every pool map, the run buffer, the cold-start counters, and
// the bin-packing planner. Construct with New and start its loop with Loop
// in its own goroutine.
type Pool struct {
	mailbox chan poolMessage

	factory    backend.Factory
	ack        activationack.Acker
	store      activationstore.Store
	logs       logcollect.Collector
	feed       activationfeed.Feed
	fleet      fleetstate.Publisher
	windows    *window.Registry
	models     *modeltable.Table
	metrics    *metrics.PrometheusMetrics

	cfg Config

	// pool maps, keyed by proxy (== container) ID. Exclusively owned by
	// this goroutine.
	proxies          map[string]*containerproxy.Proxy
	freePool         map[string]containerdata.Data
	busyPool         map[string]containerdata.Data
	prewarmedPool    map[string]containerdata.Data
	prewarmStarting  map[string]containerdata.Data
	zygotePool       map[string]containerdata.Data
	sharedPool       map[string]struct{} // subset of zygotePool keys

	preloadTable map[string][]modeltable.Model

	buf          []domain.ActivationMessage
	bufResent    bool
	lastBufWarn  time.Time

	coldStartCount int
	prewarmConfigs []PrewarmingConfig

	lastWarnedBufferFull time.Time

	// lastRunObserved tracks, per action key, the wall-clock time of the
	// most recent StartRunMessage — the basis for the inter-arrival-time
	// lambda estimate in onStartRunMessage.
	lastRunObserved map[string]time.Time
}

// PrewarmingConfig drives background prewarming, per spec.md §4.3.
type PrewarmingConfig struct {
	InitialCount int
	Kind         domain.Kind
	MemoryMB     int
	Reactive     *ReactivePrewarmingConfig
}

// ReactivePrewarmingConfig is the scheduled-tick formula's parameters.
type ReactivePrewarmingConfig struct {
	MinCount  int
	MaxCount  int
	Threshold int
	Increment int
}

// New constructs a Pool. Call Loop in its own goroutine to start the
// mailbox loop, and StartBackgroundLoops to start the prewarm-expiration
// and metrics tickers.
func New(factory backend.Factory, ack activationack.Acker, store activationstore.Store, logs logcollect.Collector, feed activationfeed.Feed, fleet fleetstate.Publisher, windows *window.Registry, models *modeltable.Table, m *metrics.PrometheusMetrics, cfg Config, prewarmConfigs []PrewarmingConfig) *Pool {
	return &Pool{
		mailbox:         make(chan poolMessage, 256),
		factory:         factory,
		ack:             ack,
		store:           store,
		logs:            logs,
		feed:            feed,
		fleet:           fleet,
		windows:         windows,
		models:          models,
		metrics:         m,
		cfg:             cfg,
		proxies:         make(map[string]*containerproxy.Proxy),
		freePool:        make(map[string]containerdata.Data),
		busyPool:        make(map[string]containerdata.Data),
		prewarmedPool:   make(map[string]containerdata.Data),
		prewarmStarting: make(map[string]containerdata.Data),
		zygotePool:      make(map[string]containerdata.Data),
		sharedPool:      make(map[string]struct{}),
		preloadTable:    make(map[string][]modeltable.Model),
		prewarmConfigs:  prewarmConfigs,
		lastRunObserved: make(map[string]time.Time),
	}
}

// newProxyFor constructs a fresh Proxy wired to this Pool's shared
// collaborators, keyed by a not-yet-existent container id.
func (p *Pool) newProxyFor(id string) *containerproxy.Proxy {
	return containerproxy.New(id, p.factory, p, p.ack, p.store, p.logs, containerproxy.Config{
		UnusedTimeout: p.cfg.UnusedTimeout,
		HealthProbe:   p.cfg.HealthProbe,
	})
}

func (p *Pool) send(msg poolMessage) {
	p.mailbox <- msg
}

// Loop drives the mailbox loop. Call in its own goroutine.
func (p *Pool) Loop() {
	for msg := range p.mailbox {
		p.handle(msg)
	}
}

// StartBackgroundLoops starts the prewarm-expiration ticker. Per spec.md
// §9's first open question, adjustPrewarmedContainer(true, false) runs
// unconditionally once here regardless of whether prewarmConfigs is
// empty; the scheduled ticker only starts when a reactive config exists,
// preserved verbatim rather than rationalized away.
func (p *Pool) StartBackgroundLoops(ctx context.Context) {
	p.send(poolMessage{kind: pmAdjustPrewarmedContainer, adjustInit: true, adjustReactive: false})

	hasReactive := false
	for _, c := range p.prewarmConfigs {
		if c.Reactive != nil {
			hasReactive = true
			break
		}
	}
	if hasReactive {
		go p.prewarmTickLoop(ctx)
	}
	go p.metricsTickLoop(ctx)
}

// prewarmTickLoop fires the periodic sweep at
// prewarmExpirationCheckInterval plus/minus a uniform random variance,
// per spec.md §4.3, re-randomized each cycle so restarts don't
// synchronize across invokers.
func (p *Pool) prewarmTickLoop(ctx context.Context) {
	base := p.cfg.PrewarmExpirationCheckInterval
	if base <= 0 {
		base = 60 * time.Second
	}
	variance := p.cfg.PrewarmExpirationVariance

	timer := time.NewTimer(jitter(base, variance))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.send(poolMessage{kind: pmAdjustPrewarmedContainer, adjustInit: false, adjustReactive: true})
			timer.Reset(jitter(base, variance))
		}
	}
}

func jitter(base, variance time.Duration) time.Duration {
	if variance <= 0 {
		return base
	}
	delta := time.Duration(rand.Int63n(int64(2*variance))) - variance
	d := base + delta
	if d < 0 {
		return 0
	}
	return d
}

func (p *Pool) metricsTickLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.send(poolMessage{kind: pmEmitMetrics})
		}
	}
}

// Run submits a new activation to the Pool for scheduling. Public entry
// point, analogous to containerproxy.Proxy.SubmitRun.
func (p *Pool) Run(run domain.ActivationMessage) {
	p.send(poolMessage{kind: pmRun, run: run})
}

// Stats returns a point-in-time snapshot of pool occupancy, routed
// through the mailbox like every other read of pool state.
func (p *Pool) Stats() Stats {
	resp := make(chan Stats, 1)
	p.send(poolMessage{kind: pmStatsRequest, statsResp: resp})
	return <-resp
}

func newProxyID() string {
	return uuid.NewString()
}
