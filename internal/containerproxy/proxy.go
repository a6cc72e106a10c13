// Package containerproxy implements the per-container state machine actor
// of spec.md §4.1: a single goroutine owning a mailbox channel that
// serializes every operation against one backend.Container. States are
// Uninitialized -> Starting -> {Running, RunningToUser, Zygote, Removing}.
//
// Mechanism note: generalizes a single-goroutine-owns-state pattern
// (one dedicated goroutine per concern, driven off a ticker) into a full
// per-actor event loop that drives every concern for one container off a
// single mailbox, because spec.md §5 mandates a parallel, message-passing
// model with no shared mutable state between Pool and Proxy — a
// mutex+sync.Cond design over pool-wide maps does not fit a
// single-container-owning actor.
package containerproxy

import (
	"context"
	"errors"
	"time"

	"github.com/oriys/zygote/internal/activationack"
	"github.com/oriys/zygote/internal/activationstore"
	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/healthprobe"
	"github.com/oriys/zygote/internal/logcollect"
	"github.com/oriys/zygote/internal/logging"
	"github.com/oriys/zygote/internal/tracing"
)

// State is one of the FSM states spec.md §4.1 names. Started, Ready,
// Paused, Pausing exist only as legacy labels in the original design and
// are intentionally not modeled here — they were traversed as no-ops.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateRunning
	StateRunningToUser
	StateZygote
	StateRemoving
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateRunningToUser:
		return "RunningToUser"
	case StateZygote:
		return "Zygote"
	case StateRemoving:
		return "Removing"
	default:
		return "Unknown"
	}
}

// Config bundles the timing parameters a Proxy needs, all taken from the
// pool config at construction time. UnusedTimeout is fixed at
// construction; no activation's keep-alive window or per-request
// keepAliveParameter changes it.
type Config struct {
	UnusedTimeout time.Duration // RunningToUser idle timeout
	MaxConcurrent int
	HealthProbe   healthprobe.Config
}

// Proxy is a single-container actor. Construct with New and start its
// loop with Run in its own goroutine.
type Proxy struct {
	id      string
	mailbox chan message

	factory backend.Factory
	pool    PoolNotifier
	ack     activationack.Acker
	store   activationstore.Store
	logs    logcollect.Collector

	cfg Config

	state State
	data  containerdata.Data
	buf   runBuffer

	activeCount   int
	everSucceeded bool

	pendingKind     domain.Kind
	pendingMemoryMB int

	idleTimer     *time.Timer
	healthCancel  context.CancelFunc
}

// New constructs an uninitialized Proxy. id is a stable identifier (the
// eventual container ID once created, or a synthetic placeholder before
// that).
func New(id string, factory backend.Factory, pool PoolNotifier, ack activationack.Acker, store activationstore.Store, logs logcollect.Collector, cfg Config) *Proxy {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Proxy{
		id:      id,
		mailbox: make(chan message, 32),
		factory: factory,
		pool:    pool,
		ack:     ack,
		store:   store,
		logs:    logs,
		cfg:     cfg,
		state:   StateUninitialized,
		data:    containerdata.NoData(),
	}
}

func (p *Proxy) ID() string    { return p.id }
func (p *Proxy) State() State  { return p.state }

// Run drives the mailbox loop. Call in its own goroutine; returns when
// the mailbox channel is closed (after Removing completes).
func (p *Proxy) Run() {
	for msg := range p.mailbox {
		p.handle(msg)
	}
}

func (p *Proxy) send(msg message) {
	defer func() {
		// A send to a closed mailbox (Proxy already torn down) is a
		// stale message from a timer or in-flight goroutine; ignore it.
		if r := recover(); r != nil {
			logging.Op().Debug("dropped message to closed proxy mailbox", "proxy", p.id, "panic", r)
		}
	}()
	p.mailbox <- msg
}

// --- Public entry points: messages other actors send to this Proxy. ---

func (p *Proxy) Start(kind domain.Kind, memoryMB int, ttl time.Duration) {
	p.send(message{kind: msgStart, startKind: kind, startMemoryMB: memoryMB, startTTL: ttl})
}

func (p *Proxy) CreateWarmedContainer(action domain.Action, run domain.ActivationMessage) {
	p.send(message{kind: msgCreateWarmedContainer, action: action, run: &run})
}

// SpecializePrewarm binds an unspecialized prewarmed container (still
// RunningToUser/PreWarmedData) to a specific action and resumes run once
// initialization completes. The Pool calls this instead of SubmitRun
// when handing out a container taken from prewarmedPool.
func (p *Proxy) SpecializePrewarm(action domain.Action, run domain.ActivationMessage) {
	p.send(message{kind: msgSpecializePrewarm, action: action, run: &run})
}

func (p *Proxy) SubmitRun(run domain.ActivationMessage) {
	p.send(message{kind: msgRun, run: &run})
}

func (p *Proxy) LoadModelSignal(modelAction domain.Action, run domain.ActivationMessage) {
	p.send(message{kind: msgLoadModelSignal, model: modelAction, run: &run})
}

func (p *Proxy) OffLoadModelSignal(modelAction domain.Action, run domain.ActivationMessage) {
	p.send(message{kind: msgOffLoadModelSignal, model: modelAction, run: &run})
}

func (p *Proxy) Remove() {
	p.send(message{kind: msgRemove})
}

func (p *Proxy) FailureMessage(kind FailureKind, err error) {
	p.send(message{kind: msgFailure, failureKind: kind, err: err})
}

// ReportHealthFailure implements healthprobe.Reporter: the probe
// goroutine calls this after MaxFails consecutive pings fail, decoupled
// from FailureKind the same way PoolNotifier decouples containerpool
// from containerproxy's message types.
func (p *Proxy) ReportHealthFailure(err error) {
	p.FailureMessage(FailureHealthError, err)
}

// startHealthProbe launches the per-container TCP-ping loop against c's
// address: one goroutine per running container, so a failure is
// attributed to the one actor that owns it.
func (p *Proxy) startHealthProbe(c backend.Container) {
	ctx, cancel := context.WithCancel(context.Background())
	p.healthCancel = cancel
	go healthprobe.Watch(ctx, c.Addr(), p.cfg.HealthProbe, p)
}

func (p *Proxy) stopHealthProbe() {
	if p.healthCancel != nil {
		p.healthCancel()
		p.healthCancel = nil
	}
}

// handle dispatches one mailbox message against the current state,
// matching the transition table in spec.md §4.1.
func (p *Proxy) handle(msg message) {
	switch msg.kind {
	case msgStart:
		p.onStart(msg)
	case msgCreateWarmedContainer:
		p.onCreateWarmedContainer(msg)
	case msgSpecializePrewarm:
		p.onSpecializePrewarm(msg)
	case msgRun:
		p.onRun(*msg.run)
	case msgLoadModelSignal:
		p.onLoadModelSignal(msg)
	case msgOffLoadModelSignal:
		p.onOffLoadModelSignal(msg)
	case msgRemove:
		p.onRemove()
	case msgFailure:
		p.onFailure(msg)
	case msgContainerCreated:
		p.onContainerCreated(msg)
	case msgWarmInitCompleted:
		p.onWarmInitCompleted(msg)
	case msgInitCompleted:
		p.onInitCompleted(msg)
	case msgRunCompleted:
		p.onRunCompleted(msg)
	case msgIdleTimeout:
		p.onIdleTimeout()
	}
}

// onStart implements Uninitialized -> Starting via Start(exec, mem, ttl):
// create the container and become an unspecialized prewarm.
func (p *Proxy) onStart(msg message) {
	if p.state != StateUninitialized {
		return
	}
	p.state = StateStarting
	p.pendingKind = msg.startKind
	p.pendingMemoryMB = msg.startMemoryMB
	expires := time.Time{}
	if msg.startTTL > 0 {
		expires = time.Now().Add(msg.startTTL)
	}
	p.asyncCreate(context.Background(), "", "", msg.startMemoryMB, nil, purposePrewarm, domain.Action{}, nil, expires)
}

// onCreateWarmedContainer implements Uninitialized -> Starting via
// CreateWarmedContainer(action, msg): create then initialize.
func (p *Proxy) onCreateWarmedContainer(msg message) {
	if p.state != StateUninitialized {
		return
	}
	p.state = StateStarting
	action := msg.action
	run := msg.run
	p.asyncCreate(context.Background(), run.TransactionID, action.Image, action.Limits.MemoryMB, &action, purposeCreateWarmed, action, run, time.Time{})
}

// onSpecializePrewarm binds a still-unspecialized prewarmed container to
// action and initializes it, mirroring onCreateWarmedContainer's
// Starting path but starting from an already-live container instead of
// spawning a new one.
func (p *Proxy) onSpecializePrewarm(msg message) {
	if p.state != StateRunningToUser || p.data.Kind != containerdata.KindPreWarmed {
		// Stale/racy hand-off (e.g. the container has since been taken
		// or removed) bounces back to the Pool like StateRemoving does.
		p.pool.RescheduleJob(p.id, *msg.run)
		return
	}
	p.stopIdleTimer()
	c := p.data.Container
	action := msg.action
	run := *msg.run
	p.state = StateStarting
	p.data = containerdata.WarmingData(c, run.Namespace, action)
	p.asyncInitializeAndBecomeWarm(c, action, run)
}

// onRun is the single entry point for a Run event, branching on state per
// the transition table.
func (p *Proxy) onRun(run domain.ActivationMessage) {
	switch p.state {
	case StateUninitialized:
		// Cold path: create + initialize + run.
		p.state = StateStarting
		action := run.Action
		p.asyncCreate(context.Background(), run.TransactionID, action.Image, action.Limits.MemoryMB, &action, purposeColdRun, action, &run, time.Time{})

	case StateRunningToUser:
		p.stopIdleTimer()
		p.state = StateRunning
		p.activeCount++
		p.initializeAndRun(p.data.Container, p.data.Action, run, false)

	case StateZygote:
		p.stopIdleTimer()
		p.state = StateRunning
		p.activeCount++
		p.pool.StartRunMessage(p.id, p.data, run.Action)
		p.initializeAndRun(p.data.Container, run.Action, run, false)

	case StateRunning:
		if p.activeCount < p.cfg.MaxConcurrent {
			p.activeCount++
			p.initializeAndRun(p.data.Container, p.data.Action, run, false)
		} else {
			p.buf.push(run)
		}

	case StateRemoving:
		// "any Run bounces back to Pool" — container is going away.
		p.pool.RescheduleJob(p.id, run)

	default:
		p.buf.push(run)
	}
}

// initializeAndRun implements spec.md §4.1's key algorithm. skipInit is
// computed here, on the mailbox loop where reading p.data is safe, before
// the goroutine starts, since that goroutine runs concurrently with later
// mailbox messages.
func (p *Proxy) initializeAndRun(c backend.Container, action domain.Action, run domain.ActivationMessage, fromBuffer bool) {
	skipInit := p.data.Kind == containerdata.KindWarmed
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("recovered panic in initializeAndRun", "proxy", p.id, "panic", r)
			}
		}()

		ctx, span := tracing.StartSpan(context.Background(), "proxy.invoke",
			tracing.AttrProxyID.String(p.id),
			tracing.AttrActionName.String(action.Name),
			tracing.AttrNamespace.String(action.Namespace),
			tracing.AttrActivationID.String(run.ActivationID),
			tracing.AttrColdStart.Bool(!skipInit),
			tracing.AttrFromBuffer.Bool(fromBuffer),
		)
		defer span.End()

		var initInterval backend.Interval

		if !skipInit {
			body := []byte("init:" + action.FullyQualifiedName())
			iv, err := c.Initialize(ctx, body, 30*time.Second, p.cfg.MaxConcurrent, &action)
			if err != nil {
				tracing.SetSpanError(span, err)
				p.send(message{kind: msgRunCompleted, runResult: runResult{outcome: Aborted("init failed", err)}, run: &run, fromBuffer: fromBuffer})
				return
			}
			initInterval = iv
			// "immediately self-notify InitCompleted so concurrent runs
			// may proceed" — transition the data to WarmedData now,
			// before run() returns, so a concurrent onRun sees capacity.
			p.send(message{kind: msgInitCompleted, action: action})
		}

		runInterval, resp, err := c.Run(ctx, run.Payload, nil, 60*time.Second, p.cfg.MaxConcurrent, false)
		if err != nil {
			tracing.SetSpanError(span, err)
			p.send(message{kind: msgRunCompleted, runResult: runResult{outcome: Failed("run failed", err)}, run: &run, fromBuffer: fromBuffer})
			return
		}

		activation := domain.Activation{
			ActivationID:  run.ActivationID,
			TransactionID: run.TransactionID,
			Namespace:     run.Namespace,
			ActionName:    action.Name,
			InitDuration:  initInterval.Duration(),
			RunDuration:   runInterval.Duration(),
			Response:      resp.Output,
			Success:       resp.Error == "",
			ErrorMessage:  resp.Error,
		}

		// Ack + persist + collect logs: failures here are logged, not
		// state-changing, per spec.md §4.1 step 4/5.
		p.ackAndPersist(ctx, run, activation)

		if activation.Success {
			tracing.SetSpanOK(span)
		} else {
			tracing.SetSpanError(span, errors.New(activation.ErrorMessage))
		}
		p.send(message{kind: msgRunCompleted, runResult: runResult{outcome: Ok(activation)}, run: &run, fromBuffer: fromBuffer})
	}()
}

func (p *Proxy) ackAndPersist(ctx context.Context, run domain.ActivationMessage, activation domain.Activation) {
	kind := domain.AckResult
	if run.Blocking {
		kind = domain.AckCombinedCompletionAndResult
	}
	if err := p.ack.SendActiveAck(ctx, run.TransactionID, activation, run.Blocking, kind); err != nil {
		logging.Op().Warn("activation ack failed", "activation", run.ActivationID, "error", err)
	}
	if err := p.store.StoreActivation(ctx, activation); err != nil {
		logging.Op().Warn("activation persistence failed", "activation", run.ActivationID, "error", err)
	}
	if p.logs.LogsToBeCollected(run.Action) {
		if _, err := p.logs.CollectLogs(ctx, run.TransactionID, activation); err != nil {
			logging.Op().Warn("log collection failed", "activation", run.ActivationID, "error", err)
		}
	}
	logging.ActivationLog{
		ActivationID:  run.ActivationID,
		TransactionID: run.TransactionID,
		Namespace:     run.Namespace,
		ActionName:    run.Action.Name,
		ContainerID:   p.id,
		InitDuration:  activation.InitDuration,
		RunDuration:   activation.RunDuration,
		Success:       activation.Success,
	}.Emit()
}

// onInitCompleted transitions the live data to WarmedData mid-run so
// concurrent Runs under the concurrency cap can proceed without waiting
// for the first run to finish.
func (p *Proxy) onInitCompleted(msg message) {
	if p.data.Kind == containerdata.KindWarmed {
		return
	}
	c := p.data.Container
	if c == nil {
		return
	}
	p.data = containerdata.WarmedData(c, p.data.Namespace, msg.action, time.Now(), p.activeCount, nil)
}

// onRunCompleted implements the Running -> RunningToUser transition on
// success, and the failure branches of spec.md §4.1/§7 otherwise.
func (p *Proxy) onRunCompleted(msg message) {
	outcome := msg.runResult.outcome
	switch outcome.Kind {
	case OutcomeOk:
		if msg.fromBuffer {
			p.buf.resolveHead()
		}
		p.everSucceeded = true
		p.activeCount--
		p.pool.NeedWork(p.id, p.data)
		// "possibly emit PreLoadMessage" when the action is inference
		// eligible — the Pool decides the delay via the Window
		// Registry, the Proxy only forwards the fact.
		if p.data.Action.InferenceEligible() {
			p.pool.PreLoadMessage(p.id, p.data)
		}
		if p.activeCount == 0 {
			p.flushOrIdle()
		}

	case OutcomeAborted:
		// Cold-start/init failure: hand every buffered run back to the
		// Pool for rescheduling, then destroy.
		for _, r := range p.buf.drainAborted() {
			p.pool.RescheduleJob(p.id, r)
		}
		p.destroyAndReportRemoved(true)

	case OutcomeFailed:
		// Ordinary run/whisk error: reschedule the run that failed,
		// keep any other in-flight runs on this container, and only
		// move to Removing once everything has drained.
		if msg.fromBuffer {
			p.buf.resolveHead()
		}
		p.activeCount--
		if msg.run != nil {
			p.pool.RescheduleJob(p.id, *msg.run)
		}
		if !p.everSucceeded {
			// Nothing has succeeded here yet: hand buffered runs back to
			// the Pool too and destroy at once.
			for _, r := range p.buf.drainAborted() {
				p.pool.RescheduleJob(p.id, r)
			}
			p.destroyAndReportRemoved(true)
			return
		}
		if p.activeCount == 0 {
			p.destroyAndReportRemoved(false)
		}
	}
}

// flushOrIdle either resumes a buffered run (head may be resent once) or,
// if the buffer is empty, transitions Running -> RunningToUser and arms
// the idle timer.
func (p *Proxy) flushOrIdle() {
	if run, ok := p.buf.headForResend(); ok {
		p.activeCount++
		p.initializeAndRun(p.data.Container, p.data.Action, run, true)
		return
	}
	p.state = StateRunningToUser
	p.armIdleTimer(p.cfg.UnusedTimeout)
}

func (p *Proxy) armIdleTimer(d time.Duration) {
	p.stopIdleTimer()
	if d <= 0 {
		return
	}
	p.idleTimer = time.AfterFunc(d, func() { p.send(message{kind: msgIdleTimeout}) })
}

func (p *Proxy) stopIdleTimer() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

// onIdleTimeout implements RunningToUser -> Zygote (unusedTimeout) and
// Zygote -> Removing (2*unusedTimeout).
func (p *Proxy) onIdleTimeout() {
	switch p.state {
	case StateRunningToUser:
		p.state = StateZygote
		p.pool.ContainerIdle(p.id, p.data)
		p.armIdleTimer(2 * p.cfg.UnusedTimeout)
	case StateZygote:
		p.pool.OffLoadSignal(p.id, p.data)
		p.destroyAndReportRemoved(false)
	}
}

// onLoadModelSignal/onOffLoadModelSignal are fire-and-forget with respect
// to FSM state: they do not move the Proxy out of RunningToUser/Zygote,
// and any I/O error is logged only.
func (p *Proxy) onLoadModelSignal(msg message) {
	if p.state != StateRunningToUser && p.state != StateZygote {
		return
	}
	c := p.data.Container
	if c == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("recovered panic in load model signal", "proxy", p.id, "panic", r)
			}
		}()
		if err := c.Load(context.Background(), nil, nil, 30*time.Second, p.cfg.MaxConcurrent); err != nil {
			logging.Op().Warn("model load failed", "proxy", p.id, "model", msg.model.InferenceModel, "error", err)
		}
	}()
}

func (p *Proxy) onOffLoadModelSignal(msg message) {
	if p.state != StateRunningToUser && p.state != StateZygote {
		return
	}
	c := p.data.Container
	if c == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("recovered panic in offload model signal", "proxy", p.id, "panic", r)
			}
		}()
		if err := c.Offload(context.Background(), nil, nil, 30*time.Second, p.cfg.MaxConcurrent); err != nil {
			logging.Op().Warn("model offload failed", "proxy", p.id, "model", msg.model.InferenceModel, "error", err)
		}
	}()
}

// onRemove implements RunningToUser -> Removing and Zygote -> Removing
// via explicit Remove().
func (p *Proxy) onRemove() {
	switch p.state {
	case StateRunningToUser, StateZygote, StateStarting:
		p.destroyAndReportRemoved(false)
	}
}

// onFailure implements the FailureMessage branches of spec.md §4.1/§7.
func (p *Proxy) onFailure(msg message) {
	if msg.run != nil {
		p.pool.RescheduleJob(p.id, *msg.run)
	}
	switch msg.failureKind {
	case FailureHealthError:
		// reschedule current run, destroy; buffered runs rejected too.
		for _, r := range p.buf.drainAborted() {
			p.pool.RescheduleJob(p.id, r)
		}
		p.destroyAndReportRemoved(false)
	default:
		if p.activeCount <= 1 {
			p.destroyAndReportRemoved(false)
		}
		// else: defer — other in-flight runs still need to drain.
	}
}

func (p *Proxy) failStartup(err error) {
	logging.Op().Warn("container startup failed", "proxy", p.id, "error", err)
	for _, r := range p.buf.drainAborted() {
		p.pool.RescheduleJob(p.id, r)
	}
	p.pool.ContainerRemoved(p.id, true)
	p.state = StateRemoving
	close(p.mailbox)
}

func (p *Proxy) destroyAndReportRemoved(replacePrewarm bool) {
	if p.state == StateRemoving {
		return
	}
	p.state = StateRemoving
	p.stopIdleTimer()
	p.stopHealthProbe()
	c := p.data.Container
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("recovered panic in destroy", "proxy", p.id, "panic", r)
			}
		}()
		if c != nil {
			if err := c.Destroy(context.Background()); err != nil {
				logging.Op().Warn("container destroy failed", "proxy", p.id, "error", err)
			}
		}
		p.pool.ContainerRemoved(p.id, replacePrewarm)
	}()
}

// asyncCreate dispatches backend.Factory.Create on a goroutine and
// delivers the result as a self-addressed message, per spec.md §5's
// "blocking suspension points ... completion delivered as a new message
// to self". All state mutation happens later, back on the mailbox loop,
// in onContainerCreated — the goroutine itself only performs I/O.
func (p *Proxy) asyncCreate(ctx context.Context, tid, image string, memoryMB int, action *domain.Action, purpose createPurpose, purposeAction domain.Action, run *domain.ActivationMessage, expires time.Time) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("recovered panic in asyncCreate", "proxy", p.id, "panic", r)
			}
		}()
		c, err := p.factory.Create(ctx, tid, p.id, image, true, memoryMB, 1.0, 1.0, action)
		p.send(message{
			kind:             msgContainerCreated,
			purpose:          purpose,
			action:           purposeAction,
			run:              run,
			expires:          expires,
			createdContainer: containerResult{container: c, err: err},
		})
	}()
}

// onContainerCreated applies the transition for whichever call spawned
// the pending Create, running entirely on the mailbox loop.
func (p *Proxy) onContainerCreated(msg message) {
	res := msg.createdContainer
	if res.err != nil {
		p.failStartup(res.err)
		return
	}

	p.startHealthProbe(res.container)

	switch msg.purpose {
	case purposePrewarm:
		p.data = containerdata.PreWarmedData(res.container, p.pendingKind, p.pendingMemoryMB, msg.expires)
		p.state = StateRunningToUser
		p.pool.PreWarmCompleted(p.id, p.data)

	case purposeCreateWarmed:
		p.data = containerdata.WarmingData(res.container, msg.run.Namespace, msg.action)
		p.asyncInitializeAndBecomeWarm(res.container, msg.action, *msg.run)

	case purposeColdRun:
		p.data = containerdata.WarmingColdData(res.container, msg.run.Namespace, msg.action)
		p.state = StateRunning
		p.activeCount++
		p.initializeAndRun(res.container, msg.action, *msg.run, false)
	}
}

// asyncInitializeAndBecomeWarm performs the blocking Initialize call for
// the CreateWarmedContainer path and self-posts the outcome.
func (p *Proxy) asyncInitializeAndBecomeWarm(c backend.Container, action domain.Action, run domain.ActivationMessage) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("recovered panic in asyncInitializeAndBecomeWarm", "proxy", p.id, "panic", r)
			}
		}()
		_, err := c.Initialize(context.Background(), nil, 30*time.Second, p.cfg.MaxConcurrent, &action)
		if err != nil {
			p.send(message{kind: msgFailure, failureKind: FailureInitError, err: err, run: &run})
			return
		}
		p.send(message{kind: msgWarmInitCompleted, action: action, run: &run})
	}()
}

// onWarmInitCompleted finishes the CreateWarmedContainer/SpecializePrewarm
// transition: Starting -> Running, then immediately serves the run that
// triggered the specialization (skipping a redundant Initialize, since
// data is already WarmedData by the time initializeAndRun inspects it).
func (p *Proxy) onWarmInitCompleted(msg message) {
	c := p.data.Container
	action := msg.action
	p.data = containerdata.WarmedData(c, msg.run.Namespace, action, time.Now(), 0, nil)
	p.state = StateRunning
	p.activeCount++
	p.initializeAndRun(c, action, *msg.run, false)
}
