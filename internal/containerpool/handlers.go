package containerpool

import (
	"context"
	"math/rand"
	"time"

	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/logging"
	"github.com/oriys/zygote/internal/tracing"
	"github.com/oriys/zygote/internal/window"
)

// handle dispatches a single mailbox message. Every handler below runs on
// the Pool's own goroutine — none may block on I/O; asynchronous
// follow-ups are scheduled with time.AfterFunc and posted back as new
// mailbox messages, the same message-to-self discipline containerproxy
// uses for blocking work.
func (p *Pool) handle(msg poolMessage) {
	switch msg.kind {
	case pmRun:
		p.onRun(msg.run)
	case pmNeedWork:
		p.onNeedWork(msg.proxyID, msg.data)
	case pmContainerIdle:
		p.onContainerIdle(msg.proxyID, msg.data)
	case pmStartRunMessage:
		p.onStartRunMessage(msg.proxyID, msg.data, msg.action)
	case pmPreLoadMessage:
		p.onPreLoadMessage(msg.proxyID, msg.data)
	case pmOffLoadSignal:
		p.onOffLoadSignal(msg.proxyID, msg.data)
	case pmContainerRemoved:
		p.onContainerRemoved(msg.proxyID, msg.replacePrewarm)
	case pmRescheduleJob:
		p.onRescheduleJob(msg.proxyID, msg.run)
	case pmEmitMetrics:
		p.onEmitMetrics()
	case pmAdjustPrewarmedContainer:
		p.onAdjustPrewarmedContainer(msg.adjustInit, msg.adjustReactive)
	case pmPreWarmCompleted:
		p.onPreWarmCompleted(msg.proxyID, msg.data)
	case pmDelayedPreload:
		p.onDelayedPreload(msg.modelActionName)
	case pmDelayedOffload:
		p.onDelayedOffload(msg.proxyID, msg.modelActionName)
	case pmStatsRequest:
		p.onStatsRequest(msg.statsResp)
	}
}

func (p *Pool) onStatsRequest(resp chan Stats) {
	resp <- Stats{
		Free:            len(p.freePool),
		Busy:            len(p.busyPool),
		Prewarmed:       len(p.prewarmedPool),
		PrewarmStarting: len(p.prewarmStarting),
		Zygote:          len(p.zygotePool),
		Shared:          len(p.sharedPool),
		BufferDepth:     len(p.buf),
		PreloadActions:  len(p.preloadTable),
		ColdStartCount:  p.coldStartCount,
	}
}

// onRun is the Run event handler: schedule, fall through
// prewarm/create/evict, or buffer.
func (p *Pool) onRun(run domain.ActivationMessage) {
	action := run.Action
	actionKey := action.FullyQualifiedName()
	p.windows.Update(actionKey, windowsFromRun(run))

	_, span := tracing.StartSpan(context.Background(), "pool.schedule",
		tracing.AttrActionName.String(action.Name),
		tracing.AttrNamespace.String(run.Namespace),
		tracing.AttrActivationID.String(run.ActivationID),
	)
	defer span.End()

	if p.tryDispatch(run) {
		tracing.SetSpanOK(span)
		return
	}

	victims := p.remove(action.Limits.MemoryMB)
	if len(victims) > 0 {
		for _, id := range victims {
			p.destroyFreeContainer(id)
		}
		if p.metrics != nil {
			p.metrics.EvictionsTotal.Add(float64(len(victims)))
		}
		if p.tryDispatch(run) {
			tracing.SetSpanOK(span)
			return
		}
	}

	p.bufferRun(run)
}

// tryDispatch attempts schedule -> prewarm -> cold-create, in that
// order, without touching the run buffer. Returns false if none
// succeeded (caller decides whether to evict-and-retry or buffer).
func (p *Pool) tryDispatch(run domain.ActivationMessage) bool {
	ns := run.Namespace
	action := run.Action

	if id, ok := p.schedule(ns, action); ok {
		p.dispatchTo(id, run)
		return true
	}
	if id, ok := p.takePrewarmContainer(action); ok {
		p.dispatchToPrewarm(id, action, run)
		return true
	}
	return p.tryColdCreate(ns, action, run)
}

// dispatchTo hands a run to an already-specialized container's proxy
// (an exact WarmedData/WarmingData/WarmingColdData match from schedule,
// or a sharedPool/Zygote container chosen via the pre-load hit) and
// moves its bookkeeping entry from freePool to busyPool when it wasn't
// already there.
func (p *Pool) dispatchTo(id string, run domain.ActivationMessage) {
	if d, ok := p.freePool[id]; ok {
		delete(p.freePool, id)
		p.busyPool[id] = d
	}
	if proxy, ok := p.proxies[id]; ok {
		proxy.SubmitRun(run)
	}
	p.publishBusyPoolSize()
}

// dispatchToPrewarm hands a run to a still-unspecialized prewarmed
// container, which must bind to action before it can execute anything.
func (p *Pool) dispatchToPrewarm(id string, action domain.Action, run domain.ActivationMessage) {
	if d, ok := p.freePool[id]; ok {
		delete(p.freePool, id)
		p.busyPool[id] = d
	}
	if proxy, ok := p.proxies[id]; ok {
		proxy.SpecializePrewarm(action, run)
	}
	p.publishBusyPoolSize()
}

// tryColdCreate creates a brand-new proxy and container if the memory
// budget allows, reserving a MemoryData placeholder in busyPool so
// concurrent scheduling decisions see the commitment immediately.
func (p *Pool) tryColdCreate(ns string, action domain.Action, run domain.ActivationMessage) bool {
	if !p.budgetAllows(action.Limits.MemoryMB) {
		return false
	}
	id := newProxyID()
	proxy := p.newProxyFor(id)
	p.proxies[id] = proxy
	p.busyPool[id] = containerdata.MemoryData(action.Limits.MemoryMB)
	go proxy.Run()
	proxy.CreateWarmedContainer(action, run)
	if p.metrics != nil {
		p.metrics.ColdStartsTotal.Inc()
	}
	p.coldStartCount++
	return true
}

func (p *Pool) budgetAllows(memoryMB int) bool {
	committed := 0
	for _, d := range p.freePool {
		committed += commitMemory(d)
	}
	for _, d := range p.busyPool {
		committed += commitMemory(d)
	}
	for _, d := range p.prewarmedPool {
		committed += commitMemory(d)
	}
	for _, d := range p.prewarmStarting {
		committed += commitMemory(d)
	}
	budget := p.cfg.UserMemoryMB
	if budget <= 0 {
		return true
	}
	return committed+memoryMB <= budget
}

func commitMemory(d containerdata.Data) int {
	switch d.Kind {
	case containerdata.KindMemoryData, containerdata.KindPreWarmed:
		return d.MemoryMB
	case containerdata.KindWarming, containerdata.KindWarmingCold, containerdata.KindWarmed:
		return d.Action.Limits.MemoryMB
	default:
		return 0
	}
}

// destroyFreeContainer removes an idle warm container chosen by remove()
// and tells its proxy to tear down.
func (p *Pool) destroyFreeContainer(id string) {
	delete(p.freePool, id)
	delete(p.sharedPool, id)
	delete(p.preloadTable, id)
	if proxy, ok := p.proxies[id]; ok {
		proxy.Remove()
	}
}

// bufferRun appends to the run buffer with a rate-limited warning, per
// spec.md §4.2's buffer discipline.
func (p *Pool) bufferRun(run domain.ActivationMessage) {
	p.buf = append(p.buf, run)
	if p.metrics != nil {
		p.metrics.RunBufferDepth.Set(float64(len(p.buf)))
	}
	if time.Since(p.lastWarnedBufferFull) > p.warnInterval() {
		logging.Op().Warn("run buffer growing; no capacity and eviction found no candidate",
			"action", run.Action.FullyQualifiedName(), "buffer_depth", len(p.buf))
		p.lastWarnedBufferFull = time.Now()
	}
}

func (p *Pool) warnInterval() time.Duration {
	if p.cfg.RunBufferWarnInterval > 0 {
		return p.cfg.RunBufferWarnInterval
	}
	return 10 * time.Second
}

// processBufferOrFeed re-injects the buffered head (only the head may be
// resent, and only once at a time — bufResent tracks that in-flight
// attempt so NeedWork arriving again before it resolves doesn't
// duplicate it) or, failing that, asks the external feed for the next
// item. Since the Pool is a single-threaded actor, "in-flight" here
// spans exactly this call: tryDispatch resolves synchronously.
func (p *Pool) processBufferOrFeed() {
	if len(p.buf) > 0 {
		if p.bufResent {
			return
		}
		p.bufResent = true
		head := p.buf[0]
		if p.tryDispatch(head) {
			p.buf = p.buf[1:]
			if p.metrics != nil {
				p.metrics.RunBufferDepth.Set(float64(len(p.buf)))
			}
		}
		p.bufResent = false
		return
	}
	if p.feed == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if run, ok := p.feed.Next(ctx); ok {
		p.send(poolMessage{kind: pmRun, run: run})
	}
}

func windowsFromRun(run domain.ActivationMessage) window.Windows {
	return window.Windows{
		PreWarm:   time.Duration(run.PreWarmParameter) * time.Minute,
		KeepAlive: time.Duration(run.KeepAliveParameter) * time.Minute,
		PreLoad:   time.Duration(run.PreLoadParameter) * time.Minute,
		OffLoad:   time.Duration(run.OffLoadParameter) * time.Minute,
	}
}

// onNeedWork handles the "execution just finished on a warm container"
// path: mark the sender back into freePool (or busyPool if still over
// cap), drop it from sharedPool/preloadTable, publish, and if its action
// is inference-eligible immediately trigger pre-loading of its own
// model (no delay).
func (p *Pool) onNeedWork(proxyID string, data containerdata.Data) {
	delete(p.busyPool, proxyID)
	delete(p.freePool, proxyID)
	if data.HasCapacity() {
		p.freePool[proxyID] = data
	} else {
		p.busyPool[proxyID] = data
	}
	delete(p.sharedPool, proxyID)
	delete(p.preloadTable, proxyID)
	p.publishPreLoadTable()
	p.publishBusyPoolSize()

	if data.Action.InferenceEligible() {
		if model, ok := p.models.FindByActionName(data.Action.FullyQualifiedName()); ok {
			if target := p.binPacking(model); target != "" {
				p.placeModel(target, model)
			}
		}
	}

	p.processBufferOrFeed()
}

// onContainerIdle: sender transitioned to zygote. Place into sharedPool
// with an empty preload entry, then for every model not yet hosted
// anywhere schedule a staggered BinPacking attempt.
func (p *Pool) onContainerIdle(proxyID string, data containerdata.Data) {
	delete(p.freePool, proxyID)
	delete(p.busyPool, proxyID)
	p.zygotePool[proxyID] = data
	p.sharedPool[proxyID] = struct{}{}
	if _, ok := p.preloadTable[proxyID]; !ok {
		p.preloadTable[proxyID] = nil
	}

	for _, model := range p.models.All() {
		if p.modelHostedAnywhere(model.ModelName) {
			continue
		}
		m := model
		delay := time.Duration(100+rand.Intn(2000)) * time.Millisecond
		time.AfterFunc(delay, func() {
			p.send(poolMessage{kind: pmDelayedPreload, modelActionName: m.ActionName})
		})
	}

	p.models.UpdateAllDerived(1)
}

func (p *Pool) modelHostedAnywhere(modelName string) bool {
	for id := range p.sharedPool {
		if p.hostsModel(id, modelName) {
			return true
		}
	}
	return false
}

func (p *Pool) onDelayedPreload(modelActionName string) {
	model, ok := p.models.FindByActionName(modelActionName)
	if !ok || p.modelHostedAnywhere(model.ModelName) {
		return
	}
	if target := p.binPacking(model); target != "" {
		p.placeModel(target, model)
	}
}

// onStartRunMessage updates lambda for the action, recomputes derived
// fields with window=1, removes the executing container from
// sharedPool/preloadTable, and re-homes any other models it hosted.
func (p *Pool) onStartRunMessage(proxyID string, data containerdata.Data, action domain.Action) {
	actionKey := action.FullyQualifiedName()
	lambda := p.observeLambda(actionKey)
	p.models.UpdateLambda(actionKey, lambda)
	p.models.UpdateAllDerived(1)

	orphans := p.preloadTable[proxyID]
	delete(p.sharedPool, proxyID)
	delete(p.preloadTable, proxyID)
	p.publishPreLoadTable()

	for _, m := range orphans {
		if target := p.binPacking(m); target != "" {
			p.placeModel(target, m)
		}
	}
}

// observeLambda derives an arrival-rate estimate from elapsed time since
// the action's last observed start: a point estimate of
// 1 / seconds-since-last-run with no smoothing, falling back to the previously recorded lambda on the first
// observation.
func (p *Pool) observeLambda(actionKey string) float64 {
	now := time.Now()
	last, ok := p.lastRunObserved[actionKey]
	p.lastRunObserved[actionKey] = now
	if !ok {
		if model, ok := p.models.FindByActionName(actionKey); ok {
			return model.Lambda
		}
		return 0
	}
	elapsed := now.Sub(last).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	return 1 / elapsed
}

// onPreLoadMessage schedules a one-shot BinPacking attempt after the
// action's PreLoad window elapses.
func (p *Pool) onPreLoadMessage(proxyID string, data containerdata.Data) {
	actionKey := data.Action.FullyQualifiedName()
	w, ok := p.windows.Get(actionKey)
	delay := time.Duration(0)
	if ok {
		delay = w.PreLoad
	}
	time.AfterFunc(delay, func() {
		p.send(poolMessage{kind: pmDelayedPreload, modelActionName: actionKey})
	})
}

// onOffLoadSignal: the container is being destroyed. Re-home its
// pre-loaded models immediately, then schedule an OffLoadMessage for
// each after offLoadWindow-keepAliveWindow minutes, provided positive.
func (p *Pool) onOffLoadSignal(proxyID string, data containerdata.Data) {
	orphans := p.preloadTable[proxyID]
	delete(p.sharedPool, proxyID)
	delete(p.preloadTable, proxyID)
	p.publishPreLoadTable()

	actionKey := data.Action.FullyQualifiedName()
	w, _ := p.windows.Get(actionKey)
	offLoadTime := w.OffLoad - w.KeepAlive

	for _, m := range orphans {
		if target := p.binPacking(m); target != "" {
			p.placeModel(target, m)
		}
		if offLoadTime > 0 {
			modelActionName := m.ActionName
			time.AfterFunc(offLoadTime, func() {
				p.send(poolMessage{kind: pmDelayedOffload, proxyID: proxyID, modelActionName: modelActionName})
			})
		}
	}
}

func (p *Pool) onDelayedOffload(proxyID, modelActionName string) {
	if proxy, ok := p.proxies[proxyID]; ok {
		proxy.OffLoadModelSignal(domain.Action{Name: modelActionName}, domain.ActivationMessage{})
	}
}

// onContainerRemoved drops the sender from every pool map, publishes,
// and optionally tops up prewarms.
func (p *Pool) onContainerRemoved(proxyID string, replacePrewarm bool) {
	delete(p.freePool, proxyID)
	delete(p.busyPool, proxyID)
	delete(p.prewarmedPool, proxyID)
	delete(p.prewarmStarting, proxyID)
	delete(p.zygotePool, proxyID)
	delete(p.sharedPool, proxyID)
	delete(p.preloadTable, proxyID)
	delete(p.proxies, proxyID)
	p.publishPreLoadTable()
	p.publishBusyPoolSize()

	if replacePrewarm {
		p.backfillPrewarms()
	}
}

// onRescheduleJob drops the sender from freePool/busyPool, publishes the
// updated busy-pool size, and re-submits the run to its own mailbox as a
// fresh pmRun.
func (p *Pool) onRescheduleJob(proxyID string, run domain.ActivationMessage) {
	delete(p.freePool, proxyID)
	delete(p.busyPool, proxyID)
	p.publishBusyPoolSize()
	p.send(poolMessage{kind: pmRun, run: run})
}

func (p *Pool) onEmitMetrics() {
	if p.metrics == nil {
		return
	}
	p.metrics.ContainersActive.WithLabelValues("free").Set(float64(len(p.freePool)))
	p.metrics.ContainersActive.WithLabelValues("busy").Set(float64(len(p.busyPool)))
	p.metrics.ContainersActive.WithLabelValues("prewarmed").Set(float64(len(p.prewarmedPool)))
	p.metrics.ContainersActive.WithLabelValues("prewarm_starting").Set(float64(len(p.prewarmStarting)))
	p.metrics.ContainersActive.WithLabelValues("zygote").Set(float64(len(p.zygotePool)))
	p.metrics.RunBufferDepth.Set(float64(len(p.buf)))
	p.metrics.PreloadTableSize.Set(float64(len(p.preloadTable)))

	activeMB, idleMB, prewarmMB := 0, 0, 0
	for _, d := range p.busyPool {
		activeMB += commitMemory(d)
	}
	for _, d := range p.freePool {
		idleMB += commitMemory(d)
	}
	for _, d := range p.prewarmedPool {
		prewarmMB += commitMemory(d)
	}
	for _, d := range p.prewarmStarting {
		prewarmMB += commitMemory(d)
	}
	p.metrics.ActiveMemoryMB.WithLabelValues("active").Set(float64(activeMB))
	p.metrics.ActiveMemoryMB.WithLabelValues("idle").Set(float64(idleMB))
	p.metrics.ActiveMemoryMB.WithLabelValues("prewarm").Set(float64(prewarmMB))
}

func (p *Pool) publishBusyPoolSize() {
	if p.fleet == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.fleet.PublishBusyPoolSize(ctx, p.cfg.InvokerID, len(p.busyPool))
}

func (p *Pool) publishPreLoadTable() {
	if p.fleet == nil {
		return
	}
	seen := make(map[string]struct{})
	names := make([]string, 0, len(p.preloadTable))
	for _, models := range p.preloadTable {
		for _, m := range models {
			if _, ok := seen[m.ActionName]; !ok {
				seen[m.ActionName] = struct{}{}
				names = append(names, m.ActionName)
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.fleet.PublishPreLoadedActions(ctx, p.cfg.InvokerID, names)
}

