package containerpool

import (
	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
)

// The methods below satisfy containerproxy.PoolNotifier. Each is called
// from a Proxy's own mailbox goroutine and must not block on Pool
// internals — they only enqueue onto the Pool's mailbox.

func (p *Pool) NeedWork(proxyID string, data containerdata.Data) {
	p.send(poolMessage{kind: pmNeedWork, proxyID: proxyID, data: data})
}

func (p *Pool) ContainerIdle(proxyID string, data containerdata.Data) {
	p.send(poolMessage{kind: pmContainerIdle, proxyID: proxyID, data: data})
}

func (p *Pool) PreWarmCompleted(proxyID string, data containerdata.Data) {
	p.send(poolMessage{kind: pmPreWarmCompleted, proxyID: proxyID, data: data})
}

func (p *Pool) StartRunMessage(proxyID string, data containerdata.Data, action domain.Action) {
	p.send(poolMessage{kind: pmStartRunMessage, proxyID: proxyID, data: data, action: action})
}

func (p *Pool) PreLoadMessage(proxyID string, data containerdata.Data) {
	p.send(poolMessage{kind: pmPreLoadMessage, proxyID: proxyID, data: data})
}

func (p *Pool) OffLoadSignal(proxyID string, data containerdata.Data) {
	p.send(poolMessage{kind: pmOffLoadSignal, proxyID: proxyID, data: data})
}

func (p *Pool) ContainerRemoved(proxyID string, replacePrewarm bool) {
	p.send(poolMessage{kind: pmContainerRemoved, proxyID: proxyID, replacePrewarm: replacePrewarm})
}

func (p *Pool) RescheduleJob(proxyID string, run domain.ActivationMessage) {
	p.send(poolMessage{kind: pmRescheduleJob, proxyID: proxyID, run: run})
}
