package containerpool

import (
	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
)

type pmKind int

const (
	pmRun pmKind = iota
	pmNeedWork
	pmContainerIdle
	pmStartRunMessage
	pmPreLoadMessage
	pmOffLoadSignal
	pmContainerRemoved
	pmRescheduleJob
	pmEmitMetrics
	pmAdjustPrewarmedContainer

	// internal scheduled/async follow-ups
	pmPreWarmCompleted
	pmDelayedPreload
	pmDelayedOffload

	// pmStatsRequest is the only message a caller outside the Pool's own
	// goroutine waits synchronously on, since reading pool-map sizes for
	// zygotectl's debug surface must still go through the mailbox rather
	// than touch the maps directly (spec.md §5).
	pmStatsRequest
)

type poolMessage struct {
	kind pmKind

	proxyID string
	data    containerdata.Data
	run     domain.ActivationMessage
	action  domain.Action

	replacePrewarm bool

	adjustInit     bool
	adjustReactive bool

	// pmDelayedPreload / pmDelayedOffload
	modelActionName string

	// pmStatsRequest
	statsResp chan Stats
}

// Stats is a read-only snapshot of pool occupancy, for the inspection CLI
// and the daemon's debug HTTP handler.
type Stats struct {
	Free            int `json:"free"`
	Busy            int `json:"busy"`
	Prewarmed       int `json:"prewarmed"`
	PrewarmStarting int `json:"prewarm_starting"`
	Zygote          int `json:"zygote"`
	Shared          int `json:"shared"`
	BufferDepth     int `json:"buffer_depth"`
	PreloadActions  int `json:"preload_actions"`
	ColdStartCount  int `json:"cold_start_count"`
}
