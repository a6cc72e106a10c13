package containerproxy

import (
	"time"

	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/containerdata"
	"github.com/oriys/zygote/internal/domain"
)

// PoolNotifier is the send-handle a Proxy holds to its parent Pool. It is
// an interface (not a concrete *containerpool.Pool) so containerproxy
// never imports containerpool — the two actors communicate only by
// message, per spec.md §9's "Cyclic back-reference Pool<->Proxy" note.
// Every method here must be non-blocking from the Proxy's perspective:
// implementations enqueue onto the Pool's own mailbox and return.
type PoolNotifier interface {
	NeedWork(proxyID string, data containerdata.Data)
	ContainerIdle(proxyID string, data containerdata.Data)
	PreWarmCompleted(proxyID string, data containerdata.Data)
	StartRunMessage(proxyID string, data containerdata.Data, action domain.Action)
	PreLoadMessage(proxyID string, data containerdata.Data)
	OffLoadSignal(proxyID string, data containerdata.Data)
	ContainerRemoved(proxyID string, replacePrewarm bool)
	RescheduleJob(proxyID string, msg domain.ActivationMessage)
}

// msgKind tags the mailbox message variants a Proxy processes.
type msgKind int

const (
	msgStart msgKind = iota
	msgCreateWarmedContainer
	msgSpecializePrewarm
	msgRun
	msgLoadModelSignal
	msgOffLoadModelSignal
	msgRemove
	msgFailure

	// Self-addressed completion messages (spec.md §5: blocking I/O
	// completes via a message to self, never blocking the mailbox).
	msgContainerCreated
	msgWarmInitCompleted
	msgInitCompleted
	msgRunCompleted
	msgIdleTimeout
)

// createPurpose tags which onStart/onCreateWarmedContainer/cold-onRun
// call spawned a pending Create, so onContainerCreated (running on the
// mailbox loop) knows which transition to apply to the result.
type createPurpose int

const (
	purposePrewarm createPurpose = iota
	purposeCreateWarmed
	purposeColdRun
)

// FailureKind distinguishes the failure-handling branches spec.md §7
// names for mid-run errors.
type FailureKind int

const (
	FailureHealthError FailureKind = iota
	FailureRunError
	FailureInitError
	FailureStartupError
)

type message struct {
	kind msgKind

	// msgStart
	startKind     domain.Kind
	startMemoryMB int
	startTTL      time.Duration

	// msgCreateWarmedContainer / msgRun / resumed runs
	action     domain.Action
	run        *domain.ActivationMessage
	fromBuffer bool // true when run was dispatched via runBuffer.headForResend

	// msgLoadModelSignal / msgOffLoadModelSignal
	model domain.Action // reuses Action as the carrier of the model's owning action

	// msgFailure
	failureKind FailureKind
	err         error

	// self-addressed completions
	purpose          createPurpose
	expires          time.Time
	createdContainer containerResult
	runResult        runResult
}

type containerResult struct {
	container backend.Container
	err       error
}

type runResult struct {
	outcome RunOutcome
}
