package containerproxy

import "github.com/oriys/zygote/internal/domain"

// OutcomeKind classifies how a run attempt finished, replacing the
// exception-for-control-flow idiom the Design Notes call out: the
// explicit taxonomy Ok | Aborted | Failed drives the Proxy's state
// transition directly instead of a caught exception type.
type OutcomeKind int

const (
	OutcomeOk OutcomeKind = iota
	OutcomeAborted
	OutcomeFailed
)

// RunOutcome is the result of one initializeAndRun attempt.
type RunOutcome struct {
	Kind       OutcomeKind
	Activation domain.Activation
	Reason     string
	Err        error
}

func Ok(a domain.Activation) RunOutcome {
	return RunOutcome{Kind: OutcomeOk, Activation: a}
}

func Aborted(reason string, err error) RunOutcome {
	return RunOutcome{Kind: OutcomeAborted, Reason: reason, Err: err}
}

func Failed(reason string, err error) RunOutcome {
	return RunOutcome{Kind: OutcomeFailed, Reason: reason, Err: err}
}
