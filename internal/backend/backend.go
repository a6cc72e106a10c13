// Package backend defines the container runtime factory contract spec.md
// §6 requires: create a container, then initialize/run/load/offload/
// destroy it. internal/dockerbackend is the one concrete implementation;
// this package only specifies the boundary the core container lifecycle
// state machine depends on.
package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oriys/zygote/internal/domain"
)

// Factory creates containers for a given action.
type Factory interface {
	// Create starts a container for the given image, applying the memory
	// and CPU shape requested. action is nil for an unspecialized
	// prewarm container.
	Create(ctx context.Context, tid, name, image string, pull bool, memoryMB int, cpuShare, cpuLimit float64, action *domain.Action) (Container, error)
}

// Interval is the (start, end) wall-clock span of one container
// operation, used to build an Activation's InitDuration/RunDuration.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// ActivationResponse is the payload a container returns from run/load/
// offload.
type ActivationResponse struct {
	RequestID  string          `json:"request_id"`
	Output     json.RawMessage `json:"output"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Stdout     string          `json:"stdout,omitempty"`
	Stderr     string          `json:"stderr,omitempty"`
}

// Container is a handle to a running container process. Every operation
// may block on network I/O; callers (the container proxy) must always
// invoke these from a dedicated goroutine that posts the result back to
// the proxy's mailbox, never from the mailbox loop itself (spec.md §5).
type Container interface {
	ID() string
	Addr() string

	// Initialize prepares the container to run a specific action.
	// action is nil only for prewarm containers that are never
	// specialized (never called in practice, kept to mirror the factory
	// contract's own optional action parameter).
	Initialize(ctx context.Context, initBody []byte, timeout time.Duration, maxConcurrent int, action *domain.Action) (Interval, error)

	// Run executes one activation against an already-initialized
	// container. reschedule is true when this run is a retry of a
	// buffered activation that had previously failed on this container.
	Run(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int, reschedule bool) (Interval, ActivationResponse, error)

	// Load asks the container to load an additional ML model into
	// process memory for opportunistic co-residency.
	Load(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error

	// Offload asks the container to evict a previously loaded model.
	Offload(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error

	// Destroy stops and removes the container.
	Destroy(ctx context.Context) error
}

// ErrorKind distinguishes developer errors (user code faulted) from whisk
// errors (infrastructure faulted), per spec.md §7's "startup error
// (whisk-error vs developer-error)".
type ErrorKind int

const (
	ErrorKindDeveloper ErrorKind = iota
	ErrorKindWhisk
)

// ContainerError wraps a factory/container-I/O failure with its kind so
// the proxy can pick the right failure-handling branch.
type ContainerError struct {
	Kind ErrorKind
	Err  error
}

func (e *ContainerError) Error() string { return e.Err.Error() }
func (e *ContainerError) Unwrap() error { return e.Err }
