// Package domain holds the shared types describing actions, activations,
// and ML models that flow between the window registry, model table,
// container pool, and container proxies.
package domain

import (
	"encoding/json"
	"time"
)

// Kind identifies the language runtime an action executes under, used
// to select the container image.
type Kind string

const (
	KindPython Kind = "python"
	KindNode   Kind = "nodejs"
	KindGo     Kind = "go"
)

// Limits bounds the resource envelope of a single container running an
// action.
type Limits struct {
	MemoryMB      int `json:"memory_mb"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Action is a deployable function definition: exec kind, resource limits,
// and the container image that hosts it.
type Action struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Image     string `json:"image"`
	Limits    Limits `json:"limits"`

	// InferenceModel, when non-empty, is the Model Table key this action
	// maps to. Only actions with a non-empty InferenceModel are
	// inference-eligible per spec.md invariant: only inference-eligible
	// actions' containers ever enter sharedPool or preloadTable.
	InferenceModel string `json:"inference_model,omitempty"`
}

// FullyQualifiedName returns the "ns/name" key used to index WarmedData
// and WarmingData by (namespace, action).
func (a Action) FullyQualifiedName() string {
	return a.Namespace + "/" + a.Name
}

// InferenceEligible reports whether containers running this action may be
// placed in sharedPool and host foreign pre-loaded models.
func (a Action) InferenceEligible() bool {
	return a.InferenceModel != ""
}

// ActivationMessage carries the fields spec.md §6 describes as consumed:
// identity, action reference, and the four scheduling-hint integers that
// seed the Window Registry.
type ActivationMessage struct {
	TransactionID string    `json:"transaction_id"`
	ActivationID  string    `json:"activation_id"`
	Namespace     string    `json:"namespace"`
	Action        Action    `json:"action"`
	Blocking      bool      `json:"blocking"`
	InitArgs      []string  `json:"init_args,omitempty"`
	LockedArgs    []byte    `json:"locked_args,omitempty"`
	Payload       []byte    `json:"payload,omitempty"`
	Submitted     time.Time `json:"submitted"`

	// Scheduling-hint integers, all in minutes except where noted.
	PreWarmParameter  int `json:"pre_warm_parameter"`
	KeepAliveParameter int `json:"keep_alive_parameter"`
	PreLoadParameter  int `json:"pre_load_parameter"`
	OffLoadParameter  int `json:"off_load_parameter"`
}

// AckKind enumerates the activation-acknowledgement message shapes spec.md
// §6 describes.
type AckKind int

const (
	AckResult AckKind = iota
	AckCombinedCompletionAndResult
	AckCompletion
)

// Activation is a single execution record of an action.
type Activation struct {
	ActivationID  string          `json:"activation_id"`
	TransactionID string          `json:"transaction_id"`
	Namespace     string          `json:"namespace"`
	ActionName    string          `json:"action_name"`
	InitDuration  time.Duration   `json:"init_duration"`
	RunDuration   time.Duration   `json:"run_duration"`
	Response      json.RawMessage `json:"response"`
	IsTimeout     bool            `json:"is_timeout"`
	Success       bool            `json:"success"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	LogsPending   bool            `json:"logs_pending"`
}
