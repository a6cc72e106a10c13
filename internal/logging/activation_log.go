package logging

import (
	"context"
	"log/slog"
	"time"
)

// ActivationLog is the per-invocation log line, kept distinct from Op()'s
// operational stream: request logs and daemon logs serve different
// readers and rotate on different schedules.
type ActivationLog struct {
	ActivationID  string
	TransactionID string
	Namespace     string
	ActionName    string
	ContainerID   string
	InitDuration  time.Duration
	RunDuration   time.Duration
	Success       bool
	Outcome       string
}

// Emit writes the activation as a single structured log record at Info
// level (Warn if the activation failed).
func (a ActivationLog) Emit() {
	lvl := slog.LevelInfo
	if !a.Success {
		lvl = slog.LevelWarn
	}
	Op().Log(context.Background(), lvl, "activation completed",
		"activation_id", a.ActivationID,
		"transaction_id", a.TransactionID,
		"namespace", a.Namespace,
		"action", a.ActionName,
		"container_id", a.ContainerID,
		"init_ms", a.InitDuration.Milliseconds(),
		"run_ms", a.RunDuration.Milliseconds(),
		"success", a.Success,
		"outcome", a.Outcome,
	)
}
