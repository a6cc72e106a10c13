// Package fleetstate is the thin client to the external shared key/value
// store spec.md §4.5 describes: best-effort hash writes publishing this
// invoker's identity, pre-load table, and busy-pool size for other
// invokers and the control plane to read. Errors are logged, never
// propagated — a fleet-state outage must not affect scheduling.
package fleetstate

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/zygote/internal/logging"
	"github.com/oriys/zygote/internal/metrics"
)

// Publisher writes the three hashes spec.md §4.5 names. Implementations
// must never block the Pool actor for longer than a short client-side
// timeout, and must never return an error the caller is expected to act
// on — failures are logged internally.
type Publisher interface {
	PublishInvokerID(ctx context.Context, hostIP, invokerID string)
	PublishPreLoadedActions(ctx context.Context, invokerID string, actionNames []string)
	PublishBusyPoolSize(ctx context.Context, invokerID string, size int)
}

const (
	hashInvokerID       = "zygote:invokerId"
	hashPreLoadedAction = "zygote:preLoadedAction"
	hashBusyPoolSize    = "zygote:busyPoolSize"
)

// RedisPublisher implements Publisher with three Redis hashes.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (r *RedisPublisher) PublishInvokerID(ctx context.Context, hostIP, invokerID string) {
	if err := r.client.HSet(ctx, hashInvokerID, hostIP, invokerID).Err(); err != nil {
		r.fail(err)
	}
}

func (r *RedisPublisher) PublishPreLoadedActions(ctx context.Context, invokerID string, actionNames []string) {
	if err := r.client.HSet(ctx, hashPreLoadedAction, invokerID, strings.Join(actionNames, ",")).Err(); err != nil {
		r.fail(err)
	}
}

func (r *RedisPublisher) PublishBusyPoolSize(ctx context.Context, invokerID string, size int) {
	if err := r.client.HSet(ctx, hashBusyPoolSize, invokerID, size).Err(); err != nil {
		r.fail(err)
	}
}

func (r *RedisPublisher) fail(err error) {
	logging.Op().Warn("fleet-state publish failed", "error", err)
	if m := metrics.Get(); m != nil {
		m.FleetPublishErrors.Inc()
	}
}
