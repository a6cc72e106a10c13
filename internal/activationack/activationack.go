// Package activationack delivers the completion/result acknowledgement
// back to the caller that submitted an activation, per spec.md §6's
// three ack shapes (AckResult, AckCombinedCompletionAndResult,
// AckCompletion).
package activationack

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/zygote/internal/domain"
)

// Acker sends a single activation's ack. Implementations should not block
// the calling Proxy's goroutine indefinitely; SendActiveAck already runs
// off the mailbox loop (see containerproxy.Proxy.ackAndPersist).
type Acker interface {
	SendActiveAck(ctx context.Context, transactionID string, activation domain.Activation, blocking bool, kind domain.AckKind) error
}

const ackChannelPrefix = "zygote:ack:"

// RedisAcker publishes the ack payload to a per-transaction Redis
// channel as a JSON payload rather than a bare signal.
type RedisAcker struct {
	client *redis.Client
}

func NewRedisAcker(client *redis.Client) *RedisAcker {
	return &RedisAcker{client: client}
}

type ackPayload struct {
	Kind       domain.AckKind    `json:"kind"`
	Blocking   bool              `json:"blocking"`
	Activation domain.Activation `json:"activation"`
}

func (a *RedisAcker) SendActiveAck(ctx context.Context, transactionID string, activation domain.Activation, blocking bool, kind domain.AckKind) error {
	payload, err := json.Marshal(ackPayload{Kind: kind, Blocking: blocking, Activation: activation})
	if err != nil {
		return err
	}
	return a.client.Publish(ctx, ackChannelPrefix+transactionID, payload).Err()
}
