// Package activationfeed is the Pool's external source of pending
// activations when its own runBuffer drains: `processBufferOrFeed()`
// asks it for the next item after capacity reappears (spec.md §4.2).
package activationfeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/zygote/internal/domain"
)

// Feed hands the Pool the next pending activation, if any is immediately
// available. Implementations must not block past a short client-side
// timeout — a feed outage degrades to "nothing pulled this tick", not a
// stall of the Pool's mailbox loop.
type Feed interface {
	Next(ctx context.Context) (domain.ActivationMessage, bool)
}

const feedListKey = "zygote:feed:pending"

// RedisFeed pulls the next activation off a Redis list via a
// short-timeout BRPOP, carrying the full payload rather than a bare
// signal.
type RedisFeed struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisFeed wraps an existing Redis client. timeout bounds each Next
// call's BRPOP wait; zero defaults to 200ms so a feed check never stalls
// the Pool's mailbox loop noticeably.
func NewRedisFeed(client *redis.Client, timeout time.Duration) *RedisFeed {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &RedisFeed{client: client, timeout: timeout}
}

func (f *RedisFeed) Next(ctx context.Context) (domain.ActivationMessage, bool) {
	result, err := f.client.BRPop(ctx, f.timeout, feedListKey).Result()
	if err != nil || len(result) < 2 {
		return domain.ActivationMessage{}, false
	}
	var msg domain.ActivationMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return domain.ActivationMessage{}, false
	}
	return msg, true
}
