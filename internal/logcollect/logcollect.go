// Package logcollect gathers a finished activation's stdout/stderr for
// actions whose logs are retained (spec.md §6's "LogsPending" ack
// field), held in a TTL-bounded in-memory store.
package logcollect

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/domain"
)

// Collector decides whether an action's logs are worth collecting and,
// if so, fetches them from the container after a run completes.
type Collector interface {
	LogsToBeCollected(action domain.Action) bool
	CollectLogs(ctx context.Context, transactionID string, activation domain.Activation) (backend.ActivationResponse, error)
}

// entry is one captured log record, evicted after ttl.
type entry struct {
	stdout, stderr string
	expiresAt      time.Time
}

// InMemoryCollector retains captured output for a bounded TTL, with no
// file-backed persistence since daemon restarts don't need it here.
type InMemoryCollector struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry

	fetch func(ctx context.Context, transactionID string) (backend.ActivationResponse, error)
}

// NewInMemoryCollector constructs a collector that retains entries for
// ttl and uses fetch to pull output for a transaction when asked.
func NewInMemoryCollector(ttl time.Duration, fetch func(ctx context.Context, transactionID string) (backend.ActivationResponse, error)) *InMemoryCollector {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &InMemoryCollector{ttl: ttl, entries: make(map[string]entry), fetch: fetch}
}

// LogsToBeCollected reports true for every action; callers that want a
// retention allowlist can wrap Collector with their own filter.
func (c *InMemoryCollector) LogsToBeCollected(action domain.Action) bool {
	return true
}

func (c *InMemoryCollector) CollectLogs(ctx context.Context, transactionID string, activation domain.Activation) (backend.ActivationResponse, error) {
	if c.fetch == nil {
		return backend.ActivationResponse{}, nil
	}
	resp, err := c.fetch(ctx, transactionID)
	if err != nil {
		return resp, err
	}
	c.mu.Lock()
	c.entries[transactionID] = entry{stdout: resp.Stdout, stderr: resp.Stderr, expiresAt: time.Now().Add(c.ttl)}
	c.evictExpiredLocked()
	c.mu.Unlock()
	return resp, nil
}

func (c *InMemoryCollector) evictExpiredLocked() {
	now := time.Now()
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}
