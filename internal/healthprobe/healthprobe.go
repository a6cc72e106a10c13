// Package healthprobe is a per-container TCP-ping liveness loop: one
// goroutine per running container rather than a periodic sweep over a
// shared map, since the actor model of spec.md §5 has no shared
// container map to sweep — liveness must be attributed and reported
// per-actor instead.
package healthprobe

import (
	"context"
	"net"
	"time"

	"github.com/oriys/zygote/internal/logging"
)

// Config controls ping cadence and failure tolerance.
type Config struct {
	CheckPeriod time.Duration
	MaxFails    int
	DialTimeout time.Duration
}

// DefaultConfig applies a consecutive-failure count rather than
// evicting on the very first failed ping.
func DefaultConfig() Config {
	return Config{
		CheckPeriod: 5 * time.Second,
		MaxFails:    3,
		DialTimeout: 2 * time.Second,
	}
}

// Reporter receives a health-check failure after MaxFails consecutive
// pings fail. containerproxy.Proxy implements this by forwarding to its
// own FailureMessage(FailureHealthError, err) — this package never
// imports containerproxy, avoiding the import cycle the same way
// containerproxy.PoolNotifier keeps containerproxy from importing
// containerpool.
type Reporter interface {
	ReportHealthFailure(err error)
}

// Watch pings addr every cfg.CheckPeriod until ctx is cancelled. After
// cfg.MaxFails consecutive failures it reports once via r and returns;
// the caller (the container's own actor) decides what happens next.
func Watch(ctx context.Context, addr string, cfg Config, r Reporter) {
	period := cfg.CheckPeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	maxFails := cfg.MaxFails
	if maxFails <= 0 {
		maxFails = 3
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	fails := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ping(addr, dialTimeout); err != nil {
				fails++
				logging.Op().Warn("container health check failed", "addr", addr, "consecutive_fails", fails, "error", err)
				if fails >= maxFails {
					r.ReportHealthFailure(err)
					return
				}
				continue
			}
			fails = 0
		}
	}
}

func ping(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}
