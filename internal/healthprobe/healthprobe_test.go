package healthprobe

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

type fakeReporter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReporter) ReportHealthFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.err = err
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestWatchReportsAfterMaxFails(t *testing.T) {
	// A closed listener address: nothing is listening, so every dial fails.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	r := &fakeReporter{}
	cfg := Config{CheckPeriod: 5 * time.Millisecond, MaxFails: 3, DialTimeout: 20 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		Watch(ctx, addr, cfg, r)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after MaxFails failures")
	}

	if r.count() != 1 {
		t.Fatalf("expected exactly 1 report, got %d", r.count())
	}
	if r.err == nil {
		t.Fatal("expected a non-nil error reported")
	}
}

func TestWatchReportsNothingWhileListenerHealthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	r := &fakeReporter{}
	cfg := Config{CheckPeriod: 5 * time.Millisecond, MaxFails: 2, DialTimeout: 20 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	Watch(ctx, ln.Addr().String(), cfg, r)

	if r.count() != 0 {
		t.Fatalf("expected no failure reports while the listener is healthy, got %d", r.count())
	}
}

func TestWatchAppliesDefaultsWhenUnset(t *testing.T) {
	r := &fakeReporter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Cancelled context should return promptly regardless of zero-value Config.
	Watch(ctx, "127.0.0.1:1", Config{}, r)
	if r.count() != 0 {
		t.Fatalf("expected no report on an already-cancelled watch, got %d", r.count())
	}
}
