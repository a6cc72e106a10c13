package containerpool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/modeltable"
	"github.com/oriys/zygote/internal/window"
)

// fakeContainer is a no-op backend.Container for tests that exercise
// prewarm/cold-create paths without a real Docker daemon.
type fakeContainer struct{ id string }

func (c *fakeContainer) ID() string   { return c.id }
func (c *fakeContainer) Addr() string { return "fake://" + c.id }
func (c *fakeContainer) Initialize(ctx context.Context, initBody []byte, timeout time.Duration, maxConcurrent int, action *domain.Action) (backend.Interval, error) {
	return backend.Interval{}, nil
}
func (c *fakeContainer) Run(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int, reschedule bool) (backend.Interval, backend.ActivationResponse, error) {
	return backend.Interval{}, backend.ActivationResponse{}, nil
}
func (c *fakeContainer) Load(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error {
	return nil
}
func (c *fakeContainer) Offload(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error {
	return nil
}
func (c *fakeContainer) Destroy(ctx context.Context) error { return nil }

// fakeFactory hands out fakeContainers, never touching a real runtime.
type fakeFactory struct{}

func (fakeFactory) Create(ctx context.Context, tid, name, image string, pull bool, memoryMB int, cpuShare, cpuLimit float64, action *domain.Action) (backend.Container, error) {
	return &fakeContainer{id: name}, nil
}

type fakeAcker struct{}

func (fakeAcker) SendActiveAck(ctx context.Context, transactionID string, activation domain.Activation, blocking bool, kind domain.AckKind) error {
	return nil
}

type fakeStore struct{}

func (fakeStore) StoreActivation(ctx context.Context, activation domain.Activation) error { return nil }

type fakeLogs struct{}

func (fakeLogs) LogsToBeCollected(action domain.Action) bool { return false }
func (fakeLogs) CollectLogs(ctx context.Context, transactionID string, activation domain.Activation) (backend.ActivationResponse, error) {
	return backend.ActivationResponse{}, nil
}

// newTestPoolWithBackend builds a Pool whose proxies can actually run their
// async create/init machinery against fakes, for tests that exercise
// startPrewarm/tryColdCreate rather than only the pure pool-map functions.
func newTestPoolWithBackend() *Pool {
	return New(fakeFactory{}, fakeAcker{}, fakeStore{}, fakeLogs{}, nil, nil, nil, modeltable.New(), nil, Config{ModelMemoryBudgetMB: 2047}, nil)
}

// newTestPoolForHandlers builds a Pool with a real window Registry and
// model Table wired in, for tests that exercise the onRun/onNeedWork/
// onStartRunMessage/onOffLoadSignal handlers rather than only the pure
// pool-map helpers.
func newTestPoolForHandlers() *Pool {
	return New(fakeFactory{}, fakeAcker{}, fakeStore{}, fakeLogs{}, nil, nil, window.New(), modeltable.New(), nil, Config{ModelMemoryBudgetMB: 2047}, nil)
}
