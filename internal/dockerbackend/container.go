package dockerbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/domain"
)

// Container is a TCP handle to one running agent process, implementing
// the full backend.Container contract (adds Load/Offload for model
// co-residency on top of init/exec/ping). One connection is dialed per
// call and closed afterward — containers sit idle between invocations
// far longer than any connection pool would help with.
type Container struct {
	id       string
	dockerID string
	port     int

	mu          sync.Mutex
	initPayload json.RawMessage
}

func (c *Container) ID() string   { return c.id }
func (c *Container) Addr() string { return fmt.Sprintf("127.0.0.1:%d", c.port) }

// Initialize sends the Init message once, caching the payload so later
// redials (after a connection drop mid-Run) can replay it transparently.
func (c *Container) Initialize(ctx context.Context, initBody []byte, timeout time.Duration, maxConcurrent int, action *domain.Action) (backend.Interval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	payload := initBody
	if payload == nil {
		p := initPayload{MaxConcurrent: maxConcurrent}
		if action != nil {
			p.Kind = string(action.Kind)
			p.Image = action.Image
			p.Namespace = action.Namespace
			p.ActionName = action.Name
		}
		var err error
		payload, err = json.Marshal(p)
		if err != nil {
			return backend.Interval{}, err
		}
	}
	c.initPayload = payload

	conn, err := net.DialTimeout("tcp", c.Addr(), timeout)
	if err != nil {
		return backend.Interval{}, &backend.ContainerError{Kind: backend.ErrorKindWhisk, Err: err}
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if err := sendMessage(conn, wireMessage{Type: MsgTypeInit, Payload: payload}); err != nil {
		return backend.Interval{}, &backend.ContainerError{Kind: backend.ErrorKindWhisk, Err: err}
	}
	resp, err := receiveMessage(conn)
	if err != nil {
		return backend.Interval{}, &backend.ContainerError{Kind: backend.ErrorKindWhisk, Err: err}
	}
	if resp.Type != MsgTypeResp {
		return backend.Interval{}, &backend.ContainerError{Kind: backend.ErrorKindDeveloper, Err: fmt.Errorf("unexpected init response type %d", resp.Type)}
	}
	return backend.Interval{Start: start, End: time.Now()}, nil
}

// Run executes one activation, retrying the dial/init handshake against
// transient connection loss.
func (c *Container) Run(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int, reschedule bool) (backend.Interval, backend.ActivationResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(execPayload{
		Input:      params,
		Env:        env,
		TimeoutS:   int(timeout / time.Second),
		Reschedule: reschedule,
	})
	if err != nil {
		return backend.Interval{}, backend.ActivationResponse{}, err
	}

	start := time.Now()
	backoff := []time.Duration{10 * time.Millisecond, 25 * time.Millisecond, 50 * time.Millisecond}

	var lastErr error
	for attempt := 0; attempt < len(backoff); attempt++ {
		resp, err := c.roundTrip(timeout+5*time.Second, MsgTypeExec, payload)
		if err != nil {
			lastErr = err
			if isBrokenConnErr(err) && attempt < len(backoff)-1 {
				time.Sleep(backoff[attempt])
				continue
			}
			return backend.Interval{}, backend.ActivationResponse{}, &backend.ContainerError{Kind: backend.ErrorKindWhisk, Err: err}
		}

		var result backend.ActivationResponse
		if err := json.Unmarshal(resp.Payload, &result); err != nil {
			return backend.Interval{}, backend.ActivationResponse{}, &backend.ContainerError{Kind: backend.ErrorKindDeveloper, Err: err}
		}
		return backend.Interval{Start: start, End: time.Now()}, result, nil
	}
	return backend.Interval{}, backend.ActivationResponse{}, &backend.ContainerError{Kind: backend.ErrorKindWhisk, Err: lastErr}
}

// Load asks the agent to pull an additional model into process memory.
func (c *Container) Load(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(loadPayload{Params: params, Env: env})
	if err != nil {
		return err
	}
	_, err = c.roundTrip(timeout, MsgTypeLoad, payload)
	return err
}

// Offload asks the agent to evict a previously loaded model.
func (c *Container) Offload(ctx context.Context, params json.RawMessage, env map[string]string, timeout time.Duration, maxConcurrent int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(offloadPayload{Env: env})
	if err != nil {
		return err
	}
	_, err = c.roundTrip(timeout, MsgTypeOffload, payload)
	return err
}

// Destroy stops and removes the backing Docker container.
func (c *Container) Destroy(ctx context.Context) error {
	stopContainer(c.dockerID)
	return nil
}

// roundTrip dials fresh, replays the cached Init payload if one exists
// (every call after the first Initialize), sends msgKind/payload, and
// returns the response.
func (c *Container) roundTrip(timeout time.Duration, msgKind int, payload json.RawMessage) (wireMessage, error) {
	conn, err := net.DialTimeout("tcp", c.Addr(), timeout)
	if err != nil {
		return wireMessage{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if c.initPayload != nil {
		if err := sendMessage(conn, wireMessage{Type: MsgTypeInit, Payload: c.initPayload}); err != nil {
			return wireMessage{}, err
		}
		if _, err := receiveMessage(conn); err != nil {
			return wireMessage{}, err
		}
	}

	if err := sendMessage(conn, wireMessage{Type: msgKind, Payload: payload}); err != nil {
		return wireMessage{}, err
	}
	return receiveMessage(conn)
}
