package dockerbackend

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oriys/zygote/internal/backend"
	"github.com/oriys/zygote/internal/domain"
	"github.com/oriys/zygote/internal/logging"
)

const agentPort = 9999

// Config bundles image naming, the host port range for the agent's
// published port, and the resource/timeout defaults applied to every
// container this factory creates.
type Config struct {
	ImagePrefix  string
	Network      string
	PortRangeMin int
	PortRangeMax int
	CPULimit     float64
	AgentTimeout time.Duration
}

// DefaultConfig mirrors docker.DefaultConfig's env-var-overridable
// defaults, renamed to the ZYGOTE_* convention.
func DefaultConfig() Config {
	imagePrefix := os.Getenv("ZYGOTE_DOCKER_IMAGE_PREFIX")
	if imagePrefix == "" {
		imagePrefix = "zygote-runtime"
	}
	return Config{
		ImagePrefix:  imagePrefix,
		Network:      os.Getenv("ZYGOTE_DOCKER_NETWORK"),
		PortRangeMin: 20000,
		PortRangeMax: 30000,
		CPULimit:     1.0,
		AgentTimeout: 10 * time.Second,
	}
}

// Factory is the Docker-CLI-driven backend.Factory implementation: it
// shells out to `docker run`, then waits for the in-container agent to
// accept TCP connections on its published port before handing back a
// Container handle.
type Factory struct {
	cfg      Config
	nextPort int32
}

// NewFactory constructs a Factory, verifying the docker CLI is reachable.
func NewFactory(cfg Config) (*Factory, error) {
	if err := exec.Command("docker", "version").Run(); err != nil {
		return nil, fmt.Errorf("docker not available: %w", err)
	}
	if cfg.PortRangeMin == 0 {
		cfg = DefaultConfig()
	}
	return &Factory{cfg: cfg, nextPort: int32(cfg.PortRangeMin)}, nil
}

func (f *Factory) allocatePort() int {
	port := atomic.AddInt32(&f.nextPort, 1) - 1
	if int(port) > f.cfg.PortRangeMax {
		atomic.StoreInt32(&f.nextPort, int32(f.cfg.PortRangeMin))
		port = int32(f.cfg.PortRangeMin)
	}
	return int(port)
}

func imageForKind(kind domain.Kind, prefix string) string {
	switch kind {
	case domain.KindPython:
		return prefix + "-python"
	case domain.KindNode:
		return prefix + "-node"
	case domain.KindGo:
		return prefix + "-go"
	default:
		return prefix + "-base"
	}
}

// Create starts one Docker container running name's agent and waits for
// it to come up, per spec.md §6. action is nil for an unspecialized
// prewarm container, matching the factory contract.
func (f *Factory) Create(ctx context.Context, tid, name, image string, pull bool, memoryMB int, cpuShare, cpuLimit float64, action *domain.Action) (backend.Container, error) {
	port := f.allocatePort()
	containerName := "zygote-" + name

	if image == "" {
		kind := domain.KindPython
		if action != nil {
			kind = action.Kind
		}
		image = imageForKind(kind, f.cfg.ImagePrefix)
	}

	limit := cpuLimit
	if limit <= 0 {
		limit = f.cfg.CPULimit
	}
	if limit <= 0 {
		limit = 1.0
	}

	args := []string{
		"run", "-d",
		"--name", containerName,
		"-p", fmt.Sprintf("127.0.0.1:%d:%d", port, agentPort),
		"-e", "ZYGOTE_AGENT_MODE=tcp",
		"--memory", fmt.Sprintf("%dm", memoryMB),
		"--cpus", fmt.Sprintf("%.2f", limit),
	}
	if f.cfg.Network != "" {
		args = append(args, "--network", f.cfg.Network)
	}
	args = append(args, image)

	logging.Op().Debug("starting docker container", "image", image, "name", containerName, "port", port, "tid", tid)

	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return nil, &backend.ContainerError{Kind: backend.ErrorKindWhisk, Err: fmt.Errorf("docker run failed: %w: %s", err, out)}
	}
	dockerID := strings.TrimSpace(string(out))

	timeout := f.cfg.AgentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := waitForAgent(port, timeout); err != nil {
		stopContainer(dockerID)
		return nil, &backend.ContainerError{Kind: backend.ErrorKindWhisk, Err: err}
	}

	logging.Op().Info("docker container ready", "container", shortID(dockerID), "port", port)
	return &Container{
		id:       name,
		dockerID: dockerID,
		port:     port,
	}, nil
}

func waitForAgent(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for agent on port %d", port)
}

func stopContainer(dockerID string) {
	_ = exec.Command("docker", "rm", "-f", dockerID).Run()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
