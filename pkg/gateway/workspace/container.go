package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
)

const (
	// DefaultServicePort is the in-container port whose published mapping is
	// discovered after launch.
	DefaultServicePort = 8080

	portDiscoveryWait = 10 * time.Second
)

type containerInfo struct {
	ContainerID string
	Port        int
}

// ContainerManager backs each workspace with an ephemeral container labeled
// with the workspace ID. Containers are started with --rm, so they remove
// themselves once stopped.
type ContainerManager struct {
	image       string
	servicePort int
	log         logr.Logger

	// runCommand is swappable for tests.
	runCommand func(ctx context.Context, name string, args ...string) (string, error)

	sessionMap
	mu         sync.RWMutex
	containers map[string]containerInfo // workspace ID -> container
}

// NewContainerManager creates a ContainerManager launching the given image.
func NewContainerManager(image string, servicePort int, log logr.Logger) *ContainerManager {
	if servicePort == 0 {
		servicePort = DefaultServicePort
	}
	return &ContainerManager{
		image:       image,
		servicePort: servicePort,
		log:         log.WithName("workspace-container"),
		runCommand:  runDockerCommand,
		sessionMap:  newSessionMap(),
		containers:  make(map[string]containerInfo),
	}
}

func runDockerCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (m *ContainerManager) Prepare(ctx context.Context, sessionID string) (*Workspace, error) {
	if sessionID != "" {
		if id, ok := m.lookup(sessionID); ok {
			m.mu.RLock()
			info := m.containers[id]
			m.mu.RUnlock()
			return &Workspace{ID: id, ContainerID: info.ContainerID, Port: info.Port}, nil
		}
	}

	id := uuid.NewString()
	containerID, err := m.runCommand(ctx, "docker", "run", "-d", "--rm",
		"--label", "agentgate.workspace="+id, "-P", m.image)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeWorkspaceCreate,
			"failed to launch container: "+containerID, err)
	}

	port, err := m.discoverPort(ctx, containerID)
	if err != nil {
		// The container is up but unreachable; stop it rather than leak it.
		_, _ = m.runCommand(ctx, "docker", "stop", containerID)
		return nil, apperrors.New(apperrors.ErrCodeWorkspaceCreate,
			"failed to discover container port", err)
	}

	m.mu.Lock()
	m.containers[id] = containerInfo{ContainerID: containerID, Port: port}
	m.mu.Unlock()

	m.log.V(1).Info("launched container", "workspace", id, "container", containerID, "port", port)
	return &Workspace{ID: id, ContainerID: containerID, Port: port}, nil
}

// discoverPort polls for the published mapping of the service port. The
// container was already launched; this only bounds the wait for the runtime
// to publish it, it does not re-provision.
func (m *ContainerManager) discoverPort(ctx context.Context, containerID string) (int, error) {
	return backoff.Retry(ctx, func() (int, error) {
		out, err := m.runCommand(ctx, "docker", "port", containerID,
			fmt.Sprintf("%d/tcp", m.servicePort))
		if err != nil {
			return 0, err
		}
		return parsePublishedPort(out)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(portDiscoveryWait),
	)
}

// parsePublishedPort extracts the host port from `docker port` output such as
// "0.0.0.0:49153".
func parsePublishedPort(out string) (int, error) {
	line := out
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		line = out[:i]
	}
	i := strings.LastIndexByte(line, ':')
	if i < 0 {
		return 0, fmt.Errorf("no published port in %q", out)
	}
	port, err := strconv.Atoi(strings.TrimSpace(line[i+1:]))
	if err != nil || port == 0 {
		return 0, fmt.Errorf("bad published port in %q", out)
	}
	return port, nil
}

func (m *ContainerManager) Destroy(ctx context.Context, sessionID string) error {
	id, ok := m.lookup(sessionID)
	if !ok {
		id = sessionID
	}

	m.mu.Lock()
	info, known := m.containers[id]
	delete(m.containers, id)
	m.mu.Unlock()
	m.remove(sessionID)

	if !known {
		return nil
	}

	if out, err := m.runCommand(ctx, "docker", "stop", info.ContainerID); err != nil {
		// --rm means a stopped container is already gone; that's success.
		if strings.Contains(out, "No such container") {
			return nil
		}
		return apperrors.New(apperrors.ErrCodeWorkspaceDestroy,
			"failed to stop container: "+out, err)
	}
	return nil
}

func (m *ContainerManager) Associate(sessionID, workspaceID string) {
	m.associate(sessionID, workspaceID)
}

func (m *ContainerManager) Lookup(sessionID string) (string, bool) {
	return m.lookup(sessionID)
}

// IngestFiles is not implemented for the container strategy: it would require
// a network copy protocol to the container's service port.
func (m *ContainerManager) IngestFiles(ctx context.Context, workspaceID string, files []Upload) ([]IngestedFile, error) {
	return nil, apperrors.New(apperrors.ErrCodeUnsupported,
		"file ingestion is not supported by the container strategy", nil)
}
