// Package workspace owns the mapping from conversation identity to an
// isolated execution environment, with interchangeable isolation strategies:
// a local folder, an ephemeral container, or a remote dynamic session.
package workspace

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
)

// Workspace is one execution environment. ID is an opaque identifier; exactly
// one of the strategy-specific handles is populated.
type Workspace struct {
	ID            string `json:"id"`
	Dir           string `json:"dir,omitempty"`
	ContainerID   string `json:"container_id,omitempty"`
	Port          int    `json:"port,omitempty"`
	RemoteSession string `json:"remote_session,omitempty"`
}

// Upload is one file payload to be ingested into a workspace.
type Upload struct {
	Name string
	Data []byte
}

// IngestedFile describes where an upload landed.
type IngestedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Manager is the strategy-polymorphic session/environment contract.
//
// Prepare for a brand-new conversation racing with a concurrent duplicate
// request is not serialized: two workspaces can be allocated for the same
// logical conversation before the first Associate lands. The internal map is
// mutex-guarded for integrity only; first-creation is best-effort by design.
type Manager interface {
	// Prepare returns the workspace already associated with sessionID, or
	// allocates a fresh one (provisioning the backing resource for
	// resource-backed strategies) when sessionID is empty or unknown.
	Prepare(ctx context.Context, sessionID string) (*Workspace, error)

	// Associate records the sessionID -> workspace mapping once the runtime
	// reveals the conversation identity for a freshly created workspace.
	Associate(sessionID, workspaceID string)

	// Lookup returns the workspace ID mapped to sessionID, if any.
	Lookup(sessionID string) (string, bool)

	// Destroy releases the workspace mapped to sessionID, treating the
	// argument as a workspace ID when no mapping exists. Destroying an
	// unknown or already-destroyed identity is a no-op.
	Destroy(ctx context.Context, sessionID string) error

	// IngestFiles copies uploads into the workspace's working context after
	// sanitizing filenames. Strategies without an upload surface return an
	// unsupported-operation error.
	IngestFiles(ctx context.Context, workspaceID string, files []Upload) ([]IngestedFile, error)
}

// Executor is the extra capability of the remote strategy: forwarding code or
// shell commands to the sandbox provider's execution endpoint.
type Executor interface {
	Execute(ctx context.Context, sessionID string, req ExecRequest) (*ExecResult, error)
}

// Strategy names accepted by New.
const (
	StrategyLocal     = "local"
	StrategyContainer = "container"
	StrategyRemote    = "remote"
)

// Config selects and parameterizes a strategy.
type Config struct {
	Strategy string

	// Local strategy
	BasePath string

	// Container strategy
	ContainerImage string
	ServicePort    int

	// Remote strategy
	RemoteEndpoint string
	TokenProvider  func() string
}

// New builds the configured strategy. Missing required settings are fatal
// configuration errors raised here, not at first use. The returned instance
// is owned by the caller; there is no process-wide singleton.
func New(cfg Config, log logr.Logger) (Manager, error) {
	switch cfg.Strategy {
	case StrategyLocal, "":
		return NewLocalManager(cfg.BasePath, log), nil
	case StrategyContainer:
		if cfg.ContainerImage == "" {
			return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
				"container strategy requires an image", nil)
		}
		return NewContainerManager(cfg.ContainerImage, cfg.ServicePort, log), nil
	case StrategyRemote:
		if cfg.RemoteEndpoint == "" {
			return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
				"remote strategy requires an execution endpoint", nil)
		}
		if cfg.TokenProvider == nil {
			return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
				"remote strategy requires a token provider", nil)
		}
		return NewRemoteManager(cfg.RemoteEndpoint, cfg.TokenProvider, log), nil
	}
	return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
		"unknown workspace strategy: "+cfg.Strategy, nil)
}

// sessionMap is the shared conversation -> workspace mapping. At most one
// workspace per session; a workspace starts unassociated.
type sessionMap struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func newSessionMap() sessionMap {
	return sessionMap{sessions: make(map[string]string)}
}

func (m *sessionMap) associate(sessionID, workspaceID string) {
	if sessionID == "" || workspaceID == "" {
		return
	}
	m.mu.Lock()
	m.sessions[sessionID] = workspaceID
	m.mu.Unlock()
}

func (m *sessionMap) lookup(sessionID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessions[sessionID]
	return id, ok
}

func (m *sessionMap) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}
