package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
)

// DefaultBasePath is where local workspaces live unless configured otherwise.
const DefaultBasePath = "/tmp/agentgate"

// LocalManager backs each workspace with a directory under a base path, named
// by workspace ID.
type LocalManager struct {
	basePath string
	log      logr.Logger

	sessionMap
	mu   sync.RWMutex
	dirs map[string]string // workspace ID -> directory
}

// NewLocalManager creates a LocalManager rooted at basePath.
func NewLocalManager(basePath string, log logr.Logger) *LocalManager {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &LocalManager{
		basePath:   basePath,
		log:        log.WithName("workspace-local"),
		sessionMap: newSessionMap(),
		dirs:       make(map[string]string),
	}
}

func (m *LocalManager) Prepare(ctx context.Context, sessionID string) (*Workspace, error) {
	if sessionID != "" {
		if id, ok := m.lookup(sessionID); ok {
			m.mu.RLock()
			dir := m.dirs[id]
			m.mu.RUnlock()
			return &Workspace{ID: id, Dir: dir}, nil
		}
	}

	id := uuid.NewString()
	dir := filepath.Join(m.basePath, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeWorkspaceCreate,
			"failed to create workspace directory", err)
	}

	m.mu.Lock()
	m.dirs[id] = dir
	m.mu.Unlock()

	m.log.V(1).Info("created workspace directory", "workspace", id, "dir", dir)
	return &Workspace{ID: id, Dir: dir}, nil
}

func (m *LocalManager) Destroy(ctx context.Context, sessionID string) error {
	id, ok := m.lookup(sessionID)
	if !ok {
		// No mapping: the argument may itself be a workspace ID.
		id = sessionID
	}

	m.mu.Lock()
	dir, known := m.dirs[id]
	delete(m.dirs, id)
	m.mu.Unlock()
	m.remove(sessionID)

	if !known {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return apperrors.New(apperrors.ErrCodeWorkspaceDestroy,
			"failed to remove workspace directory", err)
	}
	m.log.V(1).Info("removed workspace directory", "workspace", id, "dir", dir)
	return nil
}

func (m *LocalManager) Associate(sessionID, workspaceID string) {
	m.associate(sessionID, workspaceID)
}

func (m *LocalManager) Lookup(sessionID string) (string, bool) {
	return m.lookup(sessionID)
}

func (m *LocalManager) IngestFiles(ctx context.Context, workspaceID string, files []Upload) ([]IngestedFile, error) {
	m.mu.RLock()
	dir, ok := m.dirs[workspaceID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeFileOperation,
			"unknown workspace: "+workspaceID, nil)
	}

	var result *multierror.Error
	ingested := make([]IngestedFile, 0, len(files))
	for _, f := range files {
		name := SanitizeFilename(f.Name)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			result = multierror.Append(result, apperrors.New(
				apperrors.ErrCodeFileOperation, "failed to write "+name, err))
			continue
		}
		ingested = append(ingested, IngestedFile{Name: name, Path: path, Size: int64(len(f.Data))})
	}
	return ingested, result.ErrorOrNil()
}
