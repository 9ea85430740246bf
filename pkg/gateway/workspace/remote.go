package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
)

// Defaults for remote execution requests.
const (
	DefaultExecLanguage = "bash"
	DefaultExecTimeout  = 30
)

// ExecRequest is one execution call forwarded to the sandbox provider.
// Exactly one of Code or ShellCommand should be set.
type ExecRequest struct {
	Code           string `json:"code,omitempty"`
	ShellCommand   string `json:"shellCommand,omitempty"`
	Language       string `json:"language"`
	TimeoutSeconds int    `json:"timeoutInSeconds"`
}

// ExecResult is the provider's structured execution outcome.
type ExecResult struct {
	Status     string `json:"status"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returnCode"`
}

// RemoteManager maps each conversation to a stable remote-session identifier.
// The provider allocates the real sandbox on first use of that identifier and
// reclaims it after an idle cooldown, so Prepare creates no local resource
// and Destroy only drops the local mapping.
type RemoteManager struct {
	endpoint   string
	token      func() string
	httpClient *http.Client
	log        logr.Logger

	sessionMap
}

// NewRemoteManager creates a RemoteManager targeting the given execution
// endpoint, authenticating outbound calls with the token provider.
func NewRemoteManager(endpoint string, token func() string, log logr.Logger) *RemoteManager {
	return &RemoteManager{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		httpClient: &http.Client{},
		log:        log.WithName("workspace-remote"),
		sessionMap: newSessionMap(),
	}
}

func (m *RemoteManager) Prepare(ctx context.Context, sessionID string) (*Workspace, error) {
	if sessionID != "" {
		if id, ok := m.lookup(sessionID); ok {
			return &Workspace{ID: id, RemoteSession: id}, nil
		}
	}
	id := "sbx-" + uuid.NewString()
	return &Workspace{ID: id, RemoteSession: id}, nil
}

// Destroy drops the local mapping only; the provider auto-reclaims idle
// sessions.
func (m *RemoteManager) Destroy(ctx context.Context, sessionID string) error {
	m.remove(sessionID)
	return nil
}

func (m *RemoteManager) Associate(sessionID, workspaceID string) {
	m.associate(sessionID, workspaceID)
}

func (m *RemoteManager) Lookup(sessionID string) (string, bool) {
	return m.lookup(sessionID)
}

// IngestFiles is not supported: the provider's execution contract exposes no
// upload surface.
func (m *RemoteManager) IngestFiles(ctx context.Context, workspaceID string, files []Upload) ([]IngestedFile, error) {
	return nil, apperrors.New(apperrors.ErrCodeUnsupported,
		"file ingestion is not supported by the remote strategy", nil)
}

// Execute forwards a code or shell execution to the provider for the sandbox
// session mapped to sessionID, raising on any non-success HTTP status.
func (m *RemoteManager) Execute(ctx context.Context, sessionID string, req ExecRequest) (*ExecResult, error) {
	if req.Code == "" && req.ShellCommand == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest,
			"execute requires code or shellCommand", nil)
	}
	if req.Language == "" {
		req.Language = DefaultExecLanguage
	}
	if req.TimeoutSeconds == 0 {
		req.TimeoutSeconds = DefaultExecTimeout
	}

	remoteID, ok := m.lookup(sessionID)
	if !ok {
		remoteID = sessionID
	}

	body, err := json.Marshal(struct {
		SessionID string `json:"sessionId"`
		ExecRequest
	}{SessionID: remoteID, ExecRequest: req})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeExecuteFailed, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.endpoint+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeExecuteFailed, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token := m.token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		// The provider has no dedicated timeout status; classify by error
		// shape as a best effort.
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
			return nil, apperrors.New(apperrors.ErrCodeExecuteFailed, "execution timed out", err)
		}
		return nil, apperrors.New(apperrors.ErrCodeExecuteFailed, "failed to call execution endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrCodeExecuteFailed,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(payload)), nil)
	}

	var result ExecResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeExecuteFailed, "failed to decode response", err)
	}
	return &result, nil
}
