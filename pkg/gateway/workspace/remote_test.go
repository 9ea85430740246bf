package workspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(token string) func() string {
	return func() string { return token }
}

func TestRemoteManager_PrepareAllocatesSessionIdentifier(t *testing.T) {
	m := NewRemoteManager("https://exec.example.com", staticToken(""), logr.Discard())

	ws, err := m.Prepare(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ws.ID, "sbx-"))
	assert.Equal(t, ws.ID, ws.RemoteSession)
	assert.Empty(t, ws.Dir)
	assert.Empty(t, ws.ContainerID)
}

func TestRemoteManager_PrepareReusesMapping(t *testing.T) {
	m := NewRemoteManager("https://exec.example.com", staticToken(""), logr.Discard())
	ctx := context.Background()

	ws, err := m.Prepare(ctx, "")
	require.NoError(t, err)
	m.Associate("conv-1", ws.ID)

	again, err := m.Prepare(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, ws.ID, again.ID)
}

func TestRemoteManager_DestroyDropsMappingOnly(t *testing.T) {
	m := NewRemoteManager("https://exec.example.com", staticToken(""), logr.Discard())
	ctx := context.Background()

	ws, err := m.Prepare(ctx, "")
	require.NoError(t, err)
	m.Associate("conv-1", ws.ID)

	require.NoError(t, m.Destroy(ctx, "conv-1"))
	_, ok := m.Lookup("conv-1")
	assert.False(t, ok)

	require.NoError(t, m.Destroy(ctx, "conv-1"))
}

func TestRemoteManager_ExecuteAppliesDefaults(t *testing.T) {
	var got map[string]any
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ExecResult{Status: "success", Stdout: "ok", ReturnCode: 0})
	}))
	defer srv.Close()

	m := NewRemoteManager(srv.URL, staticToken("secret"), logr.Discard())
	m.Associate("conv-1", "sbx-abc")

	result, err := m.Execute(context.Background(), "conv-1", ExecRequest{ShellCommand: "ls"})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "ok", result.Stdout)

	assert.Equal(t, "Bearer secret", authz)
	assert.Equal(t, "sbx-abc", got["sessionId"])
	assert.Equal(t, "ls", got["shellCommand"])
	assert.Equal(t, "bash", got["language"])
	assert.Equal(t, float64(30), got["timeoutInSeconds"])
}

func TestRemoteManager_ExecuteRequiresCodeOrCommand(t *testing.T) {
	m := NewRemoteManager("https://exec.example.com", staticToken(""), logr.Discard())

	_, err := m.Execute(context.Background(), "conv-1", ExecRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_REQUEST")
}

func TestRemoteManager_ExecuteNonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sandbox quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := NewRemoteManager(srv.URL, staticToken(""), logr.Discard())

	_, err := m.Execute(context.Background(), "conv-1", ExecRequest{Code: "print(1)"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestRemoteManager_IngestFilesUnsupported(t *testing.T) {
	m := NewRemoteManager("https://exec.example.com", staticToken(""), logr.Discard())

	_, err := m.IngestFiles(context.Background(), "sbx-abc", []Upload{{Name: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNSUPPORTED_OPERATION")
}

func TestNew_StrategySelection(t *testing.T) {
	log := logr.Discard()

	m, err := New(Config{Strategy: StrategyLocal, BasePath: t.TempDir()}, log)
	require.NoError(t, err)
	assert.IsType(t, &LocalManager{}, m)

	// Empty strategy defaults to local.
	m, err = New(Config{BasePath: t.TempDir()}, log)
	require.NoError(t, err)
	assert.IsType(t, &LocalManager{}, m)

	m, err = New(Config{Strategy: StrategyContainer, ContainerImage: "img"}, log)
	require.NoError(t, err)
	assert.IsType(t, &ContainerManager{}, m)

	m, err = New(Config{
		Strategy:       StrategyRemote,
		RemoteEndpoint: "https://exec.example.com",
		TokenProvider:  staticToken(""),
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &RemoteManager{}, m)
}

func TestNew_ConfigErrors(t *testing.T) {
	log := logr.Discard()

	_, err := New(Config{Strategy: StrategyContainer}, log)
	assert.Error(t, err)

	_, err = New(Config{Strategy: StrategyRemote}, log)
	assert.Error(t, err)

	_, err = New(Config{Strategy: StrategyRemote, RemoteEndpoint: "https://x"}, log)
	assert.Error(t, err)

	_, err = New(Config{Strategy: "vm"}, log)
	assert.Error(t, err)
}
