package transcript

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "transcript.db"), logr.Discard())
	require.NoError(t, err)
	return store
}

func TestStore_CreateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "conv-1"))
	require.NoError(t, store.Create(ctx, "conv-1"))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "conv-1", sessions[0].ID)
	assert.Equal(t, StatusActive, sessions[0].Status)
	assert.Empty(t, sessions[0].Title)
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "conv-1"))

	require.NoError(t, store.AppendEvent(ctx, "conv-1", EventUserMessage, map[string]any{"text": "hi"}))
	require.NoError(t, store.AppendEvent(ctx, "conv-1", EventToolCall, map[string]any{"name": "Bash"}))
	require.NoError(t, store.AppendEvent(ctx, "conv-1", EventAssistantMessage, map[string]any{"text": "done"}))

	events, err := store.GetEvents(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventUserMessage, events[0].Type)
	assert.Equal(t, EventToolCall, events[1].Type)
	assert.Equal(t, EventAssistantMessage, events[2].Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &payload))
	assert.Equal(t, "hi", payload["text"])
}

func TestStore_EventsScopedToSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "conv-1"))
	require.NoError(t, store.Create(ctx, "conv-2"))

	require.NoError(t, store.AppendEvent(ctx, "conv-1", EventUserMessage, map[string]any{"text": "a"}))
	require.NoError(t, store.AppendEvent(ctx, "conv-2", EventUserMessage, map[string]any{"text": "b"}))

	events, err := store.GetEvents(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "conv-1", events[0].SessionID)
}

func TestStore_UpdateTitleAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "conv-1"))

	require.NoError(t, store.UpdateTitle(ctx, "conv-1", "fix the build"))
	require.NoError(t, store.UpdateStatus(ctx, "conv-1", StatusCompleted))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "fix the build", sessions[0].Title)
	assert.Equal(t, StatusCompleted, sessions[0].Status)
}

func TestStore_DeleteSessionRemovesLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "conv-1"))
	require.NoError(t, store.AppendEvent(ctx, "conv-1", EventUserMessage, map[string]any{"text": "a"}))

	require.NoError(t, store.DeleteSession(ctx, "conv-1"))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	events, err := store.GetEvents(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	// Deleting an unknown session is a no-op.
	assert.NoError(t, store.DeleteSession(ctx, "conv-1"))
}

func TestWriter_DrainsOnClose(t *testing.T) {
	store := newTestStore(t)
	writer := NewWriter(store, 8, logr.Discard())

	writer.EnsureSession("conv-1")
	writer.Append("conv-1", EventUserMessage, map[string]any{"text": "hi"})
	writer.Append("conv-1", EventAssistantMessage, map[string]any{"text": "hello"})
	writer.SetTitle("conv-1", "greeting")
	writer.SetStatus("conv-1", StatusCompleted)
	writer.Close()

	ctx := context.Background()
	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "greeting", sessions[0].Title)
	assert.Equal(t, StatusCompleted, sessions[0].Status)

	events, err := store.GetEvents(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventUserMessage, events[0].Type)
	assert.Equal(t, EventAssistantMessage, events[1].Type)
}

func TestWriter_FullQueueDropsWriteWithoutBlocking(t *testing.T) {
	store := newTestStore(t)

	// Stuff the queue directly so enqueue hits the full case.
	w := &Writer{
		store: store,
		jobs:  make(chan writeJob, 1),
		done:  make(chan struct{}),
		log:   logr.Discard(),
	}
	w.jobs <- writeJob{sessionID: "conv-1", kind: EventUserMessage}

	finished := make(chan struct{})
	go func() {
		w.Append("conv-1", EventAssistantMessage, map[string]any{"text": "dropped"})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	assert.Len(t, w.jobs, 1)
}
