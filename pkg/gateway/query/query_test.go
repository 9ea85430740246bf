package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate-dev/agentgate/pkg/gateway/events"
	"github.com/agentgate-dev/agentgate/pkg/gateway/runtime"
	"github.com/agentgate-dev/agentgate/pkg/gateway/workspace"
)

// fakeClient replays a canned message sequence and then a terminal error (or
// nil) the way the CLI client does.
type fakeClient struct {
	msgs []runtime.Message
	err  error
	got  runtime.QueryRequest
}

func (c *fakeClient) Query(ctx context.Context, req runtime.QueryRequest) (<-chan runtime.Message, <-chan error) {
	c.got = req
	msgs := make(chan runtime.Message, len(c.msgs))
	errs := make(chan error, 1)
	for _, m := range c.msgs {
		msgs <- m
	}
	close(msgs)
	errs <- c.err
	close(errs)
	return msgs, errs
}

func assistantText(id, sessionID, text string, u *runtime.Usage) *runtime.AssistantMessage {
	return &runtime.AssistantMessage{
		ID:      id,
		Session: sessionID,
		Content: []runtime.ContentBlock{{Type: runtime.BlockText, Text: text}},
		Usage:   u,
	}
}

func newTestOrchestrator(t *testing.T, client runtime.Client) (*Orchestrator, workspace.Manager) {
	t.Helper()
	ws := workspace.NewLocalManager(t.TempDir(), logr.Discard())
	orch := NewOrchestrator(client, ws, nil, Defaults{Model: "sonnet", MaxTurns: 10}, logr.Discard())
	return orch, ws
}

func TestRun_SingleShotAggregates(t *testing.T) {
	client := &fakeClient{msgs: []runtime.Message{
		assistantText("m1", "conv-1", "Hi", &runtime.Usage{InputTokens: 5, OutputTokens: 2}),
		&runtime.ResultMessage{
			StopReason: runtime.StopEndTurn,
			Session:    "conv-1",
			Usage:      &runtime.Usage{InputTokens: 5, OutputTokens: 2},
		},
	}}
	orch, _ := newTestOrchestrator(t, client)

	result, err := orch.Run(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Hi", result.Text)
	assert.Equal(t, "conv-1", result.SessionID)
	assert.Equal(t, runtime.StopEndTurn, result.StopReason)
	assert.Equal(t, int64(5), result.Usage.InputTokens)
	assert.Equal(t, int64(2), result.Usage.OutputTokens)
	assert.Equal(t, int64(0), result.Usage.CacheReadTokens)
	assert.Equal(t, int64(0), result.Usage.CacheCreationTokens)
}

func TestRun_RejectsEmptyPrompt(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeClient{})

	_, err := orch.Run(context.Background(), Request{Prompt: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_REQUEST")
}

func TestRun_MergesDefaults(t *testing.T) {
	client := &fakeClient{}
	ws := workspace.NewLocalManager(t.TempDir(), logr.Discard())
	orch := NewOrchestrator(client, ws, nil, Defaults{
		Model:    "sonnet",
		MaxTurns: 10,
		Env:      map[string]string{"RUNTIME_API_KEY": "k"},
	}, logr.Discard())

	_, err := orch.Run(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "sonnet", client.got.Model)
	assert.Equal(t, 10, client.got.MaxTurns)
	assert.Equal(t, map[string]string{"RUNTIME_API_KEY": "k"}, client.got.Env)

	// Explicit values win over defaults.
	_, err = orch.Run(context.Background(), Request{Prompt: "hello", Model: "opus", MaxTurns: 3})
	require.NoError(t, err)
	assert.Equal(t, "opus", client.got.Model)
	assert.Equal(t, 3, client.got.MaxTurns)
}

func TestRun_StreamErrorPropagates(t *testing.T) {
	client := &fakeClient{
		msgs: []runtime.Message{assistantText("m1", "conv-1", "partial", nil)},
		err:  errors.New("runtime exited"),
	}
	orch, _ := newTestOrchestrator(t, client)

	_, err := orch.Run(context.Background(), Request{Prompt: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime exited")
}

func TestRun_AssociatesRevealedSession(t *testing.T) {
	client := &fakeClient{msgs: []runtime.Message{
		assistantText("m1", "conv-1", "Hi", nil),
		&runtime.ResultMessage{StopReason: runtime.StopEndTurn, Session: "conv-1"},
	}}
	orch, manager := newTestOrchestrator(t, client)

	_, err := orch.Run(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)

	wsID, ok := manager.Lookup("conv-1")
	require.True(t, ok)

	// A resumed turn reuses the mapped workspace.
	_, err = orch.Run(context.Background(), Request{Prompt: "again", SessionID: "conv-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", client.got.ResumeID)

	reused, ok := manager.Lookup("conv-1")
	require.True(t, ok)
	assert.Equal(t, wsID, reused)
}

func TestRun_UsageDeduplicatedByMessageID(t *testing.T) {
	u := &runtime.Usage{InputTokens: 5, OutputTokens: 2}
	client := &fakeClient{msgs: []runtime.Message{
		assistantText("m1", "conv-1", "Hel", u),
		assistantText("m1", "conv-1", "", u),
	}}
	orch, _ := newTestOrchestrator(t, client)

	result, err := orch.Run(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Usage.InputTokens)
	assert.Equal(t, int64(2), result.Usage.OutputTokens)
}

func collectStream(t *testing.T, orch *Orchestrator, req Request) ([]events.Event, error) {
	t.Helper()
	out := make(chan events.Event, 64)
	err := orch.Stream(context.Background(), req, out)
	close(out)
	var got []events.Event
	for ev := range out {
		got = append(got, ev)
	}
	return got, err
}

func eventTypes(evs []events.Event) []events.Type {
	types := make([]events.Type, 0, len(evs))
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	return types
}

func TestStream_DeltaOrderAndDone(t *testing.T) {
	client := &fakeClient{msgs: []runtime.Message{
		&runtime.DeltaMessage{Text: "Hel"},
		&runtime.DeltaMessage{Text: "lo"},
		assistantText("m1", "conv-1", "Hello", &runtime.Usage{InputTokens: 5, OutputTokens: 2}),
		&runtime.ResultMessage{
			StopReason: runtime.StopEndTurn,
			Session:    "conv-1",
			Usage:      &runtime.Usage{InputTokens: 5, OutputTokens: 2},
		},
	}}
	orch, _ := newTestOrchestrator(t, client)

	got, err := collectStream(t, orch, Request{Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, []events.Type{
		events.TypeTextDelta,
		events.TypeTextDelta,
		events.TypeSession,
		events.TypeUsage,
		events.TypeUsage,
		events.TypeDone,
	}, eventTypes(got))

	assert.Equal(t, "Hel", got[0].Delta)
	assert.Equal(t, "lo", got[1].Delta)
	assert.Equal(t, "conv-1", got[2].SessionID)

	done := got[len(got)-1]
	require.NotNil(t, done.Result)
	assert.Equal(t, "Hello", done.Result.Text)
	assert.Equal(t, runtime.StopEndTurn, done.Result.StopReason)
	assert.Equal(t, int64(5), done.Result.Usage.InputTokens)
}

func TestStream_TodoUpdate(t *testing.T) {
	client := &fakeClient{msgs: []runtime.Message{
		&runtime.AssistantMessage{
			ID:      "m1",
			Session: "conv-1",
			Content: []runtime.ContentBlock{{
				Type: runtime.BlockToolUse,
				Tool: &runtime.ToolCall{
					ID:   "tu1",
					Name: "TodoWrite",
					Input: map[string]any{
						"todos": []any{
							map[string]any{"content": "ship it", "status": "done"},
						},
					},
				},
			}},
		},
		&runtime.ResultMessage{StopReason: runtime.StopEndTurn, Session: "conv-1"},
	}}
	orch, _ := newTestOrchestrator(t, client)

	got, err := collectStream(t, orch, Request{Prompt: "hello"})
	require.NoError(t, err)

	var todos *events.Event
	for i := range got {
		if got[i].Type == events.TypeTodoUpdate {
			todos = &got[i]
			break
		}
	}
	require.NotNil(t, todos)
	assert.Equal(t, 1, todos.Todos.Total)
	assert.Equal(t, 1, todos.Todos.Completed)
	assert.Equal(t, 0, todos.Todos.Pending)

	// The tool call itself is surfaced as its own event before the todos.
	assert.Equal(t, events.TypeToolCall, got[1].Type)
	assert.Equal(t, "TodoWrite", got[1].Tool.Name)
}

func TestStream_FailureEmitsNoDone(t *testing.T) {
	client := &fakeClient{
		msgs: []runtime.Message{&runtime.DeltaMessage{Text: "par"}},
		err:  errors.New("runtime exited"),
	}
	orch, _ := newTestOrchestrator(t, client)

	got, err := collectStream(t, orch, Request{Prompt: "hello"})
	require.Error(t, err)
	for _, ev := range got {
		assert.NotEqual(t, events.TypeDone, ev.Type)
	}
}

func TestStream_SessionAnnouncedOnce(t *testing.T) {
	client := &fakeClient{msgs: []runtime.Message{
		assistantText("m1", "conv-1", "a", nil),
		assistantText("m2", "conv-1", "b", nil),
		&runtime.ResultMessage{StopReason: runtime.StopEndTurn, Session: "conv-1"},
	}}
	orch, _ := newTestOrchestrator(t, client)

	got, err := collectStream(t, orch, Request{Prompt: "hello"})
	require.NoError(t, err)

	sessions := 0
	for _, ev := range got {
		if ev.Type == events.TypeSession {
			sessions++
		}
	}
	assert.Equal(t, 1, sessions)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("  short  ", 80))
	assert.Equal(t, "aaaaa", truncate("aaaaaaaaaaaaaaaaaaaa", 5))

	// Cuts land on rune boundaries, never mid-codepoint.
	got := truncate(strings.Repeat("é", 10), 5)
	assert.Equal(t, "ééééé", got)
	assert.True(t, utf8.ValidString(got))
}
