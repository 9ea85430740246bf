// Package events defines the gateway's internal domain-event vocabulary: the
// typed sequence a streaming turn emits as progress becomes available.
package events

import (
	"time"

	"github.com/agentgate-dev/agentgate/pkg/gateway/runtime"
	"github.com/agentgate-dev/agentgate/pkg/gateway/todo"
	"github.com/agentgate-dev/agentgate/pkg/gateway/usage"
)

// Type discriminates Event.
type Type string

const (
	TypeTextDelta  Type = "text_delta"
	TypeToolCall   Type = "tool_call"
	TypeTodoUpdate Type = "todo_update"
	TypeUsage      Type = "usage"
	TypeSession    Type = "session"
	TypeDone       Type = "done"
	TypeError      Type = "error"
)

// Event is one unit of turn progress. Only the fields relevant to Type are
// populated.
type Event struct {
	Type      Type              `json:"type"`
	Delta     string            `json:"delta,omitempty"`
	Tool      *runtime.ToolCall `json:"tool,omitempty"`
	Todos     *todo.Progress    `json:"todos,omitempty"`
	Usage     *usage.Stats      `json:"usage,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Result    *Result           `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Result is the full aggregated outcome of one turn, carried by the done
// event and returned directly by single-shot queries.
type Result struct {
	Text       string             `json:"text"`
	SessionID  string             `json:"session_id,omitempty"`
	StopReason runtime.StopReason `json:"stop_reason"`
	Usage      usage.Stats        `json:"usage"`
	Todos      *todo.Progress     `json:"todos,omitempty"`
	ToolCalls  []runtime.ToolCall `json:"tool_calls"`
}

// TextDelta creates a text_delta event.
func TextDelta(text string) Event {
	return Event{Type: TypeTextDelta, Delta: text, Timestamp: time.Now()}
}

// ToolCall creates a tool_call event.
func ToolCall(call runtime.ToolCall) Event {
	return Event{Type: TypeToolCall, Tool: &call, Timestamp: time.Now()}
}

// TodoUpdate creates a todo_update event.
func TodoUpdate(p *todo.Progress) Event {
	return Event{Type: TypeTodoUpdate, Todos: p, Timestamp: time.Now()}
}

// UsageUpdate creates a usage event from a totals snapshot.
func UsageUpdate(s usage.Stats) Event {
	return Event{Type: TypeUsage, Usage: &s, Timestamp: time.Now()}
}

// Session creates a session event announcing the conversation identity.
func Session(id string) Event {
	return Event{Type: TypeSession, SessionID: id, Timestamp: time.Now()}
}

// Done creates the terminal done event.
func Done(r *Result) Event {
	return Event{Type: TypeDone, Result: r, Timestamp: time.Now()}
}

// Failure creates a terminal error event. An empty message falls back to a
// generic description so clients always receive a terminating signal.
func Failure(err error) Event {
	msg := "query failed"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Event{Type: TypeError, Error: msg, Timestamp: time.Now()}
}
