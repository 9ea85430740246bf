// Package agui transcodes the gateway's domain events into the external
// streaming protocol consumed by client surfaces: run lifecycle events, text
// message segments, tool call segments and a generic custom envelope.
package agui

import "time"

// EventType tags a protocol event.
type EventType string

const (
	EventRunStarted         EventType = "RUN_STARTED"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventRunError           EventType = "RUN_ERROR"
	EventTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventToolCallStart      EventType = "TOOL_CALL_START"
	EventToolCallArgs       EventType = "TOOL_CALL_ARGS"
	EventToolCallEnd        EventType = "TOOL_CALL_END"
	EventCustom             EventType = "CUSTOM"
)

// Event is one protocol envelope. Only the fields relevant to Type are
// populated; every envelope carries its generation timestamp in Unix
// milliseconds.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`

	ThreadID string `json:"thread_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`

	MessageID string `json:"message_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Delta     string `json:"delta,omitempty"`

	ToolCallID   string `json:"tool_call_id,omitempty"`
	ToolCallName string `json:"tool_call_name,omitempty"`

	Message string `json:"message,omitempty"`

	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`
}

func newEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().UnixMilli()}
}
