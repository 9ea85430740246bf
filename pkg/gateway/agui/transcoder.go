package agui

import (
	"encoding/json"
	"strconv"

	"github.com/agentgate-dev/agentgate/pkg/gateway/events"
)

// Transcoder converts one turn's domain-event sequence into protocol events.
//
// The protocol cannot reopen a closed text message: an open message must be
// closed before a tool call starts, and text resuming after a tool call needs
// a fresh message identity. The transcoder tracks a segment counter for that:
// the first segment uses the base identity, each tool call closes any open
// segment and bumps the counter, and the next delta opens base-<counter>.
//
// A Transcoder serves exactly one run and is not safe for concurrent use.
type Transcoder struct {
	threadID      string
	runID         string
	baseMessageID string
	segment       int
	open          bool
}

// NewTranscoder creates a Transcoder for one run.
func NewTranscoder(threadID, runID string) *Transcoder {
	return &Transcoder{
		threadID:      threadID,
		runID:         runID,
		baseMessageID: "msg-" + runID,
	}
}

func (t *Transcoder) messageID() string {
	if t.segment == 0 {
		return t.baseMessageID
	}
	return t.baseMessageID + "-" + strconv.Itoa(t.segment)
}

// RunStarted emits the run lifecycle opening event.
func (t *Transcoder) RunStarted() Event {
	ev := newEvent(EventRunStarted)
	ev.ThreadID = t.threadID
	ev.RunID = t.runID
	return ev
}

// Transcode converts one domain event into zero or more protocol events.
func (t *Transcoder) Transcode(domain events.Event) []Event {
	switch domain.Type {
	case events.TypeTextDelta:
		var out []Event
		if !t.open {
			t.open = true
			start := newEvent(EventTextMessageStart)
			start.MessageID = t.messageID()
			start.Role = "assistant"
			out = append(out, start)
		}
		content := newEvent(EventTextMessageContent)
		content.MessageID = t.messageID()
		content.Delta = domain.Delta
		return append(out, content)

	case events.TypeToolCall:
		out := t.closeSegment()
		t.segment++
		if domain.Tool == nil {
			return out
		}
		start := newEvent(EventToolCallStart)
		start.ToolCallID = domain.Tool.ID
		start.ToolCallName = domain.Tool.Name
		args := newEvent(EventToolCallArgs)
		args.ToolCallID = domain.Tool.ID
		if data, err := json.Marshal(domain.Tool.Input); err == nil {
			args.Delta = string(data)
		}
		end := newEvent(EventToolCallEnd)
		end.ToolCallID = domain.Tool.ID
		return append(out, start, args, end)

	case events.TypeTodoUpdate:
		return []Event{t.custom("todo_update", domain.Todos)}

	case events.TypeUsage:
		return []Event{t.custom("usage", domain.Usage)}

	case events.TypeSession:
		return []Event{t.custom("session", map[string]any{"session_id": domain.SessionID})}

	case events.TypeDone:
		out := t.closeSegment()
		out = append(out, t.custom("done_result", domain.Result))
		finished := newEvent(EventRunFinished)
		finished.ThreadID = t.threadID
		finished.RunID = t.runID
		return append(out, finished)

	case events.TypeError:
		out := t.closeSegment()
		errEvent := newEvent(EventRunError)
		errEvent.Message = domain.Error
		return append(out, errEvent)
	}

	return nil
}

// custom wraps a domain payload that has no dedicated protocol event type.
func (t *Transcoder) custom(name string, value any) Event {
	ev := newEvent(EventCustom)
	ev.Name = name
	ev.Value = value
	return ev
}

func (t *Transcoder) closeSegment() []Event {
	if !t.open {
		return nil
	}
	t.open = false
	end := newEvent(EventTextMessageEnd)
	end.MessageID = t.messageID()
	return []Event{end}
}
