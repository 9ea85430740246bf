// Package runtime is the boundary to the agent runtime. The runtime emits a
// loosely-typed JSON message stream; this package decodes each record exactly
// once into a closed message sum so that downstream code never inspects raw
// key-value payloads.
package runtime

// Usage carries the token counters attached to a raw message. The runtime may
// repeat identical usage records across fragments of the same logical message;
// de-duplication is the aggregator's job, not this package's.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

// ToolCall is a tool invocation normalized from the heterogeneous raw shapes.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ContentBlock is one fragment of an assistant message. Type is either
// BlockText or BlockToolUse; unknown fragment types are preserved with their
// raw type string and otherwise empty fields.
type ContentBlock struct {
	Type string
	Text string
	Tool *ToolCall
}

// Content block types
const (
	BlockText    = "text"
	BlockToolUse = "tool_use"
)

// Message is the closed sum of runtime message kinds. Exactly one of
// AssistantMessage, DeltaMessage, ResultMessage or SystemMessage implements
// it per record.
type Message interface {
	// SessionID returns the conversation identity carried by this record, or
	// "" if the runtime has not assigned one yet.
	SessionID() string
}

// AssistantMessage is a completed assistant content message.
type AssistantMessage struct {
	ID      string
	Content []ContentBlock
	Usage   *Usage
	Session string
}

func (m *AssistantMessage) SessionID() string { return m.Session }

// Text concatenates, in order, the text of every text fragment. Non-text
// fragments are skipped; a message without content yields "".
func (m *AssistantMessage) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls collects every tool-use fragment in encounter order. A message
// without tool invocations yields nil.
func (m *AssistantMessage) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Content {
		if b.Type == BlockToolUse && b.Tool != nil {
			calls = append(calls, *b.Tool)
		}
	}
	return calls
}

// DeltaMessage is an incremental text fragment from the runtime's
// partial-delta channel.
type DeltaMessage struct {
	Text    string
	Session string
}

func (m *DeltaMessage) SessionID() string { return m.Session }

// ResultMessage terminates a turn. Its usage record is authoritative for the
// whole turn and supersedes the incremental estimate.
type ResultMessage struct {
	StopReason StopReason
	Usage      *Usage
	Session    string
}

func (m *ResultMessage) SessionID() string { return m.Session }

// SystemMessage covers runtime housekeeping records (init, status). They carry
// the session identity but no turn content.
type SystemMessage struct {
	Subtype string
	Session string
}

func (m *SystemMessage) SessionID() string { return m.Session }
