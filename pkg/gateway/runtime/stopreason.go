package runtime

// StopReason is the terminal reason code reported by the runtime's result
// message. The empty string means the runtime reported none.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopRefusal      StopReason = "refusal"
	StopToolUse      StopReason = "tool_use"
	StopStopSequence StopReason = "stop_sequence"
)

func (r StopReason) IsEndTurn() bool      { return r == StopEndTurn }
func (r StopReason) IsMaxTokens() bool    { return r == StopMaxTokens }
func (r StopReason) IsRefusal() bool      { return r == StopRefusal }
func (r StopReason) IsToolUse() bool      { return r == StopToolUse }
func (r StopReason) IsStopSequence() bool { return r == StopStopSequence }

// Label returns the human-readable label for the reason, "Unknown" for empty
// or unrecognized codes.
func (r StopReason) Label() string {
	switch r {
	case StopEndTurn:
		return "Completed"
	case StopMaxTokens:
		return "Max tokens reached"
	case StopRefusal:
		return "Refused"
	case StopToolUse:
		return "Tool use"
	case StopStopSequence:
		return "Stop sequence"
	}
	return "Unknown"
}
