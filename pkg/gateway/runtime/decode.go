package runtime

// Decode converts one raw runtime record into the typed message sum. It is
// deliberately lenient: missing or malformed fields decode to zero values and
// an unrecognized record kind returns (nil, false). It never panics.
func Decode(raw map[string]any) (Message, bool) {
	if raw == nil {
		return nil, false
	}

	session := stringField(raw, "session_id")

	switch stringField(raw, "type") {
	case "assistant":
		msg := &AssistantMessage{Session: session}
		inner, _ := raw["message"].(map[string]any)
		if inner != nil {
			msg.ID = stringField(inner, "id")
			msg.Content = decodeContent(inner["content"])
			msg.Usage = decodeUsage(inner["usage"])
		}
		return msg, true

	case "stream_event":
		text, ok := deltaText(raw)
		if !ok {
			// Non-text stream events (block starts, signatures) carry nothing
			// this pipeline consumes.
			return nil, false
		}
		return &DeltaMessage{Text: text, Session: session}, true

	case "result":
		return &ResultMessage{
			StopReason: StopReason(stringField(raw, "stop_reason")),
			Usage:      decodeUsage(raw["usage"]),
			Session:    session,
		}, true

	case "system":
		return &SystemMessage{
			Subtype: stringField(raw, "subtype"),
			Session: session,
		}, true
	}

	return nil, false
}

func decodeContent(v any) []ContentBlock {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var blocks []ContentBlock
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		block := ContentBlock{Type: stringField(m, "type")}
		switch block.Type {
		case BlockText:
			block.Text = stringField(m, "text")
		case BlockToolUse:
			input, _ := m["input"].(map[string]any)
			block.Tool = &ToolCall{
				ID:    stringField(m, "id"),
				Name:  stringField(m, "name"),
				Input: input,
			}
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func decodeUsage(v any) *Usage {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &Usage{
		InputTokens:         intField(m, "input_tokens"),
		OutputTokens:        intField(m, "output_tokens"),
		CacheReadTokens:     intField(m, "cache_read_input_tokens"),
		CacheCreationTokens: intField(m, "cache_creation_input_tokens"),
	}
}

// deltaText digs the incremental text out of a partial stream event. The
// runtime nests it as event.delta.text for text_delta events.
func deltaText(raw map[string]any) (string, bool) {
	event, ok := raw["event"].(map[string]any)
	if !ok {
		return "", false
	}
	delta, ok := event["delta"].(map[string]any)
	if !ok {
		return "", false
	}
	if stringField(delta, "type") != "text_delta" {
		return "", false
	}
	text, ok := delta["text"].(string)
	return text, ok
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
