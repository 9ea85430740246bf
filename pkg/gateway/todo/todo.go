// Package todo derives task-progress snapshots from the runtime's
// todo-management tool invocations.
package todo

import "github.com/agentgate-dev/agentgate/pkg/gateway/runtime"

// ToolName is the todo-management tool the runtime invokes to report its plan.
const ToolName = "TodoWrite"

// Status of a single todo item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Item is one entry of the runtime's task list.
type Item struct {
	Content string `json:"content"`
	Status  Status `json:"status"`
}

// Progress is a full snapshot derived from the latest known item list. It is
// always recomputed in full, never incrementally patched, and
// Completed+InProgress+Pending == Total == len(Items).
type Progress struct {
	Items      []Item `json:"items"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	InProgress int    `json:"in_progress"`
	Pending    int    `json:"pending"`
}

// Extract scans the content blocks for the first todo-management invocation
// and returns its snapshot. A nil return means "no todo update in this
// message", which is distinct from a snapshot with zero items ("todos
// cleared").
func Extract(blocks []runtime.ContentBlock) *Progress {
	for _, b := range blocks {
		if b.Type != runtime.BlockToolUse || b.Tool == nil || b.Tool.Name != ToolName {
			continue
		}
		return snapshot(parseItems(b.Tool.Input))
	}
	return nil
}

func parseItems(input map[string]any) []Item {
	raw, _ := input["todos"].([]any)
	items := make([]Item, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		status, _ := m["status"].(string)
		items = append(items, Item{Content: content, Status: normalizeStatus(status)})
	}
	return items
}

// normalizeStatus maps the "done" alias to completed and anything
// unrecognized to pending.
func normalizeStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusCompleted:
		return Status(s)
	}
	if s == "done" {
		return StatusCompleted
	}
	return StatusPending
}

func snapshot(items []Item) *Progress {
	p := &Progress{Items: items, Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case StatusCompleted:
			p.Completed++
		case StatusInProgress:
			p.InProgress++
		default:
			p.Pending++
		}
	}
	return p
}
