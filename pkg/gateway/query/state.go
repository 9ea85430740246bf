package query

import (
	"context"
	"strings"

	"github.com/agentgate-dev/agentgate/pkg/gateway/events"
	"github.com/agentgate-dev/agentgate/pkg/gateway/runtime"
	"github.com/agentgate-dev/agentgate/pkg/gateway/todo"
	"github.com/agentgate-dev/agentgate/pkg/gateway/transcript"
	"github.com/agentgate-dev/agentgate/pkg/gateway/usage"
)

// turnState accumulates one turn's progress while the raw stream is
// consumed. One turn owns one turnState; it is never shared across
// goroutines.
type turnState struct {
	orch   *Orchestrator
	prompt string

	tracker   *usage.Tracker
	text      strings.Builder
	toolCalls []runtime.ToolCall
	todos     *todo.Progress
	stop      runtime.StopReason
	sessionID string

	// announced tracks the identity last emitted as a session event, so the
	// event fires on first appearance in the stream and on change only.
	announced    string
	userLogged   bool
	pendingTools []runtime.ToolCall
}

func (o *Orchestrator) newTurnState(req Request) *turnState {
	s := &turnState{
		orch:      o,
		prompt:    req.Prompt,
		tracker:   usage.NewTracker(),
		sessionID: req.SessionID,
	}
	if s.sessionID != "" {
		// Resumed turn: the identity is already resolved, record the user
		// message now.
		s.logUserMessage()
	}
	return s
}

// absorb folds one typed runtime message into the turn state. When emit is
// non-nil (streaming mode) it also emits the derived domain events; for a
// message carrying several derivations the usage event is always emitted
// last, after the tool and todo events read from the same message.
func (s *turnState) absorb(ctx context.Context, msg runtime.Message, emit func(events.Event) error) error {
	if sid := msg.SessionID(); sid != "" && sid != s.announced {
		s.announced = sid
		s.sessionID = sid
		s.logUserMessage()
		if emit != nil {
			if err := emit(events.Session(sid)); err != nil {
				return err
			}
		}
	}

	switch m := msg.(type) {
	case *runtime.AssistantMessage:
		// Full per-message text feeds the aggregated result only. In
		// streaming mode the partial-delta channel has already delivered it
		// character by character; re-emitting it here would duplicate.
		s.text.WriteString(m.Text())

		for _, call := range m.ToolCalls() {
			s.toolCalls = append(s.toolCalls, call)
			s.recordToolCall(call)
			if emit != nil {
				if err := emit(events.ToolCall(call)); err != nil {
					return err
				}
			}
		}

		if p := todo.Extract(m.Content); p != nil {
			s.todos = p
			if emit != nil {
				if err := emit(events.TodoUpdate(p)); err != nil {
					return err
				}
			}
		}

		s.tracker.Track(m.ID, m.Usage)
		if m.Usage != nil && emit != nil {
			if err := emit(events.UsageUpdate(s.tracker.Stats())); err != nil {
				return err
			}
		}

	case *runtime.DeltaMessage:
		if m.Text != "" && emit != nil {
			if err := emit(events.TextDelta(m.Text)); err != nil {
				return err
			}
		}

	case *runtime.ResultMessage:
		s.stop = m.StopReason
		// The terminal record's totals are authoritative; overwrite the
		// incremental estimate.
		s.tracker.SetTotals(m.Usage)
		if emit != nil {
			if err := emit(events.UsageUpdate(s.tracker.Stats())); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *turnState) result() *events.Result {
	return &events.Result{
		Text:       s.text.String(),
		SessionID:  s.sessionID,
		StopReason: s.stop,
		Usage:      s.tracker.Stats(),
		Todos:      s.todos,
		ToolCalls:  s.toolCalls,
	}
}

// logUserMessage records the user prompt once, at first sight of a resolved
// conversation identity, and flushes tool calls that arrived before it.
func (s *turnState) logUserMessage() {
	w := s.orch.transcripts
	if w == nil || s.userLogged {
		return
	}
	s.userLogged = true
	w.EnsureSession(s.sessionID)
	w.Append(s.sessionID, transcript.EventUserMessage, map[string]any{"text": s.prompt})
	for _, call := range s.pendingTools {
		w.Append(s.sessionID, transcript.EventToolCall, call)
	}
	s.pendingTools = nil
}

func (s *turnState) recordToolCall(call runtime.ToolCall) {
	w := s.orch.transcripts
	if w == nil {
		return
	}
	if !s.userLogged {
		s.pendingTools = append(s.pendingTools, call)
		return
	}
	w.Append(s.sessionID, transcript.EventToolCall, call)
}
