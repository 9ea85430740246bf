// Package query drives one conversation turn through the agent runtime,
// aggregating the raw message stream into either a single result or a live
// domain-event sequence.
package query

import (
	"context"
	"strings"
	"unicode/utf8"

	"dario.cat/mergo"
	"github.com/go-logr/logr"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
	"github.com/agentgate-dev/agentgate/pkg/gateway/events"
	"github.com/agentgate-dev/agentgate/pkg/gateway/metrics"
	"github.com/agentgate-dev/agentgate/pkg/gateway/runtime"
	"github.com/agentgate-dev/agentgate/pkg/gateway/transcript"
	"github.com/agentgate-dev/agentgate/pkg/gateway/workspace"
)

const maxTitleLength = 80

// Request is one turn request from a caller.
type Request struct {
	Prompt       string                   `json:"prompt"`
	Model        string                   `json:"model,omitempty"`
	MaxTurns     int                      `json:"max_turns,omitempty"`
	SessionID    string                   `json:"session_id,omitempty"`
	Fork         bool                     `json:"fork,omitempty"`
	WorkingDir   string                   `json:"working_dir,omitempty"`
	AllowedTools []string                 `json:"allowed_tools,omitempty"`
	Agents       map[string]runtime.Agent `json:"agents,omitempty"`
	SystemPrompt string                   `json:"system_prompt,omitempty"`
	MaxBudgetUSD float64                  `json:"max_budget_usd,omitempty"`
}

// Defaults are configured fallbacks merged into requests that leave the
// corresponding fields unset. Env is applied to every turn's runtime
// subprocess; it is not request-settable.
type Defaults struct {
	Model    string
	MaxTurns int
	Env      map[string]string
}

// Orchestrator wires the runtime, the workspace manager and the transcript
// writer together for the duration of one turn. It references the workspace
// for the turn but never owns it.
type Orchestrator struct {
	runtime     runtime.Client
	workspaces  workspace.Manager
	transcripts *transcript.Writer
	defaults    Defaults
	log         logr.Logger
}

// NewOrchestrator creates an Orchestrator. transcripts may be nil to disable
// persistence.
func NewOrchestrator(
	rt runtime.Client,
	workspaces workspace.Manager,
	transcripts *transcript.Writer,
	defaults Defaults,
	log logr.Logger,
) *Orchestrator {
	return &Orchestrator{
		runtime:     rt,
		workspaces:  workspaces,
		transcripts: transcripts,
		defaults:    defaults,
		log:         log.WithName("query"),
	}
}

func (o *Orchestrator) prepare(req *Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "prompt is required", nil)
	}
	return mergo.Merge(req, Request{
		Model:    o.defaults.Model,
		MaxTurns: o.defaults.MaxTurns,
	})
}

func (o *Orchestrator) runtimeRequest(req Request, ws *workspace.Workspace) runtime.QueryRequest {
	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = ws.Dir
	}
	return runtime.QueryRequest{
		Prompt:       req.Prompt,
		Model:        req.Model,
		MaxTurns:     req.MaxTurns,
		ResumeID:     req.SessionID,
		Fork:         req.Fork,
		WorkingDir:   workingDir,
		AllowedTools: req.AllowedTools,
		Agents:       req.Agents,
		SystemPrompt: req.SystemPrompt,
		MaxBudgetUSD: req.MaxBudgetUSD,
		Env:          o.defaults.Env,
	}
}

// Run executes one turn in single-shot mode: it drains the whole raw stream
// and returns the aggregated result. Stream failures propagate to the caller;
// there is no partial-result recovery.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*events.Result, error) {
	if err := o.prepare(&req); err != nil {
		metrics.TurnsTotal.WithLabelValues("run", "error").Inc()
		return nil, err
	}

	ws, err := o.workspaces.Prepare(ctx, req.SessionID)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("run", "error").Inc()
		return nil, err
	}

	msgs, errs := o.runtime.Query(ctx, o.runtimeRequest(req, ws))

	state := o.newTurnState(req)
	for msg := range msgs {
		if err := state.absorb(ctx, msg, nil); err != nil {
			metrics.TurnsTotal.WithLabelValues("run", "error").Inc()
			return nil, err
		}
	}
	if err := <-errs; err != nil {
		metrics.TurnsTotal.WithLabelValues("run", "error").Inc()
		return nil, err
	}

	result := state.result()
	o.finish(req, ws, state, result)
	metrics.TurnsTotal.WithLabelValues("run", "ok").Inc()
	return result, nil
}

// Stream executes one turn in streaming mode, emitting domain events into out
// as data becomes available. The sequence always concludes with exactly one
// done event when the stream ends naturally; on a stream failure Stream
// returns the error without a done event and the caller is responsible for
// synthesizing a terminal error event.
func (o *Orchestrator) Stream(ctx context.Context, req Request, out chan<- events.Event) error {
	if err := o.prepare(&req); err != nil {
		metrics.TurnsTotal.WithLabelValues("stream", "error").Inc()
		return err
	}

	ws, err := o.workspaces.Prepare(ctx, req.SessionID)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("stream", "error").Inc()
		return err
	}

	msgs, errs := o.runtime.Query(ctx, o.runtimeRequest(req, ws))

	emit := func(ev events.Event) error {
		select {
		case out <- ev:
			metrics.DomainEventsTotal.WithLabelValues(string(ev.Type)).Inc()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	state := o.newTurnState(req)
	for msg := range msgs {
		if err := state.absorb(ctx, msg, emit); err != nil {
			metrics.TurnsTotal.WithLabelValues("stream", "error").Inc()
			return err
		}
	}
	if err := <-errs; err != nil {
		metrics.TurnsTotal.WithLabelValues("stream", "error").Inc()
		return err
	}

	result := state.result()
	if err := emit(events.Done(result)); err != nil {
		metrics.TurnsTotal.WithLabelValues("stream", "error").Inc()
		return err
	}

	o.finish(req, ws, state, result)
	metrics.TurnsTotal.WithLabelValues("stream", "ok").Inc()
	return nil
}

// finish runs the post-turn bookkeeping: associating a freshly created
// workspace with the revealed conversation identity and recording the turn in
// the transcript.
func (o *Orchestrator) finish(req Request, ws *workspace.Workspace, state *turnState, result *events.Result) {
	sid := state.sessionID
	if sid == "" {
		return
	}

	if _, ok := o.workspaces.Lookup(sid); !ok {
		o.workspaces.Associate(sid, ws.ID)
	}

	metrics.ObserveUsage(result.Usage)

	if o.transcripts == nil {
		return
	}
	o.transcripts.Append(sid, transcript.EventAssistantMessage, map[string]any{
		"text": result.Text,
	})
	o.transcripts.Append(sid, transcript.EventSessionDone, map[string]any{
		"stop_reason": result.StopReason,
		"label":       result.StopReason.Label(),
		"usage":       result.Usage,
	})
	if result.StopReason.IsEndTurn() {
		o.transcripts.SetStatus(sid, transcript.StatusCompleted)
	}
	if req.SessionID == "" {
		// First turn of a fresh conversation: back-fill the title from the
		// prompt.
		o.transcripts.SetTitle(sid, truncate(req.Prompt, maxTitleLength))
	}
}

// truncate cuts s to at most n runes, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
