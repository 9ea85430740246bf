package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/go-logr/logr"

	apperrors "github.com/agentgate-dev/agentgate/pkg/gateway/errors"
)

// QueryRequest carries one turn's parameters into the runtime.
type QueryRequest struct {
	Prompt       string            `json:"prompt"`
	Model        string            `json:"model,omitempty"`
	MaxTurns     int               `json:"max_turns,omitempty"`
	ResumeID     string            `json:"resume_id,omitempty"`
	Fork         bool              `json:"fork,omitempty"`
	WorkingDir   string            `json:"working_dir,omitempty"`
	AllowedTools []string          `json:"allowed_tools,omitempty"`
	Agents       map[string]Agent  `json:"agents,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	MaxBudgetUSD float64           `json:"max_budget_usd,omitempty"`
	Env          map[string]string `json:"-"`
}

// Agent defines a subagent available to the runtime for this turn.
type Agent struct {
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// Client produces the raw message stream for one turn. Implementations close
// the message channel when the stream ends and deliver at most one error on
// the error channel.
type Client interface {
	Query(ctx context.Context, req QueryRequest) (<-chan Message, <-chan error)
}

// CLIClient runs the agent runtime as a subprocess and consumes its
// line-delimited JSON output.
type CLIClient struct {
	binary string
	log    logr.Logger
}

// NewCLIClient creates a CLIClient for the given runtime binary.
func NewCLIClient(binary string, log logr.Logger) *CLIClient {
	return &CLIClient{binary: binary, log: log.WithName("runtime")}
}

func (c *CLIClient) Query(ctx context.Context, req QueryRequest) (<-chan Message, <-chan error) {
	messages := make(chan Message, 16)
	errs := make(chan error, 1)

	cmd := exec.CommandContext(ctx, c.binary, c.buildArgs(req)...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	cmd.Env = buildEnv(req.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errs <- apperrors.New(apperrors.ErrCodeRuntimeStream, "failed to open runtime stdout", err)
		close(messages)
		close(errs)
		return messages, errs
	}

	if err := cmd.Start(); err != nil {
		errs <- apperrors.New(apperrors.ErrCodeRuntimeStream, "failed to start runtime", err)
		close(messages)
		close(errs)
		return messages, errs
	}

	go func() {
		defer close(messages)
		defer close(errs)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var raw map[string]any
			if err := json.Unmarshal(line, &raw); err != nil {
				c.log.V(1).Info("skipping undecodable runtime record", "error", err)
				continue
			}

			msg, ok := Decode(raw)
			if !ok {
				continue
			}

			select {
			case messages <- msg:
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				errs <- ctx.Err()
				return
			}
		}

		if err := scanner.Err(); err != nil {
			_ = cmd.Wait()
			errs <- apperrors.New(apperrors.ErrCodeRuntimeStream, "runtime stream read failed", err)
			return
		}

		if err := cmd.Wait(); err != nil {
			errs <- apperrors.New(apperrors.ErrCodeRuntimeStream, "runtime exited with failure", err)
		}
	}()

	return messages, errs
}

// buildEnv extends the parent environment with the per-turn overrides. A nil
// return lets exec inherit the parent environment unchanged.
func buildEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func (c *CLIClient) buildArgs(req QueryRequest) []string {
	args := []string{
		"--print", req.Prompt,
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	if req.ResumeID != "" {
		args = append(args, "--resume", req.ResumeID)
		if req.Fork {
			args = append(args, "--fork-session")
		}
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	for _, tool := range req.AllowedTools {
		args = append(args, "--allowed-tools", tool)
	}
	if len(req.Agents) > 0 {
		if data, err := json.Marshal(req.Agents); err == nil {
			args = append(args, "--agents", string(data))
		}
	}
	return args
}
