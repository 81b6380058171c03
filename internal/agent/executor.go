// Package agent runs work unit phases through an external agent command.
// The command is launched inside the unit's worktree and reports its outcome
// as a JSON object on the last line of stdout.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/ShayCichocki/chunkd/internal/collab"
)

// ExecutionError reports an agent command that failed to produce a usable
// phase result. The scheduler routes it to operator attention rather than
// retry it.
type ExecutionError struct {
	Chunk  string
	Phase  string
	Stderr string
	Err    error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("phase %s of chunk %s: %v", e.Phase, e.Chunk, e.Err)
	if e.Stderr != "" {
		msg += "; stderr: " + e.Stderr
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Sandbox validates that a working directory belongs to the orchestrator.
// The worktree manager satisfies it.
type Sandbox interface {
	Contains(path string) bool
}

// phaseReport is the JSON object the agent command emits as its final
// stdout line.
type phaseReport struct {
	Outcome   string `json:"outcome"`
	SessionID string `json:"session_id,omitempty"`
	Question  string `json:"question,omitempty"`
}

// CommandExecutor implements collab.PhaseExecutor by spawning a configured
// agent binary per phase.
type CommandExecutor struct {
	// command is the agent binary plus fixed leading arguments.
	command []string
	sandbox Sandbox
}

var _ collab.PhaseExecutor = (*CommandExecutor)(nil)

// NewCommandExecutor builds an executor for the given agent command line.
func NewCommandExecutor(command []string, sandbox Sandbox) (*CommandExecutor, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("agent command is empty")
	}
	if sandbox == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	return &CommandExecutor{command: command, sandbox: sandbox}, nil
}

// RunPhase launches the agent command in the request's worktree and blocks
// until it exits or ctx is cancelled.
func (e *CommandExecutor) RunPhase(ctx context.Context, req collab.PhaseRequest) (*collab.PhaseResult, error) {
	if !e.sandbox.Contains(req.Workdir) {
		return nil, &ExecutionError{
			Chunk: req.Chunk,
			Phase: string(req.Phase),
			Err:   fmt.Errorf("workdir %s is outside the managed worktrees", req.Workdir),
		}
	}

	args := append([]string{}, e.command[1:]...)
	args = append(args, "--chunk", req.Chunk, "--phase", strings.ToLower(string(req.Phase)))
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}

	cmd := exec.CommandContext(ctx, e.command[0], args...)
	cmd.Dir = req.Workdir
	cmd.Env = scrubGitEnv(os.Environ())
	if req.Answer != "" {
		cmd.Stdin = strings.NewReader(req.Answer)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ExecutionError{Chunk: req.Chunk, Phase: string(req.Phase), Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &ExecutionError{Chunk: req.Chunk, Phase: string(req.Phase), Err: fmt.Errorf("start agent: %w", err)}
	}

	// The agent may log freely; only the last line that parses as a report
	// counts.
	var report *phaseReport
	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r phaseReport
		if err := json.Unmarshal(line, &r); err == nil && r.Outcome != "" {
			report = &r
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", err, ctx.Err())
		}
		return nil, &ExecutionError{Chunk: req.Chunk, Phase: string(req.Phase), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	if scanErr != nil {
		return nil, &ExecutionError{Chunk: req.Chunk, Phase: string(req.Phase), Err: fmt.Errorf("read agent output: %w", scanErr)}
	}
	if report == nil {
		return nil, &ExecutionError{Chunk: req.Chunk, Phase: string(req.Phase), Stderr: strings.TrimSpace(stderr.String()), Err: fmt.Errorf("agent emitted no result line")}
	}

	switch report.Outcome {
	case string(collab.OutcomeCompleted):
		return &collab.PhaseResult{Outcome: collab.OutcomeCompleted}, nil
	case string(collab.OutcomeSuspended):
		sessionID := report.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		return &collab.PhaseResult{
			Outcome:   collab.OutcomeSuspended,
			SessionID: sessionID,
			Question:  report.Question,
		}, nil
	default:
		return nil, &ExecutionError{Chunk: req.Chunk, Phase: string(req.Phase), Err: fmt.Errorf("unknown agent outcome %q", report.Outcome)}
	}
}

// scrubGitEnv drops GIT_* variables so the agent's git commands resolve the
// worktree it runs in, not whatever repository spawned the daemon.
func scrubGitEnv(env []string) []string {
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "GIT_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
