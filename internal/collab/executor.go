package collab

import (
	"context"

	"github.com/ShayCichocki/chunkd/pkg/models"
)

// Outcome is the terminal state of a single phase execution.
type Outcome string

const (
	// OutcomeCompleted means the phase finished and the unit may advance.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSuspended means the executor paused on a question for the
	// operator. The session can be resumed with an answer.
	OutcomeSuspended Outcome = "suspended"
)

// PhaseRequest describes one phase execution inside a worktree.
type PhaseRequest struct {
	// Chunk is the work unit being executed.
	Chunk string
	// Phase is the lifecycle phase to run.
	Phase models.Phase
	// Workdir is the absolute path of the unit's worktree.
	Workdir string
	// ResumeSessionID resumes a previously suspended session when set.
	ResumeSessionID string
	// Answer carries the operator's answer on a resumed session.
	Answer string
}

// PhaseResult is the outcome of a phase execution.
type PhaseResult struct {
	// Outcome is completed or suspended. Executor failures are returned as
	// errors from RunPhase, not encoded here.
	Outcome Outcome
	// SessionID identifies the suspended session for later resumption.
	SessionID string
	// Question is the executor's question to the operator when suspended.
	Question string
}

// PhaseExecutor runs a work unit's current phase inside its worktree.
// A call may block indefinitely on agent think time; cancellation flows
// through ctx. Errors are never auto-retried by the scheduler.
type PhaseExecutor interface {
	RunPhase(ctx context.Context, req PhaseRequest) (*PhaseResult, error)
}
