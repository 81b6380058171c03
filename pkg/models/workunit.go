package models

import "time"

// Phase represents an ordered step toward realizing a chunk.
type Phase string

const (
	// PhaseGoal is the goal-definition phase.
	PhaseGoal Phase = "GOAL"
	// PhasePlan is the planning phase.
	PhasePlan Phase = "PLAN"
	// PhaseImplement is the implementation phase.
	PhaseImplement Phase = "IMPLEMENT"
	// PhaseComplete is the final wrap-up phase.
	PhaseComplete Phase = "COMPLETE"
)

// phaseOrder defines the fixed progression of phases.
var phaseOrder = []Phase{PhaseGoal, PhasePlan, PhaseImplement, PhaseComplete}

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	switch p {
	case PhaseGoal, PhasePlan, PhaseImplement, PhaseComplete:
		return true
	default:
		return false
	}
}

// Next returns the phase that follows p. The second return value is false
// when p is the final phase.
func (p Phase) Next() (Phase, bool) {
	for i, ph := range phaseOrder {
		if ph == p && i < len(phaseOrder)-1 {
			return phaseOrder[i+1], true
		}
	}
	return p, false
}

// Rank returns the position of the phase in the progression, starting at 0.
// Unknown phases rank below all known ones.
func (p Phase) Rank() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Status represents the lifecycle state of a work unit.
type Status string

const (
	// StatusReady indicates the unit is waiting for a dispatch slot.
	StatusReady Status = "READY"
	// StatusRunning indicates a phase execution is in flight.
	StatusRunning Status = "RUNNING"
	// StatusBlocked indicates the unit is serialized behind other chunks.
	StatusBlocked Status = "BLOCKED"
	// StatusNeedsAttention indicates the unit is waiting on an operator.
	StatusNeedsAttention Status = "NEEDS_ATTENTION"
	// StatusDone indicates the unit has been merged to base.
	StatusDone Status = "DONE"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusRunning, StatusBlocked, StatusNeedsAttention, StatusDone:
		return true
	default:
		return false
	}
}

// Active returns true for statuses that still participate in scheduling.
func (s Status) Active() bool {
	return s != StatusDone
}

// WorkUnit is the orchestrator's runtime record tracking a chunk's execution
// across phases. The chunk name is the identity; there is at most one work
// unit per chunk.
type WorkUnit struct {
	// Chunk is the unique chunk name this unit executes.
	Chunk string `json:"chunk"`
	// Phase is the lifecycle phase the unit is currently in or about to run.
	Phase Phase `json:"phase"`
	// Status is the scheduling state of the unit.
	Status Status `json:"status"`
	// Priority orders dispatch; higher values dispatch first.
	Priority int `json:"priority"`
	// BlockedBy lists chunks that must reach DONE before this unit may run.
	BlockedBy []string `json:"blocked_by,omitempty"`
	// DisplacedChunk is a chunk demoted from IMPLEMENTING in this unit's
	// worktree, to be restored before the final merge.
	DisplacedChunk string `json:"displaced_chunk,omitempty"`
	// DisplacedStatus is the artifact status the displaced chunk held before
	// demotion. Persisted so the restore half of the saga survives a crash.
	DisplacedStatus string `json:"displaced_status,omitempty"`
	// AttentionReason explains why the unit needs operator input.
	AttentionReason string `json:"attention_reason,omitempty"`
	// AttentionKind classifies the attention item, when one is open.
	AttentionKind AttentionKind `json:"attention_kind,omitempty"`
	// SessionID is the resumable executor session handle, if suspended.
	SessionID string `json:"session_id,omitempty"`
	// PendingAnswer holds an operator answer awaiting the resumed dispatch.
	PendingAnswer string `json:"pending_answer,omitempty"`
	// CreatedAt is when the unit was injected.
	CreatedAt time.Time `json:"created_at"`
}

// IsBlockedBy returns true if the given chunk appears in BlockedBy.
func (u *WorkUnit) IsBlockedBy(chunk string) bool {
	for _, b := range u.BlockedBy {
		if b == chunk {
			return true
		}
	}
	return false
}

// AddBlocker adds a chunk to BlockedBy if not already present.
func (u *WorkUnit) AddBlocker(chunk string) {
	if !u.IsBlockedBy(chunk) {
		u.BlockedBy = append(u.BlockedBy, chunk)
	}
}

// RemoveBlocker removes a chunk from BlockedBy. Returns true if BlockedBy is
// empty afterwards.
func (u *WorkUnit) RemoveBlocker(chunk string) bool {
	kept := u.BlockedBy[:0]
	for _, b := range u.BlockedBy {
		if b != chunk {
			kept = append(kept, b)
		}
	}
	u.BlockedBy = kept
	if len(u.BlockedBy) == 0 {
		u.BlockedBy = nil
	}
	return len(u.BlockedBy) == 0
}

// CheckInvariants verifies the structural invariants of the unit.
// A violation indicates a programming error or corrupted persisted state.
func (u *WorkUnit) CheckInvariants() error {
	if u.Status == StatusBlocked && len(u.BlockedBy) == 0 {
		return errBlockedWithoutBlockers
	}
	if u.Status == StatusNeedsAttention && u.AttentionReason == "" {
		return errAttentionWithoutReason
	}
	return nil
}
