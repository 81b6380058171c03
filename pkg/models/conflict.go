package models

import (
	"errors"
	"time"
)

var (
	errBlockedWithoutBlockers = errors.New("work unit is BLOCKED with empty blocked_by")
	errAttentionWithoutReason = errors.New("work unit is NEEDS_ATTENTION without attention_reason")
)

// Stage identifies the evidence tier a conflict analysis was computed from.
// Later stages carry strictly more precise evidence.
type Stage string

const (
	// StageProposed uses one-line chunk intents only.
	StageProposed Stage = "PROPOSED"
	// StageGoal uses intent plus success criteria from the goal document.
	StageGoal Stage = "GOAL"
	// StagePlan uses file paths and predicted symbols from the plan document.
	StagePlan Stage = "PLAN"
	// StageCompleted uses recorded file#symbol references.
	StageCompleted Stage = "COMPLETED"
)

// stageOrder defines the precision ordering of stages.
var stageOrder = []Stage{StageProposed, StageGoal, StagePlan, StageCompleted}

// Valid returns true if the stage is a known value.
func (s Stage) Valid() bool {
	switch s {
	case StageProposed, StageGoal, StagePlan, StageCompleted:
		return true
	default:
		return false
	}
}

// Rank returns the precision rank of the stage, starting at 0.
func (s Stage) Rank() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// StageForPhase maps a work unit's current phase to the most precise evidence
// stage available for it. A unit in GOAL has only its proposed intent; the
// goal document becomes evidence once the unit is planning.
func StageForPhase(p Phase) Stage {
	switch p {
	case PhaseGoal:
		return StageProposed
	case PhasePlan:
		return StageGoal
	case PhaseImplement:
		return StagePlan
	case PhaseComplete:
		return StageCompleted
	default:
		return StageProposed
	}
}

// CommonStage returns the least-advanced of the two units' evidence stages.
func CommonStage(a, b Phase) Stage {
	sa, sb := StageForPhase(a), StageForPhase(b)
	if sa.Rank() <= sb.Rank() {
		return sa
	}
	return sb
}

// Verdict is the oracle's decision on whether two chunks may run in parallel.
type Verdict string

const (
	// VerdictIndependent allows the pair to run concurrently.
	VerdictIndependent Verdict = "INDEPENDENT"
	// VerdictSerialize requires one chunk to wait for the other.
	VerdictSerialize Verdict = "SERIALIZE"
	// VerdictAskOperator routes the decision to a human.
	VerdictAskOperator Verdict = "ASK_OPERATOR"
)

// Valid returns true if the verdict is a known value.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictIndependent, VerdictSerialize, VerdictAskOperator:
		return true
	default:
		return false
	}
}

// ConflictAnalysis records a serialization verdict between two chunks at a
// given evidence stage. The pair is unordered: ChunkA sorts before ChunkB.
type ConflictAnalysis struct {
	// ChunkA is the lexicographically smaller chunk of the pair.
	ChunkA string `json:"chunk_a"`
	// ChunkB is the lexicographically larger chunk of the pair.
	ChunkB string `json:"chunk_b"`
	// Stage is the evidence tier the verdict was computed from.
	Stage Stage `json:"stage"`
	// Verdict is the serialization decision.
	Verdict Verdict `json:"verdict"`
	// Confidence is the oracle's confidence in the verdict, in [0,1].
	Confidence float64 `json:"confidence"`
	// OverlappingFiles lists file paths both chunks plan to touch.
	OverlappingFiles []string `json:"overlapping_files,omitempty"`
	// OverlappingSymbols lists file#symbol references both chunks touch.
	OverlappingSymbols []string `json:"overlapping_symbols,omitempty"`
	// Rationale is a human-readable explanation of the verdict.
	Rationale string `json:"rationale,omitempty"`
	// ComputedAt is when the analysis ran.
	ComputedAt time.Time `json:"computed_at"`
}

// PairKey returns the canonical unordered pair identity for two chunks.
func PairKey(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// Involves returns true if the analysis concerns the given chunk.
func (c *ConflictAnalysis) Involves(chunk string) bool {
	return c.ChunkA == chunk || c.ChunkB == chunk
}

// Peer returns the other chunk of the pair, or "" if chunk is not part of it.
func (c *ConflictAnalysis) Peer(chunk string) string {
	switch chunk {
	case c.ChunkA:
		return c.ChunkB
	case c.ChunkB:
		return c.ChunkA
	default:
		return ""
	}
}
