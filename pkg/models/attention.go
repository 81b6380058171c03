package models

import "time"

// AttentionKind classifies why a work unit needs operator input.
type AttentionKind string

const (
	// AttentionQuestion means the executor suspended with a question.
	AttentionQuestion AttentionKind = "QUESTION"
	// AttentionConflict means the oracle returned ASK_OPERATOR for a pair.
	AttentionConflict AttentionKind = "CONFLICT"
	// AttentionError means a phase execution failed.
	AttentionError AttentionKind = "ERROR"
	// AttentionMergeConflict means the final merge to base failed.
	AttentionMergeConflict AttentionKind = "MERGE_CONFLICT"
)

// Valid returns true if the kind is a known value.
func (k AttentionKind) Valid() bool {
	switch k {
	case AttentionQuestion, AttentionConflict, AttentionError, AttentionMergeConflict:
		return true
	default:
		return false
	}
}

// AttentionItem is operator-facing work surfaced by the attention queue.
// Items are a view over NEEDS_ATTENTION work units, not separately stored.
type AttentionItem struct {
	// Chunk is the work unit needing attention.
	Chunk string `json:"chunk"`
	// Peer is the other chunk for CONFLICT items, empty otherwise.
	Peer string `json:"peer,omitempty"`
	// Kind classifies the item.
	Kind AttentionKind `json:"kind"`
	// Payload carries the question, error text, or conflict rationale.
	Payload string `json:"payload"`
	// CreatedAt is when the unit entered NEEDS_ATTENTION.
	CreatedAt time.Time `json:"created_at"`
}

// ResolveVerdict is an operator override for an ASK_OPERATOR conflict.
type ResolveVerdict string

const (
	// ResolveParallelize records the pair as INDEPENDENT.
	ResolveParallelize ResolveVerdict = "PARALLELIZE"
	// ResolveSerialize records the pair as SERIALIZE and blocks the unit.
	ResolveSerialize ResolveVerdict = "SERIALIZE"
)

// Valid returns true if the verdict is a known value.
func (v ResolveVerdict) Valid() bool {
	return v == ResolveParallelize || v == ResolveSerialize
}
