// Package collab declares the interfaces chunkd consumes from its external
// collaborators: the workflow-artifact system, the phase executor, and the
// text comparator. The orchestrator never parses or writes artifact
// documents itself; it reads and mutates them only through these interfaces.
package collab

import "context"

// ChunkStatus is a chunk's lifecycle status as tracked by the artifact store.
type ChunkStatus string

const (
	// StatusPlanned marks a chunk that is documented but not being worked.
	StatusPlanned ChunkStatus = "PLANNED"
	// StatusImplementing marks the chunk actively worked in a worktree.
	// At most one chunk holds this status inside any one worktree.
	StatusImplementing ChunkStatus = "IMPLEMENTING"
	// StatusCompleted marks a chunk whose work is recorded as finished.
	StatusCompleted ChunkStatus = "COMPLETED"
)

// ArtifactStore is the narrow read/write interface into the workflow-artifact
// system. Implementations decide where chunk documents live and how statuses
// are recorded; the orchestrator only consumes this surface.
type ArtifactStore interface {
	// Exists reports whether the chunk is known to the artifact system.
	Exists(chunk string) bool
	// HasGoal reports whether the chunk has a goal document. Injection of a
	// chunk without one is a validation error.
	HasGoal(chunk string) bool
	// Status returns the chunk's lifecycle status.
	Status(chunk string) (ChunkStatus, error)
	// SetStatus updates the chunk's lifecycle status.
	SetStatus(chunk string, status ChunkStatus) error
	// Intent returns the chunk's one-line intent.
	Intent(chunk string) (string, error)
	// GoalText returns the chunk's goal document text.
	GoalText(chunk string) (string, error)
	// PlanText returns the chunk's plan document text.
	PlanText(chunk string) (string, error)
	// CodeReferences returns the chunk's recorded file#symbol references.
	CodeReferences(chunk string) ([]string, error)
}

// Comparator scores the semantic similarity of two texts in [0,1].
// 0 means unrelated, 1 means the texts describe the same work.
type Comparator interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}
