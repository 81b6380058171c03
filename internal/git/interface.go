// Package git provides an interface for git operations.
package git

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch deletes the specified branch (force delete).
	DeleteBranch(name string) error
}

// MergeOperations defines the interface for git merge operations.
type MergeOperations interface {
	// MergeNoFFMessage merges the specified branch with --no-ff and a custom message.
	MergeNoFFMessage(branch, message string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
	// ConflictedFiles returns a list of files with unmerged changes.
	ConflictedFiles() ([]string, error)
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeAddNewBranchFrom creates a new worktree with a new branch at the given start point.
	WorktreeAddNewBranchFrom(path, branch, startPoint string) error
	// WorktreeRemove removes the worktree at the given path, discarding changes.
	WorktreeRemove(path string) error
	// WorktreeList returns a list of worktree paths.
	WorktreeList() ([]string, error)
	// WorktreePrune removes stale worktree entries.
	WorktreePrune() error
}

// Runner defines the complete interface for git operations used by the
// worktree manager. Consumers should prefer the focused interfaces.
type Runner interface {
	BranchOperations
	MergeOperations
	WorktreeOperations
	// Run executes an arbitrary git command with the given arguments.
	Run(args ...string) (string, error)
}
