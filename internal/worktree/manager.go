// Package worktree manages the isolated, branch-scoped git checkouts that
// phase executions run in. Each work unit owns at most one worktree, created
// lazily on first dispatch and removed after its branch merges to base.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/chunkd/internal/git"
)

// BranchPrefix is prepended to chunk names to form worktree branch names.
const BranchPrefix = "agent/"

// Worktree describes a checkout owned by the manager.
type Worktree struct {
	// Chunk is the work unit this worktree belongs to.
	Chunk string
	// Path is the absolute path to the worktree directory.
	Path string
	// Branch is the branch checked out in the worktree.
	Branch string
	// CreatedAt is when the worktree was created.
	CreatedAt time.Time
}

// MergeConflictError reports a merge to base that failed on conflicts.
// The merge is aborted in the base checkout and the worktree is retained
// for manual resolution; the conflict is never auto-resolved.
type MergeConflictError struct {
	// Chunk is the work unit whose branch failed to merge.
	Chunk string
	// Files lists the conflicted paths, when git could report them.
	Files []string
	// Err is the underlying git failure.
	Err error
}

func (e *MergeConflictError) Error() string {
	if len(e.Files) > 0 {
		return fmt.Sprintf("merge conflict for %s in: %s", e.Chunk, strings.Join(e.Files, ", "))
	}
	return fmt.Sprintf("merge conflict for %s: %v", e.Chunk, e.Err)
}

func (e *MergeConflictError) Unwrap() error { return e.Err }

// Provider defines the worktree operations the scheduler depends on.
// This interface allows mocking worktree management in tests.
type Provider interface {
	// Create creates the worktree for a chunk, branching from base.
	Create(chunk string) (*Worktree, error)
	// Exists returns true if the chunk's worktree directory exists.
	Exists(chunk string) bool
	// PathFor returns the path the chunk's worktree occupies (or would).
	PathFor(chunk string) string
	// Remove removes the chunk's worktree and deletes its branch.
	Remove(chunk string) error
	// MergeToBase merges the chunk's branch into the base branch.
	// Returns *MergeConflictError if the merge conflicts.
	MergeToBase(chunk string) error
	// Contains reports whether path lies inside the manager's base directory.
	Contains(path string) bool
}

// Verify Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// Manager handles git worktree operations for work-unit isolation.
// Operations on different chunks may run concurrently; the git runner
// retries transient lock contention. The scheduler never issues operations
// on the same chunk concurrently.
type Manager struct {
	baseDir    string // directory worktrees are created under
	repoPath   string // path to the base git repository
	baseBranch string // branch worktrees fork from and merge back into
	git        git.Runner

	// mergeMu serializes merges: they mutate the single base checkout.
	mergeMu sync.Mutex
}

// NewManager creates a worktree manager.
// baseDir defaults to <repoPath>/.chunkd/worktrees when empty.
func NewManager(baseDir, repoPath, baseBranch string) (*Manager, error) {
	return NewManagerWithRunner(baseDir, repoPath, baseBranch, git.NewRunner(repoPath))
}

// NewManagerWithRunner creates a manager with a custom git runner (for testing).
func NewManagerWithRunner(baseDir, repoPath, baseBranch string, runner git.Runner) (*Manager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(repoPath, ".chunkd", "worktrees")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve worktree base directory: %w", err)
	}

	return &Manager{
		baseDir:    abs,
		repoPath:   repoPath,
		baseBranch: baseBranch,
		git:        runner,
	}, nil
}

// BaseDir returns the directory worktrees are created under.
func (m *Manager) BaseDir() string { return m.baseDir }

// BranchFor returns the branch name for a chunk's worktree.
func BranchFor(chunk string) string { return BranchPrefix + chunk }

// PathFor returns the path the chunk's worktree occupies (or would occupy).
func (m *Manager) PathFor(chunk string) string {
	return filepath.Join(m.baseDir, chunk)
}

// Contains reports whether path lies inside the manager's base directory.
// The executor sandbox rejects workdirs outside it before execution.
func (m *Manager) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.baseDir, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Exists returns true if the chunk's worktree directory exists.
func (m *Manager) Exists(chunk string) bool {
	info, err := os.Stat(m.PathFor(chunk))
	return err == nil && info.IsDir()
}

// Create creates the worktree for a chunk, branching agent/<chunk> from the
// base branch and checking it out under the base directory.
func (m *Manager) Create(chunk string) (*Worktree, error) {
	branch := BranchFor(chunk)
	path := m.PathFor(chunk)

	exists, err := m.git.BranchExists(branch)
	if err != nil {
		return nil, fmt.Errorf("create worktree for %s: %w", chunk, err)
	}
	if exists {
		return nil, fmt.Errorf("create worktree for %s: branch %s already exists", chunk, branch)
	}

	if err := m.git.WorktreeAddNewBranchFrom(path, branch, m.baseBranch); err != nil {
		return nil, fmt.Errorf("create worktree for %s: %w", chunk, err)
	}

	return &Worktree{
		Chunk:     chunk,
		Path:      path,
		Branch:    branch,
		CreatedAt: time.Now(),
	}, nil
}

// Remove removes the chunk's worktree and force-deletes its branch.
func (m *Manager) Remove(chunk string) error {
	path := m.PathFor(chunk)

	if err := m.git.WorktreeRemove(path); err != nil {
		return fmt.Errorf("remove worktree for %s: %w", chunk, err)
	}
	// Branch deletion failing after the checkout is gone is not fatal.
	_ = m.git.DeleteBranch(BranchFor(chunk))
	_ = m.git.WorktreePrune()
	return nil
}

// MergeToBase merges the chunk's branch into the base branch with a merge
// commit. On conflict the merge is aborted and a *MergeConflictError is
// returned; the worktree stays in place for manual resolution.
func (m *Manager) MergeToBase(chunk string) error {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	branch := BranchFor(chunk)
	message := fmt.Sprintf("Merge %s: chunk %s complete", branch, chunk)

	if err := m.git.MergeNoFFMessage(branch, message); err != nil {
		files, _ := m.git.ConflictedFiles()
		_ = m.git.MergeAbort()
		return &MergeConflictError{Chunk: chunk, Files: files, Err: err}
	}
	return nil
}
