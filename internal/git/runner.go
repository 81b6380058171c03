// Package git provides an interface for git operations.
package git

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecRunner implements Runner using exec.Command.
type ExecRunner struct {
	repoPath string

	// lockRetries bounds retries on transient index.lock contention when
	// worktree operations for different chunks run concurrently.
	lockRetries int
	lockBackoff time.Duration
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{
		repoPath:    repoPath,
		lockRetries: 5,
		lockBackoff: 100 * time.Millisecond,
	}
}

// run executes a git command and returns its output.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// runRetry executes a git command, retrying with backoff while the failure
// looks like transient lock contention from a concurrent git process.
func (r *ExecRunner) runRetry(args ...string) error {
	backoff := r.lockBackoff
	var err error
	for attempt := 0; attempt <= r.lockRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		err = r.runSilent(args...)
		if err == nil || !isLockContention(err) {
			return err
		}
	}
	return err
}

// isLockContention reports whether a git failure is transient lock contention.
func isLockContention(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "index.lock") ||
		strings.Contains(msg, "shallow.lock") ||
		strings.Contains(msg, "could not lock") ||
		strings.Contains(msg, "Unable to create") && strings.Contains(msg, ".lock")
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists returns true if the branch exists.
func (r *ExecRunner) BranchExists(name string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = r.repoPath
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means branch doesn't exist (not an error)
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w", err)
	}
	return true, nil
}

// DeleteBranch deletes the specified branch.
func (r *ExecRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// MergeNoFFMessage merges the specified branch with --no-ff and a custom message.
func (r *ExecRunner) MergeNoFFMessage(branch, message string) error {
	return r.runRetry("merge", "--no-ff", "-m", message, branch)
}

// MergeAbort aborts an in-progress merge.
func (r *ExecRunner) MergeAbort() error {
	return r.runSilent("merge", "--abort")
}

// ConflictedFiles returns a list of files with unmerged changes.
func (r *ExecRunner) ConflictedFiles() ([]string, error) {
	out, err := r.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
func (r *ExecRunner) WorktreeAddNewBranch(path, branch string) error {
	return r.runRetry("worktree", "add", path, "-b", branch)
}

// WorktreeAddNewBranchFrom creates a new worktree with a new branch at the given start point.
func (r *ExecRunner) WorktreeAddNewBranchFrom(path, branch, startPoint string) error {
	return r.runRetry("worktree", "add", "-b", branch, path, startPoint)
}

// WorktreeRemove removes the worktree at the given path, discarding changes.
func (r *ExecRunner) WorktreeRemove(path string) error {
	return r.runRetry("worktree", "remove", "--force", path)
}

// WorktreeList returns a list of worktree paths.
func (r *ExecRunner) WorktreeList() ([]string, error) {
	out, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			paths = append(paths, strings.TrimPrefix(line, "worktree "))
		}
	}
	return paths, nil
}

// WorktreePrune removes stale worktree entries.
func (r *ExecRunner) WorktreePrune() error {
	return r.runSilent("worktree", "prune")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
