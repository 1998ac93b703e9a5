// Package workspace manages per-run working copies of the target repository.
// Each run gets its own git worktree, exclusively owned by one agent driver
// for the run's lifetime; cleanup is the pipeline's call, never the driver's.
package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager handles git worktree operations for a target repository.
type Manager struct {
	repoDir string
	workDir string
}

// NewManager creates a Manager. workDir is the parent directory for per-run
// working copies.
func NewManager(repoDir, workDir string) *Manager {
	return &Manager{repoDir: repoDir, workDir: workDir}
}

// Create creates a fresh working copy for a run at the given revision
// (repository HEAD when empty).
func (m *Manager) Create(runID, revision string) (string, error) {
	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}

	// Drop stale worktree entries from crashed runs.
	prune := exec.Command("git", "worktree", "prune")
	prune.Dir = m.repoDir
	prune.Run()

	base := revision
	if base == "" {
		base = "HEAD"
	}

	wtPath := filepath.Join(m.workDir, runID)
	branch := "fix/" + runID

	cmd := exec.Command("git", "worktree", "add", "-b", branch, wtPath, base)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git worktree add: %s: %w", out, err)
	}

	return wtPath, nil
}

// Remove removes a working copy and its run branch.
func (m *Manager) Remove(wtPath string) error {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = wtPath
	branchOut, _ := cmd.Output()
	branch := strings.TrimSpace(string(branchOut))

	cmd = exec.Command("git", "worktree", "remove", "--force", wtPath)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree remove: %s: %w", out, err)
	}

	if branch != "" && branch != "HEAD" {
		cmd = exec.Command("git", "branch", "-D", branch)
		cmd.Dir = m.repoDir
		cmd.Run() // branch may already be gone
	}

	return nil
}

// Diff returns the working copy's textual diff against HEAD and whether any
// modification (tracked or untracked) occurred.
func Diff(dir string) (string, bool, error) {
	status := exec.Command("git", "status", "--porcelain")
	status.Dir = dir
	statusOut, err := status.Output()
	if err != nil {
		return "", false, fmt.Errorf("git status: %w", err)
	}
	dirty := strings.TrimSpace(string(statusOut)) != ""

	diff := exec.Command("git", "diff", "HEAD")
	diff.Dir = dir
	diffOut, err := diff.Output()
	if err != nil {
		return "", dirty, fmt.Errorf("git diff: %w", err)
	}

	return string(diffOut), dirty, nil
}
