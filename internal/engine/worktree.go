package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/hookboard/hookboard/internal/db"
)

// Workspaces resolves the working directory hooks run in and provisions
// per-task git branches. A stub implementation is enough for hosts that do
// not use git.
type Workspaces interface {
	// WorkDir resolves a hook's working directory for the given run root
	// ("project" or "worktree").
	WorkDir(task *db.Task, board *db.Board, runRoot string) (string, error)

	// EnsureBranch makes sure the task has its own branch and worktree.
	EnsureBranch(task *db.Task, board *db.Board) error

	// Cleanup removes the task's worktree and branch, if any.
	Cleanup(task *db.Task, board *db.Board) error
}

// GitWorkspaces provisions one git worktree per task under a shared base
// directory, so agent and script hooks work in isolation from the project
// checkout.
type GitWorkspaces struct {
	db      *db.DB
	logger  *log.Logger
	baseDir string
}

// NewGitWorkspaces creates a git-backed workspace provider. Worktrees live
// under ~/.local/share/hookboard/worktrees.
func NewGitWorkspaces(database *db.DB, logger *log.Logger) *GitWorkspaces {
	home, _ := os.UserHomeDir()
	return &GitWorkspaces{
		db:      database,
		logger:  logger,
		baseDir: filepath.Join(home, ".local", "share", "hookboard", "worktrees"),
	}
}

// SetBaseDir overrides where per-task worktrees are created.
func (w *GitWorkspaces) SetBaseDir(dir string) {
	if dir != "" {
		w.baseDir = dir
	}
}

// WorkDir resolves the hook working directory. Worktree resolution falls
// back to the project directory when the project is not a git repository or
// worktree creation fails.
func (w *GitWorkspaces) WorkDir(task *db.Task, board *db.Board, runRoot string) (string, error) {
	projectDir := w.projectDir(board)
	if runRoot != db.RunRootWorktree {
		return projectDir, nil
	}

	if task.WorktreePath != "" {
		if _, err := os.Stat(task.WorktreePath); err == nil {
			return task.WorktreePath, nil
		}
	}

	path, err := w.ensureWorktree(task, board)
	if err != nil {
		w.logger.Warn("Worktree setup failed, using project directory", "task", task.ID, "error", err)
		return projectDir, nil
	}
	return path, nil
}

// EnsureBranch provisions the task's branch and worktree.
func (w *GitWorkspaces) EnsureBranch(task *db.Task, board *db.Board) error {
	_, err := w.ensureWorktree(task, board)
	return err
}

func (w *GitWorkspaces) projectDir(board *db.Board) string {
	if board != nil && board.ProjectDir != "" {
		return board.ProjectDir
	}
	cwd, _ := os.Getwd()
	return cwd
}

// ensureWorktree creates (or reuses) a git worktree for the task and records
// its path and branch on the task.
func (w *GitWorkspaces) ensureWorktree(task *db.Task, board *db.Board) (string, error) {
	projectDir := w.projectDir(board)

	// Not a git repo: nothing to provision
	if _, err := os.Stat(filepath.Join(projectDir, ".git")); os.IsNotExist(err) {
		return projectDir, nil
	}

	boardName := "board"
	if board != nil && board.Name != "" {
		boardName = slugify(board.Name, 40)
	}
	worktreesDir := filepath.Join(w.baseDir, boardName)
	if err := os.MkdirAll(worktreesDir, 0755); err != nil {
		return "", fmt.Errorf("create worktrees dir: %w", err)
	}

	slug := slugify(task.Title, 40)
	branchName := fmt.Sprintf("task/%d-%s", task.ID, slug)
	worktreePath := filepath.Join(worktreesDir, fmt.Sprintf("%d-%s", task.ID, slug))

	// Reuse an existing worktree
	if _, err := os.Stat(worktreePath); err == nil {
		w.record(task, worktreePath, branchName)
		return worktreePath, nil
	}

	defaultBranch := defaultBranch(projectDir)

	cmd := exec.Command("git", "worktree", "add", "-b", branchName, worktreePath, defaultBranch)
	cmd.Dir = projectDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "already exists") {
			// Branch exists from a previous run; attach a worktree to it
			cmd = exec.Command("git", "worktree", "add", worktreePath, branchName)
			cmd.Dir = projectDir
			output2, err2 := cmd.CombinedOutput()
			if err2 != nil {
				if strings.Contains(string(output2), "already checked out") {
					w.record(task, worktreePath, branchName)
					return worktreePath, nil
				}
				return "", fmt.Errorf("create worktree: %v\n%s\n%s", err, string(output), string(output2))
			}
		} else {
			return "", fmt.Errorf("create worktree: %v\n%s", err, string(output))
		}
	}

	w.record(task, worktreePath, branchName)
	w.logger.Info("Created worktree", "task", task.ID, "path", worktreePath, "branch", branchName)
	return worktreePath, nil
}

func (w *GitWorkspaces) record(task *db.Task, worktreePath, branchName string) {
	if task.WorktreePath == worktreePath && task.BranchName == branchName {
		return
	}
	task.WorktreePath = worktreePath
	task.BranchName = branchName
	if err := w.db.UpdateTask(task); err != nil {
		w.logger.Error("Failed to record worktree on task", "task", task.ID, "error", err)
	}
}

// Cleanup removes the task's worktree and deletes its branch. Branch
// deletion errors are ignored since the branch may have been merged away.
func (w *GitWorkspaces) Cleanup(task *db.Task, board *db.Board) error {
	if task.WorktreePath == "" {
		return nil
	}
	projectDir := w.projectDir(board)

	cmd := exec.Command("git", "worktree", "remove", "--force", task.WorktreePath)
	cmd.Dir = projectDir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("remove worktree: %v\n%s", err, string(output))
	}

	if task.BranchName != "" {
		cmd = exec.Command("git", "branch", "-D", task.BranchName)
		cmd.Dir = projectDir
		cmd.Run()
	}

	task.WorktreePath = ""
	task.BranchName = ""
	return w.db.UpdateTask(task)
}

// defaultBranch returns the repository's default branch name.
func defaultBranch(projectDir string) string {
	cmd := exec.Command("git", "symbolic-ref", "refs/remotes/origin/HEAD")
	cmd.Dir = projectDir
	if output, err := cmd.Output(); err == nil {
		ref := strings.TrimSpace(string(output))
		parts := strings.Split(ref, "/")
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
	}

	for _, branch := range []string{"main", "master"} {
		cmd := exec.Command("git", "rev-parse", "--verify", branch)
		cmd.Dir = projectDir
		if err := cmd.Run(); err == nil {
			return branch
		}
	}

	return "main"
}

// slugify converts a string to a branch/path-friendly slug.
func slugify(s string, maxLen int) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")

	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	return s
}
