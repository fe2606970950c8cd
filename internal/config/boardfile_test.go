package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hookboard/hookboard/internal/db"
)

const seedYAML = `
board: webapp
project_dir: /tmp/webapp
settings:
  default_sound: gong
hooks:
  - name: Lint
    kind: script
    command: make lint
    run_root: worktree
    timeout: 120
  - name: Implement
    kind: agent
    executor: claude
    auto_approve: true
columns:
  - name: Backlog
  - name: In Progress
    role: in_progress
    hooks:
      - system.create_branch
      - hook: Implement
        once: true
      - hook: Lint
        transparent: true
  - name: Review
    role: review
    hooks:
      - hook: system.play_sound
        settings:
          sound: gong
`

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hookboard.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestApplyBoardFile(t *testing.T) {
	database := openTestDB(t)

	board, err := ApplyBoardFile(database, writeSeed(t, seedYAML))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if board.Name != "webapp" || board.ProjectDir != "/tmp/webapp" {
		t.Errorf("unexpected board: %+v", board)
	}

	columns, err := database.ListColumns(board.ID)
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	if len(columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(columns))
	}
	if columns[1].Name != "In Progress" || columns[1].Role != db.RoleInProgress {
		t.Errorf("unexpected second column: %+v", columns[1])
	}

	hooks, err := database.ListHooks(board.ID)
	if err != nil {
		t.Fatalf("list hooks: %v", err)
	}
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	for _, h := range hooks {
		switch h.Name {
		case "Lint":
			if h.Kind != db.KindScript || h.Command != "make lint" || h.RunRoot != db.RunRootWorktree || h.TimeoutSeconds != 120 {
				t.Errorf("unexpected Lint hook: %+v", h)
			}
		case "Implement":
			if h.Kind != db.KindAgent || h.AgentExecutor != db.ExecutorClaude || !h.AgentAutoApprove {
				t.Errorf("unexpected Implement hook: %+v", h)
			}
		default:
			t.Errorf("unexpected hook %s", h.Name)
		}
	}

	inProgress := columns[1]
	bindings, err := database.ListColumnHooks(inProgress.ID)
	if err != nil {
		t.Fatalf("list bindings: %v", err)
	}
	if len(bindings) != 3 {
		t.Fatalf("expected 3 bindings on In Progress, got %d", len(bindings))
	}
	if bindings[0].HookID != "system.create_branch" {
		t.Errorf("expected system.create_branch first, got %s", bindings[0].HookID)
	}
	if !bindings[1].ExecuteOnce {
		t.Error("Implement binding should be execute-once")
	}
	if !bindings[2].Transparent {
		t.Error("Lint binding should be transparent")
	}

	review, err := database.ListColumnHooks(columns[2].ID)
	if err != nil {
		t.Fatalf("list review bindings: %v", err)
	}
	if len(review) != 1 || review[0].HookID != "system.play_sound" {
		t.Fatalf("unexpected review bindings: %+v", review)
	}
	if review[0].Settings["sound"] != "gong" {
		t.Errorf("binding settings not kept: %v", review[0].Settings)
	}

	if sound, _ := database.GetSetting("default_sound"); sound != "gong" {
		t.Errorf("setting not applied, got %q", sound)
	}
}

func TestApplyBoardFileTwiceConverges(t *testing.T) {
	database := openTestDB(t)
	path := writeSeed(t, seedYAML)

	if _, err := ApplyBoardFile(database, path); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	board, err := ApplyBoardFile(database, path)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}

	boards, err := database.ListBoards()
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if len(boards) != 1 {
		t.Errorf("expected 1 board, got %d", len(boards))
	}
	columns, _ := database.ListColumns(board.ID)
	if len(columns) != 3 {
		t.Errorf("expected 3 columns, got %d", len(columns))
	}
	hooks, _ := database.ListHooks(board.ID)
	if len(hooks) != 2 {
		t.Errorf("expected 2 hooks, got %d", len(hooks))
	}
	for _, c := range columns {
		bindings, _ := database.ListColumnHooks(c.ID)
		for _, ch := range bindings {
			for _, other := range bindings {
				if ch != other && ch.HookID == other.HookID {
					t.Errorf("duplicate binding for %s on column %s", ch.HookID, c.Name)
				}
			}
		}
	}
}

func TestApplyUpdatesChangedHook(t *testing.T) {
	database := openTestDB(t)
	path := writeSeed(t, seedYAML)
	if _, err := ApplyBoardFile(database, path); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	changed := strings.Replace(seedYAML, "command: make lint", "command: make lint-all", 1)
	board, err := ApplyBoardFile(database, writeSeed(t, changed))
	if err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}

	h, err := database.FindHookByName(board.ID, "Lint")
	if err != nil || h == nil {
		t.Fatalf("find hook: %v", err)
	}
	if h.Command != "make lint-all" {
		t.Errorf("hook command not updated, got %q", h.Command)
	}
	hooks, _ := database.ListHooks(board.ID)
	if len(hooks) != 2 {
		t.Errorf("expected 2 hooks after update, got %d", len(hooks))
	}
}

func TestApplyUnknownHookReference(t *testing.T) {
	database := openTestDB(t)
	bad := `
board: broken
columns:
  - name: Work
    hooks:
      - Nonexistent
`
	if _, err := ApplyBoardFile(database, writeSeed(t, bad)); err == nil || !strings.Contains(err.Error(), "Nonexistent") {
		t.Errorf("expected unknown-hook error, got %v", err)
	}

	badSystem := `
board: broken2
columns:
  - name: Work
    hooks:
      - system.reboot
`
	if _, err := ApplyBoardFile(database, writeSeed(t, badSystem)); err == nil || !strings.Contains(err.Error(), "system.reboot") {
		t.Errorf("expected unknown-system-hook error, got %v", err)
	}
}

func TestLoadBoardFileRequiresName(t *testing.T) {
	if _, err := LoadBoardFile(writeSeed(t, "columns:\n  - name: Work\n")); err == nil {
		t.Error("expected error for missing board name")
	}
}

func TestFindBoardFile(t *testing.T) {
	dir := t.TempDir()
	if got := FindBoardFile(dir); got != "" {
		t.Errorf("expected none, got %s", got)
	}

	visible := filepath.Join(dir, "hookboard.yml")
	os.WriteFile(visible, []byte("board: x\n"), 0644)
	if got := FindBoardFile(dir); got != visible {
		t.Errorf("expected %s, got %s", visible, got)
	}

	// Hidden name wins over the visible one
	hidden := filepath.Join(dir, ".hookboard.yml")
	os.WriteFile(hidden, []byte("board: x\n"), 0644)
	if got := FindBoardFile(dir); got != hidden {
		t.Errorf("expected %s, got %s", hidden, got)
	}
}
