// demoseed creates a demo database with sample data for screencasts.
// Usage: go run ./cmd/demoseed [output.db]
// Default output: ~/.local/share/hookboard/demo.db
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hookboard/hookboard/internal/db"
)

func main() {
	// Determine output path
	var dbPath string
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	} else {
		home, _ := os.UserHomeDir()
		dbPath = filepath.Join(home, ".local", "share", "hookboard", "demo.db")
	}

	// Remove existing demo database if it exists
	if _, err := os.Stat(dbPath); err == nil {
		if err := os.Remove(dbPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error removing existing db: %v\n", err)
			os.Exit(1)
		}
	}

	database, err := db.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	fmt.Printf("Creating demo database at: %s\n", dbPath)

	// Demo board with a dummy project directory
	projectDir := "/tmp/demo/acme-webapp"
	os.MkdirAll(projectDir, 0755)

	board := &db.Board{Name: "acme-webapp", ProjectDir: projectDir}
	if err := database.CreateBoard(board); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating board: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Created board: %s\n", board.Name)

	// Columns
	backlog := column(database, board.ID, "Backlog", 0, "")
	inProgress := column(database, board.ID, "In Progress", 1, db.RoleInProgress)
	review := column(database, board.ID, "Review", 2, db.RoleReview)
	done := column(database, board.ID, "Done", 3, db.RoleDone)

	// Hook definitions
	tests := hook(database, &db.Hook{
		BoardID:        board.ID,
		Name:           "Tests",
		Kind:           db.KindScript,
		Command:        "make test",
		RunRoot:        db.RunRootWorktree,
		TimeoutSeconds: 300,
	})
	lint := hook(database, &db.Hook{
		BoardID: board.ID,
		Name:    "Lint",
		Kind:    db.KindScript,
		Command: "make lint",
	})
	implement := hook(database, &db.Hook{
		BoardID:          board.ID,
		Name:             "Implement",
		Kind:             db.KindAgent,
		AgentPrompt:      "Implement the task described below.\n\nTitle: {task_title}\n\n{task_body}",
		AgentExecutor:    db.ExecutorClaude,
		AgentAutoApprove: true,
	})

	// Bindings: In Progress provisions a branch, implements once, then tests
	branchBinding := bind(database, &db.ColumnHook{
		ColumnID: inProgress.ID, HookID: "system.create_branch", Position: 0,
	})
	implementBinding := bind(database, &db.ColumnHook{
		ColumnID: inProgress.ID, HookID: implement.ID, Position: 1, ExecuteOnce: true,
	})
	testsBinding := bind(database, &db.ColumnHook{
		ColumnID: inProgress.ID, HookID: tests.ID, Position: 2,
	})

	// Review lints transparently and chimes
	lintBinding := bind(database, &db.ColumnHook{
		ColumnID: review.ID, HookID: lint.ID, Position: 0, Transparent: true,
	})
	chimeBinding := bind(database, &db.ColumnHook{
		ColumnID: review.ID, HookID: "system.play_sound", Position: 1,
		Settings: map[string]interface{}{"sound": "chime"},
	})

	// Done just gongs
	bind(database, &db.ColumnHook{
		ColumnID: done.ID, HookID: "system.play_sound", Position: 0,
		Settings: map[string]interface{}{"sound": "gong"},
	})

	now := time.Now()

	// A task that went all the way through: full green ledger
	shipped := task(database, board.ID, done.ID, "Add dark mode toggle to settings page",
		"Users have requested a dark mode option. Add a toggle in the settings page that persists the preference to localStorage.")
	database.AddExecutedHook(shipped.ID, implementBinding.ID)
	ledger(database, shipped.ID, inProgress.ID, branchBinding, "system.create_branch", "Create branch",
		db.ExecStatusCompleted, "", now.Add(-70*time.Hour), 2*time.Second)
	ledger(database, shipped.ID, inProgress.ID, implementBinding, implement.ID, "Implement",
		db.ExecStatusCompleted, "", now.Add(-70*time.Hour), 40*time.Minute)
	ledger(database, shipped.ID, inProgress.ID, testsBinding, tests.ID, "Tests",
		db.ExecStatusCompleted, "", now.Add(-69*time.Hour), 3*time.Minute)
	ledger(database, shipped.ID, review.ID, lintBinding, lint.ID, "Lint",
		db.ExecStatusCompleted, "", now.Add(-50*time.Hour), 30*time.Second)
	ledger(database, shipped.ID, review.ID, chimeBinding, "system.play_sound", "Play sound",
		db.ExecStatusCompleted, "", now.Add(-50*time.Hour), time.Second)

	// A task mid-flight: the daemon heals this to cancelled on startup
	busy := task(database, board.ID, inProgress.ID, "Implement user activity dashboard",
		"Dashboard showing daily/weekly/monthly active users and retention charts. Use the existing analytics API.")
	database.AddExecutedHook(busy.ID, implementBinding.ID)
	database.SetTaskAgentStatus(busy.ID, db.AgentStatusRunning, "Running hook: Tests")
	ledger(database, busy.ID, inProgress.ID, implementBinding, implement.ID, "Implement",
		db.ExecStatusCompleted, "", now.Add(-time.Hour), 35*time.Minute)
	ledger(database, busy.ID, inProgress.ID, testsBinding, tests.ID, "Tests",
		db.ExecStatusRunning, "", now.Add(-20*time.Minute), 0)

	// A task whose tests failed: standing error on the task
	broken := task(database, board.ID, inProgress.ID, "Refactor authentication middleware",
		"The current auth middleware is becoming complex. Refactor it with proper separation of concerns.")
	database.SetTaskError(broken.ID, "Tests failed: exit status 1")
	ledger(database, broken.ID, inProgress.ID, implementBinding, implement.ID, "Implement",
		db.ExecStatusCompleted, "", now.Add(-5*time.Hour), 25*time.Minute)
	ledger(database, broken.ID, inProgress.ID, testsBinding, tests.ID, "Tests",
		db.ExecStatusFailed, "exit status 1", now.Add(-4*time.Hour), 2*time.Minute)

	// Backlog: untouched tasks waiting their turn
	task(database, board.ID, backlog.ID, "Add E2E tests for checkout flow",
		"Cover cart, payment, and order confirmation with Playwright.")
	task(database, board.ID, backlog.ID, "Design API rate limiting strategy",
		"Per-endpoint limits, user tiers, response headers, error handling.")
	task(database, board.ID, backlog.ID, "Upgrade Kubernetes cluster to 1.28",
		"Review breaking changes and update deprecated APIs first.")

	fmt.Println("\nDemo database ready. Try:")
	fmt.Printf("  HOOKBOARD_DB_PATH=%s hookboardd\n", dbPath)
	fmt.Printf("  HOOKBOARD_DB_PATH=%s hookboard task list\n", dbPath)
}

func column(database *db.DB, boardID int64, name string, position int, role string) *db.Column {
	c := &db.Column{BoardID: boardID, Name: name, Position: position, Role: role}
	if err := database.CreateColumn(c); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating column %s: %v\n", name, err)
		os.Exit(1)
	}
	fmt.Printf("  Created column: %s\n", name)
	return c
}

func hook(database *db.DB, h *db.Hook) *db.Hook {
	if err := database.CreateHook(h); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating hook %s: %v\n", h.Name, err)
		os.Exit(1)
	}
	fmt.Printf("  Created hook: %s\n", h.Name)
	return h
}

func bind(database *db.DB, ch *db.ColumnHook) *db.ColumnHook {
	ch.Removable = true
	if err := database.CreateColumnHook(ch); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding hook: %v\n", err)
		os.Exit(1)
	}
	return ch
}

func task(database *db.DB, boardID, columnID int64, title, body string) *db.Task {
	t := &db.Task{BoardID: boardID, ColumnID: columnID, Title: title, Body: body}
	if err := database.CreateTask(t); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating task %s: %v\n", title, err)
		os.Exit(1)
	}
	fmt.Printf("  Created task: %s\n", title)
	return t
}

// ledger inserts a hook execution row with explicit timestamps so the demo
// history reads like days of real activity.
func ledger(database *db.DB, taskID, columnID int64, binding *db.ColumnHook, hookID, hookName, status, errMsg string, queuedAt time.Time, duration time.Duration) {
	started := queuedAt.Add(time.Second)
	completedAt := db.LocalTime{}
	if db.IsTerminalExecStatus(status) {
		completedAt = db.LocalTime{Time: started.Add(duration)}
	}

	_, err := database.Exec(`
		INSERT INTO hook_executions (task_id, column_hook_id, hook_id, hook_name, column_id,
		                             status, error, queued_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, taskID, binding.ID, hookID, hookName, columnID, status, errMsg,
		db.LocalTime{Time: queuedAt}, db.LocalTime{Time: started}, completedAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error seeding execution for %s: %v\n", hookName, err)
		os.Exit(1)
	}
}
