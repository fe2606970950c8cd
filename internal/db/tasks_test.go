package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedBoard creates a board with columns named by the callers, returning the
// board and the columns in order.
func seedBoard(t *testing.T, db *DB, columnNames ...string) (*Board, []*Column) {
	t.Helper()
	board := &Board{Name: "test-board"}
	if err := db.CreateBoard(board); err != nil {
		t.Fatalf("failed to create board: %v", err)
	}
	var columns []*Column
	for i, name := range columnNames {
		c := &Column{BoardID: board.ID, Name: name, Position: i}
		if err := db.CreateColumn(c); err != nil {
			t.Fatalf("failed to create column %s: %v", name, err)
		}
		columns = append(columns, c)
	}
	return board, columns
}

func TestCreateAndGetTask(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "To Do", "In Progress")

	task := &Task{
		BoardID:  board.ID,
		ColumnID: cols[0].ID,
		Title:    "Ship the feature",
		Body:     "With tests",
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("expected task ID to be set")
	}

	got, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got == nil {
		t.Fatal("expected task, got nil")
	}
	if got.Title != "Ship the feature" {
		t.Errorf("expected title 'Ship the feature', got %q", got.Title)
	}
	if got.AgentStatus != AgentStatusIdle {
		t.Errorf("expected new task to be idle, got %q", got.AgentStatus)
	}
	if got.InProgress {
		t.Error("expected new task to not be in progress")
	}
	if got.ColumnID != cols[0].ID {
		t.Errorf("expected column %d, got %d", cols[0].ID, got.ColumnID)
	}
}

func TestGetTaskMissing(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetTask(9999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing task, got %+v", got)
	}
}

func TestSetTaskColumn(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "To Do", "Done")

	task := &Task{BoardID: board.ID, ColumnID: cols[0].ID, Title: "Move me"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := db.SetTaskColumn(task.ID, cols[1].ID); err != nil {
		t.Fatalf("failed to set task column: %v", err)
	}

	got, _ := db.GetTask(task.ID)
	if got.ColumnID != cols[1].ID {
		t.Errorf("expected column %d, got %d", cols[1].ID, got.ColumnID)
	}
}

func TestAgentStatusMirrorsInProgress(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "To Do")

	task := &Task{BoardID: board.ID, ColumnID: cols[0].ID, Title: "Status"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := db.SetTaskAgentStatus(task.ID, AgentStatusRunning, "Running hook: Tests"); err != nil {
		t.Fatalf("failed to set agent status: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if got.AgentStatus != AgentStatusRunning {
		t.Errorf("expected running, got %q", got.AgentStatus)
	}
	if !got.InProgress {
		t.Error("expected in_progress to mirror running status")
	}
	if got.AgentStatusMessage != "Running hook: Tests" {
		t.Errorf("unexpected status message %q", got.AgentStatusMessage)
	}

	if err := db.SetTaskAgentStatus(task.ID, AgentStatusIdle, ""); err != nil {
		t.Fatalf("failed to set agent status: %v", err)
	}
	got, _ = db.GetTask(task.ID)
	if got.InProgress {
		t.Error("expected in_progress cleared when idle")
	}
}

func TestSetTaskErrorAndReset(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "To Do")

	task := &Task{BoardID: board.ID, ColumnID: cols[0].ID, Title: "Errors"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := db.SetTaskError(task.ID, "hook Tests failed: exit status 1"); err != nil {
		t.Fatalf("failed to set task error: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if got.AgentStatus != AgentStatusError {
		t.Errorf("expected error status, got %q", got.AgentStatus)
	}
	if got.ErrorMessage == "" {
		t.Error("expected error message to be set")
	}
	if got.InProgress {
		t.Error("expected in_progress cleared in error state")
	}

	if err := db.ResetTaskStatus(task.ID); err != nil {
		t.Fatalf("failed to reset task status: %v", err)
	}
	got, _ = db.GetTask(task.ID)
	if got.AgentStatus != AgentStatusIdle {
		t.Errorf("expected idle after reset, got %q", got.AgentStatus)
	}
	if got.ErrorMessage != "" {
		t.Errorf("expected error message cleared, got %q", got.ErrorMessage)
	}
}

func TestAddExecutedHookAppendOnly(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "To Do")

	task := &Task{BoardID: board.ID, ColumnID: cols[0].ID, Title: "Dedup"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := db.AddExecutedHook(task.ID, "binding-a"); err != nil {
		t.Fatalf("failed to add executed hook: %v", err)
	}
	if err := db.AddExecutedHook(task.ID, "binding-b"); err != nil {
		t.Fatalf("failed to add executed hook: %v", err)
	}
	// Adding the same binding again must not duplicate it
	if err := db.AddExecutedHook(task.ID, "binding-a"); err != nil {
		t.Fatalf("failed to re-add executed hook: %v", err)
	}

	got, _ := db.GetTask(task.ID)
	if len(got.ExecutedHooks) != 2 {
		t.Fatalf("expected 2 executed hooks, got %d: %v", len(got.ExecutedHooks), got.ExecutedHooks)
	}
	if !got.HasExecutedHook("binding-a") || !got.HasExecutedHook("binding-b") {
		t.Errorf("missing executed hook entries: %v", got.ExecutedHooks)
	}
	if got.HasExecutedHook("binding-c") {
		t.Error("unexpected executed hook entry")
	}
}

func TestTasksWithAgentStatus(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "To Do")

	for i, status := range []string{AgentStatusIdle, AgentStatusRunning, AgentStatusRunning} {
		task := &Task{BoardID: board.ID, ColumnID: cols[0].ID, Title: "t"}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("failed to create task %d: %v", i, err)
		}
		if err := db.SetTaskAgentStatus(task.ID, status, ""); err != nil {
			t.Fatalf("failed to set status: %v", err)
		}
	}

	running, err := db.TasksWithAgentStatus(AgentStatusRunning)
	if err != nil {
		t.Fatalf("failed to query tasks by status: %v", err)
	}
	if len(running) != 2 {
		t.Errorf("expected 2 running tasks, got %d", len(running))
	}
}

type recordingEmitter struct {
	created []int64
	updated []int64
	deleted []int64
}

func (r *recordingEmitter) EmitTaskCreated(task *Task)   { r.created = append(r.created, task.ID) }
func (r *recordingEmitter) EmitTaskUpdated(task *Task)   { r.updated = append(r.updated, task.ID) }
func (r *recordingEmitter) EmitTaskDeleted(taskID int64) { r.deleted = append(r.deleted, taskID) }

func TestFeedEmitter(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "To Do", "Done")

	emitter := &recordingEmitter{}
	db.SetFeedEmitter(emitter)

	task := &Task{BoardID: board.ID, ColumnID: cols[0].ID, Title: "Feed"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if len(emitter.created) != 1 || emitter.created[0] != task.ID {
		t.Errorf("expected create event for task %d, got %v", task.ID, emitter.created)
	}

	// Engine-owned column writes are silent on the in-process feed
	if err := db.SetTaskColumn(task.ID, cols[1].ID); err != nil {
		t.Fatalf("failed to set column: %v", err)
	}
	if len(emitter.updated) != 0 {
		t.Errorf("expected no update events for engine column write, got %v", emitter.updated)
	}

	task.Title = "Feed (edited)"
	if err := db.UpdateTask(task); err != nil {
		t.Fatalf("failed to update task: %v", err)
	}
	if len(emitter.updated) != 1 {
		t.Errorf("expected 1 update event, got %v", emitter.updated)
	}

	if err := db.DeleteTask(task.ID); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}
	if len(emitter.deleted) != 1 || emitter.deleted[0] != task.ID {
		t.Errorf("expected delete event for task %d, got %v", task.ID, emitter.deleted)
	}
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)

	value, err := db.GetSetting("missing")
	if err != nil {
		t.Fatalf("failed to get setting: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value for missing key, got %q", value)
	}

	if err := db.SetSetting("default_board", "1"); err != nil {
		t.Fatalf("failed to set setting: %v", err)
	}
	if err := db.SetSetting("default_board", "2"); err != nil {
		t.Fatalf("failed to overwrite setting: %v", err)
	}

	value, _ = db.GetSetting("default_board")
	if value != "2" {
		t.Errorf("expected overwritten value '2', got %q", value)
	}

	all, err := db.GetAllSettings()
	if err != nil {
		t.Fatalf("failed to get all settings: %v", err)
	}
	if all["default_board"] != "2" {
		t.Errorf("expected settings map to contain default_board=2, got %v", all)
	}
}
