package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Task represents a task card on a board.
type Task struct {
	ID                 int64
	BoardID            int64
	ColumnID           int64
	Title              string
	Body               string
	AgentStatus        string   // "idle", "running", "error"
	AgentStatusMessage string   // Human-readable detail ("Running hook: Tests", agent question, ...)
	ErrorMessage       string   // Last failure detail, kept until the error state clears
	InProgress         bool     // Mirrors AgentStatus == "running"
	ExecutedHooks      []string // Column hook binding IDs that already ran for this task (stored as JSON)
	WorktreePath       string   // Git worktree used as hook working directory when set
	BranchName         string
	CreatedAt          LocalTime
	UpdatedAt          LocalTime
}

// Task agent statuses
const (
	AgentStatusIdle    = "idle"    // Nothing executing
	AgentStatusRunning = "running" // A hook queue is being worked
	AgentStatusError   = "error"   // A workflow-blocking hook failed
)

// ErrTaskNotFound is returned when a task lookup fails.
var ErrTaskNotFound = fmt.Errorf("task not found")

// HasExecutedHook reports whether the given column hook binding already ran.
func (t *Task) HasExecutedHook(bindingID string) bool {
	for _, id := range t.ExecutedHooks {
		if id == bindingID {
			return true
		}
	}
	return false
}

// CreateTask creates a new task.
func (db *DB) CreateTask(t *Task) error {
	if t.AgentStatus == "" {
		t.AgentStatus = AgentStatusIdle
	}
	executedJSON, _ := json.Marshal(t.ExecutedHooks)

	result, err := db.Exec(`
		INSERT INTO tasks (board_id, column_id, title, body, agent_status, agent_status_message,
		                   error_message, in_progress, executed_hooks, worktree_path, branch_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.BoardID, t.ColumnID, t.Title, t.Body, t.AgentStatus, t.AgentStatusMessage,
		t.ErrorMessage, t.InProgress, string(executedJSON), t.WorktreePath, t.BranchName)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	t.ID = id

	if created, err := db.GetTask(id); err == nil && created != nil {
		db.emitTaskCreated(created)
	}
	return nil
}

const taskColumns = `
	id, board_id, column_id, title, body,
	COALESCE(agent_status, 'idle'), COALESCE(agent_status_message, ''),
	COALESCE(error_message, ''), COALESCE(in_progress, 0),
	COALESCE(executed_hooks, '[]'), COALESCE(worktree_path, ''),
	COALESCE(branch_name, ''), created_at, updated_at
`

func scanTask(row interface{ Scan(...interface{}) error }) (*Task, error) {
	t := &Task{}
	var executedJSON string
	err := row.Scan(
		&t.ID, &t.BoardID, &t.ColumnID, &t.Title, &t.Body,
		&t.AgentStatus, &t.AgentStatusMessage,
		&t.ErrorMessage, &t.InProgress,
		&executedJSON, &t.WorktreePath,
		&t.BranchName, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(executedJSON), &t.ExecutedHooks)
	return t, nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(id int64) (*Task, error) {
	t, err := scanTask(db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// ListTasks returns all tasks on a board ordered by creation.
func (db *DB) ListTasks(boardID int64) ([]*Task, error) {
	rows, err := db.Query(`SELECT `+taskColumns+` FROM tasks WHERE board_id = ? ORDER BY id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// ListAllTasks returns every task across all boards, ordered by creation.
func (db *DB) ListAllTasks() ([]*Task, error) {
	rows, err := db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// ListTasksInColumn returns all tasks currently in a column.
func (db *DB) ListTasksInColumn(columnID int64) ([]*Task, error) {
	rows, err := db.Query(`SELECT `+taskColumns+` FROM tasks WHERE column_id = ? ORDER BY id`, columnID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// UpdateTask updates a task's editable fields (title, body, worktree, branch).
func (db *DB) UpdateTask(t *Task) error {
	_, err := db.Exec(`
		UPDATE tasks SET
			title = ?, body = ?, worktree_path = ?, branch_name = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, t.Title, t.Body, t.WorktreePath, t.BranchName, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if updated, err := db.GetTask(t.ID); err == nil && updated != nil {
		db.emitTaskUpdated(updated)
	}
	return nil
}

// SetTaskColumn persists a column change. The engine is the writer of record
// for moves it routes itself, so no change-feed event is emitted here; other
// processes observe the write through the database file.
func (db *DB) SetTaskColumn(taskID, columnID int64) error {
	_, err := db.Exec(`
		UPDATE tasks SET column_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, columnID, taskID)
	if err != nil {
		return fmt.Errorf("set task column: %w", err)
	}
	return nil
}

// SetTaskAgentStatus updates the agent status and its human-readable message.
// InProgress always mirrors the running status.
func (db *DB) SetTaskAgentStatus(taskID int64, status, message string) error {
	_, err := db.Exec(`
		UPDATE tasks SET agent_status = ?, agent_status_message = ?, in_progress = ?,
		       updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, message, status == AgentStatusRunning, taskID)
	if err != nil {
		return fmt.Errorf("set task agent status: %w", err)
	}
	return nil
}

// SetTaskError puts the task into the error state with the failure detail.
func (db *DB) SetTaskError(taskID int64, errorMessage string) error {
	_, err := db.Exec(`
		UPDATE tasks SET agent_status = ?, agent_status_message = '', error_message = ?,
		       in_progress = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, AgentStatusError, errorMessage, taskID)
	if err != nil {
		return fmt.Errorf("set task error: %w", err)
	}
	return nil
}

// ResetTaskStatus returns the task to idle and clears all transient fields.
func (db *DB) ResetTaskStatus(taskID int64) error {
	_, err := db.Exec(`
		UPDATE tasks SET agent_status = ?, agent_status_message = '', error_message = '',
		       in_progress = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, AgentStatusIdle, taskID)
	if err != nil {
		return fmt.Errorf("reset task status: %w", err)
	}
	return nil
}

// AddExecutedHook records that a column hook binding ran for this task.
// The set is append-only; adding an existing binding is a no-op.
func (db *DB) AddExecutedHook(taskID int64, bindingID string) error {
	t, err := db.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t == nil {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
	}
	if t.HasExecutedHook(bindingID) {
		return nil
	}

	executedJSON, _ := json.Marshal(append(t.ExecutedHooks, bindingID))
	_, err = db.Exec(`
		UPDATE tasks SET executed_hooks = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(executedJSON), taskID)
	if err != nil {
		return fmt.Errorf("add executed hook: %w", err)
	}
	return nil
}

// DeleteTask deletes a task. Ledger rows cascade.
func (db *DB) DeleteTask(id int64) error {
	_, err := db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	db.emitTaskDeleted(id)
	return nil
}

// TasksWithAgentStatus returns tasks stuck in the given agent status.
// Used by self-heal to find tasks that still look busy after a restart.
func (db *DB) TasksWithAgentStatus(status string) ([]*Task, error) {
	rows, err := db.Query(`SELECT `+taskColumns+` FROM tasks WHERE agent_status = ? ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("query tasks by agent status: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetSetting returns a setting value.
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting sets a setting value.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?
	`, key, value, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// GetAllSettings returns all settings as a map.
func (db *DB) GetAllSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, nil
}
