package db

import (
	"database/sql"
	"fmt"
)

// HookExecution is one row of the execution ledger: a single attempt (or
// deliberate skip) of a hook for a task. Rows are append-only history; status
// transitions only move forward and terminal rows never change again.
type HookExecution struct {
	ID           int64
	TaskID       int64
	ColumnHookID string // Binding that produced this attempt (denormalized snapshot)
	HookID       string
	HookName     string // Display name at queue time; survives hook renames
	ColumnID     int64  // Column whose entry triggered the attempt
	Status       string
	SkipReason   string // Only for cancelled/skipped rows
	Error        string // Failure or cancellation detail
	QueuedAt     LocalTime
	StartedAt    *LocalTime
	CompletedAt  *LocalTime
}

// Execution statuses
const (
	ExecStatusPending   = "pending"   // Queued, not yet started
	ExecStatusRunning   = "running"   // Currently executing
	ExecStatusCompleted = "completed" // Finished successfully
	ExecStatusFailed    = "failed"    // Finished with an error
	ExecStatusCancelled = "cancelled" // Stopped before finishing
	ExecStatusSkipped   = "skipped"   // Deliberately never started
)

// Skip reasons for cancelled and skipped rows
const (
	SkipReasonError         = "error"          // An earlier workflow-blocking hook failed
	SkipReasonDisabled      = "disabled"       // Binding switched off or hook definition gone
	SkipReasonColumnChange  = "column_change"  // The task moved to another column
	SkipReasonServerRestart = "server_restart" // Found in-flight during self-heal
	SkipReasonUserCancelled = "user_cancelled" // Explicit stop request
)

// IsTerminalExecStatus reports whether a status is final.
func IsTerminalExecStatus(status string) bool {
	switch status {
	case ExecStatusCompleted, ExecStatusFailed, ExecStatusCancelled, ExecStatusSkipped:
		return true
	}
	return false
}

// CreateExecution inserts a pending ledger row and sets its ID.
func (db *DB) CreateExecution(e *HookExecution) error {
	result, err := db.Exec(`
		INSERT INTO hook_executions (task_id, column_hook_id, hook_id, hook_name, column_id, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.TaskID, e.ColumnHookID, e.HookID, e.HookName, e.ColumnID, ExecStatusPending)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	e.ID = id
	e.Status = ExecStatusPending
	return nil
}

// CreateSkippedExecution inserts a ledger row directly in the skipped state.
// Used for hooks filtered out before they could queue (already executed-once
// rows are not recorded; disabled bindings and error-state filtering are).
func (db *DB) CreateSkippedExecution(e *HookExecution, reason string) error {
	result, err := db.Exec(`
		INSERT INTO hook_executions (task_id, column_hook_id, hook_id, hook_name, column_id, status, skip_reason, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, e.TaskID, e.ColumnHookID, e.HookID, e.HookName, e.ColumnID, ExecStatusSkipped, reason)
	if err != nil {
		return fmt.Errorf("insert skipped execution: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	e.ID = id
	e.Status = ExecStatusSkipped
	e.SkipReason = reason
	return nil
}

// MarkExecutionRunning moves a pending row to running and stamps started_at.
// Returns false when the row already left the pending state.
func (db *DB) MarkExecutionRunning(id int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE hook_executions SET status = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, ExecStatusRunning, id, ExecStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark execution running: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// CompleteExecution moves a running row to completed.
func (db *DB) CompleteExecution(id int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE hook_executions SET status = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, ExecStatusCompleted, id, ExecStatusRunning)
	if err != nil {
		return false, fmt.Errorf("complete execution: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// FailExecution moves a running row to failed with the error detail.
func (db *DB) FailExecution(id int64, detail string) (bool, error) {
	result, err := db.Exec(`
		UPDATE hook_executions SET status = ?, error = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, ExecStatusFailed, detail, id, ExecStatusRunning)
	if err != nil {
		return false, fmt.Errorf("fail execution: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// CancelExecution moves a pending or running row to cancelled with a reason.
// Terminal rows are left untouched.
func (db *DB) CancelExecution(id int64, reason string) (bool, error) {
	result, err := db.Exec(`
		UPDATE hook_executions SET status = ?, skip_reason = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`, ExecStatusCancelled, reason, id, ExecStatusPending, ExecStatusRunning)
	if err != nil {
		return false, fmt.Errorf("cancel execution: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// CancelActiveExecutions cancels every pending or running row for a task.
// Returns the number of rows cancelled. Used on moves and by self-heal.
func (db *DB) CancelActiveExecutions(taskID int64, reason string) (int64, error) {
	result, err := db.Exec(`
		UPDATE hook_executions SET status = ?, skip_reason = ?, completed_at = CURRENT_TIMESTAMP
		WHERE task_id = ? AND status IN (?, ?)
	`, ExecStatusCancelled, reason, taskID, ExecStatusPending, ExecStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("cancel active executions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

const executionColumns = `
	id, task_id, COALESCE(column_hook_id, ''), hook_id, hook_name, column_id,
	status, COALESCE(skip_reason, ''), COALESCE(error, ''),
	queued_at, started_at, completed_at
`

func scanExecution(row interface{ Scan(...interface{}) error }) (*HookExecution, error) {
	e := &HookExecution{}
	err := row.Scan(
		&e.ID, &e.TaskID, &e.ColumnHookID, &e.HookID, &e.HookName, &e.ColumnID,
		&e.Status, &e.SkipReason, &e.Error,
		&e.QueuedAt, &e.StartedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetExecution retrieves a ledger row by ID.
func (db *DB) GetExecution(id int64) (*HookExecution, error) {
	e, err := scanExecution(db.QueryRow(`SELECT `+executionColumns+` FROM hook_executions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns a task's full execution history in chronological
// order (oldest first).
func (db *DB) ListExecutions(taskID int64) ([]*HookExecution, error) {
	rows, err := db.Query(`
		SELECT `+executionColumns+` FROM hook_executions
		WHERE task_id = ?
		ORDER BY queued_at, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var executions []*HookExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	return executions, nil
}

// ActiveExecutions returns a task's pending and running rows.
func (db *DB) ActiveExecutions(taskID int64) ([]*HookExecution, error) {
	rows, err := db.Query(`
		SELECT `+executionColumns+` FROM hook_executions
		WHERE task_id = ? AND status IN (?, ?)
		ORDER BY queued_at, id
	`, taskID, ExecStatusPending, ExecStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("query active executions: %w", err)
	}
	defer rows.Close()

	var executions []*HookExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	return executions, nil
}

// CountExecutionsByStatus returns how many ledger rows a task has in a status.
func (db *DB) CountExecutionsByStatus(taskID int64, status string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM hook_executions WHERE task_id = ? AND status = ?
	`, taskID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return count, nil
}
