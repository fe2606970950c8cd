package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Hook is a reusable action definition owned by a board. Column hooks bind
// hooks to columns; the same hook may be bound to many columns.
type Hook struct {
	ID               string // UUID; system hooks use fixed "system." identifiers and are not stored
	BoardID          int64
	Name             string
	Kind             string // "script", "agent"
	Command          string // script kind: run via sh -c
	RunRoot          string // "project" or "worktree"; resolves the working directory
	TimeoutSeconds   int    // 0 means the engine default
	AgentPrompt      string // agent kind: prompt template
	AgentExecutor    string // agent kind: "claude" (default), "codex", "gemini", "opencode"
	AgentAutoApprove bool   // agent kind: skip permission prompts
	CreatedAt        LocalTime
}

// Hook kinds
const (
	KindScript = "script" // External command run through the shell
	KindAgent  = "agent"  // AI agent session
	KindSystem = "system" // Compiled-in behavior from the system hook registry
)

// Hook run roots
const (
	RunRootProject  = "project"  // Board's project directory
	RunRootWorktree = "worktree" // Task's git worktree, falling back to the project directory
)

// Agent executors
const (
	ExecutorClaude   = "claude" // Claude Code CLI (default)
	ExecutorCodex    = "codex"
	ExecutorGemini   = "gemini"
	ExecutorOpencode = "opencode"
)

// ColumnHook binds a hook to a column at a position in the column's pipeline.
type ColumnHook struct {
	ID          string // UUID
	ColumnID    int64
	HookID      string // hooks.id UUID or a "system." identifier
	Position    int
	ExecuteOnce bool // Run at most once per task, across re-entries
	Transparent bool // Failure does not block the workflow
	Removable   bool // Whether the user may detach this binding
	Settings    map[string]interface{}
	CreatedAt   LocalTime
}

// Disabled reports whether the binding's settings switch it off.
func (ch *ColumnHook) Disabled() bool {
	v, ok := ch.Settings["disabled"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// ErrHookNotFound is returned when a hook lookup fails.
var ErrHookNotFound = fmt.Errorf("hook not found")

// ErrHookNotRemovable is returned when deleting a binding the board marks as required.
var ErrHookNotRemovable = fmt.Errorf("column hook is not removable")

// CreateHook creates a new hook definition.
func (db *DB) CreateHook(h *Hook) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Kind == "" {
		h.Kind = KindScript
	}
	if h.RunRoot == "" {
		h.RunRoot = RunRootProject
	}
	if h.Kind == KindAgent && h.AgentExecutor == "" {
		h.AgentExecutor = ExecutorClaude
	}

	_, err := db.Exec(`
		INSERT INTO hooks (id, board_id, name, kind, command, run_root, timeout_seconds,
		                   agent_prompt, agent_executor, agent_auto_approve)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.BoardID, h.Name, h.Kind, h.Command, h.RunRoot, h.TimeoutSeconds,
		h.AgentPrompt, h.AgentExecutor, h.AgentAutoApprove)
	if err != nil {
		return fmt.Errorf("insert hook: %w", err)
	}
	return nil
}

const hookColumns = `
	id, board_id, name, kind, COALESCE(command, ''), COALESCE(run_root, 'project'),
	COALESCE(timeout_seconds, 0), COALESCE(agent_prompt, ''),
	COALESCE(agent_executor, ''), COALESCE(agent_auto_approve, 0), created_at
`

func scanHook(row interface{ Scan(...interface{}) error }) (*Hook, error) {
	h := &Hook{}
	err := row.Scan(
		&h.ID, &h.BoardID, &h.Name, &h.Kind, &h.Command, &h.RunRoot,
		&h.TimeoutSeconds, &h.AgentPrompt,
		&h.AgentExecutor, &h.AgentAutoApprove, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// GetHook retrieves a hook by ID.
func (db *DB) GetHook(id string) (*Hook, error) {
	h, err := scanHook(db.QueryRow(`SELECT `+hookColumns+` FROM hooks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query hook: %w", err)
	}
	return h, nil
}

// ListHooks returns all hooks for a board ordered by name.
func (db *DB) ListHooks(boardID int64) ([]*Hook, error) {
	rows, err := db.Query(`SELECT `+hookColumns+` FROM hooks WHERE board_id = ? ORDER BY name`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query hooks: %w", err)
	}
	defer rows.Close()

	var hooks []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

// FindHookByName returns a board's hook by display name, or nil when missing.
func (db *DB) FindHookByName(boardID int64, name string) (*Hook, error) {
	h, err := scanHook(db.QueryRow(`SELECT `+hookColumns+` FROM hooks WHERE board_id = ? AND name = ? LIMIT 1`, boardID, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query hook by name: %w", err)
	}
	return h, nil
}

// UpdateHook updates a hook definition.
func (db *DB) UpdateHook(h *Hook) error {
	_, err := db.Exec(`
		UPDATE hooks SET name = ?, kind = ?, command = ?, run_root = ?, timeout_seconds = ?,
		       agent_prompt = ?, agent_executor = ?, agent_auto_approve = ?
		WHERE id = ?
	`, h.Name, h.Kind, h.Command, h.RunRoot, h.TimeoutSeconds,
		h.AgentPrompt, h.AgentExecutor, h.AgentAutoApprove, h.ID)
	if err != nil {
		return fmt.Errorf("update hook: %w", err)
	}
	return nil
}

// DeleteHook deletes a hook definition. Bindings that still reference it are
// skipped at queue-build time rather than cascaded.
func (db *DB) DeleteHook(id string) error {
	_, err := db.Exec("DELETE FROM hooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete hook: %w", err)
	}
	return nil
}

// CreateColumnHook binds a hook to a column.
func (db *DB) CreateColumnHook(ch *ColumnHook) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	settingsJSON, _ := json.Marshal(ch.Settings)

	_, err := db.Exec(`
		INSERT INTO column_hooks (id, column_id, hook_id, position, execute_once, transparent, removable, settings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ch.ID, ch.ColumnID, ch.HookID, ch.Position, ch.ExecuteOnce, ch.Transparent, ch.Removable, string(settingsJSON))
	if err != nil {
		return fmt.Errorf("insert column hook: %w", err)
	}
	return nil
}

const columnHookColumns = `
	id, column_id, hook_id, position, COALESCE(execute_once, 0),
	COALESCE(transparent, 0), COALESCE(removable, 1), COALESCE(settings, '{}'), created_at
`

func scanColumnHook(row interface{ Scan(...interface{}) error }) (*ColumnHook, error) {
	ch := &ColumnHook{}
	var settingsJSON string
	err := row.Scan(
		&ch.ID, &ch.ColumnID, &ch.HookID, &ch.Position, &ch.ExecuteOnce,
		&ch.Transparent, &ch.Removable, &settingsJSON, &ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(settingsJSON), &ch.Settings)
	return ch, nil
}

// GetColumnHook retrieves a binding by ID.
func (db *DB) GetColumnHook(id string) (*ColumnHook, error) {
	ch, err := scanColumnHook(db.QueryRow(`SELECT `+columnHookColumns+` FROM column_hooks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query column hook: %w", err)
	}
	return ch, nil
}

// ListColumnHooks returns a column's bindings in pipeline order: position
// ascending, insertion order breaking ties.
func (db *DB) ListColumnHooks(columnID int64) ([]*ColumnHook, error) {
	rows, err := db.Query(`
		SELECT `+columnHookColumns+` FROM column_hooks
		WHERE column_id = ?
		ORDER BY position, rowid
	`, columnID)
	if err != nil {
		return nil, fmt.Errorf("query column hooks: %w", err)
	}
	defer rows.Close()

	var bindings []*ColumnHook
	for rows.Next() {
		ch, err := scanColumnHook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan column hook: %w", err)
		}
		bindings = append(bindings, ch)
	}
	return bindings, nil
}

// UpdateColumnHook updates a binding's position, flags, and settings.
func (db *DB) UpdateColumnHook(ch *ColumnHook) error {
	settingsJSON, _ := json.Marshal(ch.Settings)
	_, err := db.Exec(`
		UPDATE column_hooks SET position = ?, execute_once = ?, transparent = ?, settings = ?
		WHERE id = ?
	`, ch.Position, ch.ExecuteOnce, ch.Transparent, string(settingsJSON), ch.ID)
	if err != nil {
		return fmt.Errorf("update column hook: %w", err)
	}
	return nil
}

// DeleteColumnHook detaches a hook from a column. Bindings marked not
// removable are protected.
func (db *DB) DeleteColumnHook(id string) error {
	ch, err := db.GetColumnHook(id)
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrHookNotFound, id)
	}
	if !ch.Removable {
		return ErrHookNotRemovable
	}

	_, err = db.Exec("DELETE FROM column_hooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete column hook: %w", err)
	}
	return nil
}
