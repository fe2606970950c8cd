// Package db provides SQLite database operations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB

	path        string
	feedEmitter FeedEmitter
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Add busy timeout to handle concurrent access from engine + CLI
	dsn := path + "?_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	wrapped := &DB{DB: db, path: path}

	// Run migrations
	if err := wrapped.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return wrapped, nil
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// migrate runs database migrations.
func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS boards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			project_dir TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS columns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			board_id INTEGER NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			role TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			board_id INTEGER NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
			column_id INTEGER NOT NULL REFERENCES columns(id),
			title TEXT NOT NULL,
			body TEXT DEFAULT '',
			agent_status TEXT DEFAULT 'idle',
			agent_status_message TEXT DEFAULT '',
			error_message TEXT DEFAULT '',
			in_progress INTEGER DEFAULT 0,
			executed_hooks TEXT DEFAULT '[]',
			worktree_path TEXT DEFAULT '',
			branch_name TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS hooks (
			id TEXT PRIMARY KEY,
			board_id INTEGER NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'script',
			command TEXT DEFAULT '',
			run_root TEXT DEFAULT 'project',
			timeout_seconds INTEGER DEFAULT 0,
			agent_prompt TEXT DEFAULT '',
			agent_executor TEXT DEFAULT '',
			agent_auto_approve INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS column_hooks (
			id TEXT PRIMARY KEY,
			column_id INTEGER NOT NULL REFERENCES columns(id) ON DELETE CASCADE,
			hook_id TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			execute_once INTEGER DEFAULT 0,
			transparent INTEGER DEFAULT 0,
			removable INTEGER DEFAULT 1,
			settings TEXT DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS hook_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			column_hook_id TEXT DEFAULT '',
			hook_id TEXT NOT NULL,
			hook_name TEXT NOT NULL,
			column_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			skip_reason TEXT DEFAULT '',
			error TEXT DEFAULT '',
			queued_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			completed_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_columns_board_id ON columns(board_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_board_id ON tasks(board_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_column_id ON tasks(column_id)`,
		`CREATE INDEX IF NOT EXISTS idx_column_hooks_column_id ON column_hooks(column_id)`,
		`CREATE INDEX IF NOT EXISTS idx_hook_executions_task_id ON hook_executions(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_hook_executions_status ON hook_executions(status)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	// Run ALTER TABLE migrations separately (they may fail if column already exists)
	alterMigrations := []string{
		`ALTER TABLE tasks ADD COLUMN branch_name TEXT DEFAULT ''`,
	}

	for _, m := range alterMigrations {
		// Ignore "duplicate column" errors for idempotent migrations
		db.Exec(m)
	}

	return nil
}

// DefaultPath returns the default database path.
func DefaultPath() string {
	// Check for explicit path
	if p := os.Getenv("HOOKBOARD_DB_PATH"); p != "" {
		return p
	}

	// Default to ~/.local/share/hookboard/hookboard.db
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "hookboard", "hookboard.db")
}
