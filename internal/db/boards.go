package db

import (
	"database/sql"
	"fmt"
)

// Board represents a task board.
type Board struct {
	ID         int64
	Name       string
	ProjectDir string // Repository root used as the default hook working directory
	CreatedAt  LocalTime
}

// Column represents one column of a board. Tasks enter hooks by moving
// between columns.
type Column struct {
	ID        int64
	BoardID   int64
	Name      string
	Position  int
	Role      string // Optional marker ("in_progress", "review", ...) for role-based lookup
	CreatedAt LocalTime
}

// Well-known column roles.
const (
	RoleInProgress = "in_progress"
	RoleReview     = "review"
	RoleDone       = "done"
)

// ErrBoardNotFound is returned when a board lookup fails.
var ErrBoardNotFound = fmt.Errorf("board not found")

// ErrColumnNotFound is returned when a column lookup fails.
var ErrColumnNotFound = fmt.Errorf("column not found")

// CreateBoard creates a new board.
func (db *DB) CreateBoard(b *Board) error {
	result, err := db.Exec(`
		INSERT INTO boards (name, project_dir)
		VALUES (?, ?)
	`, b.Name, b.ProjectDir)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// SetBoardProjectDir updates a board's project directory.
func (db *DB) SetBoardProjectDir(boardID int64, dir string) error {
	_, err := db.Exec("UPDATE boards SET project_dir = ? WHERE id = ?", dir, boardID)
	if err != nil {
		return fmt.Errorf("update board project dir: %w", err)
	}
	return nil
}

// GetBoard retrieves a board by ID.
func (db *DB) GetBoard(id int64) (*Board, error) {
	b := &Board{}
	err := db.QueryRow(`
		SELECT id, name, COALESCE(project_dir, ''), created_at
		FROM boards WHERE id = ?
	`, id).Scan(&b.ID, &b.Name, &b.ProjectDir, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query board: %w", err)
	}
	return b, nil
}

// GetBoardByName retrieves a board by name.
func (db *DB) GetBoardByName(name string) (*Board, error) {
	b := &Board{}
	err := db.QueryRow(`
		SELECT id, name, COALESCE(project_dir, ''), created_at
		FROM boards WHERE name = ?
	`, name).Scan(&b.ID, &b.Name, &b.ProjectDir, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query board: %w", err)
	}
	return b, nil
}

// ListBoards returns all boards ordered by name.
func (db *DB) ListBoards() ([]*Board, error) {
	rows, err := db.Query(`
		SELECT id, name, COALESCE(project_dir, ''), created_at
		FROM boards ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer rows.Close()

	var boards []*Board
	for rows.Next() {
		b := &Board{}
		if err := rows.Scan(&b.ID, &b.Name, &b.ProjectDir, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, nil
}

// CreateColumn creates a new column on a board.
func (db *DB) CreateColumn(c *Column) error {
	result, err := db.Exec(`
		INSERT INTO columns (board_id, name, position, role)
		VALUES (?, ?, ?, ?)
	`, c.BoardID, c.Name, c.Position, c.Role)
	if err != nil {
		return fmt.Errorf("insert column: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// GetColumn retrieves a column by ID.
func (db *DB) GetColumn(id int64) (*Column, error) {
	c := &Column{}
	err := db.QueryRow(`
		SELECT id, board_id, name, position, COALESCE(role, ''), created_at
		FROM columns WHERE id = ?
	`, id).Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.Role, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query column: %w", err)
	}
	return c, nil
}

// ListColumns returns a board's columns ordered by position.
func (db *DB) ListColumns(boardID int64) ([]*Column, error) {
	rows, err := db.Query(`
		SELECT id, board_id, name, position, COALESCE(role, ''), created_at
		FROM columns WHERE board_id = ?
		ORDER BY position, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []*Column
	for rows.Next() {
		c := &Column{}
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.Role, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	return columns, nil
}

// FindColumnByRole returns the first column on a board with the given role,
// or nil when the board has none.
func (db *DB) FindColumnByRole(boardID int64, role string) (*Column, error) {
	c := &Column{}
	err := db.QueryRow(`
		SELECT id, board_id, name, position, COALESCE(role, ''), created_at
		FROM columns WHERE board_id = ? AND role = ?
		ORDER BY position, id LIMIT 1
	`, boardID, role).Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.Role, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query column by role: %w", err)
	}
	return c, nil
}

// FindColumnByName returns a board's column by name, or nil when missing.
func (db *DB) FindColumnByName(boardID int64, name string) (*Column, error) {
	c := &Column{}
	err := db.QueryRow(`
		SELECT id, board_id, name, position, COALESCE(role, ''), created_at
		FROM columns WHERE board_id = ? AND name = ?
		ORDER BY position, id LIMIT 1
	`, boardID, name).Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.Role, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query column by name: %w", err)
	}
	return c, nil
}
