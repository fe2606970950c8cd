package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/syshook"
)

// BoardFile is the YAML seed describing a board, its columns, hooks, and
// bindings. Applying the same file twice converges instead of duplicating.
type BoardFile struct {
	Board      string            `yaml:"board"`
	ProjectDir string            `yaml:"project_dir"`
	Settings   map[string]string `yaml:"settings"`
	Hooks      []HookSpec        `yaml:"hooks"`
	Columns    []ColumnSpec      `yaml:"columns"`
}

// HookSpec declares a reusable hook owned by the board.
type HookSpec struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Command     string `yaml:"command"`
	RunRoot     string `yaml:"run_root"`
	Timeout     int    `yaml:"timeout"`
	Prompt      string `yaml:"prompt"`
	Executor    string `yaml:"executor"`
	AutoApprove bool   `yaml:"auto_approve"`
}

// ColumnSpec declares a column and its ordered hook bindings.
type ColumnSpec struct {
	Name  string        `yaml:"name"`
	Role  string        `yaml:"role"`
	Hooks []BindingSpec `yaml:"hooks"`
}

// BindingSpec binds a hook to a column. In YAML it is either a bare string
// (hook name or system identifier) or a mapping with options:
//
//	hooks:
//	  - system.create_branch
//	  - hook: Implement
//	    once: true
//	  - hook: Lint
//	    transparent: true
type BindingSpec struct {
	Hook        string                 `yaml:"hook"`
	Once        bool                   `yaml:"once"`
	Transparent bool                   `yaml:"transparent"`
	Settings    map[string]interface{} `yaml:"settings"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (b *BindingSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		b.Hook = value.Value
		return nil
	}
	type plain BindingSpec
	return value.Decode((*plain)(b))
}

// BoardFileNames are the supported seed file names, in order of precedence.
var BoardFileNames = []string{".hookboard.yml", ".hookboard.yaml", "hookboard.yml", "hookboard.yaml"}

// FindBoardFile returns the path of the board file in a directory, or ""
// when the directory has none.
func FindBoardFile(dir string) string {
	for _, name := range BoardFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadBoardFile reads and parses a board seed file.
func LoadBoardFile(path string) (*BoardFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board file: %w", err)
	}
	var f BoardFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse board file: %w", err)
	}
	if f.Board == "" {
		return nil, fmt.Errorf("board file %s: board name is required", path)
	}
	return &f, nil
}

// ApplyBoardFile loads a seed file and applies it to the database. A file
// without project_dir claims its own directory as the project.
func ApplyBoardFile(database *db.DB, path string) (*db.Board, error) {
	f, err := LoadBoardFile(path)
	if err != nil {
		return nil, err
	}
	if f.ProjectDir == "" {
		if abs, err := filepath.Abs(path); err == nil {
			f.ProjectDir = filepath.Dir(abs)
		}
	}
	return f.Apply(database)
}

// Apply creates the board, columns, hooks, and bindings the file describes.
// Existing rows are matched by name and updated where the file differs;
// bindings already present on a column are left alone.
func (f *BoardFile) Apply(database *db.DB) (*db.Board, error) {
	board, err := database.GetBoardByName(f.Board)
	if err != nil {
		return nil, err
	}
	if board == nil {
		board = &db.Board{Name: f.Board, ProjectDir: expandPath(f.ProjectDir)}
		if err := database.CreateBoard(board); err != nil {
			return nil, err
		}
	} else if f.ProjectDir != "" && board.ProjectDir != expandPath(f.ProjectDir) {
		board.ProjectDir = expandPath(f.ProjectDir)
		if err := database.SetBoardProjectDir(board.ID, board.ProjectDir); err != nil {
			return nil, err
		}
	}

	for key, value := range f.Settings {
		if err := database.SetSetting(key, value); err != nil {
			return nil, err
		}
	}

	for _, spec := range f.Hooks {
		if err := f.applyHook(database, board.ID, spec); err != nil {
			return nil, err
		}
	}

	registry := syshook.NewRegistry()
	for i, spec := range f.Columns {
		if err := f.applyColumn(database, registry, board.ID, i, spec); err != nil {
			return nil, err
		}
	}
	return board, nil
}

func (f *BoardFile) applyHook(database *db.DB, boardID int64, spec HookSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("hook with no name")
	}
	existing, err := database.FindHookByName(boardID, spec.Name)
	if err != nil {
		return err
	}

	h := &db.Hook{
		BoardID:          boardID,
		Name:             spec.Name,
		Kind:             spec.Kind,
		Command:          spec.Command,
		RunRoot:          spec.RunRoot,
		TimeoutSeconds:   spec.Timeout,
		AgentPrompt:      spec.Prompt,
		AgentExecutor:    spec.Executor,
		AgentAutoApprove: spec.AutoApprove,
	}
	if existing == nil {
		return database.CreateHook(h)
	}
	h.ID = existing.ID
	if h.Kind == "" {
		h.Kind = existing.Kind
	}
	if h.RunRoot == "" {
		h.RunRoot = existing.RunRoot
	}
	return database.UpdateHook(h)
}

func (f *BoardFile) applyColumn(database *db.DB, registry *syshook.Registry, boardID int64, position int, spec ColumnSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("column with no name")
	}
	column, err := database.FindColumnByName(boardID, spec.Name)
	if err != nil {
		return err
	}
	if column == nil {
		column = &db.Column{BoardID: boardID, Name: spec.Name, Position: position, Role: spec.Role}
		if err := database.CreateColumn(column); err != nil {
			return err
		}
	}

	existing, err := database.ListColumnHooks(column.ID)
	if err != nil {
		return err
	}
	bound := make(map[string]bool, len(existing))
	for _, ch := range existing {
		bound[ch.HookID] = true
	}

	for i, binding := range spec.Hooks {
		hookID, err := f.resolveHookID(database, registry, boardID, binding.Hook)
		if err != nil {
			return fmt.Errorf("column %s: %w", spec.Name, err)
		}
		if bound[hookID] {
			continue
		}
		ch := &db.ColumnHook{
			ColumnID:    column.ID,
			HookID:      hookID,
			Position:    i,
			ExecuteOnce: binding.Once,
			Transparent: binding.Transparent,
			Removable:   true,
			Settings:    binding.Settings,
		}
		if err := database.CreateColumnHook(ch); err != nil {
			return err
		}
		bound[hookID] = true
	}
	return nil
}

// resolveHookID maps a binding reference to a hook identifier: system
// identifiers pass through, anything else is a hook name on the board.
func (f *BoardFile) resolveHookID(database *db.DB, registry *syshook.Registry, boardID int64, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("binding with no hook")
	}
	if syshook.IsSystemHookID(ref) {
		if _, err := registry.Get(ref); err != nil {
			return "", fmt.Errorf("unknown system hook %q", ref)
		}
		return ref, nil
	}
	h, err := database.FindHookByName(boardID, ref)
	if err != nil {
		return "", err
	}
	if h == nil {
		return "", fmt.Errorf("unknown hook %q", ref)
	}
	return h.ID, nil
}
