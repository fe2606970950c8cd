// Package syshook holds the compiled-in hooks boards can bind to columns
// alongside user-defined ones. System hooks are identified by a fixed
// namespace and never live in the database.
package syshook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hookboard/hookboard/internal/db"
)

// Prefix namespaces every system hook identifier.
const Prefix = "system."

// System hook identifiers
const (
	RunAgentID     = Prefix + "run_agent"
	CreateBranchID = Prefix + "create_branch"
	PlaySoundID    = Prefix + "play_sound"
	MoveTaskID     = Prefix + "move_task"
)

// ErrNotFound is returned when an identifier is not in the catalog.
var ErrNotFound = fmt.Errorf("system hook not found")

// IsSystemHookID reports whether an identifier belongs to the system
// namespace. Classification is by prefix alone; unknown system identifiers
// still classify as system and fail at dispatch.
func IsSystemHookID(id string) bool {
	return strings.HasPrefix(id, Prefix)
}

// Context carries the task snapshot, binding settings, and the collaborators
// a behavior may call. Collaborators the host did not wire stay nil and the
// behavior fails cleanly.
type Context struct {
	Task     *db.Task
	Column   *db.Column // column whose entry triggered the hook
	Settings map[string]interface{}

	CreateBranch func(task *db.Task) error
	FindColumn   func(boardID int64, role string) (*db.Column, error)
	MoveTask     func(taskID, columnID int64) // must be asynchronous; runs after the current queue step
	EmitEffect   func(effects map[string]interface{})
}

func (c Context) setting(key string) (string, bool) {
	v, ok := c.Settings[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Hook is one catalog entry. Agent-flagged hooks are delegated to the agent
// runtime instead of Run; everything else executes in-process, never spawns
// a subprocess, and cannot time out.
type Hook struct {
	ID          string
	Name        string
	Description string
	Agent       bool
	Run         func(ctx Context) error
}

// Registry is the fixed system hook catalog.
type Registry struct {
	hooks map[string]*Hook
}

// NewRegistry builds the catalog of built-in hooks.
func NewRegistry() *Registry {
	r := &Registry{hooks: make(map[string]*Hook)}
	r.register(&Hook{
		ID:          RunAgentID,
		Name:        "Run agent",
		Description: "Start an AI agent session working on the task itself",
		Agent:       true,
	})
	r.register(&Hook{
		ID:          CreateBranchID,
		Name:        "Create branch",
		Description: "Ensure the task has its own git branch",
		Run:         runCreateBranch,
	})
	r.register(&Hook{
		ID:          PlaySoundID,
		Name:        "Play sound",
		Description: "Ask connected clients to play a notification sound",
		Run:         runPlaySound,
	})
	r.register(&Hook{
		ID:          MoveTaskID,
		Name:        "Move task",
		Description: "Move the task to a configured target column",
		Run:         runMoveTask,
	})
	return r
}

func (r *Registry) register(h *Hook) {
	r.hooks[h.ID] = h
}

// Get returns the hook for an identifier.
func (r *Registry) Get(id string) (*Hook, error) {
	h, ok := r.hooks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h, nil
}

// All returns the catalog in stable identifier order.
func (r *Registry) All() []*Hook {
	out := make([]*Hook, 0, len(r.hooks))
	for _, h := range r.hooks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func runCreateBranch(ctx Context) error {
	if ctx.CreateBranch == nil {
		return fmt.Errorf("branch creation is not configured")
	}
	return ctx.CreateBranch(ctx.Task)
}

func runPlaySound(ctx Context) error {
	sound, ok := ctx.setting("sound")
	if !ok {
		sound = "chime"
	}
	if ctx.EmitEffect != nil {
		ctx.EmitEffect(map[string]interface{}{
			"play_sound": map[string]interface{}{"sound": sound},
		})
	}
	return nil
}

func runMoveTask(ctx Context) error {
	if ctx.MoveTask == nil {
		return fmt.Errorf("task moving is not configured")
	}

	target, err := resolveTarget(ctx)
	if err != nil {
		return err
	}
	if target == ctx.Task.ColumnID {
		// Already there; moving would cancel the rest of this queue for nothing
		return nil
	}
	ctx.MoveTask(ctx.Task.ID, target)
	return nil
}

// resolveTarget picks the destination column from the binding settings:
// an explicit column_id wins, else a role looked up on the task's board.
func resolveTarget(ctx Context) (int64, error) {
	if v, ok := ctx.Settings["column_id"]; ok {
		switch id := v.(type) {
		case float64: // JSON numbers decode as float64
			return int64(id), nil
		case int64:
			return id, nil
		case int:
			return int64(id), nil
		}
		return 0, fmt.Errorf("invalid column_id setting: %v", v)
	}

	role, ok := ctx.setting("role")
	if !ok {
		return 0, fmt.Errorf("move target not configured (set role or column_id)")
	}
	if ctx.FindColumn == nil {
		return 0, fmt.Errorf("column lookup is not configured")
	}
	col, err := ctx.FindColumn(ctx.Task.BoardID, role)
	if err != nil {
		return 0, fmt.Errorf("find column by role %q: %w", role, err)
	}
	if col == nil {
		return 0, fmt.Errorf("board has no column with role %q", role)
	}
	return col.ID, nil
}
