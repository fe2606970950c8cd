// Package engine runs hooks in response to task column changes: one actor
// per task serializes execution, a supervisor per board keeps actors
// independent, and a change-feed poller adopts mutations made by other
// processes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/events"
	"github.com/hookboard/hookboard/internal/hookrun"
	"github.com/hookboard/hookboard/internal/syshook"
)

// ErrCrossBoardMove is returned when the target column belongs to a
// different board than the task.
var ErrCrossBoardMove = errors.New("column is on a different board")

// Engine is the hook execution engine. Moves and stops are synchronous: the
// call returns once cancellation and queue setup are done, which is what
// makes rapid successive moves deterministic. Hook results then arrive on
// the event bus and in the execution ledger.
type Engine struct {
	d      *deps
	poller *poller

	mu          sync.RWMutex
	supervisors map[int64]*Supervisor
	started     bool
}

// New creates an engine that logs nothing (for tests and TUI embedding).
func New(database *db.DB, bus *events.Bus) *Engine {
	logger := log.NewWithOptions(io.Discard, log.Options{Prefix: "engine"})
	return newEngine(database, bus, logger, hookrun.NewSilent())
}

// NewWithLogging creates an engine that logs to w (for daemon mode).
func NewWithLogging(database *db.DB, bus *events.Bus, w io.Writer) *Engine {
	logger := log.NewWithOptions(w, log.Options{Prefix: "engine"})
	return newEngine(database, bus, logger, hookrun.New())
}

func newEngine(database *db.DB, bus *events.Bus, logger *log.Logger, runner *hookrun.Runner) *Engine {
	e := &Engine{supervisors: make(map[int64]*Supervisor)}
	e.d = &deps{
		db:         database,
		runner:     runner,
		registry:   syshook.NewRegistry(),
		bus:        bus,
		logger:     logger,
		workspaces: NewGitWorkspaces(database, logger),
	}
	e.d.scheduleMove = func(taskID, columnID int64) {
		// Applied from a fresh goroutine so a system hook can move its own
		// task without re-entering the actor that is executing it
		go func() {
			if err := e.Move(taskID, columnID); err != nil {
				logger.Warn("Scheduled move failed", "task", taskID, "column", columnID, "error", err)
			}
		}()
	}
	e.poller = newPoller(e)
	return e
}

// SetWorkspaces replaces the workspace provider. Call before Start.
func (e *Engine) SetWorkspaces(ws Workspaces) {
	e.d.workspaces = ws
}

// Registry exposes the system hook catalog for UI listings.
func (e *Engine) Registry() *syshook.Registry {
	return e.d.registry
}

// Start self-heals and adopts every existing task, hooks the engine into the
// database's change feed, and begins watching for external writers.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	tasks, err := e.d.db.ListAllTasks()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	e.poller.prime(tasks)
	for _, t := range tasks {
		e.supervisorFor(t.BoardID).ensure(t.ID, reasonStartup)
	}

	e.d.db.SetFeedEmitter(e)
	e.poller.start(ctx)
	e.d.logger.Info("Hook engine started", "tasks", len(tasks))
	return nil
}

// Stop terminates every actor, killing in-flight hook processes and settling
// their ledger rows so the next start has nothing to heal.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	sups := make([]*Supervisor, 0, len(e.supervisors))
	for _, s := range e.supervisors {
		sups = append(sups, s)
	}
	e.mu.Unlock()

	e.poller.stop()
	for _, s := range sups {
		s.shutdown()
	}
	e.d.logger.Info("Hook engine stopped")
}

func (e *Engine) supervisorFor(boardID int64) *Supervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.supervisors[boardID]
	if !ok {
		s = newSupervisor(boardID, e.d)
		e.supervisors[boardID] = s
	}
	return s
}

func (e *Engine) isStarted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// ErrNotRunning is returned for mutating calls before Start or after Stop.
var ErrNotRunning = errors.New("engine is not running")

// Move transitions a task to a column and runs the column's hooks. Returns
// once the previous queue is cancelled and the new one is set up and
// started; hook results follow asynchronously.
func (e *Engine) Move(taskID, columnID int64) error {
	if !e.isStarted() {
		return ErrNotRunning
	}
	task, err := e.d.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return db.ErrTaskNotFound
	}
	col, err := e.d.db.GetColumn(columnID)
	if err != nil {
		return err
	}
	if col == nil {
		return db.ErrColumnNotFound
	}
	if col.BoardID != task.BoardID {
		return fmt.Errorf("%w: column %d, task %d", ErrCrossBoardMove, columnID, taskID)
	}

	e.poller.beginMove(taskID)
	defer e.poller.endMove(taskID)
	return e.supervisorFor(task.BoardID).move(taskID, columnID)
}

// StopExecution cancels the task's running and queued hooks and resets its
// status, including a standing error. Idempotent.
func (e *Engine) StopExecution(taskID int64) error {
	if !e.isStarted() {
		return ErrNotRunning
	}
	task, err := e.d.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return db.ErrTaskNotFound
	}
	return e.supervisorFor(task.BoardID).stopExecution(taskID)
}

// DeleteTask cancels the task's hooks, removes its worktree, and deletes the
// record. The actor terminates before the row is removed, so no hook ever
// outlives its task.
func (e *Engine) DeleteTask(taskID int64) error {
	if !e.isStarted() {
		return ErrNotRunning
	}
	task, err := e.d.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return db.ErrTaskNotFound
	}
	board, err := e.d.db.GetBoard(task.BoardID)
	if err != nil {
		return err
	}

	if err := e.supervisorFor(task.BoardID).deleteTask(taskID, true); err != nil {
		return err
	}
	if err := e.d.workspaces.Cleanup(task, board); err != nil {
		e.d.logger.Warn("Worktree cleanup failed", "task", taskID, "error", err)
	}
	e.poller.forget(taskID)
	return nil
}

// History returns the task's execution ledger, oldest first.
func (e *Engine) History(taskID int64) ([]*db.HookExecution, error) {
	task, err := e.d.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, db.ErrTaskNotFound
	}
	return e.d.db.ListExecutions(taskID)
}

// The engine is the database's change-feed consumer for in-process writes.

// EmitTaskCreated spawns the new task's actor, which evaluates the current
// column as a fresh entry.
func (e *Engine) EmitTaskCreated(task *db.Task) {
	if task == nil || !e.isStarted() {
		return
	}
	e.poller.note(task)
	e.supervisorFor(task.BoardID).ensure(task.ID, reasonCreate)
}

// EmitTaskUpdated keeps the change-feed snapshot current. Column changes
// never arrive this way; they go through Move.
func (e *Engine) EmitTaskUpdated(task *db.Task) {
	if task == nil || !e.isStarted() {
		return
	}
	e.poller.note(task)
}

// EmitTaskDeleted cleans up after a task row removed outside the engine's
// own delete path.
func (e *Engine) EmitTaskDeleted(taskID int64) {
	if !e.isStarted() {
		return
	}
	e.poller.forget(taskID)

	e.mu.RLock()
	sups := make([]*Supervisor, 0, len(e.supervisors))
	for _, s := range e.supervisors {
		sups = append(sups, s)
	}
	e.mu.RUnlock()
	for _, s := range sups {
		if a := s.lookup(taskID); a != nil {
			go func() { _ = a.delete(false) }()
			return
		}
	}
}
