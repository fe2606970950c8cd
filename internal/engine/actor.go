package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/events"
	"github.com/hookboard/hookboard/internal/hookrun"
	"github.com/hookboard/hookboard/internal/queue"
	"github.com/hookboard/hookboard/internal/syshook"
)

// deps bundles the shared collaborators every task actor uses.
type deps struct {
	db         *db.DB
	runner     *hookrun.Runner
	registry   *syshook.Registry
	bus        *events.Bus
	logger     *log.Logger
	workspaces Workspaces

	// scheduleMove applies a move without re-entering the calling actor's
	// mailbox; used by the built-in move-task hook.
	scheduleMove func(taskID, columnID int64)
}

// spawnReason says why an actor is starting, which decides how much work
// startup does beyond self-healing.
type spawnReason string

const (
	reasonCreate  spawnReason = "create"  // new task: heal, then enter the current column
	reasonStartup spawnReason = "startup" // process start or late adoption: heal only
	reasonRestart spawnReason = "restart" // respawn after a crash: heal only
)

type message interface{}

type moveMsg struct {
	columnID int64
	reply    chan error
}

type stopMsg struct {
	reply chan error
}

type deleteMsg struct {
	removeRecord bool
	reply        chan error
}

type shutdownMsg struct {
	reply chan struct{}
}

type hookDoneMsg struct {
	execID int64
	result hookrun.Result
}

type runOutcome int

const (
	outcomeStopped runOutcome = iota // clean termination (delete or shutdown)
	outcomeCrashed                   // panic during processing; supervisor respawns
)

// actor serializes all hook execution for one task. Every mutation of the
// task's status fields and every ledger transition happens on its loop
// goroutine, one message at a time.
type actor struct {
	taskID  int64
	boardID int64
	d       *deps

	mailbox chan message
	quit    chan struct{} // closed when the actor is gone for good

	// Loop-owned state
	queue  queue.Queue
	handle *hookrun.Handle // in-flight external process, nil when none
	execID int64           // ledger row the handle is driving, 0 when none
	column int64           // column whose entry built the current queue
}

func newActor(taskID, boardID int64, d *deps) *actor {
	return &actor{
		taskID:  taskID,
		boardID: boardID,
		d:       d,
		mailbox: make(chan message, 32),
		quit:    make(chan struct{}),
	}
}

// move asks the actor to run the column-transition algorithm and waits for
// cancellation and queue setup to finish.
func (a *actor) move(columnID int64) error {
	reply := make(chan error, 1)
	return a.deliver(moveMsg{columnID: columnID, reply: reply}, reply)
}

// stop cancels the task's active and queued hooks and resets its status.
func (a *actor) stop() error {
	reply := make(chan error, 1)
	return a.deliver(stopMsg{reply: reply}, reply)
}

// delete cancels everything and terminates the actor. When removeRecord is
// set the task row is deleted after cancellation, so no hook can outlive its
// task.
func (a *actor) delete(removeRecord bool) error {
	reply := make(chan error, 1)
	return a.deliver(deleteMsg{removeRecord: removeRecord, reply: reply}, reply)
}

func (a *actor) deliver(msg message, reply chan error) error {
	select {
	case a.mailbox <- msg:
	case <-a.quit:
		return db.ErrTaskNotFound
	}
	select {
	case err := <-reply:
		return err
	case <-a.quit:
		return db.ErrTaskNotFound
	}
}

// run processes mailbox messages until the actor terminates or crashes.
func (a *actor) run(reason spawnReason) (outcome runOutcome) {
	defer func() {
		if r := recover(); r != nil {
			a.d.logger.Error("Task actor panicked", "task", a.taskID, "panic", r)
			outcome = outcomeCrashed
		}
	}()

	a.heal(reason)

	for {
		msg := <-a.mailbox
		terminal, crashed := a.process(msg)
		if crashed {
			return outcomeCrashed
		}
		if terminal {
			return outcomeStopped
		}
	}
}

// process handles one message. A panic is converted into an error reply so
// the caller is never left waiting, and into a crashed outcome so the
// supervisor respawns the actor.
func (a *actor) process(msg message) (terminal, crashed bool) {
	var reply func(error)
	defer func() {
		if r := recover(); r != nil {
			a.d.logger.Error("Task actor crashed", "task", a.taskID, "panic", r)
			crashed = true
			if reply != nil {
				reply(fmt.Errorf("task actor crashed: %v", r))
			}
		}
	}()

	switch m := msg.(type) {
	case moveMsg:
		reply = func(err error) { m.reply <- err }
		reply(a.doMove(m.columnID))
	case stopMsg:
		reply = func(err error) { m.reply <- err }
		reply(a.doStop())
	case deleteMsg:
		reply = func(err error) { m.reply <- err }
		reply(a.doDelete(m.removeRecord))
		return true, crashed
	case hookDoneMsg:
		a.handleDone(m)
	case shutdownMsg:
		a.doShutdown()
		close(m.reply)
		return true, crashed
	}
	return false, crashed
}

// resetAfterCrash is called off the loop goroutine, between a crash and the
// respawn, so the replacement starts from a clean slate. The respawn's heal
// settles the ledger.
func (a *actor) resetAfterCrash() {
	if a.handle != nil {
		a.handle.Stop()
		a.handle = nil
	}
	a.execID = 0
	a.queue = a.queue.Clear()
}

// heal reconciles the ledger after a restart: any row still pending or
// running belongs to a previous process that died mid-execution. Healed rows
// are never resumed. A task stuck showing running state with no surviving
// process is reset to idle; an error state is kept.
func (a *actor) heal(reason spawnReason) {
	n, err := a.d.db.CancelActiveExecutions(a.taskID, db.SkipReasonServerRestart)
	if err != nil {
		a.d.logger.Error("Self-heal failed", "task", a.taskID, "error", err)
	} else if n > 0 {
		a.d.logger.Warn("Healed orphaned hook executions", "task", a.taskID, "count", n)
		a.publish(events.Event{Type: events.HookCancelled, Detail: db.SkipReasonServerRestart})
	}

	task, err := a.d.db.GetTask(a.taskID)
	if err != nil || task == nil {
		return
	}
	a.column = task.ColumnID

	if task.AgentStatus == db.AgentStatusRunning || task.InProgress {
		if err := a.d.db.SetTaskAgentStatus(a.taskID, db.AgentStatusIdle, ""); err != nil {
			a.d.logger.Error("Failed to reset task status", "task", a.taskID, "error", err)
		} else {
			a.publish(events.Event{Type: events.TaskStatus, Status: db.AgentStatusIdle})
		}
	}

	if reason == reasonCreate {
		// A fresh task enters its current column as if just dropped there
		if err := a.enterColumn(task); err != nil {
			a.d.logger.Error("Failed to evaluate column on create", "task", a.taskID, "error", err)
		}
	}
}

// doMove is the single synchronous entry point for column transitions:
// cancel whatever the previous column queued, persist the new column, then
// build and start the new column's queue.
func (a *actor) doMove(columnID int64) error {
	if columnID == a.column {
		// Dropping a card back where it was re-runs nothing
		return nil
	}

	a.cancelActive(db.SkipReasonColumnChange)

	if err := a.d.db.SetTaskColumn(a.taskID, columnID); err != nil {
		return fmt.Errorf("persist column change: %w", err)
	}
	a.column = columnID

	task, err := a.d.db.GetTask(a.taskID)
	if err != nil {
		return fmt.Errorf("reload task: %w", err)
	}
	if task == nil {
		return db.ErrTaskNotFound
	}

	a.d.logger.Info("Task moved", "task", a.taskID, "column", columnID)
	return a.enterColumn(task)
}

// doStop cancels all active work. Unlike a move it always resets the task's
// status fields, including a standing error. Idempotent.
func (a *actor) doStop() error {
	a.cancelActive(db.SkipReasonUserCancelled)

	task, err := a.d.db.GetTask(a.taskID)
	if err != nil {
		return fmt.Errorf("reload task: %w", err)
	}
	if task == nil {
		return db.ErrTaskNotFound
	}
	if task.AgentStatus != db.AgentStatusIdle || task.AgentStatusMessage != "" || task.ErrorMessage != "" || task.InProgress {
		if err := a.d.db.ResetTaskStatus(a.taskID); err != nil {
			return fmt.Errorf("reset task status: %w", err)
		}
		a.publish(events.Event{Type: events.TaskStatus, Status: db.AgentStatusIdle})
	}
	return nil
}

func (a *actor) doDelete(removeRecord bool) error {
	a.cancelActive(db.SkipReasonUserCancelled)
	if removeRecord {
		if err := a.d.db.DeleteTask(a.taskID); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
	}
	a.d.logger.Info("Task actor terminated", "task", a.taskID)
	return nil
}

// doShutdown is the graceful-exit path: kill the in-flight process and settle
// its ledger rows now instead of leaving them for the next startup's heal.
func (a *actor) doShutdown() {
	if a.handle == nil && a.queue.Empty() {
		return
	}
	a.cancelActive(db.SkipReasonServerRestart)
	task, err := a.d.db.GetTask(a.taskID)
	if err != nil || task == nil {
		return
	}
	if task.AgentStatus == db.AgentStatusRunning || task.InProgress {
		a.d.db.SetTaskAgentStatus(a.taskID, db.AgentStatusIdle, "")
	}
}

// cancelActive stops the in-flight hook, marks every active ledger row
// cancelled with the given reason, and clears the queue. Safe to call when
// nothing is active.
func (a *actor) cancelActive(reason string) {
	if a.handle != nil {
		// Blocks until the process group is dead, so nothing survives
		a.handle.Stop()
		a.handle = nil
	}
	a.execID = 0

	n, err := a.d.db.CancelActiveExecutions(a.taskID, reason)
	if err != nil {
		a.d.logger.Error("Failed to cancel executions", "task", a.taskID, "error", err)
		return
	}
	if n > 0 {
		a.d.logger.Info("Cancelled hook executions", "task", a.taskID, "count", n, "reason", reason)
		a.publish(events.Event{Type: events.HookCancelled, ColumnID: a.column, Detail: reason})
	}
	a.queue = a.queue.Clear()
}

// enterColumn builds the hook queue for the task's current column and starts
// its head. Filters, in order: execute-once bindings that already fired are
// dropped silently; disabled or unresolvable bindings get a skipped row with
// reason disabled; while the task is in error state, workflow-blocking
// bindings get a skipped row with reason error and only transparent ones run.
func (a *actor) enterColumn(task *db.Task) error {
	bindings, err := a.d.db.ListColumnHooks(task.ColumnID)
	if err != nil {
		return fmt.Errorf("list column hooks: %w", err)
	}

	inError := task.AgentStatus == db.AgentStatusError
	var items []queue.Item
	for _, binding := range bindings {
		if binding.ExecuteOnce && task.HasExecutedHook(binding.ID) {
			continue
		}

		item, ok := a.resolveBinding(binding)
		row := &db.HookExecution{
			TaskID:       task.ID,
			ColumnHookID: binding.ID,
			HookID:       binding.HookID,
			HookName:     item.HookName,
			ColumnID:     task.ColumnID,
		}

		if !ok || binding.Disabled() {
			if err := a.d.db.CreateSkippedExecution(row, db.SkipReasonDisabled); err != nil {
				return fmt.Errorf("record skipped execution: %w", err)
			}
			a.publishRow(events.HookSkipped, row, db.SkipReasonDisabled, nil)
			continue
		}
		if inError && !binding.Transparent {
			if err := a.d.db.CreateSkippedExecution(row, db.SkipReasonError); err != nil {
				return fmt.Errorf("record skipped execution: %w", err)
			}
			a.publishRow(events.HookSkipped, row, db.SkipReasonError, nil)
			continue
		}

		if err := a.d.db.CreateExecution(row); err != nil {
			return fmt.Errorf("enqueue execution: %w", err)
		}
		item.ExecutionID = row.ID
		a.publishRow(events.HookQueued, row, "", nil)
		items = append(items, item)
	}

	a.queue = queue.New().PushAll(items)
	a.startNext()
	return nil
}

// resolveBinding snapshots the binding's hook definition into a queue item.
// ok is false when the definition no longer resolves (deleted hook, unknown
// system identifier); the caller records the skip.
func (a *actor) resolveBinding(binding *db.ColumnHook) (queue.Item, bool) {
	item := queue.Item{
		ColumnHookID: binding.ID,
		HookID:       binding.HookID,
		HookName:     binding.HookID,
		Transparent:  binding.Transparent,
		ExecuteOnce:  binding.ExecuteOnce,
		Position:     binding.Position,
		Settings:     binding.Settings,
	}

	if syshook.IsSystemHookID(binding.HookID) {
		sys, err := a.d.registry.Get(binding.HookID)
		if err != nil {
			return item, false
		}
		item.HookName = sys.Name
		item.HookKind = db.KindSystem
		return item, true
	}

	hook, err := a.d.db.GetHook(binding.HookID)
	if err != nil || hook == nil {
		return item, false
	}
	item.HookName = hook.Name
	item.HookKind = hook.Kind
	item.Command = hook.Command
	item.RunRoot = hook.RunRoot
	item.TimeoutSeconds = hook.TimeoutSeconds
	item.AgentPrompt = hook.AgentPrompt
	item.AgentExecutor = hook.AgentExecutor
	item.AgentAutoApprove = hook.AgentAutoApprove
	return item, true
}

// startNext pops queue heads until one is in flight or the queue is drained.
// In-process system hooks complete (or fail) synchronously inside the loop.
func (a *actor) startNext() {
	for {
		item, q, ok := a.queue.Pop()
		if !ok {
			if a.queue.Empty() {
				a.finishQueue()
			}
			return
		}
		a.queue = q
		if a.startItem(item) {
			return // external process in flight; its result arrives as a message
		}
	}
}

// startItem executes one queue head. Returns true when an external process
// was started and the actor should wait for its completion message; false
// when the queue already advanced (in-process hook, or a skipped row).
func (a *actor) startItem(item queue.Item) bool {
	ok, err := a.d.db.MarkExecutionRunning(item.ExecutionID)
	if err != nil || !ok {
		a.d.logger.Warn("Execution no longer pending, skipping", "task", a.taskID, "execution", item.ExecutionID, "error", err)
		a.queue = a.queue.CompleteCurrent()
		return false
	}

	if !item.Transparent {
		msg := fmt.Sprintf("Executing %s", item.HookName)
		if err := a.d.db.SetTaskAgentStatus(a.taskID, db.AgentStatusRunning, msg); err != nil {
			a.d.logger.Error("Failed to set task status", "task", a.taskID, "error", err)
		}
		a.publish(events.Event{Type: events.TaskStatus, Status: db.AgentStatusRunning, Detail: msg})
	}

	a.publish(events.Event{
		Type:        events.HookStarted,
		ExecutionID: item.ExecutionID,
		BindingID:   item.ColumnHookID,
		HookID:      item.HookID,
		HookName:    item.HookName,
		ColumnID:    a.column,
	})
	a.d.logger.Info("Hook started", "task", a.taskID, "hook", item.HookName, "kind", item.HookKind)

	task, err := a.d.db.GetTask(a.taskID)
	if err != nil || task == nil {
		a.failItem(item, "task no longer exists")
		return false
	}
	board, err := a.d.db.GetBoard(a.boardID)
	if err != nil {
		a.failItem(item, fmt.Sprintf("load board: %v", err))
		return false
	}

	if item.HookKind == db.KindSystem {
		return a.startSystemItem(item, task, board)
	}
	return a.startExternalItem(item, task, board, hookrun.Spec{
		Kind:        item.HookKind,
		Command:     item.Command,
		Timeout:     time.Duration(item.TimeoutSeconds) * time.Second,
		Prompt:      item.AgentPrompt,
		Executor:    item.AgentExecutor,
		AutoApprove: item.AgentAutoApprove,
	}, item.RunRoot)
}

// startSystemItem dispatches a built-in hook. The agent-flagged one is routed
// through the hook runner like any agent hook; the rest run in-process and
// settle immediately.
func (a *actor) startSystemItem(item queue.Item, task *db.Task, board *db.Board) bool {
	sys, err := a.d.registry.Get(item.HookID)
	if err != nil {
		a.failItem(item, err.Error())
		return false
	}

	if sys.Agent {
		spec := hookrun.Spec{
			Kind:        db.KindAgent,
			Prompt:      agentTaskPrompt(task, item.Settings),
			Executor:    settingString(item.Settings, "executor"),
			AutoApprove: settingBool(item.Settings, "auto_approve"),
		}
		return a.startExternalItem(item, task, board, spec, db.RunRootWorktree)
	}

	var effects map[string]interface{}
	sctx := syshook.Context{
		Task:     task,
		Settings: item.Settings,
		CreateBranch: func(t *db.Task) error {
			return a.d.workspaces.EnsureBranch(t, board)
		},
		FindColumn: a.d.db.FindColumnByRole,
		MoveTask:   a.d.scheduleMove,
		EmitEffect: func(m map[string]interface{}) {
			if effects == nil {
				effects = make(map[string]interface{})
			}
			for k, v := range m {
				effects[k] = v
			}
		},
	}
	if col, err := a.d.db.GetColumn(a.column); err == nil {
		sctx.Column = col
	}

	if err := sys.Run(sctx); err != nil {
		a.failItem(item, err.Error())
		return false
	}
	a.completeItem(item, hookrun.Result{Success: true}, effects)
	a.queue = a.queue.CompleteCurrent()
	return false
}

// startExternalItem spawns the hook's process and registers a completion
// watcher that reports back through the mailbox.
func (a *actor) startExternalItem(item queue.Item, task *db.Task, board *db.Board, spec hookrun.Spec, runRoot string) bool {
	workDir, err := a.d.workspaces.WorkDir(task, board, runRoot)
	if err != nil {
		a.failItem(item, fmt.Sprintf("resolve working directory: %v", err))
		return false
	}

	spec.TaskID = task.ID
	spec.HookID = item.HookID
	spec.HookName = item.HookName
	spec.WorkDir = workDir
	spec.Env = hookEnv(task)

	handle := a.d.runner.Start(spec)
	a.handle = handle
	a.execID = item.ExecutionID

	go func(execID int64) {
		result := handle.Wait()
		select {
		case a.mailbox <- hookDoneMsg{execID: execID, result: result}:
		case <-a.quit:
		}
	}(item.ExecutionID)
	return true
}

// handleDone processes a hook completion. Results for superseded executions
// (cancelled by a later move or stop) are dropped; their rows were already
// settled by the cancellation.
func (a *actor) handleDone(m hookDoneMsg) {
	if m.execID != a.execID {
		return
	}
	a.handle = nil
	a.execID = 0

	if m.result.Stopped {
		return
	}

	item, ok := a.queue.Current()
	if !ok || item.ExecutionID != m.execID {
		return
	}

	if m.result.Success || m.result.NeedsInput {
		a.completeItem(item, m.result, nil)
		a.queue = a.queue.CompleteCurrent()
	} else {
		a.failItem(item, m.result.Message)
	}
	a.startNext()
}

// completeItem settles a successful attempt. An agent waiting for user input
// is success-like for the queue but surfaced distinctly on the event stream.
func (a *actor) completeItem(item queue.Item, result hookrun.Result, effects map[string]interface{}) {
	if ok, err := a.d.db.CompleteExecution(item.ExecutionID); err != nil || !ok {
		a.d.logger.Error("Failed to complete execution", "task", a.taskID, "execution", item.ExecutionID, "error", err)
	}
	if item.ExecuteOnce {
		if err := a.d.db.AddExecutedHook(a.taskID, item.ColumnHookID); err != nil {
			a.d.logger.Error("Failed to record executed hook", "task", a.taskID, "binding", item.ColumnHookID, "error", err)
		}
	}

	status, detail := "completed", ""
	if result.NeedsInput {
		status, detail = "needs_input", result.Message
		a.d.logger.Info("Hook needs input", "task", a.taskID, "hook", item.HookName, "question", result.Message)
	} else {
		a.d.logger.Info("Hook completed", "task", a.taskID, "hook", item.HookName)
	}
	a.publish(events.Event{
		Type:        events.HookCompleted,
		ExecutionID: item.ExecutionID,
		BindingID:   item.ColumnHookID,
		HookID:      item.HookID,
		HookName:    item.HookName,
		ColumnID:    a.column,
		Status:      status,
		Detail:      detail,
		Effects:     effects,
	})
}

// failItem settles a failed attempt. A transparent failure is recorded and
// swallowed; a workflow-blocking one drops the rest of the queue and puts
// the task in error state. Either way the queue is left consistent and the
// caller's loop may keep draining it.
func (a *actor) failItem(item queue.Item, detail string) {
	if ok, err := a.d.db.FailExecution(item.ExecutionID, detail); err != nil || !ok {
		a.d.logger.Error("Failed to record execution failure", "task", a.taskID, "execution", item.ExecutionID, "error", err)
	}
	a.publish(events.Event{
		Type:        events.HookFailed,
		ExecutionID: item.ExecutionID,
		BindingID:   item.ColumnHookID,
		HookID:      item.HookID,
		HookName:    item.HookName,
		ColumnID:    a.column,
		Detail:      detail,
	})

	if item.Transparent {
		a.d.logger.Warn("Transparent hook failed", "task", a.taskID, "hook", item.HookName, "error", detail)
		a.queue = a.queue.CompleteCurrent()
		return
	}

	a.d.logger.Error("Hook failed", "task", a.taskID, "hook", item.HookName, "error", detail)

	// Drop everything still queued behind the failed hook
	a.queue = a.queue.Clear()
	if n, err := a.d.db.CancelActiveExecutions(a.taskID, db.SkipReasonError); err != nil {
		a.d.logger.Error("Failed to cancel queued executions", "task", a.taskID, "error", err)
	} else if n > 0 {
		a.publish(events.Event{Type: events.HookCancelled, ColumnID: a.column, Detail: db.SkipReasonError})
	}

	msg := fmt.Sprintf("%s failed: %s", item.HookName, detail)
	if err := a.d.db.SetTaskError(a.taskID, msg); err != nil {
		a.d.logger.Error("Failed to set task error", "task", a.taskID, "error", err)
	}
	a.publish(events.Event{Type: events.TaskStatus, Status: db.AgentStatusError, Detail: msg})
}

func (a *actor) finishQueue() {
	task, err := a.d.db.GetTask(a.taskID)
	if err != nil || task == nil {
		return
	}
	if task.AgentStatus == db.AgentStatusError {
		// A finished queue never clears a standing error
		return
	}
	if task.AgentStatus != db.AgentStatusIdle || task.AgentStatusMessage != "" || task.InProgress {
		if err := a.d.db.ResetTaskStatus(a.taskID); err != nil {
			a.d.logger.Error("Failed to reset task status", "task", a.taskID, "error", err)
			return
		}
		a.publish(events.Event{Type: events.TaskStatus, Status: db.AgentStatusIdle})
	}
}

func (a *actor) publish(ev events.Event) {
	ev.TaskID = a.taskID
	ev.BoardID = a.boardID
	a.d.bus.Publish(ev)
}

func (a *actor) publishRow(eventType string, row *db.HookExecution, detail string, effects map[string]interface{}) {
	a.publish(events.Event{
		Type:        eventType,
		ExecutionID: row.ID,
		BindingID:   row.ColumnHookID,
		HookID:      row.HookID,
		HookName:    row.HookName,
		ColumnID:    row.ColumnID,
		Detail:      detail,
		Effects:     effects,
	})
}

// hookEnv is the environment contract hooks can rely on.
func hookEnv(task *db.Task) []string {
	env := []string{
		fmt.Sprintf("TASK_ID=%d", task.ID),
		fmt.Sprintf("TASK_TITLE=%s", task.Title),
		fmt.Sprintf("BOARD_ID=%d", task.BoardID),
		fmt.Sprintf("COLUMN_ID=%d", task.ColumnID),
	}
	if task.BranchName != "" {
		env = append(env, fmt.Sprintf("TASK_BRANCH=%s", task.BranchName))
	}
	if task.WorktreePath != "" {
		env = append(env, fmt.Sprintf("TASK_WORKTREE=%s", task.WorktreePath))
	}
	return env
}

// agentTaskPrompt builds the prompt for the built-in run-agent hook from the
// task itself, unless the binding settings supply one.
func agentTaskPrompt(task *db.Task, settings map[string]interface{}) string {
	if p := settingString(settings, "prompt"); p != "" {
		return p
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task.Title)
	if task.Body != "" {
		fmt.Fprintf(&b, "%s\n\n", task.Body)
	}
	b.WriteString("Work on this task in the current repository.")
	return b.String()
}

func settingString(settings map[string]interface{}, key string) string {
	if settings == nil {
		return ""
	}
	s, _ := settings[key].(string)
	return s
}

func settingBool(settings map[string]interface{}, key string) bool {
	if settings == nil {
		return false
	}
	b, _ := settings[key].(bool)
	return b
}
