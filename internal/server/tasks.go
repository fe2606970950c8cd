package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/engine"
)

// TaskResponse represents a task in JSON responses.
type TaskResponse struct {
	ID                 int64     `json:"id"`
	BoardID            int64     `json:"board_id"`
	ColumnID           int64     `json:"column_id"`
	Title              string    `json:"title"`
	Body               string    `json:"body,omitempty"`
	AgentStatus        string    `json:"agent_status"`
	AgentStatusMessage string    `json:"agent_status_message,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	InProgress         bool      `json:"in_progress"`
	WorktreePath       string    `json:"worktree_path,omitempty"`
	BranchName         string    `json:"branch_name,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func taskToResponse(t *db.Task) *TaskResponse {
	return &TaskResponse{
		ID:                 t.ID,
		BoardID:            t.BoardID,
		ColumnID:           t.ColumnID,
		Title:              t.Title,
		Body:               t.Body,
		AgentStatus:        t.AgentStatus,
		AgentStatusMessage: t.AgentStatusMessage,
		ErrorMessage:       t.ErrorMessage,
		InProgress:         t.InProgress,
		WorktreePath:       t.WorktreePath,
		BranchName:         t.BranchName,
		CreatedAt:          t.CreatedAt.Time,
		UpdatedAt:          t.UpdatedAt.Time,
	}
}

// ExecutionResponse represents an execution ledger row in JSON responses.
type ExecutionResponse struct {
	ID          int64      `json:"id"`
	TaskID      int64      `json:"task_id"`
	BindingID   string     `json:"binding_id"`
	HookID      string     `json:"hook_id"`
	HookName    string     `json:"hook_name"`
	ColumnID    int64      `json:"column_id"`
	Status      string     `json:"status"`
	SkipReason  string     `json:"skip_reason,omitempty"`
	Error       string     `json:"error,omitempty"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func executionToResponse(e *db.HookExecution) *ExecutionResponse {
	resp := &ExecutionResponse{
		ID:         e.ID,
		TaskID:     e.TaskID,
		BindingID:  e.ColumnHookID,
		HookID:     e.HookID,
		HookName:   e.HookName,
		ColumnID:   e.ColumnID,
		Status:     e.Status,
		SkipReason: e.SkipReason,
		Error:      e.Error,
		QueuedAt:   e.QueuedAt.Time,
	}
	if e.StartedAt != nil {
		resp.StartedAt = &e.StartedAt.Time
	}
	if e.CompletedAt != nil {
		resp.CompletedAt = &e.CompletedAt.Time
	}
	return resp
}

// handleListTasks handles GET /tasks with optional ?board= and ?column= filters
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []*db.Task
		err   error
	)
	switch {
	case r.URL.Query().Get("column") != "":
		var columnID int64
		columnID, err = strconv.ParseInt(r.URL.Query().Get("column"), 10, 64)
		if err != nil {
			jsonError(w, "Invalid column ID", http.StatusBadRequest)
			return
		}
		tasks, err = s.db.ListTasksInColumn(columnID)
	case r.URL.Query().Get("board") != "":
		var boardID int64
		boardID, err = strconv.ParseInt(r.URL.Query().Get("board"), 10, 64)
		if err != nil {
			jsonError(w, "Invalid board ID", http.StatusBadRequest)
			return
		}
		tasks, err = s.db.ListTasks(boardID)
	default:
		tasks, err = s.db.ListAllTasks()
	}
	if err != nil {
		s.logger.Error("list tasks failed", "error", err)
		jsonError(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}

	responses := make([]*TaskResponse, len(tasks))
	for i, t := range tasks {
		responses[i] = taskToResponse(t)
	}
	jsonResponse(w, responses, http.StatusOK)
}

// CreateTaskRequest represents a request to create a task.
type CreateTaskRequest struct {
	BoardID  int64  `json:"board_id"`
	ColumnID int64  `json:"column_id"`
	Title    string `json:"title"`
	Body     string `json:"body,omitempty"`
}

// handleCreateTask handles POST /tasks. Creating a task counts as entering
// its column, so the column's hooks run immediately.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		jsonError(w, "Title is required", http.StatusBadRequest)
		return
	}

	column, err := s.db.GetColumn(req.ColumnID)
	if err != nil || column == nil {
		jsonError(w, "Column not found", http.StatusNotFound)
		return
	}
	if req.BoardID == 0 {
		req.BoardID = column.BoardID
	}
	if column.BoardID != req.BoardID {
		jsonError(w, "Column is on a different board", http.StatusBadRequest)
		return
	}

	task := &db.Task{
		BoardID:  req.BoardID,
		ColumnID: req.ColumnID,
		Title:    req.Title,
		Body:     req.Body,
	}
	if err := s.db.CreateTask(task); err != nil {
		s.logger.Error("create task failed", "error", err)
		jsonError(w, "Failed to create task", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, taskToResponse(task), http.StatusCreated)
}

// handleGetTask handles GET /tasks/{id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	task, err := s.db.GetTask(id)
	if err != nil {
		s.logger.Error("get task failed", "error", err)
		jsonError(w, "Failed to get task", http.StatusInternalServerError)
		return
	}
	if task == nil {
		jsonError(w, "Task not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, taskToResponse(task), http.StatusOK)
}

// UpdateTaskRequest represents a request to edit a task's content. Column
// changes go through the move endpoint so hooks always fire.
type UpdateTaskRequest struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

// handleUpdateTask handles PUT /tasks/{id}
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	var req UpdateTaskRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	task, err := s.db.GetTask(id)
	if err != nil {
		s.logger.Error("get task failed", "error", err)
		jsonError(w, "Failed to get task", http.StatusInternalServerError)
		return
	}
	if task == nil {
		jsonError(w, "Task not found", http.StatusNotFound)
		return
	}

	if req.Title != nil {
		if *req.Title == "" {
			jsonError(w, "Title cannot be empty", http.StatusBadRequest)
			return
		}
		task.Title = *req.Title
	}
	if req.Body != nil {
		task.Body = *req.Body
	}

	if err := s.db.UpdateTask(task); err != nil {
		s.logger.Error("update task failed", "error", err)
		jsonError(w, "Failed to update task", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, taskToResponse(task), http.StatusOK)
}

// handleDeleteTask handles DELETE /tasks/{id}
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	err = s.engine.DeleteTask(id)
	switch {
	case errors.Is(err, db.ErrTaskNotFound):
		jsonError(w, "Task not found", http.StatusNotFound)
	case err != nil:
		s.logger.Error("delete task failed", "error", err)
		jsonError(w, "Failed to delete task", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// MoveTaskRequest represents a request to move a task to a column.
type MoveTaskRequest struct {
	ColumnID int64 `json:"column_id"`
}

// handleMoveTask handles POST /tasks/{id}/move
func (s *Server) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	var req MoveTaskRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = s.engine.Move(id, req.ColumnID)
	switch {
	case errors.Is(err, db.ErrTaskNotFound):
		jsonError(w, "Task not found", http.StatusNotFound)
	case errors.Is(err, db.ErrColumnNotFound):
		jsonError(w, "Column not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrCrossBoardMove):
		jsonError(w, "Column is on a different board", http.StatusBadRequest)
	case err != nil:
		s.logger.Error("move task failed", "task", id, "error", err)
		jsonError(w, "Failed to move task", http.StatusInternalServerError)
	default:
		task, err := s.db.GetTask(id)
		if err != nil || task == nil {
			jsonError(w, "Failed to get task", http.StatusInternalServerError)
			return
		}
		jsonResponse(w, taskToResponse(task), http.StatusOK)
	}
}

// handleStopTask handles POST /tasks/{id}/stop
func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	err = s.engine.StopExecution(id)
	switch {
	case errors.Is(err, db.ErrTaskNotFound):
		jsonError(w, "Task not found", http.StatusNotFound)
	case err != nil:
		s.logger.Error("stop task failed", "task", id, "error", err)
		jsonError(w, "Failed to stop task", http.StatusInternalServerError)
	default:
		task, err := s.db.GetTask(id)
		if err != nil || task == nil {
			jsonError(w, "Failed to get task", http.StatusInternalServerError)
			return
		}
		jsonResponse(w, taskToResponse(task), http.StatusOK)
	}
}

// handleListExecutions handles GET /tasks/{id}/executions
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	executions, err := s.engine.History(id)
	switch {
	case errors.Is(err, db.ErrTaskNotFound):
		jsonError(w, "Task not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("list executions failed", "task", id, "error", err)
		jsonError(w, "Failed to list executions", http.StatusInternalServerError)
		return
	}

	responses := make([]*ExecutionResponse, len(executions))
	for i, e := range executions {
		responses[i] = executionToResponse(e)
	}
	jsonResponse(w, responses, http.StatusOK)
}
