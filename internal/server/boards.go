package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/syshook"
)

// BoardResponse represents a board in JSON responses.
type BoardResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ProjectDir string    `json:"project_dir,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func boardToResponse(b *db.Board) *BoardResponse {
	return &BoardResponse{
		ID:         b.ID,
		Name:       b.Name,
		ProjectDir: b.ProjectDir,
		CreatedAt:  b.CreatedAt.Time,
	}
}

// ColumnResponse represents a column in JSON responses.
type ColumnResponse struct {
	ID       int64  `json:"id"`
	BoardID  int64  `json:"board_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Role     string `json:"role,omitempty"`
}

func columnToResponse(c *db.Column) *ColumnResponse {
	return &ColumnResponse{
		ID:       c.ID,
		BoardID:  c.BoardID,
		Name:     c.Name,
		Position: c.Position,
		Role:     c.Role,
	}
}

// HookResponse represents a hook definition in JSON responses.
type HookResponse struct {
	ID               string `json:"id"`
	BoardID          int64  `json:"board_id"`
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	Command          string `json:"command,omitempty"`
	RunRoot          string `json:"run_root,omitempty"`
	TimeoutSeconds   int    `json:"timeout_seconds,omitempty"`
	AgentPrompt      string `json:"agent_prompt,omitempty"`
	AgentExecutor    string `json:"agent_executor,omitempty"`
	AgentAutoApprove bool   `json:"agent_auto_approve,omitempty"`
}

func hookToResponse(h *db.Hook) *HookResponse {
	return &HookResponse{
		ID:               h.ID,
		BoardID:          h.BoardID,
		Name:             h.Name,
		Kind:             h.Kind,
		Command:          h.Command,
		RunRoot:          h.RunRoot,
		TimeoutSeconds:   h.TimeoutSeconds,
		AgentPrompt:      h.AgentPrompt,
		AgentExecutor:    h.AgentExecutor,
		AgentAutoApprove: h.AgentAutoApprove,
	}
}

// BindingResponse represents a column hook binding in JSON responses.
type BindingResponse struct {
	ID          string                 `json:"id"`
	ColumnID    int64                  `json:"column_id"`
	HookID      string                 `json:"hook_id"`
	Position    int                    `json:"position"`
	ExecuteOnce bool                   `json:"execute_once"`
	Transparent bool                   `json:"transparent"`
	Removable   bool                   `json:"removable"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

func bindingToResponse(ch *db.ColumnHook) *BindingResponse {
	return &BindingResponse{
		ID:          ch.ID,
		ColumnID:    ch.ColumnID,
		HookID:      ch.HookID,
		Position:    ch.Position,
		ExecuteOnce: ch.ExecuteOnce,
		Transparent: ch.Transparent,
		Removable:   ch.Removable,
		Settings:    ch.Settings,
	}
}

// handleListBoards handles GET /boards
func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.db.ListBoards()
	if err != nil {
		s.logger.Error("list boards failed", "error", err)
		jsonError(w, "Failed to list boards", http.StatusInternalServerError)
		return
	}

	responses := make([]*BoardResponse, len(boards))
	for i, b := range boards {
		responses[i] = boardToResponse(b)
	}
	jsonResponse(w, responses, http.StatusOK)
}

// CreateBoardRequest represents a request to create a board.
type CreateBoardRequest struct {
	Name       string `json:"name"`
	ProjectDir string `json:"project_dir,omitempty"`
}

// handleCreateBoard handles POST /boards
func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		jsonError(w, "Name is required", http.StatusBadRequest)
		return
	}

	if existing, err := s.db.GetBoardByName(req.Name); err == nil && existing != nil {
		jsonError(w, "Board already exists", http.StatusConflict)
		return
	}

	board := &db.Board{Name: req.Name, ProjectDir: req.ProjectDir}
	if err := s.db.CreateBoard(board); err != nil {
		s.logger.Error("create board failed", "error", err)
		jsonError(w, "Failed to create board", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, boardToResponse(board), http.StatusCreated)
}

// handleGetBoard handles GET /boards/{id}
func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid board ID", http.StatusBadRequest)
		return
	}

	board, err := s.db.GetBoard(id)
	if err != nil {
		s.logger.Error("get board failed", "error", err)
		jsonError(w, "Failed to get board", http.StatusInternalServerError)
		return
	}
	if board == nil {
		jsonError(w, "Board not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, boardToResponse(board), http.StatusOK)
}

// handleListColumns handles GET /boards/{id}/columns
func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid board ID", http.StatusBadRequest)
		return
	}

	columns, err := s.db.ListColumns(id)
	if err != nil {
		s.logger.Error("list columns failed", "error", err)
		jsonError(w, "Failed to list columns", http.StatusInternalServerError)
		return
	}

	responses := make([]*ColumnResponse, len(columns))
	for i, c := range columns {
		responses[i] = columnToResponse(c)
	}
	jsonResponse(w, responses, http.StatusOK)
}

// CreateColumnRequest represents a request to add a column to a board.
type CreateColumnRequest struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// handleCreateColumn handles POST /boards/{id}/columns
func (s *Server) handleCreateColumn(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid board ID", http.StatusBadRequest)
		return
	}

	var req CreateColumnRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		jsonError(w, "Name is required", http.StatusBadRequest)
		return
	}

	board, err := s.db.GetBoard(id)
	if err != nil || board == nil {
		jsonError(w, "Board not found", http.StatusNotFound)
		return
	}

	existing, err := s.db.ListColumns(id)
	if err != nil {
		s.logger.Error("list columns failed", "error", err)
		jsonError(w, "Failed to list columns", http.StatusInternalServerError)
		return
	}

	column := &db.Column{BoardID: id, Name: req.Name, Position: len(existing), Role: req.Role}
	if err := s.db.CreateColumn(column); err != nil {
		s.logger.Error("create column failed", "error", err)
		jsonError(w, "Failed to create column", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, columnToResponse(column), http.StatusCreated)
}

// handleListHooks handles GET /boards/{id}/hooks
func (s *Server) handleListHooks(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid board ID", http.StatusBadRequest)
		return
	}

	hooks, err := s.db.ListHooks(id)
	if err != nil {
		s.logger.Error("list hooks failed", "error", err)
		jsonError(w, "Failed to list hooks", http.StatusInternalServerError)
		return
	}

	responses := make([]*HookResponse, len(hooks))
	for i, h := range hooks {
		responses[i] = hookToResponse(h)
	}
	jsonResponse(w, responses, http.StatusOK)
}

// CreateHookRequest represents a request to define a hook on a board.
type CreateHookRequest struct {
	Name             string `json:"name"`
	Kind             string `json:"kind,omitempty"`
	Command          string `json:"command,omitempty"`
	RunRoot          string `json:"run_root,omitempty"`
	TimeoutSeconds   int    `json:"timeout_seconds,omitempty"`
	AgentPrompt      string `json:"agent_prompt,omitempty"`
	AgentExecutor    string `json:"agent_executor,omitempty"`
	AgentAutoApprove bool   `json:"agent_auto_approve,omitempty"`
}

// handleCreateHook handles POST /boards/{id}/hooks
func (s *Server) handleCreateHook(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid board ID", http.StatusBadRequest)
		return
	}

	var req CreateHookRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		jsonError(w, "Name is required", http.StatusBadRequest)
		return
	}
	if (req.Kind == "" || req.Kind == db.KindScript) && req.Command == "" {
		jsonError(w, "Script hooks need a command", http.StatusBadRequest)
		return
	}

	board, err := s.db.GetBoard(id)
	if err != nil || board == nil {
		jsonError(w, "Board not found", http.StatusNotFound)
		return
	}

	hook := &db.Hook{
		BoardID:          id,
		Name:             req.Name,
		Kind:             req.Kind,
		Command:          req.Command,
		RunRoot:          req.RunRoot,
		TimeoutSeconds:   req.TimeoutSeconds,
		AgentPrompt:      req.AgentPrompt,
		AgentExecutor:    req.AgentExecutor,
		AgentAutoApprove: req.AgentAutoApprove,
	}
	if err := s.db.CreateHook(hook); err != nil {
		s.logger.Error("create hook failed", "error", err)
		jsonError(w, "Failed to create hook", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, hookToResponse(hook), http.StatusCreated)
}

// handleListColumnHooks handles GET /columns/{id}/hooks
func (s *Server) handleListColumnHooks(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid column ID", http.StatusBadRequest)
		return
	}

	bindings, err := s.db.ListColumnHooks(id)
	if err != nil {
		s.logger.Error("list column hooks failed", "error", err)
		jsonError(w, "Failed to list column hooks", http.StatusInternalServerError)
		return
	}

	responses := make([]*BindingResponse, len(bindings))
	for i, ch := range bindings {
		responses[i] = bindingToResponse(ch)
	}
	jsonResponse(w, responses, http.StatusOK)
}

// BindHookRequest represents a request to bind a hook to a column.
type BindHookRequest struct {
	HookID      string                 `json:"hook_id"`
	Position    *int                   `json:"position,omitempty"`
	ExecuteOnce bool                   `json:"execute_once,omitempty"`
	Transparent bool                   `json:"transparent,omitempty"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// handleBindHook handles POST /columns/{id}/hooks
func (s *Server) handleBindHook(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		jsonError(w, "Invalid column ID", http.StatusBadRequest)
		return
	}

	var req BindHookRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.HookID == "" {
		jsonError(w, "hook_id is required", http.StatusBadRequest)
		return
	}

	column, err := s.db.GetColumn(id)
	if err != nil || column == nil {
		jsonError(w, "Column not found", http.StatusNotFound)
		return
	}

	// The hook must exist: in the system catalog for system identifiers,
	// in the board's hook table otherwise
	if syshook.IsSystemHookID(req.HookID) {
		if _, err := s.engine.Registry().Get(req.HookID); err != nil {
			jsonError(w, "Unknown system hook", http.StatusNotFound)
			return
		}
	} else {
		hook, err := s.db.GetHook(req.HookID)
		if err != nil || hook == nil {
			jsonError(w, "Hook not found", http.StatusNotFound)
			return
		}
		if hook.BoardID != column.BoardID {
			jsonError(w, "Hook belongs to another board", http.StatusBadRequest)
			return
		}
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		existing, err := s.db.ListColumnHooks(id)
		if err != nil {
			s.logger.Error("list column hooks failed", "error", err)
			jsonError(w, "Failed to list column hooks", http.StatusInternalServerError)
			return
		}
		position = len(existing)
	}

	binding := &db.ColumnHook{
		ColumnID:    id,
		HookID:      req.HookID,
		Position:    position,
		ExecuteOnce: req.ExecuteOnce,
		Transparent: req.Transparent,
		Removable:   true,
		Settings:    req.Settings,
	}
	if err := s.db.CreateColumnHook(binding); err != nil {
		s.logger.Error("bind hook failed", "error", err)
		jsonError(w, "Failed to bind hook", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, bindingToResponse(binding), http.StatusCreated)
}

// handleUnbindHook handles DELETE /bindings/{id}
func (s *Server) handleUnbindHook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		jsonError(w, "Invalid binding ID", http.StatusBadRequest)
		return
	}

	err := s.db.DeleteColumnHook(id)
	switch {
	case errors.Is(err, db.ErrHookNotFound):
		jsonError(w, "Binding not found", http.StatusNotFound)
	case errors.Is(err, db.ErrHookNotRemovable):
		jsonError(w, "Binding is not removable", http.StatusForbidden)
	case err != nil:
		s.logger.Error("unbind hook failed", "error", err)
		jsonError(w, "Failed to unbind hook", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// SystemHookResponse represents a system catalog entry in JSON responses.
type SystemHookResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Agent       bool   `json:"agent"`
}

// handleListSystemHooks handles GET /system-hooks
func (s *Server) handleListSystemHooks(w http.ResponseWriter, r *http.Request) {
	catalog := s.engine.Registry().All()
	responses := make([]*SystemHookResponse, len(catalog))
	for i, h := range catalog {
		responses[i] = &SystemHookResponse{ID: h.ID, Name: h.Name, Description: h.Description, Agent: h.Agent}
	}
	jsonResponse(w, responses, http.StatusOK)
}
