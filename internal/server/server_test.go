package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/engine"
	"github.com/hookboard/hookboard/internal/events"
)

type stubWorkspaces struct{}

func (stubWorkspaces) WorkDir(task *db.Task, board *db.Board, runRoot string) (string, error) {
	if runRoot == db.RunRootWorktree && task.WorktreePath != "" {
		return task.WorktreePath, nil
	}
	return board.ProjectDir, nil
}

func (stubWorkspaces) EnsureBranch(task *db.Task, board *db.Board) error { return nil }
func (stubWorkspaces) Cleanup(task *db.Task, board *db.Board) error     { return nil }

type testServer struct {
	t       *testing.T
	srv     *Server
	handler http.Handler
	db      *db.DB
	bus     *events.Bus
	board   *db.Board
	todo    *db.Column
	doing   *db.Column
	dir     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	board := &db.Board{Name: "api-board", ProjectDir: dir}
	if err := database.CreateBoard(board); err != nil {
		t.Fatalf("create board: %v", err)
	}
	todo := &db.Column{BoardID: board.ID, Name: "Todo", Position: 0}
	if err := database.CreateColumn(todo); err != nil {
		t.Fatalf("create column: %v", err)
	}
	doing := &db.Column{BoardID: board.ID, Name: "Doing", Position: 1}
	if err := database.CreateColumn(doing); err != nil {
		t.Fatalf("create column: %v", err)
	}

	bus := events.NewBus()
	eng := engine.New(database, bus)
	eng.SetWorkspaces(stubWorkspaces{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(eng.Stop)
	t.Cleanup(cancel)

	srv := New(Config{Addr: ":0", DB: database, Engine: eng, Bus: bus})
	return &testServer{
		t:       t,
		srv:     srv,
		handler: srv.routes(),
		db:      database,
		bus:     bus,
		board:   board,
		todo:    todo,
		doing:   doing,
		dir:     dir,
	}
}

// do routes a request through the real mux so path parameters resolve.
func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, want, rec.Body.String())
	}
}

func (ts *testServer) createTask(title string, columnID int64) *TaskResponse {
	ts.t.Helper()
	rec := ts.do("POST", "/tasks", CreateTaskRequest{
		BoardID:  ts.board.ID,
		ColumnID: columnID,
		Title:    title,
	})
	wantStatus(ts.t, rec, http.StatusCreated)
	task := decode[*TaskResponse](ts.t, rec)
	return task
}

// bindScript defines a script hook on the test board and binds it to a column.
func (ts *testServer) bindScript(name, command string, columnID int64) *BindingResponse {
	ts.t.Helper()
	rec := ts.do("POST", fmt.Sprintf("/boards/%d/hooks", ts.board.ID), CreateHookRequest{
		Name:    name,
		Command: command,
	})
	wantStatus(ts.t, rec, http.StatusCreated)
	hook := decode[*HookResponse](ts.t, rec)

	rec = ts.do("POST", fmt.Sprintf("/columns/%d/hooks", columnID), BindHookRequest{HookID: hook.ID})
	wantStatus(ts.t, rec, http.StatusCreated)
	return decode[*BindingResponse](ts.t, rec)
}

// waitExecutions polls the executions endpoint until cond is satisfied.
func (ts *testServer) waitExecutions(taskID int64, what string, cond func([]*ExecutionResponse) bool) []*ExecutionResponse {
	ts.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := ts.do("GET", fmt.Sprintf("/tasks/%d/executions", taskID), nil)
		wantStatus(ts.t, rec, http.StatusOK)
		executions := decode[[]*ExecutionResponse](ts.t, rec)
		if cond(executions) {
			return executions
		}
		time.Sleep(25 * time.Millisecond)
	}
	ts.t.Fatalf("timed out waiting for %s", what)
	return nil
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("GET", "/health", nil)
	wantStatus(t, rec, http.StatusOK)
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestMoveUnknownTaskReturns404(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", "/tasks/9999/move", MoveTaskRequest{ColumnID: ts.doing.ID})
	wantStatus(t, rec, http.StatusNotFound)
	body := decode[map[string]string](t, rec)
	if body["error"] != "Task not found" {
		t.Errorf("error = %q, want %q", body["error"], "Task not found")
	}
}

func TestMoveUnknownColumnReturns404(t *testing.T) {
	ts := newTestServer(t)
	task := ts.createTask("orphan move", ts.todo.ID)

	rec := ts.do("POST", fmt.Sprintf("/tasks/%d/move", task.ID), MoveTaskRequest{ColumnID: 9999})
	wantStatus(t, rec, http.StatusNotFound)
	body := decode[map[string]string](t, rec)
	if body["error"] != "Column not found" {
		t.Errorf("error = %q, want %q", body["error"], "Column not found")
	}
}

func TestMoveAcrossBoardsRejected(t *testing.T) {
	ts := newTestServer(t)
	task := ts.createTask("stay home", ts.todo.ID)

	other := &db.Board{Name: "other-board"}
	if err := ts.db.CreateBoard(other); err != nil {
		t.Fatalf("create board: %v", err)
	}
	foreign := &db.Column{BoardID: other.ID, Name: "Elsewhere"}
	if err := ts.db.CreateColumn(foreign); err != nil {
		t.Fatalf("create column: %v", err)
	}

	rec := ts.do("POST", fmt.Sprintf("/tasks/%d/move", task.ID), MoveTaskRequest{ColumnID: foreign.ID})
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestMoveRunsHooks(t *testing.T) {
	ts := newTestServer(t)

	marker := filepath.Join(ts.dir, "moved.txt")
	ts.bindScript("Mark", fmt.Sprintf("echo done > %q", marker), ts.doing.ID)

	task := ts.createTask("ship it", ts.todo.ID)

	rec := ts.do("POST", fmt.Sprintf("/tasks/%d/move", task.ID), MoveTaskRequest{ColumnID: ts.doing.ID})
	wantStatus(t, rec, http.StatusOK)
	moved := decode[*TaskResponse](t, rec)
	if moved.ColumnID != ts.doing.ID {
		t.Errorf("column = %d, want %d", moved.ColumnID, ts.doing.ID)
	}

	executions := ts.waitExecutions(task.ID, "hook completion", func(execs []*ExecutionResponse) bool {
		return len(execs) == 1 && execs[0].Status == db.ExecStatusCompleted
	})
	if executions[0].HookName != "Mark" {
		t.Errorf("hook name = %q, want Mark", executions[0].HookName)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("marker not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != "done" {
		t.Errorf("marker content = %q", data)
	}
}

func TestCreateTaskRunsEntryHooks(t *testing.T) {
	ts := newTestServer(t)

	marker := filepath.Join(ts.dir, "born.txt")
	ts.bindScript("Welcome", fmt.Sprintf("echo hi > %q", marker), ts.todo.ID)

	task := ts.createTask("fresh", ts.todo.ID)

	ts.waitExecutions(task.ID, "entry hook", func(execs []*ExecutionResponse) bool {
		return len(execs) == 1 && execs[0].Status == db.ExecStatusCompleted
	})
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("marker not written: %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", "/tasks", CreateTaskRequest{BoardID: ts.board.ID, ColumnID: ts.todo.ID})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = ts.do("POST", "/tasks", CreateTaskRequest{BoardID: ts.board.ID, ColumnID: 9999, Title: "lost"})
	wantStatus(t, rec, http.StatusNotFound)
}

func TestUpdateTaskEditsContentOnly(t *testing.T) {
	ts := newTestServer(t)
	task := ts.createTask("draft", ts.todo.ID)

	newTitle := "final"
	newBody := "polished"
	rec := ts.do("PUT", fmt.Sprintf("/tasks/%d", task.ID), UpdateTaskRequest{Title: &newTitle, Body: &newBody})
	wantStatus(t, rec, http.StatusOK)
	updated := decode[*TaskResponse](t, rec)
	if updated.Title != "final" || updated.Body != "polished" {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.ColumnID != ts.todo.ID {
		t.Errorf("column changed on content edit: %d", updated.ColumnID)
	}

	empty := ""
	rec = ts.do("PUT", fmt.Sprintf("/tasks/%d", task.ID), UpdateTaskRequest{Title: &empty})
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestStopTask(t *testing.T) {
	ts := newTestServer(t)
	task := ts.createTask("calm", ts.todo.ID)

	rec := ts.do("POST", fmt.Sprintf("/tasks/%d/stop", task.ID), nil)
	wantStatus(t, rec, http.StatusOK)
	stopped := decode[*TaskResponse](t, rec)
	if stopped.AgentStatus != db.AgentStatusIdle {
		t.Errorf("status = %q, want idle", stopped.AgentStatus)
	}

	rec = ts.do("POST", "/tasks/9999/stop", nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestDeleteTask(t *testing.T) {
	ts := newTestServer(t)
	task := ts.createTask("doomed", ts.todo.ID)

	rec := ts.do("DELETE", fmt.Sprintf("/tasks/%d", task.ID), nil)
	wantStatus(t, rec, http.StatusNoContent)

	rec = ts.do("GET", fmt.Sprintf("/tasks/%d", task.ID), nil)
	wantStatus(t, rec, http.StatusNotFound)

	rec = ts.do("DELETE", fmt.Sprintf("/tasks/%d", task.ID), nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestListTasksFilters(t *testing.T) {
	ts := newTestServer(t)
	first := ts.createTask("one", ts.todo.ID)
	ts.createTask("two", ts.doing.ID)

	rec := ts.do("GET", fmt.Sprintf("/tasks?board=%d", ts.board.ID), nil)
	wantStatus(t, rec, http.StatusOK)
	if tasks := decode[[]*TaskResponse](t, rec); len(tasks) != 2 {
		t.Errorf("board filter: %d tasks, want 2", len(tasks))
	}

	rec = ts.do("GET", fmt.Sprintf("/tasks?column=%d", ts.todo.ID), nil)
	wantStatus(t, rec, http.StatusOK)
	tasks := decode[[]*TaskResponse](t, rec)
	if len(tasks) != 1 || tasks[0].ID != first.ID {
		t.Errorf("column filter: %+v", tasks)
	}
}

func TestBoardLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", "/boards", CreateBoardRequest{Name: "second", ProjectDir: ts.dir})
	wantStatus(t, rec, http.StatusCreated)
	created := decode[*BoardResponse](t, rec)
	if created.Name != "second" {
		t.Errorf("name = %q", created.Name)
	}

	rec = ts.do("POST", "/boards", CreateBoardRequest{Name: "second"})
	wantStatus(t, rec, http.StatusConflict)

	rec = ts.do("POST", "/boards", CreateBoardRequest{})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = ts.do("GET", "/boards", nil)
	wantStatus(t, rec, http.StatusOK)
	if boards := decode[[]*BoardResponse](t, rec); len(boards) != 2 {
		t.Errorf("%d boards, want 2", len(boards))
	}

	rec = ts.do("GET", fmt.Sprintf("/boards/%d", created.ID), nil)
	wantStatus(t, rec, http.StatusOK)

	rec = ts.do("GET", "/boards/9999", nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestColumnCreationAssignsPosition(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", fmt.Sprintf("/boards/%d/columns", ts.board.ID), CreateColumnRequest{Name: "Done", Role: db.RoleDone})
	wantStatus(t, rec, http.StatusCreated)
	created := decode[*ColumnResponse](t, rec)
	if created.Position != 2 {
		t.Errorf("position = %d, want 2", created.Position)
	}
	if created.Role != db.RoleDone {
		t.Errorf("role = %q", created.Role)
	}

	rec = ts.do("GET", fmt.Sprintf("/boards/%d/columns", ts.board.ID), nil)
	wantStatus(t, rec, http.StatusOK)
	if columns := decode[[]*ColumnResponse](t, rec); len(columns) != 3 {
		t.Errorf("%d columns, want 3", len(columns))
	}
}

func TestHookDefinitionValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", fmt.Sprintf("/boards/%d/hooks", ts.board.ID), CreateHookRequest{Name: "Empty"})
	wantStatus(t, rec, http.StatusBadRequest)

	rec = ts.do("POST", fmt.Sprintf("/boards/%d/hooks", ts.board.ID), CreateHookRequest{
		Name:        "Implement",
		Kind:        db.KindAgent,
		AgentPrompt: "Implement {task_title}",
	})
	wantStatus(t, rec, http.StatusCreated)
	hook := decode[*HookResponse](t, rec)
	if hook.AgentExecutor != db.ExecutorClaude {
		t.Errorf("executor = %q, want default", hook.AgentExecutor)
	}

	rec = ts.do("GET", fmt.Sprintf("/boards/%d/hooks", ts.board.ID), nil)
	wantStatus(t, rec, http.StatusOK)
	if hooks := decode[[]*HookResponse](t, rec); len(hooks) != 1 {
		t.Errorf("%d hooks, want 1", len(hooks))
	}
}

func TestBindingLifecycle(t *testing.T) {
	ts := newTestServer(t)
	binding := ts.bindScript("Lint", "true", ts.doing.ID)

	if !binding.Removable {
		t.Error("API-created binding should be removable")
	}
	if binding.Position != 0 {
		t.Errorf("position = %d, want 0", binding.Position)
	}

	second := ts.bindScript("Test", "true", ts.doing.ID)
	if second.Position != 1 {
		t.Errorf("position = %d, want 1", second.Position)
	}

	rec := ts.do("GET", fmt.Sprintf("/columns/%d/hooks", ts.doing.ID), nil)
	wantStatus(t, rec, http.StatusOK)
	if bindings := decode[[]*BindingResponse](t, rec); len(bindings) != 2 {
		t.Errorf("%d bindings, want 2", len(bindings))
	}

	rec = ts.do("DELETE", "/bindings/"+binding.ID, nil)
	wantStatus(t, rec, http.StatusNoContent)

	rec = ts.do("DELETE", "/bindings/"+binding.ID, nil)
	wantStatus(t, rec, http.StatusNotFound)
}

func TestBindUnknownHookRejected(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", fmt.Sprintf("/columns/%d/hooks", ts.doing.ID), BindHookRequest{HookID: "no-such-hook"})
	wantStatus(t, rec, http.StatusNotFound)

	rec = ts.do("POST", fmt.Sprintf("/columns/%d/hooks", ts.doing.ID), BindHookRequest{HookID: "system.explode"})
	wantStatus(t, rec, http.StatusNotFound)
}

func TestBindSystemHook(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("POST", fmt.Sprintf("/columns/%d/hooks", ts.doing.ID), BindHookRequest{
		HookID:   "system.play_sound",
		Settings: map[string]interface{}{"sound": "gong"},
	})
	wantStatus(t, rec, http.StatusCreated)
	binding := decode[*BindingResponse](t, rec)
	if binding.HookID != "system.play_sound" {
		t.Errorf("hook_id = %q", binding.HookID)
	}
	if binding.Settings["sound"] != "gong" {
		t.Errorf("settings = %v", binding.Settings)
	}
}

func TestSystemHookCatalog(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do("GET", "/system-hooks", nil)
	wantStatus(t, rec, http.StatusOK)
	catalog := decode[[]*SystemHookResponse](t, rec)
	if len(catalog) == 0 {
		t.Fatal("empty system hook catalog")
	}
	found := false
	for _, h := range catalog {
		if h.ID == "system.play_sound" {
			found = true
		}
		if !strings.HasPrefix(h.ID, "system.") {
			t.Errorf("catalog entry %q lacks system prefix", h.ID)
		}
	}
	if !found {
		t.Error("system.play_sound missing from catalog")
	}
}

func TestEventStreamDeliversHookEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.bindScript("Streamed", "true", ts.doing.ID)
	task := ts.createTask("watch me", ts.todo.ID)

	httpSrv := httptest.NewServer(ts.handler)
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/events/stream?type=hook.completed&task=%d", httpSrv.URL, task.ID), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	rec := ts.do("POST", fmt.Sprintf("/tasks/%d/move", task.ID), MoveTaskRequest{ColumnID: ts.doing.ID})
	wantStatus(t, rec, http.StatusOK)

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	if eventLine != "event: hook.completed" {
		t.Fatalf("event line = %q (scan err %v)", eventLine, scanner.Err())
	}

	var ev events.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.TaskID != task.ID || ev.HookName != "Streamed" {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocketBroadcastsEvents(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.srv.wsHub.Run()
	go ts.srv.forwardEvents(ctx)

	httpSrv := httptest.NewServer(ts.handler)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the hub a beat to register the client before publishing
	time.Sleep(50 * time.Millisecond)
	ts.bus.Publish(events.Event{Type: events.TaskStatus, TaskID: 42, Status: db.AgentStatusIdle})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	if msg.Type != events.TaskStatus {
		t.Errorf("type = %q, want %q", msg.Type, events.TaskStatus)
	}
}
