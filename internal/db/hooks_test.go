package db

import (
	"testing"
)

func TestHookCRUD(t *testing.T) {
	db := openTestDB(t)
	board, _ := seedBoard(t, db, "To Do")

	h := &Hook{
		BoardID: board.ID,
		Name:    "Run tests",
		Kind:    KindScript,
		Command: "go test ./...",
	}
	if err := db.CreateHook(h); err != nil {
		t.Fatalf("failed to create hook: %v", err)
	}
	if h.ID == "" {
		t.Fatal("expected generated hook ID")
	}
	if h.RunRoot != RunRootProject {
		t.Errorf("expected default run root project, got %q", h.RunRoot)
	}

	got, err := db.GetHook(h.ID)
	if err != nil {
		t.Fatalf("failed to get hook: %v", err)
	}
	if got == nil || got.Name != "Run tests" {
		t.Fatalf("unexpected hook: %+v", got)
	}

	got.Command = "make test"
	if err := db.UpdateHook(got); err != nil {
		t.Fatalf("failed to update hook: %v", err)
	}
	got, _ = db.GetHook(h.ID)
	if got.Command != "make test" {
		t.Errorf("expected updated command, got %q", got.Command)
	}

	if err := db.DeleteHook(h.ID); err != nil {
		t.Fatalf("failed to delete hook: %v", err)
	}
	got, _ = db.GetHook(h.ID)
	if got != nil {
		t.Error("expected hook gone after delete")
	}
}

func TestAgentHookDefaults(t *testing.T) {
	db := openTestDB(t)
	board, _ := seedBoard(t, db, "To Do")

	h := &Hook{
		BoardID:     board.ID,
		Name:        "Review changes",
		Kind:        KindAgent,
		AgentPrompt: "Review the diff and summarize problems.",
	}
	if err := db.CreateHook(h); err != nil {
		t.Fatalf("failed to create agent hook: %v", err)
	}
	if h.AgentExecutor != ExecutorClaude {
		t.Errorf("expected default executor claude, got %q", h.AgentExecutor)
	}
}

func TestColumnHooksOrderedByPosition(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "In Progress")

	h := &Hook{BoardID: board.ID, Name: "Lint", Kind: KindScript, Command: "lint"}
	if err := db.CreateHook(h); err != nil {
		t.Fatalf("failed to create hook: %v", err)
	}

	// Insert out of order; listing must sort by position
	for _, pos := range []int{2, 0, 1} {
		ch := &ColumnHook{
			ColumnID:  cols[0].ID,
			HookID:    h.ID,
			Position:  pos,
			Removable: true,
		}
		if err := db.CreateColumnHook(ch); err != nil {
			t.Fatalf("failed to create column hook at %d: %v", pos, err)
		}
	}

	bindings, err := db.ListColumnHooks(cols[0].ID)
	if err != nil {
		t.Fatalf("failed to list column hooks: %v", err)
	}
	if len(bindings) != 3 {
		t.Fatalf("expected 3 bindings, got %d", len(bindings))
	}
	for i, ch := range bindings {
		if ch.Position != i {
			t.Errorf("binding %d: expected position %d, got %d", i, i, ch.Position)
		}
	}
}

func TestColumnHookSettings(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "Done")

	h := &Hook{BoardID: board.ID, Name: "Notify", Kind: KindScript, Command: "notify"}
	db.CreateHook(h)

	ch := &ColumnHook{
		ColumnID:  cols[0].ID,
		HookID:    h.ID,
		Removable: true,
		Settings:  map[string]interface{}{"sound": "chime", "disabled": true},
	}
	if err := db.CreateColumnHook(ch); err != nil {
		t.Fatalf("failed to create column hook: %v", err)
	}

	got, err := db.GetColumnHook(ch.ID)
	if err != nil {
		t.Fatalf("failed to get column hook: %v", err)
	}
	if got.Settings["sound"] != "chime" {
		t.Errorf("expected settings round-trip, got %v", got.Settings)
	}
	if !got.Disabled() {
		t.Error("expected binding to report disabled")
	}

	got.Settings["disabled"] = false
	if err := db.UpdateColumnHook(got); err != nil {
		t.Fatalf("failed to update column hook: %v", err)
	}
	got, _ = db.GetColumnHook(ch.ID)
	if got.Disabled() {
		t.Error("expected binding enabled after update")
	}
}

func TestDeleteColumnHookRespectsRemovable(t *testing.T) {
	db := openTestDB(t)
	board, cols := seedBoard(t, db, "In Progress")

	h := &Hook{BoardID: board.ID, Name: "Guard", Kind: KindScript, Command: "true"}
	db.CreateHook(h)

	required := &ColumnHook{ColumnID: cols[0].ID, HookID: h.ID, Removable: false}
	if err := db.CreateColumnHook(required); err != nil {
		t.Fatalf("failed to create required binding: %v", err)
	}
	optional := &ColumnHook{ColumnID: cols[0].ID, HookID: h.ID, Position: 1, Removable: true}
	if err := db.CreateColumnHook(optional); err != nil {
		t.Fatalf("failed to create optional binding: %v", err)
	}

	if err := db.DeleteColumnHook(required.ID); err != ErrHookNotRemovable {
		t.Errorf("expected ErrHookNotRemovable, got %v", err)
	}
	if err := db.DeleteColumnHook(optional.ID); err != nil {
		t.Errorf("failed to delete optional binding: %v", err)
	}

	bindings, _ := db.ListColumnHooks(cols[0].ID)
	if len(bindings) != 1 || bindings[0].ID != required.ID {
		t.Errorf("expected only the required binding to remain, got %d", len(bindings))
	}
}

func TestFindColumnByRole(t *testing.T) {
	db := openTestDB(t)
	board, _ := seedBoard(t, db, "Backlog")

	review := &Column{BoardID: board.ID, Name: "In Review", Position: 1, Role: RoleReview}
	if err := db.CreateColumn(review); err != nil {
		t.Fatalf("failed to create review column: %v", err)
	}

	got, err := db.FindColumnByRole(board.ID, RoleReview)
	if err != nil {
		t.Fatalf("failed to find column by role: %v", err)
	}
	if got == nil || got.ID != review.ID {
		t.Fatalf("expected review column, got %+v", got)
	}

	missing, err := db.FindColumnByRole(board.ID, RoleInProgress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing role, got %+v", missing)
	}
}
