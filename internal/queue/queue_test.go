package queue

import (
	"testing"
)

func item(name string, execID int64) Item {
	return Item{ExecutionID: execID, HookID: "hook-" + name, HookName: name}
}

func TestPopMarksExecutingAndKeepsHead(t *testing.T) {
	q := New().Push(item("a", 1)).Push(item("b", 2))

	head, q, ok := q.Pop()
	if !ok {
		t.Fatal("expected pop to succeed")
	}
	if head.HookName != "a" {
		t.Errorf("expected head a, got %s", head.HookName)
	}
	if !q.Executing() {
		t.Error("expected queue to be executing after pop")
	}
	if q.Len() != 2 {
		t.Errorf("head should stay queued while executing, len=%d", q.Len())
	}

	// A second pop while executing must refuse
	if _, _, ok := q.Pop(); ok {
		t.Error("pop during execution should fail")
	}

	current, ok := q.Current()
	if !ok || current.HookName != "a" {
		t.Errorf("expected current a, got %v ok=%v", current.HookName, ok)
	}
}

func TestCompleteCurrentAdvances(t *testing.T) {
	q := New().PushAll([]Item{item("a", 1), item("b", 2)})

	_, q, _ = q.Pop()
	q = q.CompleteCurrent()

	if q.Executing() {
		t.Error("expected executing cleared after complete")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 item left, got %d", q.Len())
	}

	head, q, ok := q.Pop()
	if !ok || head.HookName != "b" {
		t.Fatalf("expected b next, got %v ok=%v", head.HookName, ok)
	}
	q = q.CompleteCurrent()
	if !q.Empty() {
		t.Error("expected empty queue after completing all items")
	}
}

func TestPopEmpty(t *testing.T) {
	q := New()
	if _, _, ok := q.Pop(); ok {
		t.Error("pop on empty queue should fail")
	}
	if !q.Empty() {
		t.Error("expected empty")
	}
}

func TestClearDropsExecutingHead(t *testing.T) {
	q := New().PushAll([]Item{item("a", 1), item("b", 2), item("c", 3)})
	_, q, _ = q.Pop()

	q = q.Clear()
	if !q.Empty() || q.Executing() || q.Len() != 0 {
		t.Errorf("expected cleared queue, got len=%d executing=%v", q.Len(), q.Executing())
	}
}

func TestPendingExcludesExecutingHead(t *testing.T) {
	q := New().PushAll([]Item{item("a", 1), item("b", 2), item("c", 3)})

	if got := len(q.Pending()); got != 3 {
		t.Errorf("idle queue: expected 3 pending, got %d", got)
	}

	_, q, _ = q.Pop()
	pending := q.Pending()
	if len(pending) != 2 {
		t.Fatalf("executing queue: expected 2 pending, got %d", len(pending))
	}
	if pending[0].HookName != "b" || pending[1].HookName != "c" {
		t.Errorf("unexpected pending order: %v, %v", pending[0].HookName, pending[1].HookName)
	}
}

func TestValueSemantics(t *testing.T) {
	base := New().Push(item("a", 1))

	// Derive two queues from the same base; neither push may affect the other
	left := base.Push(item("left", 2))
	right := base.Push(item("right", 3))

	if base.Len() != 1 {
		t.Errorf("base mutated: len=%d", base.Len())
	}
	if left.Len() != 2 || right.Len() != 2 {
		t.Fatalf("expected derived queues of 2, got %d and %d", left.Len(), right.Len())
	}
	if left.Pending()[1].HookName != "left" {
		t.Errorf("left queue corrupted: %v", left.Pending())
	}
	if right.Pending()[1].HookName != "right" {
		t.Errorf("right queue corrupted: %v", right.Pending())
	}

	// Popping a derived queue leaves the base idle
	_, popped, _ := left.Pop()
	if base.Executing() || left.Executing() {
		t.Error("pop leaked executing state into an older value")
	}
	if !popped.Executing() {
		t.Error("popped queue should be executing")
	}
}

func TestStrictOrderPreserved(t *testing.T) {
	items := []Item{item("first", 1), item("second", 2), item("third", 3), item("fourth", 4)}
	q := New().PushAll(items)

	var order []string
	for !q.Empty() {
		var head Item
		var ok bool
		head, q, ok = q.Pop()
		if !ok {
			t.Fatal("pop failed mid-drain")
		}
		order = append(order, head.HookName)
		q = q.CompleteCurrent()
	}

	want := []string{"first", "second", "third", "fourth"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order broken: got %v", order)
		}
	}
}
