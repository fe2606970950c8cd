// Package queue implements the per-task hook command queue as a pure value.
// Every operation returns a new Queue; callers swap the old value for the new
// one, so there is no shared mutable state to lock.
package queue

// Item is one queued hook attempt: the ledger row it will drive plus a
// snapshot of the binding and hook at queue time. The snapshot is what makes
// an in-flight queue immune to concurrent hook edits or deletions; binding
// changes only take effect on the next column entry.
type Item struct {
	ExecutionID  int64  // hook_executions row created when the item was enqueued
	ColumnHookID string // binding being executed
	HookID       string
	HookName     string
	HookKind     string // "script", "agent", "system"
	Transparent  bool
	ExecuteOnce  bool
	Position     int
	Settings     map[string]interface{}

	// Definition snapshot, captured when the queue was built
	Command          string
	RunRoot          string
	TimeoutSeconds   int
	AgentPrompt      string
	AgentExecutor    string
	AgentAutoApprove bool
}

// Queue holds pending hook items in execution order. The zero value is an
// empty, idle queue.
type Queue struct {
	items     []Item
	executing bool
}

// New returns an empty queue.
func New() Queue {
	return Queue{}
}

// Push appends an item, returning the new queue.
func (q Queue) Push(item Item) Queue {
	items := make([]Item, len(q.items), len(q.items)+1)
	copy(items, q.items)
	return Queue{items: append(items, item), executing: q.executing}
}

// PushAll appends items in order, returning the new queue.
func (q Queue) PushAll(items []Item) Queue {
	combined := make([]Item, len(q.items), len(q.items)+len(items))
	copy(combined, q.items)
	return Queue{items: append(combined, items...), executing: q.executing}
}

// Pop returns the head item and a queue with that item marked executing. The
// head stays in the queue until CompleteCurrent drops it. ok is false when
// the queue is empty or already executing.
func (q Queue) Pop() (Item, Queue, bool) {
	if len(q.items) == 0 || q.executing {
		return Item{}, q, false
	}
	return q.items[0], Queue{items: q.items, executing: true}, true
}

// CompleteCurrent clears the executing flag and advances past the head.
func (q Queue) CompleteCurrent() Queue {
	if !q.executing || len(q.items) == 0 {
		return Queue{items: q.items}
	}
	rest := make([]Item, len(q.items)-1)
	copy(rest, q.items[1:])
	return Queue{items: rest}
}

// Clear drops every entry, including an executing head.
func (q Queue) Clear() Queue {
	return Queue{}
}

// Empty reports whether no items remain.
func (q Queue) Empty() bool {
	return len(q.items) == 0
}

// Executing reports whether the head item is being executed.
func (q Queue) Executing() bool {
	return q.executing
}

// Len returns the number of items, including an executing head.
func (q Queue) Len() int {
	return len(q.items)
}

// Current returns the executing head item. ok is false when nothing is
// executing.
func (q Queue) Current() (Item, bool) {
	if !q.executing || len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Pending returns the items not yet started: everything behind an executing
// head, or all items when idle. The slice is a copy.
func (q Queue) Pending() []Item {
	items := q.items
	if q.executing && len(items) > 0 {
		items = items[1:]
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
