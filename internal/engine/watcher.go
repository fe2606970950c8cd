package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hookboard/hookboard/internal/db"
)

// poller is the engine's change feed for writers outside this process: other
// CLI invocations or anything else touching the database file. It keeps a
// snapshot of every task's column and diffs it against the database, routing
// creates, column changes, and deletes to the right board's supervisor.
//
// In-process mutations never take this path. The engine updates the snapshot
// as part of each API call, so a change is only ever delivered to an actor
// once.
type poller struct {
	e        *Engine
	interval time.Duration

	mu      sync.Mutex
	known   map[int64]taskSnapshot
	moving  map[int64]int // engine-driven moves in flight, keyed by task
	version uint64        // bumped on every in-process change; stale diffs abort

	stopCh   chan struct{}
	stopOnce sync.Once
}

type taskSnapshot struct {
	boardID  int64
	columnID int64
}

func newPoller(e *Engine) *poller {
	return &poller{
		e:        e,
		interval: 2 * time.Second,
		known:    make(map[int64]taskSnapshot),
		moving:   make(map[int64]int),
		stopCh:   make(chan struct{}),
	}
}

// prime seeds the snapshot before the first diff.
func (p *poller) prime(tasks []*db.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range tasks {
		p.known[t.ID] = taskSnapshot{boardID: t.BoardID, columnID: t.ColumnID}
	}
}

// note records an in-process task state so the next diff does not mistake it
// for an external change.
func (p *poller) note(t *db.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[t.ID] = taskSnapshot{boardID: t.BoardID, columnID: t.ColumnID}
	p.version++
}

func (p *poller) forget(taskID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.known, taskID)
	p.version++
}

// beginMove blinds the diff to a task while an engine-driven move is in
// flight; endMove settles the snapshot from the database afterwards.
func (p *poller) beginMove(taskID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moving[taskID]++
	p.version++
}

func (p *poller) endMove(taskID int64) {
	task, err := p.e.d.db.GetTask(taskID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.moving[taskID] <= 1 {
		delete(p.moving, taskID)
	} else {
		p.moving[taskID]--
	}
	p.version++
	if err != nil {
		return
	}
	if task == nil {
		delete(p.known, taskID)
		return
	}
	p.known[task.ID] = taskSnapshot{boardID: task.BoardID, columnID: task.ColumnID}
}

func (p *poller) start(ctx context.Context) {
	go p.watch(ctx)
}

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// watch wakes on database file activity when fsnotify is available and falls
// back to the tick interval otherwise.
func (p *poller) watch(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var fsEvents chan fsnotify.Event
	var fsErrors chan error
	dbPath := p.e.d.db.Path()
	if dbPath != "" {
		if watcher, err := fsnotify.NewWatcher(); err != nil {
			p.e.d.logger.Warn("Filesystem watch unavailable, polling only", "error", err)
		} else {
			defer watcher.Close()
			// Watch the directory: SQLite appends to -wal and -shm
			// siblings, and file-level watches break across renames
			if err := watcher.Add(filepath.Dir(dbPath)); err != nil {
				p.e.d.logger.Warn("Cannot watch database directory, polling only", "error", err)
			} else {
				fsEvents = watcher.Events
				fsErrors = watcher.Errors
			}
		}
	}
	base := filepath.Base(dbPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.diff()
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Let the writer finish its transaction, then coalesce the
			// burst of events one write produces
			time.Sleep(100 * time.Millisecond)
			p.drain(fsEvents)
			p.diff()
		case _, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
			}
		}
	}
}

func (p *poller) drain(ch chan fsnotify.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// diff compares the database against the snapshot and routes external
// changes. A round is abandoned when an in-process mutation landed while the
// listing was being read; the next tick sees a settled snapshot.
func (p *poller) diff() {
	p.mu.Lock()
	startVersion := p.version
	p.mu.Unlock()

	tasks, err := p.e.d.db.ListAllTasks()
	if err != nil {
		p.e.d.logger.Debug("Change feed listing failed", "error", err)
		return
	}

	p.mu.Lock()
	if p.version != startVersion {
		p.mu.Unlock()
		return
	}

	seen := make(map[int64]bool, len(tasks))
	var created, moved []*db.Task
	for _, t := range tasks {
		seen[t.ID] = true
		if p.moving[t.ID] > 0 {
			continue
		}
		prev, ok := p.known[t.ID]
		if !ok {
			p.known[t.ID] = taskSnapshot{boardID: t.BoardID, columnID: t.ColumnID}
			created = append(created, t)
			continue
		}
		if prev.columnID != t.ColumnID {
			p.known[t.ID] = taskSnapshot{boardID: t.BoardID, columnID: t.ColumnID}
			moved = append(moved, t)
		}
	}

	type taskRef struct{ id, boardID int64 }
	var deleted []taskRef
	for id, snap := range p.known {
		if !seen[id] && p.moving[id] == 0 {
			deleted = append(deleted, taskRef{id: id, boardID: snap.boardID})
			delete(p.known, id)
		}
	}
	p.mu.Unlock()

	for _, t := range created {
		p.e.d.logger.Info("Adopted externally created task", "task", t.ID, "board", t.BoardID)
		p.e.supervisorFor(t.BoardID).ensure(t.ID, reasonCreate)
	}
	for _, t := range moved {
		p.e.d.logger.Info("Detected external column change", "task", t.ID, "column", t.ColumnID)
		if err := p.e.supervisorFor(t.BoardID).move(t.ID, t.ColumnID); err != nil {
			p.e.d.logger.Warn("External move failed", "task", t.ID, "error", err)
		}
	}
	for _, ref := range deleted {
		p.e.d.logger.Info("Detected external task deletion", "task", ref.id)
		if a := p.e.supervisorFor(ref.boardID).lookup(ref.id); a != nil {
			if err := a.delete(false); err != nil {
				p.e.d.logger.Warn("Cleanup after external deletion failed", "task", ref.id, "error", err)
			}
		}
	}
}
