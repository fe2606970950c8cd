package engine

import (
	"sync"
	"time"

	"github.com/hookboard/hookboard/internal/db"
)

// respawnDelay spaces out restarts of a crashing actor.
const respawnDelay = 500 * time.Millisecond

// Supervisor owns the task actors of one board. Actors live and die
// independently: a crash in one task's hook execution never touches another
// task, and a crashed actor is respawned with a fresh self-heal.
type Supervisor struct {
	boardID int64
	d       *deps

	mu     sync.Mutex
	actors map[int64]*actor
	closed bool
}

func newSupervisor(boardID int64, d *deps) *Supervisor {
	return &Supervisor{
		boardID: boardID,
		d:       d,
		actors:  make(map[int64]*actor),
	}
}

// ensure returns the task's actor, spawning one when missing. Returns nil
// after shutdown.
func (s *Supervisor) ensure(taskID int64, reason spawnReason) *actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if a, ok := s.actors[taskID]; ok {
		return a
	}
	a := newActor(taskID, s.boardID, s.d)
	s.actors[taskID] = a
	go s.runActor(a, reason)
	return a
}

func (s *Supervisor) lookup(taskID int64) *actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actors[taskID]
}

func (s *Supervisor) move(taskID, columnID int64) error {
	a := s.ensure(taskID, reasonStartup)
	if a == nil {
		return db.ErrTaskNotFound
	}
	return a.move(columnID)
}

func (s *Supervisor) stopExecution(taskID int64) error {
	a := s.ensure(taskID, reasonStartup)
	if a == nil {
		return db.ErrTaskNotFound
	}
	return a.stop()
}

// deleteTask cancels the task's hooks and terminates its actor. When
// removeRecord is set the actor deletes the task row after cancellation.
func (s *Supervisor) deleteTask(taskID int64, removeRecord bool) error {
	s.mu.Lock()
	a, ok := s.actors[taskID]
	s.mu.Unlock()
	if !ok {
		if removeRecord {
			return s.d.db.DeleteTask(taskID)
		}
		return nil
	}
	return a.delete(removeRecord)
}

// runActor drives one actor until clean termination, respawning it after a
// crash unless the task was removed in the meantime.
func (s *Supervisor) runActor(a *actor, reason spawnReason) {
	for {
		if a.run(reason) == outcomeStopped {
			s.forget(a)
			close(a.quit)
			return
		}

		a.resetAfterCrash()
		s.d.logger.Warn("Restarting task actor", "task", a.taskID)
		time.Sleep(respawnDelay)
		if !s.owns(a) {
			close(a.quit)
			return
		}
		reason = reasonRestart
	}
}

func (s *Supervisor) forget(a *actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.actors[a.taskID]; ok && cur == a {
		delete(s.actors, a.taskID)
	}
}

func (s *Supervisor) owns(a *actor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.actors[a.taskID]
	return ok && cur == a
}

// shutdown terminates every actor, killing in-flight hook processes and
// settling their ledger rows.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	s.closed = true
	actors := make([]*actor, 0, len(s.actors))
	for _, a := range s.actors {
		actors = append(actors, a)
	}
	s.mu.Unlock()

	for _, a := range actors {
		reply := make(chan struct{})
		select {
		case a.mailbox <- shutdownMsg{reply: reply}:
			select {
			case <-reply:
			case <-a.quit:
			}
		case <-a.quit:
		}
	}
}
