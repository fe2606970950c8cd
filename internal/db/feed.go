package db

// FeedEmitter receives task change notifications from the store.
// This allows the DB to feed the board watcher without depending on the
// engine package.
type FeedEmitter interface {
	EmitTaskCreated(task *Task)
	EmitTaskUpdated(task *Task)
	EmitTaskDeleted(taskID int64)
}

// SetFeedEmitter sets the change-feed emitter for this database.
// This is called by the engine to observe in-process task mutations.
func (db *DB) SetFeedEmitter(emitter FeedEmitter) {
	db.feedEmitter = emitter
}

// emitTaskCreated emits a task created event if an emitter is configured.
func (db *DB) emitTaskCreated(task *Task) {
	if db.feedEmitter != nil {
		db.feedEmitter.EmitTaskCreated(task)
	}
}

// emitTaskUpdated emits a task updated event if an emitter is configured.
func (db *DB) emitTaskUpdated(task *Task) {
	if db.feedEmitter != nil {
		db.feedEmitter.EmitTaskUpdated(task)
	}
}

// emitTaskDeleted emits a task deleted event if an emitter is configured.
func (db *DB) emitTaskDeleted(taskID int64) {
	if db.feedEmitter != nil {
		db.feedEmitter.EmitTaskDeleted(taskID)
	}
}
