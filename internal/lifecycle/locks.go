package lifecycle

import "sync"

// taskLocks serializes mutations per task id. Entries are refcounted and
// dropped once the last holder releases, so the map does not grow with the
// number of tasks ever touched.
type taskLocks struct {
	mu      sync.Mutex
	entries map[string]*taskLockEntry
}

type taskLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{entries: make(map[string]*taskLockEntry)}
}

// lock blocks until the task id is exclusively held and returns the
// release function.
func (l *taskLocks) lock(taskID string) func() {
	l.mu.Lock()
	e, ok := l.entries[taskID]
	if !ok {
		e = &taskLockEntry{}
		l.entries[taskID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, taskID)
		}
		l.mu.Unlock()
	}
}
