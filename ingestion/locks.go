package ingestion

import (
	"context"
	"sync"

	"github.com/poiesic/kbase/core"
)

// projectLocks is a keyed mutex. Entries are removed once nobody holds or
// waits on them.
type projectLocks struct {
	mu    sync.Mutex
	locks map[core.ProjectID]*projectLock
}

type projectLock struct {
	ch   chan struct{}
	refs int
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[core.ProjectID]*projectLock)}
}

// lock blocks until the project's lock is held or ctx is done.
// The returned func releases the lock.
func (l *projectLocks) lock(ctx context.Context, project core.ProjectID) (func(), error) {
	l.mu.Lock()
	pl, ok := l.locks[project]
	if !ok {
		pl = &projectLock{ch: make(chan struct{}, 1)}
		l.locks[project] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(project, pl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-pl.ch
			l.release(project, pl)
		})
	}, nil
}

func (l *projectLocks) release(project core.ProjectID, pl *projectLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, project)
	}
}

// size returns the number of live lock entries.
func (l *projectLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
