package archivist

import (
	"path/filepath"
	"sync"
)

// Locks holds one read-write lock per archive path. Adds to the same archive
// are serialized and exclude lists and extracts of it, while different
// archives never wait on each other. Unused locks are dropped.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	rw   sync.RWMutex
	refs int
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: map[string]*pathLock{}}
}

func key(name string) string {
	if abs, err := filepath.Abs(name); err == nil {
		return abs
	}
	return filepath.Clean(name)
}

func (l *Locks) acquire(name string) (string, *pathLock) {
	k := key(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	pl, ok := l.locks[k]
	if !ok {
		pl = &pathLock{}
		l.locks[k] = pl
	}
	pl.refs++
	return k, pl
}

func (l *Locks) drop(k string, pl *pathLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, k)
	}
}

// RLock takes the shared lock of the named archive and returns its release.
func (l *Locks) RLock(name string) func() {
	k, pl := l.acquire(name)
	pl.rw.RLock()
	var once sync.Once
	return func() {
		once.Do(func() {
			pl.rw.RUnlock()
			l.drop(k, pl)
		})
	}
}

// Lock takes the exclusive lock of the named archive and returns its release.
func (l *Locks) Lock(name string) func() {
	k, pl := l.acquire(name)
	pl.rw.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			pl.rw.Unlock()
			l.drop(k, pl)
		})
	}
}

// Len returns the number of archives with a held or awaited lock.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
