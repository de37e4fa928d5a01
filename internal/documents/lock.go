package documents

import (
	"context"
	"sync"
)

// docLocks serialises compile and version calls per document.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	sem  chan struct{}
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*docLock)}
}

// acquire blocks until the document is free or ctx ends. The returned
// function releases the lock.
func (l *docLocks) acquire(ctx context.Context, documentID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[documentID]
	if !ok {
		lk = &docLock{sem: make(chan struct{}, 1)}
		l.locks[documentID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
		return func() {
			<-lk.sem
			l.release(documentID, lk)
		}, nil
	case <-ctx.Done():
		l.release(documentID, lk)
		return nil, ctx.Err()
	}
}

func (l *docLocks) release(documentID string, lk *docLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, documentID)
	}
}
