package holdings

import (
	"context"
	"sync"
)

// portfolioLocks serialises work per portfolio id. Entries are dropped when unused.
type portfolioLocks struct {
	mu    sync.Mutex
	locks map[int64]*portfolioLock
}

// portfolioLock is held while its one-slot channel is full
type portfolioLock struct {
	slot chan struct{}
	refs int
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{locks: make(map[int64]*portfolioLock)}
}

// Lock blocks until the caller holds the lock for id or ctx is done, and returns the
// release function
func (l *portfolioLocks) Lock(ctx context.Context, id int64) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &portfolioLock{slot: make(chan struct{}, 1)}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(id, lock)
		return nil, ctx.Err()
	}

	return func() {
		<-lock.slot
		l.release(id, lock)
	}, nil
}

func (l *portfolioLocks) release(id int64, lock *portfolioLock) {
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

func (l *portfolioLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
