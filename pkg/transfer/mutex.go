package transfer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Mutex is a single-holder lock. Waiters are served in arrival order and
// stop waiting when their context is done. It is not reentrant.
type Mutex struct {
	sem *semaphore.Weighted
}

func NewMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the lock is held or ctx is done. The returned unlock
// function releases the lock and is meant to be deferred; calling it more
// than once is a no-op.
func (m *Mutex) Lock(ctx context.Context) (unlock func(), err error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.sem.Release(1) })
	}, nil
}
