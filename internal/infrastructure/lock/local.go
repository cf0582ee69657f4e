// Package lock provides per-student submission locks that do not depend on
// Redis, and a locker that falls back to them when Redis is unavailable.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/drivetheory/theory-hub/internal/application/port"
	"github.com/drivetheory/theory-hub/internal/domain/shared"
)

// LocalLocker serializes submissions per student inside one process.
// Entries are reference counted and removed when no one holds or waits.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	locks map[shared.StudentID]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

var _ port.StudentLocker = (*LocalLocker)(nil)

// NewLocalLocker creates a locker that waits at most wait for a held lock.
// A zero wait is bounded only by the context.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{wait: wait, locks: make(map[shared.StudentID]*entry)}
}

// Acquire blocks until the student's lock is free.
func (l *LocalLocker) Acquire(ctx context.Context, studentID shared.StudentID) (port.Unlock, error) {
	l.mu.Lock()
	e, ok := l.locks[studentID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.locks[studentID] = e
	}
	e.refs++
	l.mu.Unlock()

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case e.sem <- struct{}{}:
	case <-waitCtx.Done():
		l.release(studentID, e)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, shared.ErrLockTimeout
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-e.sem
			l.release(studentID, e)
		})
		return nil
	}, nil
}

func (l *LocalLocker) release(studentID shared.StudentID, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, studentID)
	}
}

// held returns the number of students with a holder or waiter.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
