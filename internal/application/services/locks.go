package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

// SessionLocks serializes operations on one session. User-driven calls use
// TryLock so a duplicate submission is refused instead of queued.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[uuid.UUID]*sessionLock)}
}

func (l *SessionLocks) acquire(id uuid.UUID) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

func (l *SessionLocks) release(id uuid.UUID, lk *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// TryLock returns ErrOperationInProgress when the session is busy.
func (l *SessionLocks) TryLock(id uuid.UUID) (func(), error) {
	lk := l.acquire(id)
	select {
	case lk.sem <- struct{}{}:
		return l.unlocker(id, lk), nil
	default:
		l.release(id, lk)
		return nil, apperrors.ErrOperationInProgress
	}
}

// Lock waits for the session until ctx is done.
func (l *SessionLocks) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	lk := l.acquire(id)
	select {
	case lk.sem <- struct{}{}:
		return l.unlocker(id, lk), nil
	case <-ctx.Done():
		l.release(id, lk)
		return nil, ctx.Err()
	}
}

func (l *SessionLocks) unlocker(id uuid.UUID, lk *sessionLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.sem
			l.release(id, lk)
		})
	}
}

// inflight is a set of session ids with an outstanding upstream call.
type inflight struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

func newInflight() *inflight {
	return &inflight{ids: make(map[uuid.UUID]struct{})}
}

func (f *inflight) add(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[id]; ok {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflight) remove(id uuid.UUID) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}

func (f *inflight) has(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[id]
	return ok
}
